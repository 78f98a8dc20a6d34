package scoring

// GapCosts holds generalized affine gap parameters.  A gap of d deletions
// and i insertions costs:
//
//	min(DelExist + d*DelExtend + InsExist + i*InsExtend,
//	    max(DelExist, InsExist) + |d-i|*extend + min(d,i)*PairCost)
//
// With PairCost infinite this reduces to ordinary affine gaps.
type GapCosts struct {
	DelExist  int32
	DelExtend int32
	InsExist  int32
	InsExtend int32
	// PairCost is the cost of one unaligned pair (one deletion plus one
	// insertion taken together).  Inf disables the pair state.
	PairCost int32
}

// Affine makes plain affine costs, equal for deletions and insertions.
func Affine(exist, extend int) GapCosts {
	return GapCosts{
		DelExist:  int32(exist),
		DelExtend: int32(extend),
		InsExist:  int32(exist),
		InsExtend: int32(extend),
		PairCost:  Inf,
	}
}

// Generalized makes generalized affine costs.
func Generalized(exist, extend, pairCost int) GapCosts {
	g := Affine(exist, extend)
	g.PairCost = int32(pairCost)
	return g
}

// IsAffine reports whether the pair-unaligned state can never win, so the
// aligner may skip it.
func (g GapCosts) IsAffine() bool {
	return g.PairCost >= g.DelExist+g.DelExtend+g.InsExist+g.InsExtend ||
		g.PairCost >= Inf
}

// Cost returns the cost of a gap with the given deletion and insertion
// sizes, under the generalized affine model.  The pair state shares a
// single gap opening, so it requires DelExist == InsExist to be meaningful.
func (g GapCosts) Cost(del, ins int32) int32 {
	plain := int32(0)
	if del > 0 {
		plain += g.DelExist + del*g.DelExtend
	}
	if ins > 0 {
		plain += g.InsExist + ins*g.InsExtend
	}
	pairs := del
	if ins < pairs {
		pairs = ins
	}
	if g.PairCost >= Inf || pairs == 0 {
		return plain
	}
	gen := g.DelExist + pairs*g.PairCost
	if del > ins {
		gen += (del - ins) * g.DelExtend
	} else {
		gen += (ins - del) * g.InsExtend
	}
	if gen < plain {
		return gen
	}
	return plain
}
