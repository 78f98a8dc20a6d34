package align

import (
	"math"

	"github.com/grailbio/base/log"

	"github.com/grailbio/last/scoring"
)

// Centroid runs the forward and backward algorithms over the region that
// the X-drop aligner just filled, then decodes a gamma-centroid or AMA
// alignment from the posterior match probabilities.  All quantities are in
// probability space, with one rescaling factor per antidiagonal to avoid
// underflow.
//
// A Centroid is an owned scratch arena: it is reused across calls and must
// be borrowed by one query at a time.  It implements the three-matrix
// recurrence; the pair-unaligned state is not modelled, so the
// probabilistic passes are affine-only.
type Centroid struct {
	xa *GappedXdropAligner

	t         float64
	matchProb [scoring.RowSize][scoring.RowSize]float64
	isPssm    bool
	pssmExp   []float64 // len(seq2) rows of RowSize exponentiated scores

	fM, fD, fI []float64
	bM, bD, bI []float64
	pp         []float64 // posterior match probabilities
	xMat       []float64 // gamma-decoding DP

	// Per-position expected gap occupancies, and the complements used by
	// AMA decoding, indexed by letters-consumed within the extension.
	mD, mI, mX1, mX2 []float64

	scale []float64
	z     float64

	bestScore float64
	bestK     uint64
	bestI     uint64
}

// NewCentroid makes a Centroid borrowing the aligner's band geometry.
func NewCentroid(xa *GappedXdropAligner) *Centroid {
	return &Centroid{xa: xa, t: 1}
}

// SetScoreMatrix pre-exponentiates a substitution matrix at temperature t.
func (c *Centroid) SetScoreMatrix(rows *[scoring.RowSize]scoring.Row, t float64) {
	c.t = t
	c.isPssm = false
	for i := 0; i < scoring.RowSize; i++ {
		for j := 0; j < scoring.RowSize; j++ {
			c.matchProb[i][j] = math.Exp(float64(rows[i][j]) / t)
		}
	}
}

// SetPssm pre-exponentiates a position-specific matrix: one row per
// position of sequence 2.  Delimiter rows exponentiate to zeros, which is
// how the probabilistic passes recognize them.
func (c *Centroid) SetPssm(pssm []int32, t float64) {
	c.t = t
	c.isPssm = true
	if cap(c.pssmExp) < len(pssm) {
		c.pssmExp = make([]float64, len(pssm))
	}
	c.pssmExp = c.pssmExp[:len(pssm)]
	for i, s := range pssm {
		c.pssmExp[i] = math.Exp(float64(s) / t)
	}
}

func resizeF(s []float64, n int) []float64 {
	if cap(s) < n {
		s = make([]float64, n)
	}
	s = s[:n]
	for i := range s {
		s[i] = 0
	}
	return s
}

func (c *Centroid) initForwardMatrix() {
	n := c.xa.NumCells()
	num := c.xa.NumAntidiagonals()
	c.fM = resizeF(c.fM, n)
	c.fD = resizeF(c.fD, n)
	c.fI = resizeF(c.fI, n)
	c.scale = resizeF(c.scale, num+2)
	for i := range c.scale {
		c.scale[i] = 1
	}
	c.fM[0] = 1 // the origin cell
}

func (c *Centroid) initBackwardMatrix() {
	n := c.xa.NumCells()
	num := c.xa.NumAntidiagonals()
	c.bM = resizeF(c.bM, n)
	c.bD = resizeF(c.bD, n)
	c.bI = resizeF(c.bI, n)
	c.pp = resizeF(c.pp, n)
	c.mD = resizeF(c.mD, num)
	c.mI = resizeF(c.mI, num)
	c.mX1 = resizeF(c.mX1, num)
	c.mX2 = resizeF(c.mX2, num)
	for i := range c.mX1 {
		c.mX1[i] = 1
		c.mX2[i] = 1
	}
}

// gapProbs pre-exponentiates the gap costs.
func (c *Centroid) gapProbs(gap scoring.GapCosts) (eDelOpen, eDelGrow, eInsOpen, eInsGrow float64) {
	eDelOpen = math.Exp(-float64(gap.DelExist) / c.t)
	eDelGrow = math.Exp(-float64(gap.DelExtend) / c.t)
	eInsOpen = math.Exp(-float64(gap.InsExist) / c.t)
	eInsGrow = math.Exp(-float64(gap.InsExtend) / c.t)
	return
}

// Forward runs the forward algorithm inside the X-drop band and returns
// the log of the scaled partition function (which converges to 0 as the
// scaling absorbs Z).
func (c *Centroid) Forward(seq1, seq2 []byte, start1, start2 uint64,
	forward bool, globality int, delim byte, gap scoring.GapCosts) float64 {
	pos1 := func(i uint64) uint64 {
		if forward {
			return start1 + i - 1
		}
		return start1 - i
	}
	pos2 := func(j uint64) uint64 {
		if forward {
			return start2 + j - 1
		}
		return start2 - j
	}
	probAt := func(i, j uint64) float64 {
		p1 := pos1(i)
		if c.isPssm {
			return c.pssmExp[pos2(j)*scoring.RowSize+uint64(seq1[p1]&(scoring.RowSize-1))]
		}
		return c.matchProb[seq1[p1]&(scoring.RowSize-1)][seq2[pos2(j)]&(scoring.RowSize-1)]
	}
	isDelim1 := func(i uint64) bool { return seq1[pos1(i)] == delim }
	isDelim2 := func(j uint64) bool { return seq2[pos2(j)] == delim }

	c.initForwardMatrix()
	eDelOpen, eDelGrow, eInsOpen, eInsGrow := c.gapProbs(gap)

	num := c.xa.NumAntidiagonals()

	if globality != 0 {
		c.z = 0
		// An extension that is empty because it starts at a delimiter.
		if isDelim1(1) || isDelim2(1) {
			c.z = 1
		}
	} else {
		c.z = 1
	}

	for k := 2; k < num; k++ {
		sumF := 0.0
		scale12 := 1 / (c.scale[k-1] * c.scale[k-2])
		scale1 := 1 / c.scale[k-1]
		seDel := eDelGrow * scale1
		seIns := eInsGrow * scale1

		beg := c.xa.Seq1Beg(k)
		end := c.xa.Seq1End(k)
		for i := beg; i < end; i++ {
			idx := c.xa.CellIndex(k, i)
			j := uint64(k) - i

			hori := c.xa.CellIndex(k-1, i-1)
			vert := c.xa.CellIndex(k-1, i)
			diag := c.xa.CellIndex(k-2, i-1)

			var hM, hD float64
			if hori >= 0 {
				hM, hD = c.fM[hori], c.fD[hori]
			}
			var vM, vD, vI float64
			if vert >= 0 {
				vM, vD, vI = c.fM[vert], c.fD[vert], c.fI[vert]
			}
			var dM, dD, dI float64
			if diag >= 0 {
				dM, dD, dI = c.fM[diag], c.fD[diag], c.fI[diag]
			} else if k == 2 && i == 1 {
				dM = c.fM[0] // the origin
			}

			c.fD[idx] = (hM*eDelOpen + hD) * seDel
			c.fI[idx] = ((vM+vD)*eInsOpen + vI) * seIns
			s := probAt(i, j) * scale12
			f := (dM + dD + dI) * s
			c.fM[idx] = f
			sumF += f
			if globality != 0 && (isDelim1(i+1) || isDelim2(j+1)) {
				c.z += c.fM[idx] + c.fD[idx] + c.fI[idx]
			}
		}
		if globality == 0 {
			c.z += sumF
		}
		c.scale[k] = sumF + 1
		c.z /= c.scale[k]
	}
	if !(c.z > 0) {
		log.Panicf("align: zero partition function")
	}
	return math.Log(c.z)
}

// Backward runs the backward algorithm, filling the posterior match
// probabilities and the per-position gap occupancies, and returns the log
// of the scaled backward partition function (equal to Forward's result up
// to floating error).
func (c *Centroid) Backward(seq1, seq2 []byte, start1, start2 uint64,
	forward bool, globality int, delim byte, gap scoring.GapCosts) float64 {
	pos1 := func(i uint64) uint64 {
		if forward {
			return start1 + i - 1
		}
		return start1 - i
	}
	pos2 := func(j uint64) uint64 {
		if forward {
			return start2 + j - 1
		}
		return start2 - j
	}
	probAt := func(i, j uint64) float64 {
		p1 := pos1(i)
		if c.isPssm {
			return c.pssmExp[pos2(j)*scoring.RowSize+uint64(seq1[p1]&(scoring.RowSize-1))]
		}
		return c.matchProb[seq1[p1]&(scoring.RowSize-1)][seq2[pos2(j)]&(scoring.RowSize-1)]
	}
	isDelim1 := func(i uint64) bool { return seq1[pos1(i)] == delim }
	isDelim2 := func(j uint64) bool { return seq2[pos2(j)] == delim }

	c.initBackwardMatrix()
	eDelOpen, eDelGrow, eInsOpen, eInsGrow := c.gapProbs(gap)
	scaledUnit := 1.0

	num := c.xa.NumAntidiagonals()

	for k := num - 1; k >= 2; k-- {
		scale12 := 1 / (c.scale[k-1] * c.scale[k-2])
		scale1 := 1 / c.scale[k-1]
		seDel := eDelGrow * scale1
		seIns := eInsGrow * scale1
		scaledUnit /= c.scale[k]

		beg := c.xa.Seq1Beg(k)
		end := c.xa.Seq1End(k)
		for i := beg; i < end; i++ {
			idx := c.xa.CellIndex(k, i)
			j := uint64(k) - i

			if globality != 0 {
				if isDelim1(i+1) || isDelim2(j+1) {
					c.bM[idx] += scaledUnit
					c.bD[idx] += scaledUnit
					c.bI[idx] += scaledUnit
				}
			} else {
				c.bM[idx] += scaledUnit
			}

			s := probAt(i, j)
			tmp1 := c.bM[idx] * s * scale12
			if diag := c.xa.CellIndex(k-2, i-1); diag >= 0 {
				c.bM[diag] += tmp1
				c.bD[diag] += tmp1
				c.bI[diag] += tmp1
			}
			tmp3 := c.bD[idx] * seDel
			if hori := c.xa.CellIndex(k-1, i-1); hori >= 0 {
				c.bM[hori] += tmp3 * eDelOpen
				c.bD[hori] += tmp3
			}
			tmp4 := c.bI[idx] * seIns
			if vert := c.xa.CellIndex(k-1, i); vert >= 0 {
				c.bM[vert] += tmp4 * eInsOpen
				c.bD[vert] += tmp4 * eInsOpen
				c.bI[vert] += tmp4
			}

			prob := c.fM[idx] * c.bM[idx] / c.z
			c.pp[idx] = prob
			probd := c.fD[idx] * c.bD[idx] / c.z
			probi := c.fI[idx] * c.bI[idx] / c.z
			c.mD[i] += probd
			c.mI[j] += probi
			c.mX1[i] -= prob + probd
			c.mX2[j] -= prob + probi
		}
	}

	// The match into antidiagonal 2 came straight from the origin.
	scaledUnit /= c.scale[1]
	if globality == 0 {
		c.bM[0] += scaledUnit
	} else {
		// The origin's backward value was accumulated through the band.
		if c.bM[0] == 0 {
			c.bM[0] = c.z // degenerate band: keep log(bM[0]) finite
		}
	}
	return math.Log(c.bM[0])
}

// Dp runs the decoding DP: gamma-centroid for outputType 5, AMA for
// outputType 6.  It returns the decoding score.
func (c *Centroid) Dp(gamma float64, outputType int) float64 {
	c.bestScore = 0
	c.bestK = 0
	c.bestI = 0
	c.xMat = resizeF(c.xMat, c.xa.NumCells())
	if outputType == 6 {
		return c.dpAma(gamma)
	}
	return c.dpCentroid(gamma)
}

const dblInf = math.MaxFloat64 / 2

func (c *Centroid) xAt(k int, i uint64) float64 {
	idx := c.xa.CellIndex(k, i)
	if idx < 0 {
		if k == 0 && i == 0 {
			return 0
		}
		return -dblInf
	}
	return c.xMat[idx]
}

func (c *Centroid) updateScore(score float64, k int, i uint64) {
	if c.bestScore < score {
		c.bestScore = score
		c.bestK = uint64(k)
		c.bestI = i
	}
}

func (c *Centroid) dpCentroid(gamma float64) float64 {
	num := c.xa.NumAntidiagonals()
	for k := 2; k < num; k++ {
		beg := c.xa.Seq1Beg(k)
		end := c.xa.Seq1End(k)
		for i := beg; i < end; i++ {
			idx := c.xa.CellIndex(k, i)
			s := (gamma+1)*c.pp[idx] - 1
			score := math.Max(math.Max(c.xAt(k-1, i-1), c.xAt(k-1, i)),
				c.xAt(k-2, i-1)+s)
			c.updateScore(score, k, i)
			c.xMat[idx] = score
		}
	}
	return c.bestScore
}

func (c *Centroid) dpAma(gamma float64) float64 {
	num := c.xa.NumAntidiagonals()
	for k := 2; k < num; k++ {
		beg := c.xa.Seq1Beg(k)
		end := c.xa.Seq1End(k)
		for i := beg; i < end; i++ {
			idx := c.xa.CellIndex(k, i)
			j := uint64(k) - i
			s := 2*gamma*c.pp[idx] - (c.mX1[i] + c.mX2[j])
			u := gamma*c.mD[i] - c.mX1[i]
			t := gamma*c.mI[j] - c.mX2[j]
			score := math.Max(math.Max(c.xAt(k-1, i-1)+u, c.xAt(k-1, i)+t),
				c.xAt(k-2, i-1)+s)
			c.updateScore(score, k, i)
			c.xMat[idx] = score
		}
	}
	return c.bestScore
}

// Traceback decodes the chunks of the centroid/AMA alignment, in
// extension-relative coordinates, appending them end-first like the
// X-drop traceback.
func (c *Centroid) Traceback(chunks *[]SegmentPair, gamma float64, outputType int) {
	k := int(c.bestK)
	i := c.bestI
	oldPos1 := i

	for k > 0 {
		idx := c.xa.CellIndex(k, i)
		var diag, hori, vert float64
		if outputType == 6 {
			j := uint64(k) - i
			diag = c.xAt(k-2, i-1) + 2*gamma*c.pp[idx] - (c.mX1[i] + c.mX2[j])
			hori = c.xAt(k-1, i-1) + gamma*c.mD[i] - c.mX1[i]
			vert = c.xAt(k-1, i) + gamma*c.mI[j] - c.mX2[j]
		} else {
			diag = c.xAt(k-2, i-1) + (gamma+1)*c.pp[idx] - 1
			hori = c.xAt(k-1, i-1)
			vert = c.xAt(k-1, i)
		}
		m := 0
		best := diag
		if hori > best {
			m, best = 1, hori
		}
		if vert > best {
			m = 2
		}
		if m == 0 {
			k -= 2
			i--
		}
		if (m > 0 && oldPos1 != i) || k == 0 {
			*chunks = append(*chunks, SegmentPair{
				Start1: i, Start2: uint64(k) - i, Size: oldPos1 - i})
		}
		if m > 0 {
			k--
			if m == 1 {
				i--
			}
			oldPos1 = i
		}
	}
}

// AsciiProbability maps a correctness probability to a phred-like ASCII
// code in 33..125 (126 is reserved).
func AsciiProbability(probCorrect float64) byte {
	e := 1 - probCorrect
	if e < 1e-10 {
		e = 1e-10 // avoid overflow errors
	}
	g := -10 * math.Log10(e)
	k := int(g) + 33
	if k > 125 {
		k = 125
	}
	if k < 33 {
		k = 33
	}
	return byte(k)
}

// ChunkProbability returns the posterior match probability of one aligned
// column, addressed by its end coordinates within the extension.
func (c *Centroid) ChunkProbability(seq1pos, seq2pos uint64) float64 {
	idx := c.xa.CellIndex(int(seq1pos+seq2pos), seq1pos)
	if idx < 0 {
		return 0
	}
	return c.pp[idx]
}

// ColumnAmbiguities appends one ambiguity code per alignment column of
// the given extension-relative chunks (which are ordered end-first).
// Within a gap, insertion codes are appended before the adjacent deletion
// codes when forward, after them otherwise; forward codes are reversed by
// the caller, so deletions come first in the printed order either way.
func (c *Centroid) ColumnAmbiguities(codes *[]byte, chunks []SegmentPair, forward bool) {
	for ci := 0; ci < len(chunks); ci++ {
		ch := chunks[ci]
		seq1pos := ch.End1()
		seq2pos := ch.End2()
		for n := uint64(0); n < ch.Size; n++ {
			p := c.ChunkProbability(seq1pos, seq2pos)
			*codes = append(*codes, AsciiProbability(p))
			seq1pos--
			seq2pos--
		}
		var end1, end2 uint64
		if ci+1 < len(chunks) {
			end1 = chunks[ci+1].End1()
			end2 = chunks[ci+1].End2()
		}
		// If an insertion is adjacent to a deletion, the deletion gets
		// printed first.
		if forward {
			c.gapAmbiguities(codes, c.mI, seq2pos, end2)
			c.gapAmbiguities(codes, c.mD, seq1pos, end1)
		} else {
			c.gapAmbiguities(codes, c.mD, seq1pos, end1)
			c.gapAmbiguities(codes, c.mI, seq2pos, end2)
		}
	}
}

func (c *Centroid) gapAmbiguities(codes *[]byte, probs []float64, beg, end uint64) {
	for i := beg; i > end; i-- {
		*codes = append(*codes, AsciiProbability(probs[i]))
	}
}

// LogPartitionFunction returns T * log(Z), unwinding the per-antidiagonal
// rescaling.
func (c *Centroid) LogPartitionFunction() float64 {
	x := math.Log(c.z)
	for k := 2; k < c.xa.NumAntidiagonals(); k++ {
		x += math.Log(c.scale[k])
	}
	return c.t * x
}

// ExpectedCounts accumulates transition and emission expectations, used
// for score-parameter fitting.
type ExpectedCounts struct {
	Emit                   [scoring.RowSize][scoring.RowSize]float64
	MM, MD, MI, DD, DM, DI float64
	II, IM                 float64
}

// ComputeExpectedCounts marginalizes forward times backward into
// per-transition and per-emission expectations.
func (c *Centroid) ComputeExpectedCounts(seq1, seq2 []byte,
	start1, start2 uint64, forward bool, gap scoring.GapCosts,
	counts *ExpectedCounts) {
	pos1 := func(i uint64) uint64 {
		if forward {
			return start1 + i - 1
		}
		return start1 - i
	}
	pos2 := func(j uint64) uint64 {
		if forward {
			return start2 + j - 1
		}
		return start2 - j
	}
	probAt := func(i, j uint64) float64 {
		p1 := pos1(i)
		if c.isPssm {
			return c.pssmExp[pos2(j)*scoring.RowSize+uint64(seq1[p1]&(scoring.RowSize-1))]
		}
		return c.matchProb[seq1[p1]&(scoring.RowSize-1)][seq2[pos2(j)]&(scoring.RowSize-1)]
	}
	eDelOpen, eDelGrow, eInsOpen, eInsGrow := c.gapProbs(gap)

	num := c.xa.NumAntidiagonals()
	for k := 2; k < num; k++ {
		scale12 := 1 / (c.scale[k-1] * c.scale[k-2])
		scale1 := 1 / c.scale[k-1]
		seDel := eDelGrow * scale1
		seIns := eInsGrow * scale1

		beg := c.xa.Seq1Beg(k)
		end := c.xa.Seq1End(k)
		for i := beg; i < end; i++ {
			idx := c.xa.CellIndex(k, i)
			j := uint64(k) - i
			s := probAt(i, j)
			x1 := seq1[pos1(i)] & (scoring.RowSize - 1)
			x2 := seq2[pos2(j)] & (scoring.RowSize - 1)
			counts.Emit[x1][x2] += c.fM[idx] * c.bM[idx] / c.z

			tmp1 := s * c.bM[idx] * scale12 / c.z
			if diag := c.xa.CellIndex(k-2, i-1); diag >= 0 {
				counts.MM += c.fM[diag] * tmp1
				counts.DM += c.fD[diag] * tmp1
				counts.IM += c.fI[diag] * tmp1
			} else if k == 2 && i == 1 {
				counts.MM += c.fM[0] * tmp1
			}
			tmp3 := c.bD[idx] * seDel / c.z
			if hori := c.xa.CellIndex(k-1, i-1); hori >= 0 {
				counts.MD += c.fM[hori] * eDelOpen * tmp3
				counts.DD += c.fD[hori] * tmp3
			}
			tmp4 := c.bI[idx] * seIns / c.z
			if vert := c.xa.CellIndex(k-1, i); vert >= 0 {
				counts.MI += c.fM[vert] * eInsOpen * tmp4
				counts.DI += c.fD[vert] * eInsOpen * tmp4
				counts.II += c.fI[vert] * tmp4
			}
		}
	}
}
