package align

import (
	"github.com/grailbio/base/log"

	"github.com/grailbio/last/scoring"
)

// Three-frame translated alignment: sequence 1 is protein, sequence 2 is
// the three-frame translation of a DNA query, laid out as three
// concatenated frames of frameSize letters each.  DP coordinates count
// DNA bases on the query side, so an aligned codon advances j by 3, and a
// match may instead advance j by 2 or 4 at a frameshift penalty.  The
// antidiagonal index is k = 3i + j, which interleaves the three frames:
// same-frame predecessors are 6 and 3 antidiagonals back, frameshifted
// ones 5 and 7 back.
//
// Align3 reuses the aligner's matrices; its band geometry is not usable
// by the centroid pass, so probabilistic output is unavailable in
// translated mode.

// Align3 extends a translated alignment from (start1, start2), where
// start2 is a DNA coordinate of the query.  frameshiftCost must be > 0;
// frameSize is the frame length of the translation in translated letters.
func (g *GappedXdropAligner) Align3(seq1, translated []byte,
	start1, start2 uint64, forward bool, sc *Scorer, delim byte,
	frameshiftCost int32, frameSize uint64,
	gap scoring.GapCosts, maxDrop, maxMatchScore int32) int32 {
	g.reset()
	g.gap = gap
	g.frameshiftCost = frameshiftCost
	isAffine := gap.IsAffine()

	pos1 := func(i uint64) uint64 {
		if forward {
			return start1 + i - 1
		}
		return start1 - i
	}
	// letter2 returns the translated letter of the codon filling the
	// (j-3, j] DNA window of the extension, or the delimiter when no full
	// codon fits.
	letter2 := func(j uint64) byte {
		if j < 3 {
			return delim
		}
		var q uint64
		if forward {
			q = start2 + j - 3
		} else {
			if start2 < j {
				return delim
			}
			q = start2 - j
		}
		f := q % 3
		idx := q / 3
		if idx >= frameSize {
			return delim
		}
		return translated[f*frameSize+idx]
	}

	// Antidiagonal 0: the origin.
	g.appendAntidiagonal(0, 1)
	g.x[0] = 0

	for k := uint64(1); ; k++ {
		if k < 5 {
			// The first reachable cell is (5, 1): a frameshifted first codon.
			g.appendAntidiagonal(1, 1)
			continue
		}
		beg := minU64(g.firstFinite(int64(k)-3),
			minU64(minU64(g.firstFinite(int64(k)-5), g.firstFinite(int64(k)-6)),
				g.firstFinite(int64(k)-7))+1)
		end := maxU64(g.lastFinite(int64(k)-3)+2,
			maxU64(maxU64(g.lastFinite(int64(k)-5), g.lastFinite(int64(k)-6)),
				g.lastFinite(int64(k)-7))+2)
		if maxEnd := (k-2)/3 + 1; end > maxEnd {
			end = maxEnd // keep j >= 2
		}
		if beg < 1 {
			beg = 1
		}
		if beg >= end {
			alive := false
			for d := int64(1); d <= 7; d++ {
				if g.firstFinite(int64(k)-d) < 1<<61 {
					alive = true
					break
				}
			}
			if !alive {
				break
			}
			g.appendAntidiagonal(1, 1)
			continue
		}
		numCells := int(end - beg)
		start := g.appendAntidiagonal(beg, end)

		s1Bot := seq1[pos1(end-1)]
		// For j < 3 no full codon fits yet: letter2 reports that as a
		// delimiter, but it is not the end of the query.
		topJ := k - 3*beg
		s2Top := letter2(topJ)

		if topJ >= 3 && sc.isDelimiter(s2Top, delim) {
			maxDrop = maxScoreDropForDelimiter(maxDrop, numCells, maxMatchScore)
		}
		minScore := g.bestScore - maxDrop

		for i := beg; i < end; i++ {
			ii := int64(i)
			j := k - 3*i
			xDiag := g.at(g.x, int64(k)-6, ii-1)
			xShift := max32(g.at(g.x, int64(k)-5, ii-1),
				g.at(g.x, int64(k)-7, ii-1)) - frameshiftCost
			yCand := g.at(g.y, int64(k)-3, ii-1) - gap.DelExtend
			zCand := g.at(g.z, int64(k)-3, ii) - gap.InsExtend
			if !isAffine {
				yCand = max32(yCand, g.at(g.y, int64(k)-6, ii-1)-gap.PairCost)
				zCand = max32(zCand, g.at(g.z, int64(k)-6, ii-1)-gap.PairCost)
			}
			b := max32(max32(xDiag, xShift), max32(yCand, zCand))
			idx := start + int(i-beg)
			if b >= minScore {
				m := sc.AtCodes(seq1[pos1(i)], letter2(j))
				x0 := addClamped(b, m)
				g.x[idx] = x0
				g.y[idx] = max32(b-gap.DelExist, yCand)
				g.z[idx] = max32(b-gap.InsExist, zCand)
				if x0 > g.bestScore {
					g.bestScore = x0
					g.bestK = k
					g.bestI = i
				}
			}
		}

		if sc.isDelimiter(s1Bot, delim) {
			maxDrop = maxScoreDropForDelimiter(maxDrop, numCells, maxMatchScore)
		}
	}

	return g.bestScore
}

// Traceback3 recovers the chunks of a translated extension, with the
// same arguments as the Align3 call.  Chunk Start2 and the gap geometry
// are in DNA units; Size counts aligned residues.
func (g *GappedXdropAligner) Traceback3(chunks *[]SegmentPair,
	seq1, translated []byte, start1, start2 uint64, forward bool,
	sc *Scorer, delim byte, frameSize uint64) {
	if g.bestK == 0 {
		return
	}
	pos1 := func(i uint64) uint64 {
		if forward {
			return start1 + i - 1
		}
		return start1 - i
	}
	letter2 := func(j uint64) byte {
		if j < 3 {
			return delim
		}
		var q uint64
		if forward {
			q = start2 + j - 3
		} else {
			if start2 < j {
				return delim
			}
			q = start2 - j
		}
		f := q % 3
		idx := q / 3
		if idx >= frameSize {
			return delim
		}
		return translated[f*frameSize+idx]
	}

	state := stX
	k := g.bestK
	i := g.bestI
	runEnd1 := g.bestI

	emit := func(beg1, beg2 uint64) {
		if runEnd1 > beg1 {
			*chunks = append(*chunks, SegmentPair{
				Start1: beg1, Start2: beg2, Size: runEnd1 - beg1})
		}
	}

	// resolveB resolves the predecessor of the boundary that cell (k, i)
	// reaches; the boundary itself is (i-1, k-3i-3) in (residue, DNA)
	// units.
	resolveB := func(b int32) {
		kk, ii := int64(k), int64(i)
		bm := i - 1
		bn := k - 3*i - 3
		enterX := func(dk uint64) {
			if state != stX {
				runEnd1 = bm
			}
			state = stX
			k, i = k-dk, i-1
		}
		switch {
		case b == g.at(g.x, kk-6, ii-1):
			if state != stX {
				runEnd1 = bm
			}
			state = stX
			k, i = k-6, i-1
		case b == g.at(g.x, kk-5, ii-1)-g.frameshiftCost:
			enterX(5)
		case b == g.at(g.x, kk-7, ii-1)-g.frameshiftCost:
			enterX(7)
		case b == g.at(g.y, kk-3, ii-1)-g.gap.DelExtend:
			if state == stX {
				emit(bm, bn)
			}
			state = stY
			k, i = k-3, i-1
		case b == g.at(g.z, kk-3, ii)-g.gap.InsExtend:
			if state == stX {
				emit(bm, bn)
			}
			state = stZ
			k, i = k-3, i
		case b == g.at(g.y, kk-6, ii-1)-g.gap.PairCost:
			if state == stX {
				emit(bm, bn)
			}
			state = stY
			k, i = k-6, i-1
		case b == g.at(g.z, kk-6, ii-1)-g.gap.PairCost:
			if state == stX {
				emit(bm, bn)
			}
			state = stZ
			k, i = k-6, i-1
		default:
			log.Panicf("align: translated traceback lost the path at %d,%d", k, i)
		}
	}

	for {
		kk, ii := int64(k), int64(i)
		switch state {
		case stX:
			if k == 0 {
				emit(0, 0)
				return
			}
			m := sc.AtCodes(seq1[pos1(i)], letter2(k-3*i))
			b := g.at(g.x, kk, ii) - m
			resolveB(b)
		case stY:
			yv := g.at(g.y, kk, ii)
			switch {
			case yv == g.at(g.y, kk-3, ii-1)-g.gap.DelExtend:
				k, i = k-3, i-1
			case yv == g.at(g.y, kk-6, ii-1)-g.gap.PairCost:
				k, i = k-6, i-1
			default:
				resolveB(yv + g.gap.DelExist)
			}
		case stZ:
			zv := g.at(g.z, kk, ii)
			switch {
			case zv == g.at(g.z, kk-3, ii)-g.gap.InsExtend:
				k, i = k-3, i
			case zv == g.at(g.z, kk-6, ii-1)-g.gap.PairCost:
				k, i = k-6, i-1
			default:
				resolveB(zv + g.gap.InsExist)
			}
		}
	}
}
