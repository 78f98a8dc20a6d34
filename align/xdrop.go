package align

import (
	"github.com/grailbio/base/log"

	"github.com/grailbio/last/scoring"
)

// GappedXdropAligner does banded gapped extension, filling the dynamic
// programming matrix antidiagonal-by-antidiagonal as in "A greedy
// algorithm for aligning DNA sequences" (Zhang, Schwartz, Wagner, Miller,
// J Comput Biol 2000), with generalized affine gap costs:
//
//	x(i,j) = best score ending with s1(i) aligned to s2(j)
//	y(i,j) = best score ending with s1(i) in a deletion gap
//	z(i,j) = best score ending with s2(j) in an insertion gap
//
// Antidiagonal k holds the cells with i+j == k; only the window of cells
// whose score stays within maxDrop of the running best is stored.  The
// matrices are flat slices with per-antidiagonal offsets, reused across
// calls; all reads are bounded by the per-antidiagonal windows, so stale
// tail data from a longer earlier call is never observed.
//
// The aligner is scratch state owned by one goroutine; it must not be
// shared concurrently.
type GappedXdropAligner struct {
	x, y, z []int32
	begs    []uint64 // per-antidiagonal window start, in i units
	ends    []uint64 // per-antidiagonal window end (exclusive)
	starts  []int    // per-antidiagonal offset into the flat slices

	bestScore int32
	bestK     uint64 // traceback boundary antidiagonal
	bestI     uint64 // traceback boundary position in sequence 1

	gap            scoring.GapCosts
	frameshiftCost int32
}

const negInf = -scoring.Inf

// Delimiter-aware scoring: the aligner needs to recognize delimiters to
// stop local extensions and to detect edges in semi-global mode.
func (sc *Scorer) isDelimiter(letter, delim byte) bool { return letter == delim }

func (g *GappedXdropAligner) reset() {
	g.x = g.x[:0]
	g.y = g.y[:0]
	g.z = g.z[:0]
	g.begs = g.begs[:0]
	g.ends = g.ends[:0]
	g.starts = g.starts[:0]
	g.bestScore = 0
	g.bestK = 0
	g.bestI = 0
}

// appendAntidiagonal reserves the window [beg, end) for antidiagonal k
// (which must be len(g.begs)) and returns the flat start index.
func (g *GappedXdropAligner) appendAntidiagonal(beg, end uint64) int {
	start := len(g.x)
	n := int(end - beg)
	for i := 0; i < n; i++ {
		g.x = append(g.x, negInf)
		g.y = append(g.y, negInf)
		g.z = append(g.z, negInf)
	}
	g.begs = append(g.begs, beg)
	g.ends = append(g.ends, end)
	g.starts = append(g.starts, start)
	return start
}

func (g *GappedXdropAligner) at(m []int32, k, i int64) int32 {
	if k < 0 || k >= int64(len(g.begs)) {
		return negInf
	}
	if i < int64(g.begs[k]) || i >= int64(g.ends[k]) {
		return negInf
	}
	return m[g.starts[k]+int(i-int64(g.begs[k]))]
}

// NumAntidiagonals returns the number of antidiagonals the last Align call
// filled; the centroid pass re-walks the same band.
func (g *GappedXdropAligner) NumAntidiagonals() int { return len(g.begs) }

// Seq1Beg returns the window start of antidiagonal k.
func (g *GappedXdropAligner) Seq1Beg(k int) uint64 { return g.begs[k] }

// Seq1End returns the window end of antidiagonal k.
func (g *GappedXdropAligner) Seq1End(k int) uint64 { return g.ends[k] }

// CellIndex returns the flat index of cell (k, i), or -1 if it is outside
// the band.
func (g *GappedXdropAligner) CellIndex(k int, i uint64) int {
	if k < 0 || k >= len(g.begs) || i < g.begs[k] || i >= g.ends[k] {
		return -1
	}
	return g.starts[k] + int(i-g.begs[k])
}

// NumCells returns the total cell count of the band.
func (g *GappedXdropAligner) NumCells() int { return len(g.x) }

// Best returns the best score and its end boundary (letters consumed in
// each sequence) from the last Align call.
func (g *GappedXdropAligner) Best() (score int32, end1, end2 uint64) {
	return g.bestScore, g.bestI, g.bestK - g.bestI
}

func maxScoreDropForDelimiter(maxDrop int32, numCells int, maxMatchScore int32) int32 {
	limit := int32(numCells)*maxMatchScore - 1
	if limit < maxDrop {
		return limit
	}
	return maxDrop
}

// Align extends from the point (start1, start2): rightward over
// seq1[start1:], seq2[start2:] when forward, else leftward over the
// prefixes ending at start1, start2.  With globality != 0, the extension
// is complete only at a delimiter crossing, and the best edge score is
// returned instead of the running best.  maxMatchScore must be an upper
// bound on sc's cells; it bounds X-drop growth at delimiter boundaries.
func (g *GappedXdropAligner) Align(seq1, seq2 []byte, start1, start2 uint64,
	forward bool, globality int, sc *Scorer, delim byte,
	gap scoring.GapCosts, maxDrop, maxMatchScore int32) int32 {
	g.reset()
	g.gap = gap
	isAffine := gap.IsAffine()

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

	// Antidiagonal 0: the origin cell.
	g.appendAntidiagonal(0, 1)
	g.x[0] = 0
	// Antidiagonal 1 is always empty.
	g.appendAntidiagonal(1, 1)

	bestEdgeScore := negInf
	var bestEdgeK, bestEdgeI uint64

	for k := uint64(2); ; k++ {
		k1 := int64(k) - 1
		k2 := int64(k) - 2
		beg := minU64(g.firstFinite(k2)+1, g.firstFinite(k1))
		end := maxU64(g.lastFinite(k2)+2, g.lastFinite(k1)+2)
		if end > k {
			end = k // keep j >= 1
		}
		if beg >= end {
			break // no live cells
		}
		numCells := int(end - beg)
		start := g.appendAntidiagonal(beg, end)

		// The sequence-2 letter of the topmost cell, and the sequence-1
		// letter of the bottom cell: a delimiter there bounds the band.
		s2Top := seq2[pos2(k-beg)]
		s1Bot := seq1[pos1(end-1)]

		if globality == 0 && sc.isDelimiter(s2Top, delim) {
			maxDrop = maxScoreDropForDelimiter(maxDrop, numCells, maxMatchScore)
		}
		minScore := g.bestScore - maxDrop

		if globality != 0 && sc.isDelimiter(s2Top, delim) {
			b := g.at(g.x, k2, int64(beg)-1)
			b = max32(b, g.at(g.z, k1, int64(beg))-gap.InsExtend)
			if !isAffine {
				b = max32(b, g.at(g.z, k2, int64(beg)-1)-gap.PairCost)
			}
			if b >= minScore && b > bestEdgeScore {
				bestEdgeScore = b
				bestEdgeK = k - 2
				bestEdgeI = beg - 1
			}
		}

		for i := beg; i < end; i++ {
			ii := int64(i)
			xDiag := g.at(g.x, k2, ii-1)
			yCand := g.at(g.y, k1, ii-1) - gap.DelExtend
			zCand := g.at(g.z, k1, ii) - gap.InsExtend
			if !isAffine {
				yCand = max32(yCand, g.at(g.y, k2, ii-1)-gap.PairCost)
				zCand = max32(zCand, g.at(g.z, k2, ii-1)-gap.PairCost)
			}
			b := max32(xDiag, max32(yCand, zCand))
			idx := start + int(i-beg)
			if b >= minScore {
				m := sc.At(seq1, seq2, pos1(i), pos2(k-i))
				x0 := addClamped(b, m)
				g.x[idx] = x0
				g.y[idx] = max32(b-gap.DelExist, yCand)
				g.z[idx] = max32(b-gap.InsExist, zCand)
				if x0 > g.bestScore {
					g.bestScore = x0
					if globality == 0 {
						g.bestK = k
						g.bestI = i
					}
				}
			}
		}

		if globality != 0 && sc.isDelimiter(s1Bot, delim) {
			b := g.at(g.x, k2, int64(end)-2)
			b = max32(b, g.at(g.y, k1, int64(end)-2)-gap.DelExtend)
			if !isAffine {
				b = max32(b, g.at(g.y, k2, int64(end)-2)-gap.PairCost)
			}
			if b >= minScore && b > bestEdgeScore {
				bestEdgeScore = b
				bestEdgeK = k - 2
				bestEdgeI = end - 2
			}
		}

		if globality == 0 && sc.isDelimiter(s1Bot, delim) {
			maxDrop = maxScoreDropForDelimiter(maxDrop, numCells, maxMatchScore)
		}
	}

	if globality != 0 {
		g.bestScore = bestEdgeScore
		g.bestK = bestEdgeK
		g.bestI = bestEdgeI
		if bestEdgeScore <= negInf/2 {
			g.bestK = 0
			g.bestI = 0
		}
	}
	return g.bestScore
}

// firstFinite returns the first window position of antidiagonal k whose x
// cell is alive, or the window end if none is.
func (g *GappedXdropAligner) firstFinite(k int64) uint64 {
	if k < 0 || k >= int64(len(g.begs)) {
		return 1 << 62
	}
	start := g.starts[k]
	for i := g.begs[k]; i < g.ends[k]; i++ {
		if g.x[start+int(i-g.begs[k])] > negInf/2 {
			return i
		}
	}
	return 1 << 62
}

// lastFinite returns the last live window position of antidiagonal k; if
// none, a value making the caller's max() ignore this antidiagonal.
func (g *GappedXdropAligner) lastFinite(k int64) uint64 {
	if k < 0 || k >= int64(len(g.begs)) {
		return 0
	}
	start := g.starts[k]
	for i := g.ends[k]; i > g.begs[k]; i-- {
		if g.x[start+int(i-1-g.begs[k])] > negInf/2 {
			return i - 1
		}
	}
	return 0
}

// Traceback states.
type tbState int

const (
	stX tbState = iota // ended with an aligned pair
	stY                // ended with a deletion letter
	stZ                // ended with an insertion letter
)

// Traceback recovers the gapless chunks of the best extension, appending
// them farthest-from-the-origin first, in extension-relative coordinates
// (the chunk's near-origin boundary stored in the Start fields, Size =
// chunk length).  It must be
// called with the same arguments as the Align call it follows.  Ties
// prefer a match over a deletion over an insertion.
func (g *GappedXdropAligner) Traceback(chunks *[]SegmentPair,
	seq1, seq2 []byte, start1, start2 uint64, forward bool, sc *Scorer) {
	if g.bestK == 0 {
		return
	}
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

	// resolveB picks the predecessor of the boundary reached by cell
	// (k, i)'s b value, preferring x over y over z.
	resolveB := func(b int32) {
		kk, ii := int64(k), int64(i)
		switch {
		case b == g.at(g.x, kk-2, ii-1):
			if state != stX {
				runEnd1 = i - 1
			}
			state = stX
			k, i = k-2, i-1
		case b == g.at(g.y, kk-1, ii-1)-g.gap.DelExtend:
			if state == stX {
				emit(i-1, k-i-1)
			}
			state = stY
			k, i = k-1, i-1
		case b == g.at(g.z, kk-1, ii)-g.gap.InsExtend:
			if state == stX {
				emit(i-1, k-i-1)
			}
			state = stZ
			k, i = k-1, i
		case b == g.at(g.y, kk-2, ii-1)-g.gap.PairCost:
			if state == stX {
				emit(i-1, k-i-1)
			}
			state = stY
			k, i = k-2, i-1
		case b == g.at(g.z, kk-2, ii-1)-g.gap.PairCost:
			if state == stX {
				emit(i-1, k-i-1)
			}
			state = stZ
			k, i = k-2, i-1
		default:
			log.Panicf("align: traceback lost the path at %d,%d", k, i)
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
			m := sc.At(seq1, seq2, pos1(i), pos2(k-i))
			b := g.at(g.x, kk, ii) - m
			resolveB(b)
		case stY:
			yv := g.at(g.y, kk, ii)
			switch {
			case yv == g.at(g.y, kk-1, ii-1)-g.gap.DelExtend:
				k, i = k-1, i-1
			case yv == g.at(g.y, kk-2, ii-1)-g.gap.PairCost:
				k, i = k-2, i-1
			default:
				resolveB(yv + g.gap.DelExist)
			}
		case stZ:
			zv := g.at(g.z, kk, ii)
			switch {
			case zv == g.at(g.z, kk-1, ii)-g.gap.InsExtend:
				k, i = k-1, i
			case zv == g.at(g.z, kk-2, ii-1)-g.gap.PairCost:
				k, i = k-2, i-1
			default:
				resolveB(zv + g.gap.InsExist)
			}
		}
	}
}

// TracebackFromEdge starts the traceback at a semi-global edge boundary
// instead of a best cell: the recorded boundary was reached by a gap or a
// match, resolved from the stored edge score.
func (g *GappedXdropAligner) TracebackFromEdge(chunks *[]SegmentPair,
	seq1, seq2 []byte, start1, start2 uint64, forward bool, sc *Scorer) {
	if g.bestScore <= negInf/2 {
		return
	}
	// The edge boundary (m, n) is cell (m+n+2, m+1)'s b position.
	saveK, saveI := g.bestK, g.bestI
	m, n := g.bestI, g.bestK-g.bestI
	edge := &edgeWalker{g: g}
	edge.walk(chunks, seq1, seq2, start1, start2, forward, sc, m, n, g.bestScore)
	g.bestK, g.bestI = saveK, saveI
}

type edgeWalker struct{ g *GappedXdropAligner }

func (w *edgeWalker) walk(chunks *[]SegmentPair, seq1, seq2 []byte,
	start1, start2 uint64, forward bool, sc *Scorer, m, n uint64, b int32) {
	g := w.g
	kk := int64(m + n + 2)
	ii := int64(m + 1)
	switch {
	case b == g.at(g.x, kk-2, ii-1):
		g.bestK, g.bestI = m+n, m
		g.Traceback(chunks, seq1, seq2, start1, start2, forward, sc)
	case b == g.at(g.y, kk-1, ii-1)-g.gap.DelExtend:
		w.walkGap(chunks, seq1, seq2, start1, start2, forward, sc, stY, m+n+1, m)
	case b == g.at(g.z, kk-1, ii)-g.gap.InsExtend:
		w.walkGap(chunks, seq1, seq2, start1, start2, forward, sc, stZ, m+n+1, m+1)
	case b == g.at(g.y, kk-2, ii-1)-g.gap.PairCost:
		w.walkGap(chunks, seq1, seq2, start1, start2, forward, sc, stY, m+n, m)
	case b == g.at(g.z, kk-2, ii-1)-g.gap.PairCost:
		w.walkGap(chunks, seq1, seq2, start1, start2, forward, sc, stZ, m+n, m)
	default:
		log.Panicf("align: edge traceback lost the path at %d,%d", m, n)
	}
}

// walkGap unwinds a trailing gap until the path re-enters the match
// state, then hands over to the ordinary traceback.
func (w *edgeWalker) walkGap(chunks *[]SegmentPair, seq1, seq2 []byte,
	start1, start2 uint64, forward bool, sc *Scorer, state tbState, k, i uint64) {
	g := w.g
	for {
		kk, ii := int64(k), int64(i)
		if state == stY {
			yv := g.at(g.y, kk, ii)
			switch {
			case yv == g.at(g.y, kk-1, ii-1)-g.gap.DelExtend:
				k, i = k-1, i-1
				continue
			case yv == g.at(g.y, kk-2, ii-1)-g.gap.PairCost:
				k, i = k-2, i-1
				continue
			}
			// The gap opened here: boundary (i-1, k-i-1).
			w.walk(chunks, seq1, seq2, start1, start2, forward, sc,
				i-1, k-i-1, yv+g.gap.DelExist)
			return
		}
		zv := g.at(g.z, kk, ii)
		switch {
		case zv == g.at(g.z, kk-1, ii)-g.gap.InsExtend:
			k, i = k-1, i
			continue
		case zv == g.at(g.z, kk-2, ii-1)-g.gap.PairCost:
			k, i = k-2, i-1
			continue
		}
		w.walk(chunks, seq1, seq2, start1, start2, forward, sc,
			i-1, k-i, zv+g.gap.InsExist)
		return
	}
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

// addClamped adds a match score to a DP value without letting repeated
// -Inf sums wrap around.
func addClamped(a, b int32) int32 {
	s := int64(a) + int64(b)
	if s < int64(negInf) {
		return negInf
	}
	return int32(s)
}

