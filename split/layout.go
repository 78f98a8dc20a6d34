package split

import "math"

// Layout prepares the per-query state for a batch of candidate
// alignments: DP bounds, base and indel score matrices, splice
// coordinates, and reference/strand ids.
func (sa *SplitAligner) Layout(alns []UnsplitAlignment) {
	if len(alns) == 0 {
		panic("split: no candidate alignments")
	}
	sa.alns = alns
	sa.numAlns = len(alns)

	sa.initDpBounds()
	sa.calcScoreMatrices()

	sa.sortedAlnIndices = sa.sortedAlnIndices[:0]
	for i := 0; i < sa.numAlns; i++ {
		sa.sortedAlnIndices = append(sa.sortedAlnIndices, uint(i))
	}
	if cap(sa.oldInplay) < sa.numAlns {
		sa.oldInplay = make([]uint, sa.numAlns)
		sa.newInplay = make([]uint, sa.numAlns)
	}
	sa.oldInplay = sa.oldInplay[:sa.numAlns]
	sa.newInplay = sa.newInplay[:sa.numAlns]

	if sa.splicePrior > 0 || sa.chromosomeIndex != nil {
		sa.initSpliceCoords()
	}
	sa.initRnameAndStrandIds()
	sa.initForwardBackward()
}

func (sa *SplitAligner) initDpBounds() {
	sa.minBeg = ^uint(0)
	sa.maxEnd = 0
	for i := range sa.alns {
		if sa.alns[i].Qstart < sa.minBeg {
			sa.minBeg = sa.alns[i].Qstart
		}
		if sa.alns[i].Qend > sa.maxEnd {
			sa.maxEnd = sa.alns[i].Qend
		}
	}

	sa.dpBegs = sa.dpBegs[:0]
	sa.dpEnds = sa.dpEnds[:0]

	// With jumps or splices the DP must consider "end gaps" beyond each
	// candidate, so every candidate spans the whole query slice.  This is
	// inefficient for long queries with many short candidates; mitigating
	// that needs smarter pruning.
	isExtend := sa.jumpProb > 0 || sa.splicePrior > 0
	for i := range sa.alns {
		if isExtend {
			sa.dpBegs = append(sa.dpBegs, sa.minBeg)
			sa.dpEnds = append(sa.dpEnds, sa.maxEnd)
		} else {
			sa.dpBegs = append(sa.dpBegs, sa.alns[i].Qstart)
			sa.dpEnds = append(sa.dpEnds, sa.alns[i].Qend)
		}
	}
}

// CellsPerDpMatrix returns the cell count of one DP matrix, for memory
// accounting.
func (sa *SplitAligner) CellsPerDpMatrix() uint64 {
	var n uint64
	for i := 0; i < sa.numAlns; i++ {
		n += uint64(sa.dpEnd(i)-sa.dpBeg(i)) + 1
	}
	return n
}

// MemoryEstimate returns a rough byte count the DP matrices will need.
func (sa *SplitAligner) MemoryEstimate(isViterbi, isBothStrands bool) uint64 {
	cells := sa.CellsPerDpMatrix()
	// Amat+Dmat+Aexp+Dexp+Fmat+Bmat, and splice coordinates.
	matrices := uint64(6 * 8)
	if isViterbi {
		matrices += 8
	}
	if isBothStrands {
		matrices *= 2
	}
	if sa.splicePrior > 0 || sa.chromosomeIndex != nil {
		matrices += 2 * 8
	}
	return cells * matrices
}

// The next routines represent affine gap scores in a cunning way.  Amat
// holds scores at query bases, and at every base aligned to a gap it gets
// gapExistenceScore + gapExtensionScore.  Dmat holds scores between query
// bases, and between every pair of bases both aligned to gaps it gets
// -gapExistenceScore.  That produces correct affine scores even when the
// path jumps from one candidate to another in the middle of a gap.

func (sa *SplitAligner) calcBaseScores(i int) {
	firstGapScore := sa.gapExistenceScore + sa.gapExtensionScore
	a := &sa.alns[i]
	row := sa.amat[i]
	j := sa.dpBeg(i)

	for ; j < a.Qstart; j++ {
		row[j-sa.dpBeg(i)] = firstGapScore
	}
	for k := 0; j < a.Qend; k++ {
		x := a.Ralign[k]
		y := a.Qalign[k]
		q := numQualCodes - 1
		if a.QQual != "" {
			q = int(a.QQual[k]) - sa.qualityOffset
			if q < 0 {
				panic("split: quality code below the offset")
			}
			if q >= numQualCodes {
				q = numQualCodes - 1
			}
		}
		switch {
		case y == '-':
			// deletion: no query base here
		case x == '-':
			row[j-sa.dpBeg(i)] = firstGapScore
			j++
		default:
			// In ASCII, '.' equals 'n' mod 64, so '.' gets the same scores
			// as 'n'.
			row[j-sa.dpBeg(i)] = sa.scoreMat[x%64][y%64][q]
			j++
		}
	}
	for ; j < sa.dpEnd(i); j++ {
		row[j-sa.dpBeg(i)] = firstGapScore
	}
}

func (sa *SplitAligner) calcInsScores(i int) {
	a := &sa.alns[i]
	row := sa.dmat[i]
	j := sa.dpBeg(i)
	isExt := false

	for ; j < a.Qstart; j++ {
		if isExt {
			row[j-sa.dpBeg(i)] = -sa.gapExistenceScore
		}
		isExt = true
	}
	for k := 0; k < len(a.Qalign); k++ {
		isDel := a.Qalign[k] == '-'
		isIns := a.Ralign[k] == '-'
		if !isDel {
			if isIns && isExt {
				row[j-sa.dpBeg(i)] = -sa.gapExistenceScore
			}
			j++
		}
		isExt = isIns
	}
	for ; j < sa.dpEnd(i); j++ {
		if isExt {
			row[j-sa.dpBeg(i)] = -sa.gapExistenceScore
		}
		isExt = true
	}
	row[j-sa.dpBeg(i)] = 0
}

func (sa *SplitAligner) calcDelScores(i int) {
	a := &sa.alns[i]
	row := sa.dmat[i]
	j := a.Qstart
	delScore := 0
	for k := 0; k < len(a.Qalign); k++ {
		if a.Qalign[k] == '-' { // deletion in query
			if delScore == 0 {
				delScore = sa.gapExistenceScore
			}
			delScore += sa.gapExtensionScore
		} else {
			row[j-sa.dpBeg(i)] += delScore
			delScore = 0
			j++
		}
	}
	row[j-sa.dpBeg(i)] += delScore
}

func (sa *SplitAligner) calcScoreMatrices() {
	sa.amat = resizeIntMatrix(sa.amat, sa.numAlns, sa.width(0))
	sa.dmat = resizeIntMatrix(sa.dmat, sa.numAlns, sa.width(1))
	for i := 0; i < sa.numAlns; i++ {
		sa.calcBaseScores(i)
		sa.calcInsScores(i)
		sa.calcDelScores(i)
	}
}

func (sa *SplitAligner) initSpliceCoords() {
	sa.spliceBegCoords = resizeUintMatrix(sa.spliceBegCoords, sa.numAlns, sa.width(1))
	sa.spliceEndCoords = resizeUintMatrix(sa.spliceEndCoords, sa.numAlns, sa.width(1))

	for i := 0; i < sa.numAlns; i++ {
		a := &sa.alns[i]
		j := sa.dpBeg(i)
		k := a.Rstart

		if sa.chromosomeIndex != nil {
			c, ok := sa.chromosomeIndex[a.Rname]
			if !ok {
				panic("split: can't find " + a.Rname + " in the genome")
			}
			if a.Qstrand == "+" {
				k += uint(sa.genome.SeqBeg(c))
			} else {
				k += uint(sa.genome.FinishedSize()) - uint(sa.genome.SeqEnd(c))
			}
		}

		begRow := sa.spliceBegCoords[i]
		endRow := sa.spliceEndCoords[i]
		base := sa.dpBeg(i)

		begRow[j-base] = k
		for ; j < a.Qstart; j++ {
			endRow[j-base] = k
			begRow[j+1-base] = k
		}
		for x := 0; x < len(a.Ralign); x++ {
			if a.Qalign[x] != '-' {
				endRow[j-base] = k
			}
			if a.Ralign[x] != '-' {
				k++
			}
			if a.Qalign[x] != '-' {
				j++
				begRow[j-base] = k
			}
		}
		for ; j < sa.dpEnd(i); j++ {
			endRow[j-base] = k
			begRow[j+1-base] = k
		}
		endRow[j-base] = k
	}
}

func (sa *SplitAligner) initRnameAndStrandIds() {
	sa.rnameAndStrandIds = resizeUint(sa.rnameAndStrandIds, sa.numAlns)
	less := func(a, b uint) bool {
		x, y := &sa.alns[a], &sa.alns[b]
		if x.Qstrand != y.Qstrand {
			return x.Qstrand < y.Qstrand
		}
		return x.Rname < y.Rname
	}
	sa.sortSortedAlnIndices(less)
	c := uint(0)
	for i := 0; i < sa.numAlns; i++ {
		k := sa.sortedAlnIndices[i]
		if i > 0 && less(sa.sortedAlnIndices[i-1], k) {
			c++
		}
		sa.rnameAndStrandIds[k] = c
	}
}

func resizeUint(s []uint, n int) []uint {
	if cap(s) < n {
		s = make([]uint, n)
	}
	s = s[:n]
	for i := range s {
		s[i] = 0
	}
	return s
}

func (sa *SplitAligner) initForwardBackward() {
	sa.aexp = resizeFloatMatrix(sa.aexp, sa.numAlns, sa.width(0))
	sa.dexp = resizeFloatMatrix(sa.dexp, sa.numAlns, sa.width(1))

	// If score/scale < about -745, exp underflows to exactly 0.
	for i := 0; i < sa.numAlns; i++ {
		for j := sa.dpBeg(i); j < sa.dpEnd(i); j++ {
			sa.aexp[i][j-sa.dpBeg(i)] = math.Exp(float64(sa.amat[i][j-sa.dpBeg(i)]) / sa.scale)
		}
		for j := sa.dpBeg(i); j <= sa.dpEnd(i); j++ {
			sa.dexp[i][j-sa.dpBeg(i)] = math.Exp(float64(sa.dmat[i][j-sa.dpBeg(i)]) / sa.scale)
		}
	}
}
