package split

import "math"

func (sa *SplitAligner) ib(i int, j uint) float64 {
	if j == sa.dpBeg(i) {
		return 1
	}
	return 0
}

func (sa *SplitAligner) ie(i int, j uint) float64 {
	if j == sa.alns[i].Qend {
		return 1
	}
	return 0
}

func (sa *SplitAligner) probFromSpliceF(i int, j uint, oldNumInplay int, oldInplayPos *int) float64 {
	if sa.splicePrior <= 0 {
		return 0
	}
	sum := 0.0
	iSeq := sa.rnameAndStrandIds[i]
	iEnd := sa.spliceEndCoords[i][j-sa.dpBeg(i)]
	iProb := sa.spliceEndProb(i, j)

	for ; *oldInplayPos < oldNumInplay; *oldInplayPos++ {
		k := sa.oldInplay[*oldInplayPos]
		if sa.rnameAndStrandIds[k] >= iSeq {
			break
		}
	}
	for y := *oldInplayPos; y < oldNumInplay; y++ {
		k := int(sa.oldInplay[y])
		if sa.rnameAndStrandIds[k] > iSeq {
			break
		}
		kBeg := sa.spliceBegCoords[k][j-sa.dpBeg(k)]
		if iEnd <= kBeg {
			continue
		}
		p := iProb * sa.spliceBegProb(k, j) * sa.spliceProb(float64(iEnd-kBeg))
		sum += sa.fmat[k][j-sa.dpBeg(k)] * p
	}
	return sum
}

func (sa *SplitAligner) probFromSpliceB(i int, j uint, oldNumInplay int, oldInplayPos *int) float64 {
	if sa.splicePrior <= 0 {
		return 0
	}
	sum := 0.0
	iSeq := sa.rnameAndStrandIds[i]
	iBeg := sa.spliceBegCoords[i][j-sa.dpBeg(i)]
	iProb := sa.spliceBegProb(i, j)

	for ; *oldInplayPos < oldNumInplay; *oldInplayPos++ {
		k := sa.oldInplay[*oldInplayPos]
		if sa.rnameAndStrandIds[k] >= iSeq {
			break
		}
	}
	for y := *oldInplayPos; y < oldNumInplay; y++ {
		k := int(sa.oldInplay[y])
		if sa.rnameAndStrandIds[k] > iSeq {
			break
		}
		kEnd := sa.spliceEndCoords[k][j-sa.dpBeg(k)]
		if kEnd <= iBeg {
			continue
		}
		p := iProb * sa.spliceEndProb(k, j) * sa.spliceProb(float64(kEnd-iBeg))
		sum += sa.bmat[k][j-sa.dpBeg(k)] * p
	}
	return sum
}

func (sa *SplitAligner) forward() {
	sa.rescales = resizeFloat(sa.rescales, int(sa.maxEnd-sa.minBeg)+1)
	sa.rescales[0] = 1

	sa.fmat = resizeFloatMatrix(sa.fmat, sa.numAlns, sa.width(1))
	probFromRestart := 0.0
	probFromJump := 0.0
	begprob := 1.0
	zF := 0.0 // sum of probabilities from the forward algorithm

	sa.sortSortedAlnIndices(func(a, b uint) bool {
		if sa.dpBegs[a] != sa.dpBegs[b] {
			return sa.dpBegs[a] < sa.dpBegs[b]
		}
		return sa.rnameAndStrandIds[a] < sa.rnameAndStrandIds[b]
	})
	sortedAlnPos := 0
	oldNumInplay := 0
	newNumInplay := 0

	for j := sa.minBeg; j < sa.maxEnd; j++ {
		sa.updateInplayF(&sortedAlnPos, &oldNumInplay, &newNumInplay, j)
		oldInplayPos := 0
		r := sa.rescales[j-sa.minBeg]
		zF /= r
		pSum := 0.0
		rNew := 1.0
		for x := 0; x < newNumInplay; x++ {
			i := int(sa.newInplay[x])
			p := (sa.ib(i, j)*begprob +
				sa.fmat[i][j-sa.dpBeg(i)]*sa.dexp[i][j-sa.dpBeg(i)] +
				probFromJump*sa.spliceEndProb(i, j) +
				sa.probFromSpliceF(i, j, oldNumInplay, &oldInplayPos)) *
				sa.aexp[i][j-sa.dpBeg(i)] / r
			sa.fmat[i][j+1-sa.dpBeg(i)] = p
			zF += sa.ie(i, j+1) * p
			pSum += p * sa.spliceBegProb(i, j+1)
			rNew += p
		}
		begprob /= r
		sa.rescales[j+1-sa.minBeg] = rNew
		probFromRestart = pSum*sa.restartProb + probFromRestart/r
		probFromJump = pSum*sa.jumpProb + probFromRestart
	}

	sa.rescales[sa.maxEnd-sa.minBeg] = zF // this makes scaled zF equal 1
}

func (sa *SplitAligner) backward() {
	sa.bmat = resizeFloatMatrix(sa.bmat, sa.numAlns, sa.width(1))
	probFromRestart := 0.0
	probFromJump := 0.0
	endprob := 1.0

	sa.sortSortedAlnIndices(func(a, b uint) bool {
		if sa.dpEnds[a] != sa.dpEnds[b] {
			return sa.dpEnds[a] > sa.dpEnds[b]
		}
		return sa.rnameAndStrandIds[a] < sa.rnameAndStrandIds[b]
	})
	sortedAlnPos := 0
	oldNumInplay := 0
	newNumInplay := 0

	for j := sa.maxEnd; j > sa.minBeg; j-- {
		sa.updateInplayB(&sortedAlnPos, &oldNumInplay, &newNumInplay, j)
		oldInplayPos := 0
		r := sa.rescales[j-sa.minBeg]
		pSum := 0.0
		for x := 0; x < newNumInplay; x++ {
			i := int(sa.newInplay[x])
			p := (sa.ie(i, j)*endprob +
				sa.bmat[i][j-sa.dpBeg(i)]*sa.dexp[i][j-sa.dpBeg(i)] +
				probFromJump*sa.spliceBegProb(i, j) +
				sa.probFromSpliceB(i, j, oldNumInplay, &oldInplayPos)) *
				sa.aexp[i][j-1-sa.dpBeg(i)] / r
			sa.bmat[i][j-1-sa.dpBeg(i)] = p
			pSum += p * sa.spliceEndProb(i, j-1)
		}
		endprob /= r
		probFromRestart = pSum*sa.restartProb + probFromRestart/r
		probFromJump = pSum*sa.jumpProb + probFromRestart
	}
}

// ForwardBackward runs both passes with the current splice-signal
// orientation.
func (sa *SplitAligner) ForwardBackward() {
	sa.forward()
	sa.backward()
}

// MarginalProbs gives, for the alignment columns [alnBeg, alnEnd) of one
// candidate, the posterior probability that the query base there is
// aligned as shown; queryBeg is the query position of column alnBeg.
func (sa *SplitAligner) MarginalProbs(queryBeg uint, alnNum int, alnBeg, alnEnd uint) []float64 {
	var output []float64
	i := alnNum
	j := queryBeg
	for pos := alnBeg; pos < alnEnd; pos++ {
		if sa.alns[i].Qalign[pos] == '-' {
			value := sa.fmat[i][j-sa.dpBeg(i)] * sa.bmat[i][j-sa.dpBeg(i)] *
				sa.dexp[i][j-sa.dpBeg(i)] / sa.rescales[j-sa.minBeg]
			output = append(output, value)
		} else {
			value := sa.fmat[i][j+1-sa.dpBeg(i)] * sa.bmat[i][j-sa.dpBeg(i)] /
				sa.aexp[i][j-sa.dpBeg(i)]
			if math.IsNaN(value) {
				value = 0
			}
			output = append(output, value)
			j++
		}
	}
	return output
}
