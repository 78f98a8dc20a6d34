package split

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/grailbio/base/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/grailbio/last/alphabet"
	"github.com/grailbio/last/index"
	"github.com/grailbio/last/scoring"
	"github.com/grailbio/last/seq"
)

const numQualCodes = 64

// negHuge plays the role of an unreachable score; kept far from the int64
// minimum so that adding ordinary scores cannot wrap.
const negHuge = int64(math.MinInt32) / 2

// SplitAligner chains candidate alignments of one query through jumps and
// splices.  Scores are scaled integers; probabilities come from the same
// scores via exp(score/scale).
type SplitAligner struct {
	// Parameters, fixed per run.
	gapExistenceScore int
	gapExtensionScore int
	jumpScore         int
	restartScore      int
	scale             float64
	qualityOffset     int
	jumpProb          float64
	restartProb       float64

	splicePrior  float64
	meanLogDist  float64
	sdevLogDist  float64
	spliceDist   distuv.LogNormal
	logPriorTerm float64

	spliceBegScores [17]int
	spliceEndScores [17]int
	spliceBegProbs  [17]float64
	spliceEndProbs  [17]float64

	// scoreMat[x][y][q] scores reference letter x against query letter y
	// with quality code q.  Letters index by their ASCII value mod 64.
	scoreMat [][][]int

	genome          *seq.MultiSequence
	alph            *alphabet.Alphabet
	chromosomeIndex map[string]int

	// Per-query state.
	alns    []UnsplitAlignment
	numAlns int
	dpBegs  []uint
	dpEnds  []uint
	minBeg  uint
	maxEnd  uint

	amat [][]int
	dmat [][]int
	aexp [][]float64
	dexp [][]float64

	vmat [][]int64
	vvec []int64

	fmat     [][]float64
	bmat     [][]float64
	rescales []float64

	vmatRev     [][]int64
	vvecRev     []int64
	fmatRev     [][]float64
	bmatRev     [][]float64
	rescalesRev []float64

	spliceBegCoords [][]uint
	spliceEndCoords [][]uint

	rnameAndStrandIds []uint
	sortedAlnIndices  []uint
	oldInplay         []uint
	newInplay         []uint
}

func (sa *SplitAligner) dpBeg(i int) uint { return sa.dpBegs[i] }
func (sa *SplitAligner) dpEnd(i int) uint { return sa.dpEnds[i] }

// matrices are ragged: row i covers query positions [dpBeg(i),
// dpEnd(i)+extra).

func resizeIntMatrix(m [][]int, rows int, width func(i int) int) [][]int {
	if cap(m) < rows {
		m = make([][]int, rows)
	}
	m = m[:rows]
	for i := range m {
		n := width(i)
		if cap(m[i]) < n {
			m[i] = make([]int, n)
		}
		m[i] = m[i][:n]
		for j := range m[i] {
			m[i][j] = 0
		}
	}
	return m
}

func resizeInt64Matrix(m [][]int64, rows int, width func(i int) int) [][]int64 {
	if cap(m) < rows {
		m = make([][]int64, rows)
	}
	m = m[:rows]
	for i := range m {
		n := width(i)
		if cap(m[i]) < n {
			m[i] = make([]int64, n)
		}
		m[i] = m[i][:n]
		for j := range m[i] {
			m[i][j] = 0
		}
	}
	return m
}

func resizeFloatMatrix(m [][]float64, rows int, width func(i int) int) [][]float64 {
	if cap(m) < rows {
		m = make([][]float64, rows)
	}
	m = m[:rows]
	for i := range m {
		n := width(i)
		if cap(m[i]) < n {
			m[i] = make([]float64, n)
		}
		m[i] = m[i][:n]
		for j := range m[i] {
			m[i][j] = 0
		}
	}
	return m
}

func resizeUintMatrix(m [][]uint, rows int, width func(i int) int) [][]uint {
	if cap(m) < rows {
		m = make([][]uint, rows)
	}
	m = m[:rows]
	for i := range m {
		n := width(i)
		if cap(m[i]) < n {
			m[i] = make([]uint, n)
		}
		m[i] = m[i][:n]
		for j := range m[i] {
			m[i][j] = 0
		}
	}
	return m
}

func (sa *SplitAligner) width(extra int) func(i int) int {
	return func(i int) int { return int(sa.dpEnds[i]-sa.dpBegs[i]) + extra }
}

// SetParams sets the gap, jump and restart scores (all non-positive), the
// probability scale, and the quality-code offset.
func (sa *SplitAligner) SetParams(gapExistenceScore, gapExtensionScore,
	jumpScore, restartScore int, scale float64, qualityOffset int) {
	sa.gapExistenceScore = gapExistenceScore
	sa.gapExtensionScore = gapExtensionScore
	sa.jumpScore = jumpScore
	sa.restartScore = restartScore
	sa.scale = scale
	sa.qualityOffset = qualityOffset
	sa.jumpProb = math.Exp(float64(jumpScore) / scale)
	sa.restartProb = math.Exp(float64(restartScore) / scale)
}

// SetSpliceParams sets the cis-splice prior and the log-normal
// intron-length model.  splicePrior <= 0 disables cis-splicing.
func (sa *SplitAligner) SetSpliceParams(splicePrior, meanLogDist, sdevLogDist float64) {
	sa.splicePrior = splicePrior
	sa.meanLogDist = meanLogDist
	sa.sdevLogDist = sdevLogDist
	if splicePrior <= 0 {
		return
	}
	sa.spliceDist = distuv.LogNormal{Mu: meanLogDist, Sigma: sdevLogDist}
	sa.logPriorTerm = math.Log(splicePrior)
}

// spliceScore is the score for a cis-splice of the given distance: the
// log-normal density normalized so that its integral carries the splice
// prior.
func (sa *SplitAligner) spliceScore(dist float64) int {
	s := sa.logPriorTerm + sa.spliceDist.LogProb(dist)
	return int(math.Floor(sa.scale*s + 0.5))
}

func (sa *SplitAligner) spliceProb(dist float64) float64 {
	return math.Exp(float64(sa.spliceScore(dist)) / sa.scale)
}

func scoreFromProb(prob, scale float64) int {
	return int(math.Floor(scale*math.Log(prob) + 0.5))
}

// SetSpliceSignals sets the dinucleotide splice-signal scores: GT-AG gets
// the highest weights, with unnaturally high values for non-GT-AG signals
// to allow for various kinds of error.
func (sa *SplitAligner) SetSpliceSignals() {
	// If an RNA-DNA alignment reaches position i in the DNA, the
	// probability of splicing from i to j is d(i) * a(j) * f(j-i), where
	// d and a depend on the dinucleotides at i and j, and f is the
	// intron-length density.  Only the relative values of d and a matter:
	// the overall splice probability is set by splicePrior.
	dGT := 0.95
	dGC := 0.02
	dAT := 0.004
	dNN := 0.002

	aAG := 0.968
	aAC := 0.004
	aNN := 0.002

	// Assume roughly equal 1/16 dinucleotide abundances.
	dAvg := (dGT + dGC + dAT + dNN*13) / 16
	aAvg := (aAG + aAC + aNN*14) / 16

	for i := 0; i < 17; i++ {
		sa.spliceBegScores[i] = scoreFromProb(dNN/dAvg, sa.scale)
		sa.spliceEndScores[i] = scoreFromProb(aNN/aAvg, sa.scale)
	}

	sa.spliceBegScores[2*4+3] = scoreFromProb(dGT/dAvg, sa.scale)
	sa.spliceBegScores[2*4+1] = scoreFromProb(dGC/dAvg, sa.scale)
	sa.spliceBegScores[0*4+3] = scoreFromProb(dAT/dAvg, sa.scale)

	sa.spliceEndScores[0*4+2] = scoreFromProb(aAG/aAvg, sa.scale)
	sa.spliceEndScores[0*4+1] = scoreFromProb(aAC/aAvg, sa.scale)

	for i := 0; i < 17; i++ {
		sa.spliceBegProbs[i] = math.Exp(float64(sa.spliceBegScores[i]) / sa.scale)
		sa.spliceEndProbs[i] = math.Exp(float64(sa.spliceEndScores[i]) / sa.scale)
	}
}

// FlipSpliceSignals swaps the sense-strand and antisense-strand
// interpretations of the splice signals, and the per-strand matrices with
// them.
func (sa *SplitAligner) FlipSpliceSignals() {
	sa.vmat, sa.vmatRev = sa.vmatRev, sa.vmat
	sa.vvec, sa.vvecRev = sa.vvecRev, sa.vvec
	sa.fmat, sa.fmatRev = sa.fmatRev, sa.fmat
	sa.bmat, sa.bmatRev = sa.bmatRev, sa.bmat
	sa.rescales, sa.rescalesRev = sa.rescalesRev, sa.rescales

	for i := 0; i < 16; i++ {
		j := 15 - ((i%4)*4 + i/4) // reverse-complement
		sa.spliceBegScores[i], sa.spliceEndScores[j] =
			sa.spliceEndScores[j], sa.spliceBegScores[i]
		sa.spliceBegProbs[i], sa.spliceEndProbs[j] =
			sa.spliceEndProbs[j], sa.spliceBegProbs[i]
	}
}

// SpliceSignalStrandLogOdds returns the posterior log odds of the sense
// strand, from the ratio of the rescale products of the two
// forward-backward passes.
func (sa *SplitAligner) SpliceSignalStrandLogOdds() float64 {
	logOdds := 0.0
	for j := range sa.rescales {
		logOdds += math.Log(sa.rescales[j]) - math.Log(sa.rescalesRev[j])
	}
	return logOdds
}

// ReadGenome loads a genome database written by the index builder, for
// splice-signal lookups.
func (sa *SplitAligner) ReadGenome(baseName string) error {
	f, err := openFile(baseName + ".prj")
	if err != nil {
		return err
	}
	defer f.Close() // nolint: errcheck
	m, err := index.ReadManifest(f)
	if err != nil {
		return err
	}
	if m.Alphabet != alphabet.DNA {
		return errors.New("split: the genome database is not DNA")
	}
	if m.Volumes > 1 {
		return errors.New("split: can't read multi-volume databases, sorry")
	}
	sa.alph, err = alphabet.New(m.Alphabet, false)
	if err != nil {
		return err
	}
	sa.genome, err = seq.FromFiles(baseName, m.NumOfSequences, 1)
	if err != nil {
		return err
	}
	sa.chromosomeIndex = make(map[string]int)
	for i := 0; i < sa.genome.FinishedSequences(); i++ {
		n := sa.genome.SeqName(i)
		if _, ok := sa.chromosomeIndex[n]; ok {
			return errors.New("split: duplicate sequence name: " + n)
		}
		sa.chromosomeIndex[n] = i
	}
	return nil
}

func openFile(name string) (io.ReadCloser, error) {
	return os.Open(name)
}

// spliceBegSignal gives the dinucleotide immediately downstream of the
// given (strand-adjusted) genome coordinate, as 4*n1+n2, or 16 when
// ambiguous.
func (sa *SplitAligner) spliceBegSignal(coordinate uint, strand byte) int {
	g := sa.genome.Seq
	up := &sa.alph.ToUppercase
	if strand == '+' {
		n1 := up[g[coordinate]]
		if n1 >= 4 {
			return 16
		}
		n2 := up[g[coordinate+1]]
		if n2 >= 4 {
			return 16
		}
		return int(n1)*4 + int(n2)
	}
	end := uint(sa.genome.FinishedSize())
	p := end - coordinate
	n1 := up[g[p-1]]
	if n1 >= 4 {
		return 16
	}
	n2 := up[g[p-2]]
	if n2 >= 4 {
		return 16
	}
	return 15 - (int(n1)*4 + int(n2)) // reverse-complement
}

// spliceEndSignal gives the dinucleotide immediately upstream of the
// given coordinate.
func (sa *SplitAligner) spliceEndSignal(coordinate uint, strand byte) int {
	g := sa.genome.Seq
	up := &sa.alph.ToUppercase
	if strand == '+' {
		n2 := up[g[coordinate-1]]
		if n2 >= 4 {
			return 16
		}
		n1 := up[g[coordinate-2]]
		if n1 >= 4 {
			return 16
		}
		return int(n1)*4 + int(n2)
	}
	end := uint(sa.genome.FinishedSize())
	p := end - coordinate
	n2 := up[g[p]]
	if n2 >= 4 {
		return 16
	}
	n1 := up[g[p+1]]
	if n1 >= 4 {
		return 16
	}
	return 15 - (int(n1)*4 + int(n2))
}

func (sa *SplitAligner) spliceBegScore(i int, j uint) int {
	if sa.chromosomeIndex == nil {
		return 0
	}
	coord := sa.spliceBegCoords[i][j-sa.dpBeg(i)]
	return sa.spliceBegScores[sa.spliceBegSignal(coord, sa.alns[i].Qstrand[0])]
}

func (sa *SplitAligner) spliceBegProb(i int, j uint) float64 {
	if sa.chromosomeIndex == nil {
		return 1
	}
	coord := sa.spliceBegCoords[i][j-sa.dpBeg(i)]
	return sa.spliceBegProbs[sa.spliceBegSignal(coord, sa.alns[i].Qstrand[0])]
}

func (sa *SplitAligner) spliceEndScore(i int, j uint) int {
	if sa.chromosomeIndex == nil {
		return 0
	}
	coord := sa.spliceEndCoords[i][j-sa.dpBeg(i)]
	return sa.spliceEndScores[sa.spliceEndSignal(coord, sa.alns[i].Qstrand[0])]
}

func (sa *SplitAligner) spliceEndProb(i int, j uint) float64 {
	if sa.chromosomeIndex == nil {
		return 1
	}
	coord := sa.spliceEndCoords[i][j-sa.dpBeg(i)]
	return sa.spliceEndProbs[sa.spliceEndSignal(coord, sa.alns[i].Qstrand[0])]
}

// SpliceBegSignalText decodes the donor dinucleotide at the given query
// position of a candidate, in output orientation.
func (sa *SplitAligner) SpliceBegSignalText(alnNum int, j uint, isSenseStrand bool) string {
	if sa.chromosomeIndex == nil {
		return ".."
	}
	coord := sa.spliceBegCoords[alnNum][j-sa.dpBeg(alnNum)]
	sig := sa.spliceBegSignal(coord, sa.alns[alnNum].Qstrand[0])
	return signalText(sig, isSenseStrand)
}

// SpliceEndSignalText decodes the acceptor dinucleotide.
func (sa *SplitAligner) SpliceEndSignalText(alnNum int, j uint, isSenseStrand bool) string {
	if sa.chromosomeIndex == nil {
		return ".."
	}
	coord := sa.spliceEndCoords[alnNum][j-sa.dpBeg(alnNum)]
	sig := sa.spliceEndSignal(coord, sa.alns[alnNum].Qstrand[0])
	return signalText(sig, isSenseStrand)
}

func signalText(sig int, isSenseStrand bool) string {
	if sig >= 16 {
		return ".."
	}
	const bases = "acgt"
	n1 := sig / 4
	n2 := sig % 4
	if !isSenseStrand {
		n1, n2 = 3-n2, 3-n1
	}
	return string([]byte{bases[n1], bases[n2]})
}

// SetScoreMat builds the quality-generalized substitution scores from a
// plain matrix, reverse-engineering the base abundances from the matrix
// itself by solving a small linear system.
func (sa *SplitAligner) SetScoreMat(matrix [][]int, rowNames, colNames string) error {
	const bases = "ACGT"
	blen := len(bases)

	minScore := matrix[0][0]
	for _, row := range matrix {
		for _, x := range row {
			if x < minScore {
				minScore = x
			}
		}
	}
	lookup := func(x, y byte) int {
		row := indexByteUpper(rowNames, x)
		col := indexByteUpper(colNames, y)
		if row < 0 || col < 0 {
			return minScore
		}
		return matrix[row][col]
	}

	bmat := mat.NewDense(blen, blen, nil)
	for i := 0; i < blen; i++ {
		for j := 0; j < blen; j++ {
			bmat.Set(i, j, math.Exp(float64(lookup(bases[i], bases[j]))/sa.scale))
		}
	}
	ones := mat.NewVecDense(blen, []float64{1, 1, 1, 1})
	var probs mat.VecDense
	if err := probs.SolveVec(bmat, ones); err != nil {
		return errors.E(err, "split: can't solve for base abundances")
	}

	sa.scoreMat = make([][][]int, 64)
	for i := 64; i < 128; i++ {
		x := upperByte(byte(i))
		row := make([][]int, 64)
		for j := 64; j < 128; j++ {
			y := upperByte(byte(j))
			score := lookup(x, y)
			cells := make([]int, numQualCodes)
			xc := indexByteUpper(bases, x)
			yc := indexByteUpper(bases, y)
			for q := 0; q < numQualCodes; q++ {
				if xc < 0 || yc < 0 {
					cells[q] = score
				} else {
					p := probs.AtVec(yc)
					e := scoring.ErrorProb(q, true)
					cells[q] = int(scoring.GeneralizedScore(int32(score), sa.scale, e, p))
				}
			}
			row[j%64] = cells
		}
		sa.scoreMat[i%64] = row
	}
	return nil
}

func upperByte(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

func indexByteUpper(s string, c byte) int {
	c = upperByte(c)
	for i := 0; i < len(s); i++ {
		if upperByte(s[i]) == c {
			return i
		}
	}
	return -1
}

// PrintParameters writes the header comments describing the jump score
// and splice signals.
func (sa *SplitAligner) PrintParameters(w io.Writer) {
	if sa.jumpProb > 0 {
		fmt.Fprintf(w, "# trans=%d\n", sa.jumpScore)
	}
	if sa.chromosomeIndex != nil {
		fmt.Fprintf(w, "# GT=%d GC=%d AT=%d NN=%d\n",
			sa.spliceBegScores[2*4+3], sa.spliceBegScores[2*4+1],
			sa.spliceBegScores[0*4+3], sa.spliceBegScores[0])
		fmt.Fprintf(w, "# AG=%d AC=%d NN=%d\n",
			sa.spliceEndScores[0*4+2], sa.spliceEndScores[0*4+1],
			sa.spliceEndScores[0])
	}
}

func mergeInto(dst []uint, nDst int, src []uint, less func(a, b uint) bool) int {
	// Merge the sorted src into the sorted dst[:nDst]; dst has room.
	end3 := nDst + len(src)
	i, j := nDst, len(src)
	for j > 0 {
		if i == 0 {
			copy(dst[:j], src[:j])
			break
		}
		end3--
		if less(src[j-1], dst[i-1]) {
			dst[end3] = dst[i-1]
			i--
		} else {
			dst[end3] = src[j-1]
			j--
		}
	}
	return nDst + len(src)
}

func (sa *SplitAligner) sortSortedAlnIndices(less func(a, b uint) bool) {
	sort.SliceStable(sa.sortedAlnIndices, func(x, y int) bool {
		return less(sa.sortedAlnIndices[x], sa.sortedAlnIndices[y])
	})
}

func (sa *SplitAligner) rbegLess(a, b uint) bool {
	return sa.rnameAndStrandIds[a] < sa.rnameAndStrandIds[b]
}

// updateInplayF advances the active set to query coordinate j, for a
// left-to-right sweep: candidates activate at dpBeg and retire at dpEnd.
func (sa *SplitAligner) updateInplayF(sortedAlnPos *int, oldNumInplay, newNumInplay *int, j uint) {
	sa.oldInplay, sa.newInplay = sa.newInplay, sa.oldInplay
	*oldNumInplay = *newNumInplay
	n := 0
	for x := 0; x < *oldNumInplay; x++ {
		i := sa.oldInplay[x]
		if sa.dpEnd(int(i)) == j {
			continue // no longer in play
		}
		sa.newInplay[n] = i
		n++
	}
	oldPos := *sortedAlnPos
	for *sortedAlnPos < sa.numAlns {
		i := sa.sortedAlnIndices[*sortedAlnPos]
		if sa.dpBeg(int(i)) > j {
			break // not yet in play
		}
		*sortedAlnPos++
	}
	n = mergeInto(sa.newInplay, n, sa.sortedAlnIndices[oldPos:*sortedAlnPos], sa.rbegLess)
	*newNumInplay = n
}

// updateInplayB is the right-to-left mirror.
func (sa *SplitAligner) updateInplayB(sortedAlnPos *int, oldNumInplay, newNumInplay *int, j uint) {
	sa.oldInplay, sa.newInplay = sa.newInplay, sa.oldInplay
	*oldNumInplay = *newNumInplay
	n := 0
	for x := 0; x < *oldNumInplay; x++ {
		i := sa.oldInplay[x]
		if sa.dpBeg(int(i)) == j {
			continue
		}
		sa.newInplay[n] = i
		n++
	}
	oldPos := *sortedAlnPos
	for *sortedAlnPos < sa.numAlns {
		i := sa.sortedAlnIndices[*sortedAlnPos]
		if sa.dpEnd(int(i)) < j {
			break
		}
		*sortedAlnPos++
	}
	n = mergeInto(sa.newInplay, n, sa.sortedAlnIndices[oldPos:*sortedAlnPos], sa.rbegLess)
	*newNumInplay = n
}

func (sa *SplitAligner) jb(i int, j uint) int64 {
	if j == sa.dpBeg(i) {
		return 0
	}
	return negHuge
}

func (sa *SplitAligner) scoreIndel(i int, j uint) int64 {
	return sa.vmat[i][j-sa.dpBeg(i)] + int64(sa.dmat[i][j-sa.dpBeg(i)])
}

// scoreFromSplice maximizes over candidates k on the same reference and
// strand whose splice-begin coordinate precedes i's splice-end
// coordinate.
func (sa *SplitAligner) scoreFromSplice(i int, j uint, oldNumInplay int, oldInplayPos *int) int64 {
	if sa.splicePrior <= 0 {
		return math.MinInt64
	}
	score := int64(math.MinInt64)
	iSeq := sa.rnameAndStrandIds[i]
	iEnd := sa.spliceEndCoords[i][j-sa.dpBeg(i)]
	iScore := sa.spliceEndScore(i, j)

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
		s := int64(iScore + sa.spliceBegScore(k, j) + sa.spliceScore(float64(iEnd-kBeg)))
		if v := sa.vmat[k][j-sa.dpBeg(k)] + s; v > score {
			score = v
		}
	}
	return score
}

// Viterbi runs the chaining DP and returns the best end score.
func (sa *SplitAligner) Viterbi() int64 {
	sa.vmat = resizeInt64Matrix(sa.vmat, sa.numAlns, sa.width(1))
	sa.vvec = resizeInt64(sa.vvec, int(sa.maxEnd-sa.minBeg)+1)

	for i := 0; i < sa.numAlns; i++ {
		sa.vmat[i][0] = negHuge
	}
	sa.vvec[0] = negHuge
	scoreFromJump := negHuge

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
		sMax := negHuge
		for x := 0; x < newNumInplay; x++ {
			i := int(sa.newInplay[x])
			s := max4(sa.jb(i, j),
				sa.scoreIndel(i, j),
				scoreFromJump+int64(sa.spliceEndScore(i, j)),
				sa.scoreFromSplice(i, j, oldNumInplay, &oldInplayPos)) +
				int64(sa.amat[i][j-sa.dpBeg(i)])
			sa.vmat[i][j+1-sa.dpBeg(i)] = s
			if v := s + int64(sa.spliceBegScore(i, j+1)); v > sMax {
				sMax = v
			}
		}
		v := sMax + int64(sa.restartScore)
		if prev := sa.vvec[j-sa.minBeg]; prev > v {
			v = prev
		}
		sa.vvec[j+1-sa.minBeg] = v
		scoreFromJump = sMax + int64(sa.jumpScore)
		if v > scoreFromJump {
			scoreFromJump = v
		}
	}
	return sa.endScore()
}

func max4(a, b, c, d int64) int64 {
	if b > a {
		a = b
	}
	if c > a {
		a = c
	}
	if d > a {
		a = d
	}
	return a
}

func resizeInt64(s []int64, n int) []int64 {
	if cap(s) < n {
		s = make([]int64, n)
	}
	s = s[:n]
	for i := range s {
		s[i] = 0
	}
	return s
}

func resizeFloat(s []float64, n int) []float64 {
	if cap(s) < n {
		s = make([]float64, n)
	}
	s = s[:n]
	for i := range s {
		s[i] = 0
	}
	return s
}

func (sa *SplitAligner) endScore() int64 {
	score := int64(math.MinInt64)
	for i := 0; i < sa.numAlns; i++ {
		if v := sa.vmat[i][sa.alns[i].Qend-sa.dpBeg(i)]; v > score {
			score = v
		}
	}
	return score
}

func (sa *SplitAligner) findEndScore(score int64) int {
	for i := 0; i < sa.numAlns; i++ {
		if sa.vmat[i][sa.alns[i].Qend-sa.dpBeg(i)] == score {
			return i
		}
	}
	return sa.numAlns
}

func (sa *SplitAligner) findScore(j uint, score int64) int {
	for i := 0; i < sa.numAlns; i++ {
		if sa.dpBeg(i) >= j || sa.dpEnd(i) < j {
			continue
		}
		if sa.vmat[i][j-sa.dpBeg(i)]+int64(sa.spliceBegScore(i, j)) == score {
			return i
		}
	}
	return sa.numAlns
}

func (sa *SplitAligner) findSpliceScore(i int, j uint, score int64) int {
	iSeq := sa.rnameAndStrandIds[i]
	iEnd := sa.spliceEndCoords[i][j-sa.dpBeg(i)]
	iScore := sa.spliceEndScore(i, j)
	for k := 0; k < sa.numAlns; k++ {
		if sa.rnameAndStrandIds[k] != iSeq {
			continue
		}
		if sa.dpBeg(k) >= j || sa.dpEnd(k) < j {
			continue
		}
		kBeg := sa.spliceBegCoords[k][j-sa.dpBeg(k)]
		if iEnd <= kBeg {
			continue
		}
		s := int64(iScore + sa.spliceBegScore(k, j) + sa.spliceScore(float64(iEnd-kBeg)))
		if sa.vmat[k][j-sa.dpBeg(k)]+s == score {
			return k
		}
	}
	return sa.numAlns
}

// TraceBack decodes the Viterbi path into (alignment number, query beg,
// query end) segments, in reverse query order.
func (sa *SplitAligner) TraceBack(viterbiScore int64) (alnNums []int, queryBegs, queryEnds []uint) {
	i := sa.findEndScore(viterbiScore)
	if i >= sa.numAlns {
		panic("split: can't find the end of the best path")
	}
	j := sa.alns[i].Qend

	alnNums = append(alnNums, i)
	queryEnds = append(queryEnds, j)

	for {
		score := sa.vmat[i][j-sa.dpBeg(i)]
		j--
		score -= int64(sa.amat[i][j-sa.dpBeg(i)])
		switch {
		case score == sa.jb(i, j):
			queryBegs = append(queryBegs, j)
			return alnNums, queryBegs, queryEnds
		case score == sa.scoreIndel(i, j):
			// stay in the same candidate
		default:
			queryBegs = append(queryBegs, j)
			s := score - int64(sa.spliceEndScore(i, j))
			if s == sa.vvec[j-sa.minBeg] {
				for j > sa.minBeg && s == sa.vvec[j-1-sa.minBeg] {
					j--
				}
				i = sa.findScore(j, s-int64(sa.restartScore))
			} else {
				k := sa.findScore(j, s-int64(sa.jumpScore))
				if k < sa.numAlns {
					i = k
				} else {
					i = sa.findSpliceScore(i, j, score)
				}
			}
			if i >= sa.numAlns {
				panic("split: lost the traceback path")
			}
			alnNums = append(alnNums, i)
			queryEnds = append(queryEnds, j)
		}
	}
}

// SegmentScore recomputes the score of one traceback segment.
func (sa *SplitAligner) SegmentScore(alnNum int, queryBeg, queryEnd uint) int {
	score := 0
	i := alnNum
	for j := queryBeg; j < queryEnd; j++ {
		score += sa.amat[i][j-sa.dpBeg(i)]
		if j > queryBeg {
			score += sa.dmat[i][j-sa.dpBeg(i)]
		}
	}
	return score
}
