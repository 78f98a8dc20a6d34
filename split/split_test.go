package split

import (
	"math"
	"strings"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func matchBlock(n int) string { return strings.Repeat("A", n) }

// twoCandidates makes two 50-base perfect matches of one query, at the given
// reference starts and strands.
func twoCandidates(rstart1, rstart2 uint, strand2 string) []UnsplitAlignment {
	return []UnsplitAlignment{
		{
			Rname: "chr1", Rstart: rstart1, Rend: rstart1 + 50,
			Qname: "q", Qstart: 0, Qend: 50, Qstrand: "+",
			Ralign: matchBlock(50), Qalign: matchBlock(50),
			RSeqSize: 1 << 20, QSeqSize: 100, order: 0,
		},
		{
			Rname: "chr1", Rstart: rstart2, Rend: rstart2 + 50,
			Qname: "q", Qstart: 50, Qend: 100, Qstrand: strand2,
			Ralign: matchBlock(50), Qalign: matchBlock(50),
			RSeqSize: 1 << 20, QSeqSize: 100, order: 1,
		},
	}
}

func identityMatrix() [][]int {
	m := make([][]int, 4)
	for i := range m {
		m[i] = make([]int, 4)
		for j := range m[i] {
			if i == j {
				m[i][j] = 1
			} else {
				m[i][j] = -1
			}
		}
	}
	return m
}

func newAligner(t *testing.T, jumpScore int, splicePrior float64) *SplitAligner {
	sa := &SplitAligner{}
	sa.SetParams(-7, -1, jumpScore, math.MinInt32/2, 1.0, 0)
	sa.SetSpliceParams(splicePrior, 6.9, 1.7)
	assert.NoError(t, sa.SetScoreMat(identityMatrix(), "ACGT", "ACGT"))
	sa.SetSpliceSignals()
	return sa
}

func TestSpliceChain(t *testing.T) {
	// Two candidates on the same chromosome, 950 bases apart: a single
	// cis-splice beats everything else.
	sa := newAligner(t, -200, 1e-3)
	alns := twoCandidates(1000, 2000, "+")
	sa.Layout(alns)

	viterbiScore := sa.Viterbi()
	expect.True(t, viterbiScore > 50, "score=%d", viterbiScore)

	alnNums, queryBegs, queryEnds := sa.TraceBack(viterbiScore)
	assert.EQ(t, len(alnNums), 2)
	// The traceback comes out in reverse query order.
	expect.EQ(t, alnNums, []int{1, 0})
	expect.EQ(t, queryEnds, []uint{100, 50})
	expect.EQ(t, queryBegs, []uint{50, 0})

	// The chained segments re-score to their own parts (property: the
	// traceback recomputes from the same cells).
	expect.EQ(t, sa.SegmentScore(0, 0, 50), 50)
	expect.EQ(t, sa.SegmentScore(1, 50, 100), 50)
	sp := sa.spliceScore(950)
	expect.EQ(t, viterbiScore, int64(100+sp))

	// Forward-backward gives near-certain placement: mismap < 1e-6.
	sa.ForwardBackward()
	probs := sa.MarginalProbs(0, 0, 0, 50)
	assert.EQ(t, len(probs), 50)
	maxP := 0.0
	for _, p := range probs {
		if p > maxP {
			maxP = p
		}
	}
	require.InDelta(t, 1.0, maxP, 1e-6)
}

func TestTransSplice(t *testing.T) {
	// Candidates on opposite strands can only chain through a jump.
	sa := newAligner(t, -10, 1e-3)
	alns := twoCandidates(1000, 2000, "-")
	sa.Layout(alns)

	viterbiScore := sa.Viterbi()
	expect.EQ(t, viterbiScore, int64(90)) // 100 matches - 10 jump

	alnNums, _, _ := sa.TraceBack(viterbiScore)
	expect.EQ(t, len(alnNums), 2)
}

func TestTransSpliceTooCostly(t *testing.T) {
	// With a hopeless jump score, the best path stays in one candidate.
	sa := newAligner(t, -200, 1e-3)
	alns := twoCandidates(1000, 2000, "-")
	sa.Layout(alns)

	viterbiScore := sa.Viterbi()
	expect.EQ(t, viterbiScore, int64(50))
	alnNums, _, _ := sa.TraceBack(viterbiScore)
	expect.EQ(t, len(alnNums), 1)
}

func TestSpliceScoreShape(t *testing.T) {
	sa := newAligner(t, -100, 1e-3)
	// The log-normal density of d peaks near exp(6.9 - 1.7*1.7) ~ 55 and
	// decays on both sides.
	near := sa.spliceScore(55)
	short := sa.spliceScore(5)
	long := sa.spliceScore(4e6)
	expect.True(t, near > short)
	expect.True(t, near > long)
}

func TestFlipSpliceSignalsIsInvolution(t *testing.T) {
	sa := newAligner(t, -100, 1e-3)
	before := sa.spliceBegScores
	beforeEnd := sa.spliceEndScores
	sa.FlipSpliceSignals()
	sa.FlipSpliceSignals()
	expect.EQ(t, sa.spliceBegScores, before)
	expect.EQ(t, sa.spliceEndScores, beforeEnd)
}

func TestParseMafBlock(t *testing.T) {
	lines := []string{
		"s chr1 1000 4 + 10000 ACGT",
		"s read 2 4 - 100 ACGT",
		"q read             IIII",
	}
	ua, err := ParseMafBlock(lines, 0, false)
	assert.NoError(t, err)
	expect.EQ(t, ua.Qstrand, "-")
	// Both rows were flipped so the query reads forward.
	expect.EQ(t, ua.Qstart, uint(94))
	expect.EQ(t, ua.Qend, uint(98))
	expect.EQ(t, ua.Rstart, uint(8996))
	expect.EQ(t, ua.Ralign, "ACGT")
	expect.EQ(t, ua.Qalign, "ACGT")
	expect.EQ(t, ua.QQual, "IIII")
}

func TestMafSliceHelpers(t *testing.T) {
	//        query:  A-CG
	//        ref:    AAC-
	qalign := "A-CG"
	ralign := "AAC-"
	qpos, alnBeg := MafSliceBeg(ralign, qalign, 10, 11)
	expect.EQ(t, qpos, uint(11))
	expect.EQ(t, alnBeg, uint(2))
	qpos, alnEnd := MafSliceEnd(ralign, qalign, 13, 12)
	expect.EQ(t, qpos, uint(12))
	expect.EQ(t, alnEnd, uint(3))
}

func TestRunNoSplitSmoke(t *testing.T) {
	input := `# test header
#    A    C    G    T
# A    1   -1   -1   -1
# C   -1    1   -1   -1
# G   -1   -1    1   -1
# T   -1   -1   -1    1
# a=7 b=1 A=7 B=1 e=20 t=1.0 Q=0
# letters=1000000

a score=50
s chr1 1000 50 + 1000000 ` + matchBlock(50) + `
s read     0 50 + 50      ` + matchBlock(50) + `

`
	opts := DefaultOpts
	opts.NoSplit = true
	var out strings.Builder
	assert.NoError(t, Run(opts, strings.NewReader(input), &out))
	expect.True(t, strings.Contains(out.String(), "a score="),
		"output: %s", out.String())
	expect.True(t, strings.Contains(out.String(), "mismap="))
}

func TestRunSplitSmoke(t *testing.T) {
	input := `#    A    C    G    T
# A    1   -1   -1   -1
# C   -1    1   -1   -1
# G   -1   -1    1   -1
# T   -1   -1   -1    1
# a=7 b=1 A=7 B=1 e=20 t=1.0 Q=0 letters=1000000

a score=50
s chr1 1000 50 + 1000000 ` + matchBlock(50) + `
s read     0 50 + 100     ` + matchBlock(50) + `

a score=50
s chr1 5000 50 + 1000000 ` + matchBlock(50) + `
s read    50 50 + 100     ` + matchBlock(50) + `

`
	var out strings.Builder
	assert.NoError(t, Run(DefaultOpts, strings.NewReader(input), &out))
	// Both halves of the query are reported.
	expect.EQ(t, strings.Count(out.String(), "a score="), 2)
}
