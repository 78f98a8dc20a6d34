package align

import (
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"

	"github.com/grailbio/last/alphabet"
	"github.com/grailbio/last/scoring"
)

func dnaScorer(t *testing.T, match, mismatch int) (*alphabet.Alphabet, *Scorer, *scoring.Matrix) {
	a, err := alphabet.New(alphabet.DNA, false)
	assert.NoError(t, err)
	m := scoring.MatchMismatch(match, mismatch, a.Letters)
	m.Init(a)
	return a, &Scorer{Rows: &m.CaseInsensitive}, m
}

func encodeAll(a *alphabet.Alphabet, texts ...string) [][]byte {
	out := make([][]byte, len(texts))
	for i, s := range texts {
		b := []byte(s)
		a.Tr(b, true)
		out[i] = b
	}
	return out
}

func TestGaplessXdrop(t *testing.T) {
	a, sc, _ := dnaScorer(t, 1, 1)
	bufs := encodeAll(a, " ACGTACGTACGTACGT ", " TACGTAC ")
	text, query := bufs[0], bufs[1]

	// Extension from the point (5, 2): the full query TACGTAC matches the
	// text at positions 4..11.
	sp := MakeGaplessXdrop(text, query, 5, 2, sc, 5)
	expect.EQ(t, sp, SegmentPair{Start1: 4, Start2: 1, Size: 7, Score: 7})
	expect.True(t, sp.IsOptimalGapless(text, query, sc, 5))
}

func TestGaplessSwappedSequences(t *testing.T) {
	a, sc, _ := dnaScorer(t, 1, 1)
	bufs := encodeAll(a, " GGCACGTTT ", " TTTGCACGG ")
	text, query := bufs[0], bufs[1]
	// Swapping the roles of the two sequences, and of the two start
	// points, gives an extension with the same score and size.
	fwd := MakeGaplessXdrop(text, query, 3, 7, sc, 4)
	rev := MakeGaplessXdrop(bufs[1], bufs[0], 7, 3, sc, 4)
	expect.EQ(t, fwd.Score, rev.Score)
	expect.EQ(t, fwd.Size, rev.Size)
}

func TestGaplessNonOptimal(t *testing.T) {
	a, sc, _ := dnaScorer(t, 1, 1)
	bufs := encodeAll(a, " AATA ", " AACA ")
	text, query := bufs[0], bufs[1]
	// A segment with a mismatch at its edge has a non-positive suffix.
	sp := SegmentPair{Start1: 1, Start2: 1, Size: 3}
	expect.False(t, sp.IsOptimalGapless(text, query, sc, 10))
	// The matched prefix alone is fine.
	sp = SegmentPair{Start1: 1, Start2: 1, Size: 2}
	expect.True(t, sp.IsOptimalGapless(text, query, sc, 10))
}

func TestMaxIdenticalRun(t *testing.T) {
	a, sc, _ := dnaScorer(t, 1, 1)
	bufs := encodeAll(a, " ACGTA ", " ACTTA ")
	text, query := bufs[0], bufs[1]
	sp := SegmentPair{Start1: 1, Start2: 1, Size: 5}
	sp.MaxIdenticalRun(text, query, &a.ToUppercase, sc)
	// Two runs of length 2 tie; the first wins.
	expect.EQ(t, sp, SegmentPair{Start1: 1, Start2: 1, Size: 2, Score: 2})
}

func TestGappedAffine(t *testing.T) {
	a, sc, m := dnaScorer(t, 2, 2)
	bufs := encodeAll(a, " AAATTTGGGCCC ", " AAAGGGCCC ")
	text, query := bufs[0], bufs[1]

	var g GappedXdropAligner
	c := NewCentroid(&g)
	var aln Alignment
	aln.Seed = SegmentPair{Start1: 1, Start2: 1, Size: 3, Score: 6}
	opts := XdropOpts{
		Scorer:        sc,
		Delim:         a.Delimiter,
		Gap:           scoring.Affine(3, 1),
		MaxDrop:       10,
		MaxMatchScore: m.MaxScore,
	}
	aln.MakeXdrop(&g, c, text, query, opts)

	expect.EQ(t, aln.Score, int32(12)) // 2*9 - 3 - 3*1
	assert.EQ(t, len(aln.Blocks), 2)
	expect.EQ(t, aln.Blocks[0], SegmentPair{Start1: 1, Start2: 1, Size: 3, Score: 6})
	expect.EQ(t, aln.Blocks[1].Start1, uint64(7))
	expect.EQ(t, aln.Blocks[1].Start2, uint64(4))
	expect.EQ(t, aln.Blocks[1].Size, uint64(6))

	expect.True(t, aln.IsOptimal(text, query, sc, 10, opts.Gap))
	expect.EQ(t, aln.CheckScore(text, query, sc, opts.Gap), int64(12))
}

func TestGappedBlocksOrdered(t *testing.T) {
	a, sc, m := dnaScorer(t, 2, 2)
	bufs := encodeAll(a, " AAATTTGGGCCC ", " AAAGGGCCC ")
	text, query := bufs[0], bufs[1]

	var g GappedXdropAligner
	c := NewCentroid(&g)
	var aln Alignment
	aln.Seed = SegmentPair{Start1: 7, Start2: 4, Size: 6, Score: 12}
	opts := XdropOpts{
		Scorer:        sc,
		Delim:         a.Delimiter,
		Gap:           scoring.Affine(3, 1),
		MaxDrop:       10,
		MaxMatchScore: m.MaxScore,
	}
	aln.MakeXdrop(&g, c, text, query, opts)

	// Blocks never overlap, and both coordinates are non-decreasing.
	for i := 1; i < len(aln.Blocks); i++ {
		expect.True(t, aln.Blocks[i].Beg1() >= aln.Blocks[i-1].End1())
		expect.True(t, aln.Blocks[i].Beg2() >= aln.Blocks[i-1].End2())
	}
	expect.EQ(t, aln.CheckScore(text, query, sc, opts.Gap), int64(aln.Score))
}

func TestGappedIdentical(t *testing.T) {
	a, sc, m := dnaScorer(t, 1, 1)
	bufs := encodeAll(a, " ACGTACGT ", " ACGTACGT ")
	text, query := bufs[0], bufs[1]

	var g GappedXdropAligner
	c := NewCentroid(&g)
	var aln Alignment
	aln.Seed = SegmentPair{Start1: 4, Start2: 4, Size: 1, Score: 1}
	opts := XdropOpts{
		Scorer:        sc,
		Delim:         a.Delimiter,
		Gap:           scoring.Affine(3, 1),
		MaxDrop:       5,
		MaxMatchScore: m.MaxScore,
	}
	aln.MakeXdrop(&g, c, text, query, opts)

	expect.EQ(t, aln.Score, int32(8))
	assert.EQ(t, len(aln.Blocks), 1)
	expect.EQ(t, aln.Blocks[0].Start1, uint64(1))
	expect.EQ(t, aln.Blocks[0].Start2, uint64(1))
	expect.EQ(t, aln.Blocks[0].Size, uint64(8))
}

func TestTranslatedFrameshift(t *testing.T) {
	protein, err := alphabet.New(alphabet.Protein, false)
	assert.NoError(t, err)
	dna, err := alphabet.New(alphabet.DNA, false)
	assert.NoError(t, err)
	gc := alphabet.MustStandardGeneticCode()
	gc.Init(protein, dna)

	m := scoring.MatchMismatch(2, 2, protein.Letters)
	m.Init(protein)
	sc := &Scorer{Rows: &m.CaseInsensitive}

	// Reference: M K F, twice (so the extension has room).  Query DNA has
	// a 1-base insertion after the first codon of the second MKF.
	ref := []byte(" MKFMKF ")
	protein.Tr(ref, true)

	// ATG AAA TTT ATG +G AAA TTT: the +G shifts the frame.
	qdna := []byte(" ATGAAATTTATGGAAATTT ")
	dna.Tr(qdna, true)
	frameSize := uint64(len(qdna)) / 3
	translated := make([]byte, frameSize*3)
	gc.Translate(translated, qdna[:frameSize*3])

	var g GappedXdropAligner
	score := g.Align3(ref, translated, 1, 1, true, sc, protein.Delimiter,
		3, frameSize, scoring.Affine(100, 100), 100, m.MaxScore)

	// Six aligned residues at +2 each, minus one frameshift: 12 - 3 == 9.
	expect.EQ(t, score, int32(9))
}

func TestAsciiProbabilityMonotone(t *testing.T) {
	prev := AsciiProbability(0)
	for p := 0.01; p <= 1.0; p += 0.01 {
		cur := AsciiProbability(p)
		expect.True(t, cur >= prev, "p=%g", p)
		prev = cur
	}
	expect.EQ(t, AsciiProbability(0), byte(33))
	expect.EQ(t, AsciiProbability(1), byte(125))
}
