package align

import (
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/last/scoring"
)

func TestForwardBackwardAgree(t *testing.T) {
	a, sc, m := dnaScorer(t, 2, 2)
	bufs := encodeAll(a, " AAATTTGGGCCC ", " AAAGGGCCC ")
	text, query := bufs[0], bufs[1]
	gap := scoring.Affine(3, 1)

	var g GappedXdropAligner
	g.Align(text, query, 4, 4, true, 0, sc, a.Delimiter, gap, 10, m.MaxScore)

	c := NewCentroid(&g)
	c.SetScoreMatrix(sc.Rows, 1.0)
	zf := c.Forward(text, query, 4, 4, true, 0, a.Delimiter, gap)
	zb := c.Backward(text, query, 4, 4, true, 0, a.Delimiter, gap)

	// The forward and backward partition functions agree (within floating
	// tolerance).
	require.InDelta(t, zf, zb, 1e-9)
}

func TestCentroidDecoding(t *testing.T) {
	a, sc, m := dnaScorer(t, 1, 1)
	bufs := encodeAll(a, " ACGTACGT ", " ACGTACGT ")
	text, query := bufs[0], bufs[1]
	gap := scoring.Affine(3, 1)

	var g GappedXdropAligner
	g.Align(text, query, 1, 1, true, 0, sc, a.Delimiter, gap, 10, m.MaxScore)

	c := NewCentroid(&g)
	c.SetScoreMatrix(sc.Rows, 1.0)
	c.Forward(text, query, 1, 1, true, 0, a.Delimiter, gap)
	c.Backward(text, query, 1, 1, true, 0, a.Delimiter, gap)

	best := c.Dp(1.0, 5)
	expect.True(t, best > 0)

	var chunks []SegmentPair
	c.Traceback(&chunks, 1.0, 5)
	assert.True(t, len(chunks) > 0)
	var total uint64
	for _, ch := range chunks {
		total += ch.Size
		// Every decoded column has a sensible posterior probability.
		for n := uint64(0); n < ch.Size; n++ {
			p := c.ChunkProbability(ch.End1()-n, ch.End2()-n)
			expect.True(t, p >= 0 && p <= 1.0000001, "p=%g", p)
		}
	}
	expect.True(t, total >= 6) // most of the 8 forward matches decode

	var codes []byte
	c.ColumnAmbiguities(&codes, chunks, true)
	assert.EQ(t, len(codes) >= int(total), true)
	for _, code := range codes {
		expect.True(t, code >= 33 && code <= 125)
	}
}

func TestAmaDecoding(t *testing.T) {
	a, sc, m := dnaScorer(t, 1, 1)
	bufs := encodeAll(a, " ACGTACGT ", " ACGTACGT ")
	text, query := bufs[0], bufs[1]
	gap := scoring.Affine(3, 1)

	var g GappedXdropAligner
	g.Align(text, query, 1, 1, true, 0, sc, a.Delimiter, gap, 10, m.MaxScore)

	c := NewCentroid(&g)
	c.SetScoreMatrix(sc.Rows, 1.0)
	c.Forward(text, query, 1, 1, true, 0, a.Delimiter, gap)
	c.Backward(text, query, 1, 1, true, 0, a.Delimiter, gap)

	best := c.Dp(1.0, 6)
	expect.True(t, best > 0)
	var chunks []SegmentPair
	c.Traceback(&chunks, 1.0, 6)
	expect.True(t, len(chunks) > 0)
}

func TestExpectedCounts(t *testing.T) {
	a, sc, m := dnaScorer(t, 1, 1)
	bufs := encodeAll(a, " ACGTACGT ", " ACGTACGT ")
	text, query := bufs[0], bufs[1]
	gap := scoring.Affine(3, 1)

	var g GappedXdropAligner
	g.Align(text, query, 1, 1, true, 0, sc, a.Delimiter, gap, 10, m.MaxScore)

	c := NewCentroid(&g)
	c.SetScoreMatrix(sc.Rows, 1.0)
	c.Forward(text, query, 1, 1, true, 0, a.Delimiter, gap)
	c.Backward(text, query, 1, 1, true, 0, a.Delimiter, gap)

	var counts ExpectedCounts
	c.ComputeExpectedCounts(text, query, 1, 1, true, gap, &counts)
	// Matches dominate a perfect alignment.
	expect.True(t, counts.MM > 0)
	expect.True(t, counts.Emit[a.Encode['A']][a.Encode['A']] > 0)
}

func TestMakeXdropWithProbabilities(t *testing.T) {
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
		MaxDrop:       10,
		MaxMatchScore: m.MaxScore,
		OutputType:    5,
		Gamma:         1,
		Temperature:   1,
	}
	aln.MakeXdrop(&g, c, text, query, opts)

	expect.True(t, aln.Score > 0)
	expect.True(t, len(aln.Blocks) > 0)
	// One ambiguity code per alignment column.
	var columns uint64
	for i, b := range aln.Blocks {
		columns += b.Size
		if i > 0 {
			columns += b.Beg1() - aln.Blocks[i-1].End1()
			columns += b.Beg2() - aln.Blocks[i-1].End2()
		}
	}
	expect.EQ(t, uint64(len(aln.ColumnAmbiguities)), columns)
}
