package scoring

import (
	"math"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/last/alphabet"
)

func TestMatchMismatch(t *testing.T) {
	a, err := alphabet.New(alphabet.DNA, false)
	assert.NoError(t, err)
	m := MatchMismatch(1, 1, a.Letters)
	m.Init(a)

	expect.EQ(t, m.MaxScore, int32(1))
	expect.EQ(t, m.MinScore, int32(-1))
	expect.EQ(t, m.CaseInsensitive[a.Encode['A']][a.Encode['A']], int32(1))
	expect.EQ(t, m.CaseInsensitive[a.Encode['A']][a.Encode['C']], int32(-1))
	expect.EQ(t, m.CaseInsensitive[a.Encode['a']][a.Encode['A']], int32(1))
	// Soft-masked letters score badly but finitely in the case-sensitive
	// variant.
	expect.EQ(t, m.CaseSensitive[a.Encode['a']][a.Encode['A']], int32(-1))
	// Delimiters are impassable.
	expect.EQ(t, m.CaseInsensitive[a.Delimiter][a.Encode['A']], -Inf)
	expect.EQ(t, m.CaseInsensitive[a.Encode['A']][a.Delimiter], -Inf)
}

func TestParseMatrix(t *testing.T) {
	m := MustParse(`
# a comment
   A  C
A  2 -3
C -3  2
`)
	a, err := alphabet.New(alphabet.DNA, false)
	assert.NoError(t, err)
	m.Init(a)
	expect.EQ(t, m.CaseInsensitive[a.Encode['A']][a.Encode['C']], int32(-3))
	expect.EQ(t, m.MaxScore, int32(2))
	// Letters with no matrix entry get the worst defined score.
	expect.EQ(t, m.CaseInsensitive[a.Encode['G']][a.Encode['G']], int32(-3))
}

func TestBlosum62(t *testing.T) {
	a, err := alphabet.New(alphabet.Protein, false)
	assert.NoError(t, err)
	m := MustParse(Blosum62)
	m.Init(a)
	expect.EQ(t, m.CaseInsensitive[a.Encode['W']][a.Encode['W']], int32(11))
	expect.EQ(t, m.MaxScore, int32(11))
}

func TestLambda(t *testing.T) {
	// With match=1, mismatch=-1 and uniform abundances, the root of
	// (1/4)e^L + (3/4)e^-L = 1 is L = ln 3.
	m := MatchMismatch(1, 1, alphabet.DNA)
	lambda, err := Lambda(m, 4)
	assert.NoError(t, err)
	require.InDelta(t, math.Log(3), lambda, 1e-6)

	// An all-positive matrix has no lambda.
	bad := MatchMismatch(1, -1, alphabet.DNA) // "mismatch cost" -1 = +1 score
	_, err = Lambda(bad, 4)
	expect.NotNil(t, err)
}

func TestGapCosts(t *testing.T) {
	g := Affine(3, 1)
	expect.True(t, g.IsAffine())
	expect.EQ(t, g.Cost(3, 0), int32(6))
	expect.EQ(t, g.Cost(0, 2), int32(5))
	expect.EQ(t, g.Cost(2, 2), int32(10))

	gen := Generalized(3, 1, 2)
	expect.False(t, gen.IsAffine())
	expect.EQ(t, gen.Cost(2, 2), int32(7)) // one opening + 2 pairs
	expect.EQ(t, gen.Cost(3, 1), int32(3+2+2*1))
}

func TestGeneralizedScore(t *testing.T) {
	// A certain base keeps its score.
	expect.EQ(t, GeneralizedScore(5, 2.0, 1e-12, 0.25), int32(5))
	// A hopeless base decays toward the background.
	s := GeneralizedScore(5, 2.0, 0.75, 0.25)
	expect.True(t, s < 5)
}

func TestErrorProb(t *testing.T) {
	require.InDelta(t, 0.1, ErrorProb(10, true), 1e-12)
	require.InDelta(t, 0.5, ErrorProb(0, false), 1e-12)
}

func TestQualityPssm(t *testing.T) {
	a, err := alphabet.New(alphabet.DNA, false)
	assert.NoError(t, err)
	m := MatchMismatch(1, 1, a.Letters)
	m.Init(a)

	seq := []byte{a.Encode['A'], a.Delimiter}
	quals := []byte{'I' - 0, 'I'} // high sanger quality
	pssm := make([]int32, 2*RowSize)
	MakeQualityPssm(pssm, &m.CaseInsensitive, seq, quals, a.Delimiter,
		1/math.Log(3), SangerOffset, true, a.Size)

	// High quality: scores stay close to the plain matrix.
	expect.EQ(t, pssm[int(a.Encode['A'])], int32(1))
	// Delimiter positions are impassable rows.
	expect.EQ(t, pssm[RowSize+int(a.Encode['A'])], -Inf)
}
