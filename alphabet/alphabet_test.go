package alphabet

import (
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestDNACodes(t *testing.T) {
	a, err := New(DNA, false)
	assert.NoError(t, err)

	expect.EQ(t, a.Size, 4)
	expect.EQ(t, a.Encode['A'], byte(0))
	expect.EQ(t, a.Encode['C'], byte(1))
	expect.EQ(t, a.Encode['G'], byte(2))
	expect.EQ(t, a.Encode['T'], byte(3))

	// Lowercase twins sit above all uppercase letters.
	expect.True(t, a.Encode['a'] > a.Encode['Z'])
	expect.EQ(t, a.ToUppercase[a.Encode['a']], a.Encode['A'])
	expect.EQ(t, a.ToLowercase[a.Encode['A']], a.Encode['a'])

	// Whitespace and unknown bytes map to the delimiter.
	expect.EQ(t, a.Encode[' '], a.Delimiter)
	expect.EQ(t, a.Encode['8'], a.Delimiter)
	expect.True(t, a.Delimiter < 64)

	// Ambiguity codes are improper letters, not delimiters.
	expect.True(t, a.Encode['N'] != a.Delimiter)
}

func TestComplement(t *testing.T) {
	a, err := New(DNA, false)
	assert.NoError(t, err)
	expect.EQ(t, a.Complement[a.Encode['A']], a.Encode['T'])
	expect.EQ(t, a.Complement[a.Encode['C']], a.Encode['G'])
	expect.EQ(t, a.Complement[a.Encode['g']], a.Encode['c'])
	expect.EQ(t, a.Complement[a.Encode['N']], a.Encode['N'])
	expect.EQ(t, a.Complement[a.Encode['R']], a.Encode['Y'])
	expect.EQ(t, a.Complement[a.Delimiter], a.Delimiter)
}

func TestTrRoundTrip(t *testing.T) {
	a, err := New(DNA, false)
	assert.NoError(t, err)
	buf := []byte("ACGTacgtN ")
	a.Tr(buf, true)
	out := a.RT(nil, buf)
	expect.EQ(t, string(out), "ACGTacgtN ")

	buf = []byte("acgt")
	a.Tr(buf, false)
	out = a.RT(nil, buf)
	expect.EQ(t, string(out), "ACGT")
}

func TestRC(t *testing.T) {
	a, err := New(DNA, false)
	assert.NoError(t, err)
	buf := []byte("AACG")
	a.Tr(buf, true)
	a.RC(buf)
	expect.EQ(t, string(a.RT(nil, buf)), "CGTT")
}

func TestProtein(t *testing.T) {
	a, err := New(Protein, false)
	assert.NoError(t, err)
	expect.EQ(t, a.Size, 20)
	expect.True(t, a.IsProtein())
	expect.EQ(t, a.Encode['A'], byte(0))
	expect.EQ(t, a.Encode['C'], byte(1))
	expect.EQ(t, a.Encode['Y'], byte(19))
	expect.True(t, a.Encode['*'] != a.Delimiter) // stops are improper letters
}

func TestCount(t *testing.T) {
	a, err := New(DNA, false)
	assert.NoError(t, err)
	buf := []byte("ACGTacgNN ")
	a.Tr(buf, true)
	counts := make([]uint64, a.Size)
	a.Count(buf, counts)
	expect.EQ(t, counts, []uint64{2, 2, 2, 1})
	expect.EQ(t, a.CountNormalLetters(buf), uint64(7))
}

func TestTranslate(t *testing.T) {
	protein, err := New(Protein, false)
	assert.NoError(t, err)
	dna, err := New(DNA, false)
	assert.NoError(t, err)
	gc := MustStandardGeneticCode()
	gc.Init(protein, dna)

	src := []byte("ATGAAATTT")
	dna.Tr(src, true)
	dst := make([]byte, len(src))
	gc.Translate(dst, src)

	// Frame 0 occupies the first third.
	frame0 := protein.RT(nil, dst[0:3])
	expect.EQ(t, string(frame0), "MKF")

	// A codon with an ambiguous base translates to X.
	src = []byte("ATNAAAAAA")
	dna.Tr(src, true)
	gc.Translate(dst[:9], src)
	expect.EQ(t, dst[0], protein.Encode['X'])
}
