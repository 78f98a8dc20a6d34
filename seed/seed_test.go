package seed

import (
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"

	"github.com/grailbio/last/alphabet"
)

func dnaAlphabet(t *testing.T) *alphabet.Alphabet {
	a, err := alphabet.New(alphabet.DNA, false)
	assert.NoError(t, err)
	return a
}

func TestFromString(t *testing.T) {
	a := dnaAlphabet(t)
	s, err := FromString("A C G T", false, a)
	assert.NoError(t, err)
	expect.EQ(t, s.Span(), 1)
	expect.EQ(t, s.RestrictedSubsetCount(0), 4)

	m := s.Map(0)
	expect.EQ(t, m[a.Encode['A']], byte(0))
	expect.EQ(t, m[a.Encode['C']], byte(1))
	expect.EQ(t, m[a.Encode['G']], byte(2))
	expect.EQ(t, m[a.Encode['T']], byte(3))
	expect.EQ(t, m[a.Encode['a']], byte(0)) // lowercase joins its subset
	expect.EQ(t, m[a.Encode['N']], byte(Delimiter))
	expect.EQ(t, m[a.Delimiter], byte(Delimiter))
}

func TestMaskLowercase(t *testing.T) {
	a := dnaAlphabet(t)
	s, err := FromString("A C G T", true, a)
	assert.NoError(t, err)
	expect.EQ(t, s.Map(0)[a.Encode['a']], byte(Delimiter))
}

func TestRepeatedSymbol(t *testing.T) {
	a := dnaAlphabet(t)
	_, err := FromString("AC CA", false, a)
	expect.NotNil(t, err)
}

func TestFromCode(t *testing.T) {
	a := dnaAlphabet(t)
	s, err := FromCode("1T0", false, a)
	assert.NoError(t, err)
	expect.EQ(t, s.Span(), 3)
	expect.EQ(t, s.RestrictedSubsetCount(0), 4)
	expect.EQ(t, s.RestrictedSubsetCount(1), 2)
	expect.EQ(t, s.RestrictedSubsetCount(2), 1)

	transitions := s.Map(1)
	expect.EQ(t, transitions[a.Encode['A']], transitions[a.Encode['G']])
	expect.EQ(t, transitions[a.Encode['C']], transitions[a.Encode['T']])
	expect.True(t, transitions[a.Encode['A']] != transitions[a.Encode['C']])

	_, err = FromCode("12", false, a)
	expect.NotNil(t, err)
}

func TestYassSeed(t *testing.T) {
	a := dnaAlphabet(t)
	s, err := FromString(YassSeed, false, a)
	assert.NoError(t, err)
	expect.EQ(t, s.Span(), 12)
}

func TestCyclicMaps(t *testing.T) {
	a := dnaAlphabet(t)
	s, err := FromCode("1T", false, a)
	assert.NoError(t, err)
	p := s.FirstMap()
	expect.EQ(t, p, 0)
	p = s.NextMap(p)
	expect.EQ(t, p, 1)
	p = s.NextMap(p)
	expect.EQ(t, p, 0) // wraps
	expect.EQ(t, s.PrevMap(0), 1)
}

func TestIsLess(t *testing.T) {
	a := dnaAlphabet(t)
	s, err := FromString("A C G T", false, a)
	assert.NoError(t, err)

	enc := func(txt string) []byte {
		b := []byte(txt)
		a.Tr(b, true)
		return b
	}
	expect.True(t, s.IsLess(enc("AC "), enc("AG "), 0))
	expect.False(t, s.IsLess(enc("AG "), enc("AC "), 0))
	expect.False(t, s.IsLess(enc("AC "), enc("AC "), 0)) // equal up to delimiter
}

func TestWordsFinder(t *testing.T) {
	a := dnaAlphabet(t)
	s, err := FromString("A C G T", false, a)
	assert.NoError(t, err)

	f, err := NewWordsFinder([]*Seed{s}, 0)
	assert.NoError(t, err)
	text := enc(t, a, " ACGT ")
	expect.EQ(t, f.Find(text, 1, &a.ToUppercase), uint32(0))

	f2, err := NewWordsFinder([]*Seed{s}, 2)
	assert.NoError(t, err)
	// Word length 2: position 1 starts "AC", a valid word of seed 0.
	expect.EQ(t, f2.Find(text, 1, &a.ToUppercase), uint32(0))
	// The final position has a delimiter inside its word.
	expect.EQ(t, f2.Find(text, 4, &a.ToUppercase), NoWord)
}

func enc(t *testing.T, a *alphabet.Alphabet, txt string) []byte {
	b := []byte(txt)
	a.Tr(b, true)
	return b
}
