package seq

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func readAllFasta(t *testing.T, text string, maxLen uint64) *MultiSequence {
	m := NewForAppending(1)
	r := bufio.NewReader(strings.NewReader(text))
	for {
		err := m.AppendFromFasta(r, maxLen)
		if err == io.EOF {
			break
		}
		assert.NoError(t, err)
	}
	return m
}

func TestFasta(t *testing.T) {
	m := readAllFasta(t, ">s1 extra words\nACGT\nACGT\n>s2\nGGTT\n", 1<<30)
	expect.EQ(t, m.FinishedSequences(), 2)
	expect.True(t, m.IsFinished())
	expect.EQ(t, m.SeqName(0), "s1")
	expect.EQ(t, m.SeqName(1), "s2")
	expect.EQ(t, m.SeqBeg(0), uint64(1))
	expect.EQ(t, m.SeqLen(0), uint64(8))
	expect.EQ(t, m.SeqLen(1), uint64(4))
	expect.EQ(t, string(m.Seq[m.SeqBeg(1):m.SeqEnd(1)]), "GGTT")
	expect.EQ(t, m.WhichSequence(m.SeqBeg(1)), 1)
	expect.EQ(t, m.WhichSequence(m.SeqBeg(0)), 0)
}

func TestFastaBatchLimit(t *testing.T) {
	m := NewForAppending(1)
	r := bufio.NewReader(strings.NewReader(">s1\nACGTACGTACGT\n"))
	// The limit cuts off mid-sequence: the record stays unfinished.
	err := m.AppendFromFasta(r, 6)
	assert.NoError(t, err)
	expect.False(t, m.IsFinished())
	expect.EQ(t, m.FinishedSequences(), 0)

	// Continuing with room finishes it.
	m.ReinitForAppending()
	err = m.AppendFromFasta(r, 1<<30)
	assert.NoError(t, err)
	expect.True(t, m.IsFinished())
	expect.EQ(t, m.FinishedSequences(), 1)
	expect.EQ(t, m.SeqLen(0), uint64(12))
	expect.EQ(t, m.SeqName(0), "s1")
}

func TestFastq(t *testing.T) {
	m := NewForAppending(1)
	r := bufio.NewReader(strings.NewReader("@r1\nACGT\n+\nIIII\n@r2\nTT\n+\n##\n"))
	assert.NoError(t, m.AppendFromFastq(r, 1<<30, true))
	assert.NoError(t, m.AppendFromFastq(r, 1<<30, true))
	expect.EQ(t, m.FinishedSequences(), 2)
	expect.EQ(t, m.QualsPerLetter(), 1)
	expect.EQ(t, string(m.Seq[m.SeqBeg(0):m.SeqEnd(0)]), "ACGT")
	expect.EQ(t, string(m.Quals[m.SeqBeg(0):m.SeqEnd(0)]), "IIII")
	expect.EQ(t, string(m.Quals[m.SeqBeg(1):m.SeqEnd(1)]), "##")
}

func TestFastqBatchFull(t *testing.T) {
	m := NewForAppending(1)
	r := bufio.NewReader(strings.NewReader("@r1\nACGT\n+\nIIII\n@r2\nTT\n+\n##\n"))
	assert.NoError(t, m.AppendFromFastq(r, 4, true))
	err := m.AppendFromFastq(r, 4, true)
	expect.EQ(t, err, ErrBatchFull)
	// Nothing was consumed: the next read still sees r2.
	m.ReinitForAppending()
	assert.NoError(t, m.AppendFromFastq(r, 1<<30, true))
	expect.EQ(t, m.SeqName(0), "r2")
}

func TestPrb(t *testing.T) {
	m := NewForAppending(1)
	r := bufio.NewReader(strings.NewReader("-40 -40 40 -40  40 -40 -40 -40\n"))
	decode := [256]byte{0: 'A', 1: 'C', 2: 'G', 3: 'T'}
	assert.NoError(t, m.AppendFromPrb(r, 1<<30, 4, &decode))
	expect.EQ(t, m.FinishedSequences(), 1)
	expect.EQ(t, m.QualsPerLetter(), 4)
	expect.EQ(t, string(m.Seq[m.SeqBeg(0):m.SeqEnd(0)]), "GA")
	expect.EQ(t, m.SeqName(0), "1") // anonymous sequences get counted names
}

func TestPssm(t *testing.T) {
	m := NewForAppending(1)
	var encode [256]byte
	for i := range encode {
		encode[i] = 52 // delimiter-ish
	}
	encode['A'], encode['C'], encode['G'], encode['T'] = 0, 1, 2, 3
	encode['a'], encode['c'], encode['g'], encode['t'] = 27, 28, 29, 30
	r := bufio.NewReader(strings.NewReader(`
     A   C   G   T
 1 A  2  -1  -1  -1
 2 G -1  -1   3  -1
`))
	assert.NoError(t, m.AppendFromPssm(r, 1<<30, &encode, false))
	expect.EQ(t, m.FinishedSequences(), 1)
	expect.EQ(t, string(m.Seq[m.SeqBeg(0):m.SeqEnd(0)]), "AG")
	beg := int(m.SeqBeg(0))
	expect.EQ(t, m.Pssm[beg*64+0], int32(2))
	expect.EQ(t, m.Pssm[beg*64+2], int32(-1))
	expect.EQ(t, m.Pssm[(beg+1)*64+2], int32(3))
}

func TestReverseComplement(t *testing.T) {
	m := readAllFasta(t, ">s1\nAACG\n", 1<<30)
	var complement [256]byte
	for i := range complement {
		complement[i] = byte(i)
	}
	complement['A'], complement['C'], complement['G'], complement['T'] = 'T', 'G', 'C', 'A'
	m.ReverseComplement(&complement)
	expect.EQ(t, string(m.Seq[m.SeqBeg(0):m.SeqEnd(0)]), "CGTT")
}

func TestToFromFiles(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	m := readAllFasta(t, ">s1\nACGT\n>s2\nGG\n", 1<<30)
	base := tempDir + "/db"
	assert.NoError(t, m.ToFiles(base))

	back, err := FromFiles(base, 2, 1)
	assert.NoError(t, err)
	expect.EQ(t, back.FinishedSequences(), 2)
	expect.EQ(t, back.SeqName(1), "s2")
	expect.EQ(t, string(back.Seq[back.SeqBeg(0):back.SeqEnd(0)]), "ACGT")
	expect.EQ(t, back.FinishedSize(), m.FinishedSize())
}
