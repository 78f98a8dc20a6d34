package align

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"

	"github.com/grailbio/last/alphabet"
	"github.com/grailbio/last/seq"
)

func readFasta(t *testing.T, a *alphabet.Alphabet, text string) *seq.MultiSequence {
	m := seq.NewForAppending(1)
	r := bufio.NewReader(strings.NewReader(text))
	for {
		err := m.AppendFromFasta(r, 1<<30)
		if err == io.EOF {
			break
		}
		assert.NoError(t, err)
	}
	a.Tr(m.Seq, true)
	return m
}

func TestWriteTab(t *testing.T) {
	a, _, _ := dnaScorer(t, 1, 1)
	text := readFasta(t, a, ">ref\nAAATTTGGGCCC\n")
	query := readFasta(t, a, ">qry\nAAAGGGCCC\n")

	var aln Alignment
	aln.Blocks = []SegmentPair{
		{Start1: 1, Start2: 1, Size: 3},
		{Start1: 7, Start2: 4, Size: 6},
	}
	aln.Score = 12

	var out strings.Builder
	w := Writer{Format: FormatTab, Alph: a}
	assert.NoError(t, w.Write(&out, &aln, text, query, '+'))
	expect.EQ(t, out.String(),
		"12\tref\t0\t12\t+\t12\tqry\t0\t9\t+\t9\t3,3:0,6\n")
}

func TestWriteMaf(t *testing.T) {
	a, _, _ := dnaScorer(t, 1, 1)
	text := readFasta(t, a, ">ref\nAAATTTGGGCCC\n")
	query := readFasta(t, a, ">qry\nAAAGGGCCC\n")

	var aln Alignment
	aln.Blocks = []SegmentPair{
		{Start1: 1, Start2: 1, Size: 3},
		{Start1: 7, Start2: 4, Size: 6},
	}
	aln.Score = 12

	var out strings.Builder
	w := Writer{Format: FormatMaf, Alph: a}
	assert.NoError(t, w.Write(&out, &aln, text, query, '+'))
	lines := strings.Split(out.String(), "\n")
	expect.EQ(t, lines[0], "a score=12")
	expect.True(t, strings.HasPrefix(lines[1], "s ref"))
	expect.True(t, strings.HasSuffix(lines[1], "AAATTTGGGCCC"))
	expect.True(t, strings.HasPrefix(lines[2], "s qry"))
	expect.True(t, strings.HasSuffix(lines[2], "AAA---GGGCCC"))
}

func TestWriteMinusStrand(t *testing.T) {
	a, _, _ := dnaScorer(t, 1, 1)
	text := readFasta(t, a, ">ref\nAAAA\n")
	query := readFasta(t, a, ">q1\nCCAA\n>q2\nGGGG\n")
	// Reverse-complement the whole query batch, the way the aligner does
	// between strands.
	query.ReverseComplement(&a.Complement)

	// q1 reverse-complemented is TTGG; its TT aligns to ref AA.  In the
	// flipped buffer q1 occupies positions 6..10.
	var aln Alignment
	aln.Blocks = []SegmentPair{{Start1: 1, Start2: 6, Size: 2}}
	aln.Score = 2

	var out strings.Builder
	w := Writer{Format: FormatTab, Alph: a}
	assert.NoError(t, w.Write(&out, &aln, text, query, '-'))
	fields := strings.Split(strings.TrimSpace(out.String()), "\t")
	expect.EQ(t, fields[6], "q1")
	expect.EQ(t, fields[7], "0") // start in the reverse complement of q1
	expect.EQ(t, fields[9], "-")
	expect.EQ(t, fields[10], "4")
}
