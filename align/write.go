package align

import (
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/tsv"

	"github.com/grailbio/last/alphabet"
	"github.com/grailbio/last/seq"
)

// Output formats.
const (
	FormatTab = 0
	FormatMaf = 1
)

// Writer formats alignments.  For '-' strand matches, coordinates in the
// reverse complement of the query are used (the query buffer itself is
// reverse-complemented between strands).
type Writer struct {
	Format       int
	IsTranslated bool
	// Alph decodes the reference; QueryAlph (nil means Alph) decodes the
	// query, which differs in translated mode.
	Alph      *alphabet.Alphabet
	QueryAlph *alphabet.Alphabet
}

func (w *Writer) queryAlph() *alphabet.Alphabet {
	if w.QueryAlph != nil {
		return w.QueryAlph
	}
	return w.Alph
}

// Write writes one alignment between the reference text and the query.
func (w *Writer) Write(out io.Writer, a *Alignment,
	text, query *seq.MultiSequence, strand byte) error {
	if w.Format == FormatTab {
		return w.writeTab(out, a, text, query, strand)
	}
	return w.writeMaf(out, a, text, query, strand)
}

// coords2 resolves the query-side sequence and its strand-adjusted start.
func coords2(a *Alignment, query *seq.MultiSequence, strand byte) (which int, seqStart uint64) {
	size2 := query.FinishedSize()
	if strand == '+' {
		which = query.WhichSequence(a.Beg2())
		return which, query.SeqBeg(which)
	}
	which = query.WhichSequence(size2 - a.Beg2() - 1)
	return which, size2 - query.SeqEnd(which)
}

func (w *Writer) writeTab(out io.Writer, a *Alignment,
	text, query *seq.MultiSequence, strand byte) error {
	w1 := text.WhichSequence(a.Beg1())
	seqStart1 := text.SeqBeg(w1)
	w2, seqStart2 := coords2(a, query, strand)

	tw := tsv.NewWriter(out)
	tw.WriteString(fmt.Sprint(a.Score))
	tw.WriteString(text.SeqName(w1))
	tw.WriteString(fmt.Sprint(a.Beg1() - seqStart1))
	tw.WriteString(fmt.Sprint(a.End1() - a.Beg1()))
	tw.WriteByte('+')
	tw.WriteString(fmt.Sprint(text.SeqLen(w1)))
	tw.WriteString(query.SeqName(w2))
	tw.WriteString(fmt.Sprint(a.Beg2() - seqStart2))
	tw.WriteString(fmt.Sprint(a.End2() - a.Beg2()))
	tw.WriteByte(strand)
	tw.WriteString(fmt.Sprint(query.SeqLen(w2)))

	var blocks strings.Builder
	for i := range a.Blocks {
		if i > 0 {
			prev := &a.Blocks[i-1]
			cur := &a.Blocks[i]
			fmt.Fprintf(&blocks, "%d:%d,", cur.Beg1()-prev.End1(),
				cur.Beg2()-(prev.Start2+a.width2(prev.Size)))
		}
		fmt.Fprintf(&blocks, "%d", a.Blocks[i].Size)
		if i+1 < len(a.Blocks) {
			blocks.WriteByte(',')
		}
	}
	tw.WriteString(blocks.String())
	tw.EndLine()
	return tw.Flush()
}

// topString renders the reference rows of the alignment, with '-' gap
// fill for insertions.
func (w *Writer) topString(a *Alignment, text *seq.MultiSequence) string {
	var b []byte
	for i := range a.Blocks {
		if i > 0 {
			prev := &a.Blocks[i-1]
			cur := &a.Blocks[i]
			b = w.Alph.RT(b, text.Seq[prev.End1():cur.Beg1()])
			for n := prev.Start2 + a.width2(prev.Size); n < cur.Beg2(); n++ {
				b = append(b, '-')
			}
		}
		blk := &a.Blocks[i]
		b = w.Alph.RT(b, text.Seq[blk.Beg1():blk.End1()])
	}
	return string(b)
}

func (w *Writer) botString(a *Alignment, query *seq.MultiSequence) string {
	var b []byte
	for i := range a.Blocks {
		if i > 0 {
			prev := &a.Blocks[i-1]
			cur := &a.Blocks[i]
			for n := prev.End1(); n < cur.Beg1(); n++ {
				b = append(b, '-')
			}
			b = w.queryAlph().RT(b, query.Seq[prev.Start2+a.width2(prev.Size):cur.Beg2()])
		}
		blk := &a.Blocks[i]
		b = w.queryAlph().RT(b, query.Seq[blk.Beg2():blk.Start2+a.width2(blk.Size)])
	}
	return string(b)
}

func (w *Writer) qualityString(a *Alignment, query *seq.MultiSequence) string {
	quals := query.Quals
	qpl := query.QualsPerLetter()
	var b []byte
	appendBlock := func(beg, end uint64) {
		for i := beg; i < end; i++ {
			q := quals[i*uint64(qpl) : (i+1)*uint64(qpl)]
			best := q[0]
			for _, x := range q[1:] {
				if x > best {
					best = x
				}
			}
			b = append(b, best)
		}
	}
	for i := range a.Blocks {
		if i > 0 {
			prev := &a.Blocks[i-1]
			cur := &a.Blocks[i]
			for n := prev.End1(); n < cur.Beg1(); n++ {
				b = append(b, '-')
			}
			appendBlock(prev.Start2+a.width2(prev.Size), cur.Beg2())
		}
		blk := &a.Blocks[i]
		appendBlock(blk.Beg2(), blk.Start2+a.width2(blk.Size))
	}
	return string(b)
}

func (w *Writer) writeMaf(out io.Writer, a *Alignment,
	text, query *seq.MultiSequence, strand byte) error {
	w1 := text.WhichSequence(a.Beg1())
	seqStart1 := text.SeqBeg(w1)
	w2, seqStart2 := coords2(a, query, strand)

	n1 := text.SeqName(w1)
	n2 := query.SeqName(w2)
	b1 := fmt.Sprint(a.Beg1() - seqStart1)
	b2 := fmt.Sprint(a.Beg2() - seqStart2)
	r1 := fmt.Sprint(a.End1() - a.Beg1())
	r2 := fmt.Sprint(a.End2() - a.Beg2())
	s1 := fmt.Sprint(text.SeqLen(w1))
	s2 := fmt.Sprint(query.SeqLen(w2))

	nw := maxLen(n1, n2)
	bw := maxLen(b1, b2)
	rw := maxLen(r1, r2)
	sw := maxLen(s1, s2)

	if _, err := fmt.Fprintf(out, "a score=%d\n", a.Score); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "s %-*s %*s %*s + %*s %s\n",
		nw, n1, bw, b1, rw, r1, sw, s1, w.topString(a, text)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "s %-*s %*s %*s %c %*s %s\n",
		nw, n2, bw, b2, rw, r2, strand, sw, s2, w.botString(a, query)); err != nil {
		return err
	}
	if len(query.Quals) > 0 {
		if _, err := fmt.Fprintf(out, "q %-*s %*s %s\n",
			nw, n2, bw+rw+sw+4, "", w.qualityString(a, query)); err != nil {
			return err
		}
	}
	if len(a.ColumnAmbiguities) > 0 {
		if _, err := fmt.Fprintf(out, "p %-*s %*s %s\n",
			nw, "", bw+rw+sw+4, "", string(a.ColumnAmbiguities)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(out, "\n")
	return err
}

func maxLen(a, b string) int {
	if len(a) > len(b) {
		return len(a)
	}
	return len(b)
}
