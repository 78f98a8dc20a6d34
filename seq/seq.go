// Package seq holds batches of sequences, concatenated into one byte
// buffer with delimiter padding between them, together with their names
// and optional per-base qualities or a position-specific score matrix.
//
// The final sequence may be "unfinished": that happens when the batch hits
// its memory limit before the whole record has been read.  Callers scan
// the finished part, then call ReinitForAppending, which keeps the
// unfinished tail for the next batch.
package seq

import (
	"fmt"

	"github.com/grailbio/last/scoring"
)

// MultiSequence is a batch of concatenated sequences.
type MultiSequence struct {
	// Seq is the concatenated sequence data, with padSize delimiter bytes
	// before the first sequence and after every sequence.  Appenders store
	// raw letters; the caller encodes the new region in place afterwards.
	Seq []byte
	// ends[i] is the start of sequence i (the end of the pad before it);
	// ends[i+1] is the end of its trailing pad.
	ends []uint64
	// names is the concatenated sequence names.
	names []byte
	// Sequence i's name is names[nameEnds[i]:nameEnds[i+1]].
	nameEnds []uint64

	// Quals holds qualsPerLetter ASCII quality codes per sequence letter,
	// or nil.
	Quals          []byte
	qualsPerLetter int

	// Pssm holds one scoring row per sequence letter, or nil.
	Pssm []int32

	padSize int
	// unnamedCount numbers sequences read from formats without names.
	unnamedCount int
}

// PadByte is the raw byte used for delimiter pads.  Alphabet.Tr encodes it
// to the delimiter code.
const PadByte = ' '

// NewForAppending returns a batch ready for appending, with padSize
// delimiter bytes between sequences (3 for translated alignment, else 1).
func NewForAppending(padSize int) *MultiSequence {
	m := &MultiSequence{padSize: padSize}
	for i := 0; i < padSize; i++ {
		m.Seq = append(m.Seq, PadByte)
	}
	m.ends = append(m.ends, uint64(len(m.Seq)))
	m.nameEnds = append(m.nameEnds, 0)
	return m
}

// ReinitForAppending drops all finished sequences but keeps an unfinished
// tail, ready to continue reading into the next batch.
func (m *MultiSequence) ReinitForAppending() {
	finishedPad := m.ends[len(m.ends)-1]
	m.Seq = append(m.Seq[:0:0], m.Seq[finishedPad-uint64(m.padSize):]...)
	if !m.IsFinished() {
		lastName := m.nameEnds[len(m.nameEnds)-2]
		m.names = append(m.names[:0:0], m.names[lastName:]...)
		m.nameEnds = []uint64{0, uint64(len(m.names))}
	} else {
		m.names = m.names[:0]
		m.nameEnds = []uint64{0}
	}
	m.ends = []uint64{uint64(m.padSize)}
	if m.Quals != nil {
		q := (finishedPad - uint64(m.padSize)) * uint64(m.qualsPerLetter)
		m.Quals = append(m.Quals[:0:0], m.Quals[q:]...)
	}
	m.Pssm = nil
}

// IsFinished reports whether the last sequence was fully read.
func (m *MultiSequence) IsFinished() bool {
	return len(m.ends) == len(m.nameEnds)
}

// FinishedSequences returns the number of fully-read sequences.
func (m *MultiSequence) FinishedSequences() int { return len(m.ends) - 1 }

// FinishedSize is the length of the finished part of Seq, pads included.
func (m *MultiSequence) FinishedSize() uint64 { return m.ends[len(m.ends)-1] }

// UnfinishedSize is the total length of Seq, unfinished tail included.
func (m *MultiSequence) UnfinishedSize() uint64 { return uint64(len(m.Seq)) }

// PadSize returns the delimiter pad width.
func (m *MultiSequence) PadSize() int { return m.padSize }

// QualsPerLetter returns how many quality codes there are per letter: 0 if
// none, 1 for FASTQ, alphabet-size for PRB.
func (m *MultiSequence) QualsPerLetter() int { return m.qualsPerLetter }

// SeqBeg returns the start of sequence i in Seq.
func (m *MultiSequence) SeqBeg(i int) uint64 { return m.ends[i] }

// SeqEnd returns the end of sequence i in Seq (start of its trailing pad).
func (m *MultiSequence) SeqEnd(i int) uint64 {
	return m.ends[i+1] - uint64(m.padSize)
}

// PadEnd returns the end of sequence i's trailing pad.
func (m *MultiSequence) PadEnd(i int) uint64 { return m.ends[i+1] }

// SeqLen returns the length of sequence i.
func (m *MultiSequence) SeqLen(i int) uint64 { return m.SeqEnd(i) - m.SeqBeg(i) }

// SeqName returns the name of sequence i.
func (m *MultiSequence) SeqName(i int) string {
	return string(m.names[m.nameEnds[i]:m.nameEnds[i+1]])
}

// WhichSequence returns the index of the sequence containing the
// coordinate.
func (m *MultiSequence) WhichSequence(coordinate uint64) int {
	lo, hi := 0, len(m.ends)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if m.ends[mid] <= coordinate {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}

func (m *MultiSequence) addName(name string) {
	if name == "" {
		m.unnamedCount++
		name = fmt.Sprint(m.unnamedCount)
	}
	m.names = append(m.names, name...)
	m.nameEnds = append(m.nameEnds, uint64(len(m.names)))
}

func (m *MultiSequence) finish() {
	for i := 0; i < m.padSize; i++ {
		m.Seq = append(m.Seq, PadByte)
	}
	m.ends = append(m.ends, uint64(len(m.Seq)))
}

func (m *MultiSequence) isRoomToAppendPad(maxSeqLen uint64) bool {
	return uint64(len(m.Seq))+uint64(m.padSize) <= maxSeqLen
}

func (m *MultiSequence) appendQualPad() {
	// A valid but never-used value.
	const padQual = 64
	for i := 0; i < m.padSize*m.qualsPerLetter; i++ {
		m.Quals = append(m.Quals, padQual)
	}
}

// ReverseComplement reverse-complements the finished sequence data in
// place, reversing any quality data with it.  complement maps codes to
// their complements; the data must already be encoded.
func (m *MultiSequence) ReverseComplement(complement *[256]byte) {
	buf := m.Seq[:m.FinishedSize()]
	i, j := 0, len(buf)-1
	for i < j {
		buf[i], buf[j] = complement[buf[j]], complement[buf[i]]
		i++
		j--
	}
	if i == j {
		buf[i] = complement[buf[i]]
	}
	if m.Quals != nil {
		q := m.Quals[:m.FinishedSize()*uint64(m.qualsPerLetter)]
		for i, j := 0, len(q)-1; i < j; i, j = i+1, j-1 {
			q[i], q[j] = q[j], q[i]
		}
	}
}

// ResizePssm makes Pssm cover the finished sequence data, reusing old
// capacity.
func (m *MultiSequence) ResizePssm() {
	n := int(m.FinishedSize()) * scoring.RowSize
	if cap(m.Pssm) < n {
		m.Pssm = make([]int32, n)
	}
	m.Pssm = m.Pssm[:n]
}

// ReverseComplementPssm rewrites the PSSM for the reverse-complemented
// query: rows are reversed and their columns permuted by the complement
// map.
func (m *MultiSequence) ReverseComplementPssm(complement *[256]byte) {
	n := int(m.FinishedSize())
	for beg, end := 0, n-1; beg <= end; beg, end = beg+1, end-1 {
		b := m.Pssm[beg*scoring.RowSize : (beg+1)*scoring.RowSize]
		e := m.Pssm[end*scoring.RowSize : (end+1)*scoring.RowSize]
		for i := 0; i < scoring.RowSize; i++ {
			j := int(complement[i])
			if j >= scoring.RowSize {
				continue
			}
			if beg < end || i < j {
				b[i], e[j] = e[j], b[i]
			}
		}
	}
}
