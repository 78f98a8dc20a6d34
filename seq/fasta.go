package seq

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ErrBatchFull is returned by the record-at-a-time appenders when the next
// record would not fit in the current batch.  Nothing is consumed from the
// reader; scan the batch, ReinitForAppending, and retry.
var ErrBatchFull = fmt.Errorf("seq: batch is full")

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func firstWord(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func skipSpace(r *bufio.Reader) error {
	for {
		c, err := r.ReadByte()
		if err != nil {
			return err
		}
		if !isSpace(c) {
			return r.UnreadByte()
		}
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	return strings.TrimRight(line, "\r\n"), err
}

// AppendFromFasta appends the next FASTA record, or continues an
// unfinished one.  It stops early, leaving the record unfinished, when the
// concatenated data would exceed maxSeqLen.  It returns io.EOF once the
// input is exhausted.
func (m *MultiSequence) AppendFromFasta(r *bufio.Reader, maxSeqLen uint64) error {
	if m.IsFinished() {
		if err := skipSpace(r); err != nil {
			return err
		}
		c, err := r.ReadByte()
		if err != nil {
			return err
		}
		if c != '>' {
			return fmt.Errorf("seq: bad FASTA data: expected '>', got %q", c)
		}
		header, err := readLine(r)
		if err != nil && err != io.EOF {
			return err
		}
		m.addName(firstWord(header))
	}

	for uint64(len(m.Seq)) < maxSeqLen {
		c, err := r.ReadByte()
		if err == io.EOF {
			if m.isRoomToAppendPad(maxSeqLen) {
				m.finish()
			}
			return nil
		}
		if err != nil {
			return err
		}
		if c == '>' {
			if err := r.UnreadByte(); err != nil {
				return err
			}
			if m.isRoomToAppendPad(maxSeqLen) {
				m.finish()
			}
			return nil
		}
		if isSpace(c) {
			continue
		}
		m.Seq = append(m.Seq, c)
	}
	return nil
}

// AppendFromFastq appends one FASTQ record.  If isKeepQuals, the quality
// line is stored (one code per letter).  Record boundaries are never
// split: ErrBatchFull is returned, with nothing consumed, when the batch
// already holds data and the next record might not fit.
func (m *MultiSequence) AppendFromFastq(r *bufio.Reader, maxSeqLen uint64,
	isKeepQuals bool) error {
	if m.FinishedSequences() > 0 && uint64(len(m.Seq))+uint64(m.padSize) >= maxSeqLen {
		return ErrBatchFull
	}
	if err := skipSpace(r); err != nil {
		return err
	}
	header, err := readLine(r)
	if err != nil {
		return err
	}
	if len(header) == 0 || header[0] != '@' {
		return fmt.Errorf("seq: bad FASTQ data: expected '@', got %q", header)
	}
	m.addName(firstWord(header[1:]))

	letters, err := readLine(r)
	if err != nil {
		return err
	}
	letters = strings.Join(strings.Fields(letters), "")

	plus, err := readLine(r)
	if err != nil {
		return err
	}
	if len(plus) == 0 || plus[0] != '+' {
		return fmt.Errorf("seq: bad FASTQ data: expected '+', got %q", plus)
	}

	quals, err := readLine(r)
	if err != nil && err != io.EOF {
		return err
	}
	quals = strings.Join(strings.Fields(quals), "")
	if len(quals) != len(letters) {
		return fmt.Errorf("seq: bad FASTQ data: length mismatch for %s", m.SeqName(m.FinishedSequences()))
	}

	m.Seq = append(m.Seq, letters...)
	if isKeepQuals {
		m.qualsPerLetter = 1
		// Backfill pad positions (the leading pad, at least) so Quals stays
		// parallel to Seq.
		for len(m.Quals) < len(m.Seq)-len(letters) {
			m.Quals = append(m.Quals, 64)
		}
		m.Quals = append(m.Quals, quals...)
		m.appendQualPad()
	}
	m.finish()
	return nil
}

// CheckQualityCodes verifies that every quality code decodes to a
// non-negative value under the given ASCII offset.
func CheckQualityCodes(quals []byte, offset int) error {
	for _, q := range quals {
		if int(q) < offset {
			return fmt.Errorf("seq: quality value too low: %q", q)
		}
	}
	return nil
}
