package seq

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/last/scoring"
)

// AppendFromPssm appends one PSSM record in PSI-BLAST ASCII format: a
// header line of column letters, then one line per position holding the
// position number, the consensus letter, and one score per column.  The
// record's PSSM rows are stored parallel to Seq, with -Inf rows at pad
// positions.  The record ends at a blank line or EOF.
func (m *MultiSequence) AppendFromPssm(r *bufio.Reader, maxSeqLen uint64,
	encode *[256]byte, isMaskLowercase bool) error {
	if m.FinishedSequences() > 0 && uint64(len(m.Seq))+uint64(m.padSize) >= maxSeqLen {
		return ErrBatchFull
	}
	if err := skipSpace(r); err != nil {
		return err
	}

	var columnLetters []byte
	started := false
	m.addName("")

	m.growPssmToSeq()

	for {
		line, err := readLine(r)
		if err == io.EOF && !started {
			return err
		}
		if err != nil && err != io.EOF {
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			if started {
				break
			}
			if err == io.EOF {
				return io.EOF
			}
			continue
		}
		if columnLetters == nil {
			// The header: single-letter column labels only.
			for _, f := range fields {
				if len(f) != 1 {
					return fmt.Errorf("seq: bad PSSM header %q", line)
				}
				columnLetters = append(columnLetters, f[0])
			}
			continue
		}
		if len(fields) < 2+len(columnLetters) {
			return fmt.Errorf("seq: bad PSSM line %q", line)
		}
		letter := fields[1]
		if len(letter) != 1 {
			return fmt.Errorf("seq: bad PSSM letter %q", letter)
		}
		var row [scoring.RowSize]int32
		for i := range row {
			row[i] = -scoring.Inf
		}
		for i, f := range fields[2 : 2+len(columnLetters)] {
			x, err := strconv.Atoi(f)
			if err != nil {
				return fmt.Errorf("seq: bad PSSM score %q", f)
			}
			code := encode[columnLetters[i]]
			row[code&(scoring.RowSize-1)] = int32(x)
			lowerCode := encode[lowerByte(columnLetters[i])]
			if lowerCode != code {
				if isMaskLowercase {
					row[lowerCode&(scoring.RowSize-1)] = -scoring.Inf
				} else {
					row[lowerCode&(scoring.RowSize-1)] = int32(x)
				}
			}
		}
		m.Seq = append(m.Seq, letter[0])
		m.Pssm = append(m.Pssm, row[:]...)
		started = true
		if err == io.EOF {
			break
		}
	}
	m.finish()
	m.growPssmToSeq()
	return nil
}

func lowerByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c - 'A' + 'a'
	}
	return c
}

// growPssmToSeq pads the PSSM with -Inf rows up to the current sequence
// length, covering delimiter pads.
func (m *MultiSequence) growPssmToSeq() {
	for len(m.Pssm) < len(m.Seq)*scoring.RowSize {
		var row [scoring.RowSize]int32
		for i := range row {
			row[i] = -scoring.Inf
		}
		m.Pssm = append(m.Pssm, row[:]...)
	}
}
