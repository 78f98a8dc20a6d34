package seq

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// AppendFromPrb appends one PRB record: one line per read, with
// alphSize integer quality values per base.  The called letter for each
// base is the argmax letter; all alphSize qualities are stored per letter,
// ASCII-coded with the Solexa offset.  Reads get sequential names from the
// batch's own counter.
func (m *MultiSequence) AppendFromPrb(r *bufio.Reader, maxSeqLen uint64,
	alphSize int, decode *[256]byte) error {
	if m.FinishedSequences() > 0 && uint64(len(m.Seq))+uint64(m.padSize) >= maxSeqLen {
		return ErrBatchFull
	}
	if err := skipSpace(r); err != nil {
		return err
	}
	line, err := readLine(r)
	if err != nil {
		return err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 || len(fields)%alphSize != 0 {
		return fmt.Errorf("seq: bad PRB data: %d values is not a multiple of %d",
			len(fields), alphSize)
	}
	m.qualsPerLetter = alphSize
	m.addName("")

	// Keep Quals parallel to Seq: backfill pads appended before quality
	// tracking started.
	for len(m.Quals) < len(m.Seq)*alphSize {
		m.Quals = append(m.Quals, 64)
	}

	const minPrb, maxPrb = -64, 62
	for i := 0; i < len(fields); i += alphSize {
		for j := 0; j < alphSize; j++ {
			q, err := strconv.Atoi(fields[i+j])
			if err != nil {
				return fmt.Errorf("seq: bad PRB value %q", fields[i+j])
			}
			if q < minPrb || q > maxPrb {
				return fmt.Errorf("seq: PRB value %d out of range", q)
			}
			m.Quals = append(m.Quals, byte(q+64))
		}
		row := m.Quals[len(m.Quals)-alphSize:]
		best := 0
		for j := 1; j < alphSize; j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		m.Seq = append(m.Seq, decode[best])
	}
	m.appendQualPad()
	m.finish()
	return nil
}
