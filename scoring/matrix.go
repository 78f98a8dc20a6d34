// Package scoring holds substitution matrices, gap-cost parameters, and the
// quality-aware position-specific matrices built from them.
package scoring

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/last/alphabet"
)

// RowSize is the width of one score-matrix row.  Matrices are indexed by
// the low 6 bits of a letter code, so uppercase and lowercase codes of the
// same letter share a row in the case-insensitive variant.
const RowSize = 64

// Inf is the "infinite" score magnitude.  It is kept well below the int32
// maximum so that sums of a few infinities cannot overflow.
const Inf = int32(1<<31-1) / 3

// Row is one row of a score matrix.
type Row = [RowSize]int32

// Matrix is a substitution matrix over letter codes, in case-sensitive and
// case-insensitive variants.
type Matrix struct {
	// CaseSensitive scores lowercase letters as badly as possible, for
	// soft-masking.
	CaseSensitive [RowSize]Row
	// CaseInsensitive scores lowercase letters like their uppercase twins.
	CaseInsensitive [RowSize]Row
	// MaxScore is the maximum cell of the case-insensitive matrix.  It
	// bounds how fast an extension can recover score, which bounds X-drop
	// growth at delimiter boundaries.
	MaxScore int32
	// MinScore is the minimum defined cell; used for letters with no entry.
	MinScore int32

	rowLetters string
	colLetters string
	cells      [][]int32
}

// MatchMismatch builds a matrix with a single match score and a single
// mismatch cost over the given letters.
func MatchMismatch(matchScore, mismatchCost int, letters string) *Matrix {
	m := &Matrix{rowLetters: letters, colLetters: letters}
	m.cells = make([][]int32, len(letters))
	for i := range m.cells {
		m.cells[i] = make([]int32, len(letters))
		for j := range m.cells[i] {
			if i == j {
				m.cells[i][j] = int32(matchScore)
			} else {
				m.cells[i][j] = -int32(mismatchCost)
			}
		}
	}
	return m
}

// Parse reads a matrix in the usual tabular text format: a row of column
// letters, then one line per row letter.  Lines starting with '#' are
// comments.
func Parse(r io.Reader) (*Matrix, error) {
	m := &Matrix{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if m.colLetters == "" {
			for _, f := range fields {
				if len(f) != 1 {
					return nil, fmt.Errorf("scoring: bad matrix column header %q", f)
				}
				m.colLetters += strings.ToUpper(f)
			}
			continue
		}
		if len(fields) != len(m.colLetters)+1 || len(fields[0]) != 1 {
			return nil, fmt.Errorf("scoring: bad matrix line %q", line)
		}
		m.rowLetters += strings.ToUpper(fields[0])
		row := make([]int32, 0, len(fields)-1)
		for _, f := range fields[1:] {
			x, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("scoring: bad matrix score %q", f)
			}
			row = append(row, int32(x))
		}
		m.cells = append(m.cells, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(m.cells) == 0 {
		return nil, fmt.Errorf("scoring: empty matrix")
	}
	return m, nil
}

// MustParse parses a built-in matrix text.
func MustParse(text string) *Matrix {
	m, err := Parse(strings.NewReader(text))
	if err != nil {
		panic(err)
	}
	return m
}

// Init fills the code-indexed variants from the letter-indexed cells.
// Cells for letter pairs with no entry get the minimum defined score;
// delimiter rows and columns get -Inf.
func (m *Matrix) Init(a *alphabet.Alphabet) {
	m.MinScore = m.cells[0][0]
	m.MaxScore = m.cells[0][0]
	for _, row := range m.cells {
		for _, x := range row {
			if x < m.MinScore {
				m.MinScore = x
			}
			if x > m.MaxScore {
				m.MaxScore = x
			}
		}
	}

	lookup := func(x, y byte) int32 {
		i := strings.IndexByte(m.rowLetters, x)
		j := strings.IndexByte(m.colLetters, y)
		if i < 0 || j < 0 {
			return m.MinScore
		}
		return m.cells[i][j]
	}

	delim := a.Delimiter & (RowSize - 1)
	for i := 0; i < RowSize; i++ {
		for j := 0; j < RowSize; j++ {
			if byte(i) == delim || byte(j) == delim {
				m.CaseSensitive[i][j] = -Inf
				m.CaseInsensitive[i][j] = -Inf
				continue
			}
			x := a.Decode[i]
			y := a.Decode[j]
			xu := a.Decode[a.ToUppercase[i]]
			yu := a.Decode[a.ToUppercase[j]]
			m.CaseInsensitive[i][j] = lookup(upper(xu), upper(yu))
			if x != xu || y != yu {
				// Soft-masked letters score as badly as any real letter can,
				// but stay distinguishable from delimiters.
				m.CaseSensitive[i][j] = m.MinScore
			} else {
				m.CaseSensitive[i][j] = lookup(upper(x), upper(y))
			}
		}
	}
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

// Rows selects the case variant used at one alignment stage.
// maskLowercase is the option value in [0,3]; stage is 1 for gapless, 2 for
// gapped, 3 for final.
func (m *Matrix) Rows(maskLowercase, stage int) *[RowSize]Row {
	if maskLowercase >= stage {
		return &m.CaseSensitive
	}
	return &m.CaseInsensitive
}

// WriteCommented writes the matrix as '#'-prefixed header lines, the way
// the aligner's output header carries it.
func (m *Matrix) WriteCommented(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "#    %s\n", strings.Join(strings.Split(m.colLetters, ""), "    ")); err != nil {
		return err
	}
	for i := 0; i < len(m.rowLetters); i++ {
		if _, err := fmt.Fprintf(w, "# %c", m.rowLetters[i]); err != nil {
			return err
		}
		for _, x := range m.cells[i] {
			if _, err := fmt.Fprintf(w, " %4d", x); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Blosum62 is the standard BLOSUM62 protein matrix.
const Blosum62 = `
   A  R  N  D  C  Q  E  G  H  I  L  K  M  F  P  S  T  W  Y  V
A  4 -1 -2 -2  0 -1 -1  0 -2 -1 -1 -1 -1 -2 -1  1  0 -3 -2  0
R -1  5  0 -2 -3  1  0 -2  0 -3 -2  2 -1 -3 -2 -1 -1 -3 -2 -3
N -2  0  6  1 -3  0  0  0  1 -3 -3  0 -2 -3 -2  1  0 -4 -2 -3
D -2 -2  1  6 -3  0  2 -1 -1 -3 -4 -1 -3 -3 -1  0 -1 -4 -3 -3
C  0 -3 -3 -3  9 -3 -4 -3 -3 -1 -1 -3 -1 -2 -3 -1 -1 -2 -2 -1
Q -1  1  0  0 -3  5  2 -2  0 -3 -2  1  0 -3 -1  0 -1 -2 -1 -2
E -1  0  0  2 -4  2  5 -2  0 -3 -3  1 -2 -3 -1  0 -1 -3 -2 -2
G  0 -2  0 -1 -3 -2 -2  6 -2 -4 -4 -2 -3 -3 -2  0 -2 -2 -3 -3
H -2  0  1 -1 -3  0  0 -2  8 -3 -3 -1 -2 -1 -2 -1 -2 -2  2 -3
I -1 -3 -3 -3 -1 -3 -3 -4 -3  4  2 -3  1  0 -3 -2 -1 -3 -1  3
L -1 -2 -3 -4 -1 -2 -3 -4 -3  2  4 -2  2  0 -3 -2 -1 -2 -1  1
K -1  2  0 -1 -3  1  1 -2 -1 -3 -2  5 -1 -3 -1  0 -1 -3 -2 -2
M -1 -1 -2 -3 -1  0 -2 -3 -2  1  2 -1  5  0 -2 -1 -1 -1 -1  1
F -2 -3 -3 -3 -2 -3 -3 -3 -1  0  0 -3  0  6 -4 -2 -2  1  3 -1
P -1 -2 -2 -1 -3 -1 -1 -2 -2 -3 -3 -1 -2 -4  7 -1 -1 -4 -3 -2
S  1 -1  1  0 -1  0  0  0 -1 -2 -2  0 -1 -2 -1  4  1 -3 -2 -2
T  0 -1  0 -1 -1 -1 -1 -2 -2 -1 -1 -1 -1 -2 -1  1  5 -2 -2  0
W -3 -3 -4 -4 -2 -2 -3 -2 -2 -3 -2 -3 -1  1 -4 -3 -2 11  2 -3
Y -2 -2 -2 -3 -2 -1 -2 -3  2 -1 -1 -2 -1  3 -3 -2 -2  2  7 -1
V  0 -3 -3 -3 -1 -2 -2 -3 -3  3  1 -2  1 -1 -2 -2  0 -3 -1  4
`
