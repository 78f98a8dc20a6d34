// Package seed implements cyclic subset seeds: position-indexed maps from
// sequence letters to subset numbers.  When two suffixes are compared under
// a seed, letters in the same subset count as equal, and the subsets may
// differ from position to position, wrapping around cyclically.
//
// There is always one special subset, Delimiter, which never matches
// anything.
package seed

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/grailbio/last/alphabet"
)

// Delimiter is the subset number that never matches.
const Delimiter = 0xff

// MaxLetters bounds the letter codes a subset map covers.
const MaxLetters = 256

// Seed is a cyclic subset seed.  It is immutable after construction.
type Seed struct {
	// maps[p] is the byte->subset map for position p.
	maps [][MaxLetters]byte
	// groups[p] lists the canonicalized letter groups at position p, for
	// writing the seed back out.
	groups [][]string
}

// Predefined seed patterns.
const (
	// ProteinSeed matches each amino acid exactly.
	ProteinSeed = "A C D E F G H I K L M N P Q R S T V W Y"
	// YassSeed is the spaced transition-tolerant DNA pattern recommended in
	// "YASS: enhancing the sensitivity of DNA similarity search",
	// NAR 2005 33:W540-W543.
	YassSeed = `
A C G T
AG CT
A C G T
ACGT
ACGT
A C G T
A C G T
ACGT
ACGT
A C G T
ACGT
A C G T
`
)

// Span returns the number of positions in the cyclic pattern.
func (s *Seed) Span() int { return len(s.maps) }

// FirstMap returns the index of the map at position 0.
func (s *Seed) FirstMap() int { return 0 }

// NextMap advances cyclically to the next position's map.
func (s *Seed) NextMap(p int) int {
	p++
	if p == len(s.maps) {
		return 0
	}
	return p
}

// PrevMap steps cyclically back to the previous position's map.
func (s *Seed) PrevMap(p int) int {
	if p == 0 {
		return len(s.maps) - 1
	}
	return p - 1
}

// Map returns the byte->subset map at cyclic depth d.
func (s *Seed) Map(d int) *[MaxLetters]byte {
	return &s.maps[d%len(s.maps)]
}

// RestrictedSubsetCount returns the number of subsets at cyclic depth d,
// excluding the delimiter.  It sizes bucket levels where the delimiter
// subset cannot occur.
func (s *Seed) RestrictedSubsetCount(d int) int {
	return len(s.groups[d%len(s.groups)])
}

// UnrestrictedSubsetCount returns the number of subsets at cyclic depth d;
// callers reserve their own delimiter slot where one can occur.
func (s *Seed) UnrestrictedSubsetCount(d int) int {
	return len(s.groups[d%len(s.groups)])
}

// IsLess compares the suffixes a and b lexicographically under the cyclic
// subset maps, starting with the map at position p.
func (s *Seed) IsLess(a, b []byte, p int) bool {
	for i := 0; ; i++ {
		x := s.maps[p][a[i]]
		y := s.maps[p][b[i]]
		if x != y {
			return x < y
		}
		if x == Delimiter {
			return false
		}
		p = s.NextMap(p)
	}
}

// WritePosition writes position p's groups in the textual seed format.
func (s *Seed) WritePosition(w io.Writer, p int) error {
	_, err := io.WriteString(w, strings.Join(s.groups[p], " "))
	return err
}

func (s *Seed) appendPosition(tokens []string, maskLowercase bool,
	encode *[MaxLetters]byte, delim byte) error {
	var m [MaxLetters]byte
	for i := range m {
		m[i] = Delimiter
	}
	var groups []string
	for subsetNum, token := range tokens {
		if subsetNum >= Delimiter {
			return fmt.Errorf("seed: too many subsets")
		}
		group := make([]byte, 0, len(token))
		addLetter := func(letter byte) error {
			code := encode[letter]
			if code == delim {
				return fmt.Errorf("seed: bad symbol in subset seed: %q", letter)
			}
			if m[code] != Delimiter {
				return fmt.Errorf("seed: repeated symbol in subset seed: %q", letter)
			}
			m[code] = byte(subsetNum)
			return nil
		}
		for i := 0; i < len(token); i++ {
			upper := toUpper(token[i])
			lower := toLower(token[i])
			if err := addLetter(upper); err != nil {
				return err
			}
			group = append(group, upper)
			if !maskLowercase && lower != upper {
				if err := addLetter(lower); err != nil {
					return err
				}
			}
		}
		sort.Slice(group, func(i, j int) bool { return group[i] < group[j] })
		groups = append(groups, string(group))
	}
	s.maps = append(s.maps, m)
	s.groups = append(s.groups, groups)
	return nil
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

func toLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c - 'A' + 'a'
	}
	return c
}

// AppendPosition adds one seed position, parsed from whitespace-separated
// subset tokens.  Exported so manifest readers can feed "subsetseed=" lines
// one at a time.
func (s *Seed) AppendPosition(line string, maskLowercase bool,
	a *alphabet.Alphabet) error {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return fmt.Errorf("seed: empty seed position")
	}
	return s.appendPosition(tokens, maskLowercase, &a.Encode, a.Delimiter)
}

// FromText parses the textual seed format: blank lines and #-comments are
// skipped; each remaining line is one cyclic position whose
// whitespace-separated tokens are its subsets.
func FromText(r io.Reader, maskLowercase bool, a *alphabet.Alphabet) (*Seed, error) {
	s := &Seed{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := s.AppendPosition(line, maskLowercase, a); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if s.Span() == 0 {
		return nil, fmt.Errorf("seed: no positions in seed")
	}
	return s, nil
}

// FromString is FromText on a string.
func FromString(text string, maskLowercase bool, a *alphabet.Alphabet) (*Seed, error) {
	return FromText(strings.NewReader(text), maskLowercase, a)
}

// FromCode expands a compact seed pattern into positions: '1' or '#' is an
// exact-match position, '0', '_' or '-' matches any proper letter, and
// 'T', 't' or '@' is the DNA transition position (AG|CT).
func FromCode(code string, maskLowercase bool, a *alphabet.Alphabet) (*Seed, error) {
	s := &Seed{}
	letters := a.Letters
	exact := make([]string, len(letters))
	for i := range letters {
		exact[i] = string(letters[i])
	}
	for i := 0; i < len(code); i++ {
		var tokens []string
		switch code[i] {
		case '1', '#':
			tokens = exact
		case '0', '_', '-':
			tokens = []string{letters}
		case 'T', 't', '@':
			tokens = []string{"AG", "CT"}
		default:
			return nil, fmt.Errorf("seed: bad seed pattern: %s", code)
		}
		if err := s.appendPosition(tokens, maskLowercase, &a.Encode, a.Delimiter); err != nil {
			return nil, err
		}
	}
	return s, nil
}
