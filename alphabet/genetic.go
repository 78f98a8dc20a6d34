package alphabet

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// StandardGeneticCode is NCBI translation table 1 in the usual tabular
// layout: 64 amino acids for the 64 codons in TCAG order.
const StandardGeneticCode = `
  AAs  = FFLLSSSSYY**CC*WLLLLPPPPHHQQRRRRIIIMTTTTNNKKSSRRVVVVAAAADDEEGGGG
Base1  = TTTTTTTTTTTTTTTTCCCCCCCCCCCCCCCCAAAAAAAAAAAAAAAAGGGGGGGGGGGGGGGG
Base2  = TTTTCCCCAAAAGGGGTTTTCCCCAAAAGGGGTTTTCCCCAAAAGGGGTTTTCCCCAAAAGGGG
Base3  = TCAGTCAGTCAGTCAGTCAGTCAGTCAGTCAGTCAGTCAGTCAGTCAGTCAGTCAGTCAGTCAG
`

// GeneticCode translates encoded DNA codons into encoded protein letters.
type GeneticCode struct {
	// aa[b1*16+b2*4+b3] is the amino-acid letter for the codon with canonical
	// base codes b1, b2, b3.
	aa [64]byte

	// table maps triples of DNA codes to protein codes; built by Init.
	table []byte
	qSize int
	delim byte
}

// ParseGeneticCode reads the tabular genetic-code format ("AAs = ...",
// "Base1 = ..." etc).
func ParseGeneticCode(r io.Reader) (*GeneticCode, error) {
	rows := map[string]string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		rows[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	aas, b1, b2, b3 := rows["AAs"], rows["Base1"], rows["Base2"], rows["Base3"]
	if len(aas) != 64 || len(b1) != 64 || len(b2) != 64 || len(b3) != 64 {
		return nil, fmt.Errorf("alphabet: bad genetic-code table")
	}
	gc := &GeneticCode{}
	baseIndex := func(c byte) (int, error) {
		switch c {
		case 'T', 't', 'U', 'u':
			return 3, nil
		case 'C', 'c':
			return 1, nil
		case 'A', 'a':
			return 0, nil
		case 'G', 'g':
			return 2, nil
		}
		return 0, fmt.Errorf("alphabet: bad base %q in genetic-code table", c)
	}
	for i := 0; i < 64; i++ {
		x, err := baseIndex(b1[i])
		if err != nil {
			return nil, err
		}
		y, err := baseIndex(b2[i])
		if err != nil {
			return nil, err
		}
		z, err := baseIndex(b3[i])
		if err != nil {
			return nil, err
		}
		gc.aa[x*16+y*4+z] = aas[i]
	}
	return gc, nil
}

// MustStandardGeneticCode returns the standard code; it panics only if the
// built-in table text is broken.
func MustStandardGeneticCode() *GeneticCode {
	gc, err := ParseGeneticCode(strings.NewReader(StandardGeneticCode))
	if err != nil {
		panic(err)
	}
	return gc
}

// Init prepares the codon lookup for a DNA query alphabet and a protein
// reference alphabet.  Codons containing an ambiguous base translate to X,
// and codons containing a delimiter translate to the protein delimiter.
func (gc *GeneticCode) Init(protein, dna *Alphabet) {
	n := int(dna.Delimiter) + 1
	gc.qSize = n
	gc.delim = protein.Delimiter
	gc.table = make([]byte, n*n*n)
	unknown := protein.Encode['X']
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				code := protein.Delimiter
				x := int(dna.ToUppercase[i])
				y := int(dna.ToUppercase[j])
				z := int(dna.ToUppercase[k])
				switch {
				case byte(i) == dna.Delimiter || byte(j) == dna.Delimiter || byte(k) == dna.Delimiter:
					// delimiter propagates
				case x < 4 && y < 4 && z < 4:
					code = protein.Encode[gc.aa[x*16+y*4+z]]
				default:
					code = unknown
				}
				gc.table[(i*n+j)*n+k] = code
			}
		}
	}
}

// Translate writes the three-frame translation of the encoded DNA in src
// into dst, which must be at least len(src) long.  Frame f occupies
// dst[f*frameSize : (f+1)*frameSize) with frameSize = len(src)/3, and each
// frame ends with delimiters where fewer than three bases remain.
func (gc *GeneticCode) Translate(dst, src []byte) {
	if gc.table == nil {
		panic("alphabet: GeneticCode.Init was not called")
	}
	frameSize := len(src) / 3
	n := gc.qSize
	for f := 0; f < 3; f++ {
		for i := 0; i < frameSize; i++ {
			j := f + i*3
			if j+2 < len(src) {
				a, b, c := int(src[j]), int(src[j+1]), int(src[j+2])
				dst[f*frameSize+i] = gc.table[(a*n+b)*n+c]
			} else {
				dst[f*frameSize+i] = gc.delim
			}
		}
	}
}
