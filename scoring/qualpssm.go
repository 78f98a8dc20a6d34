package scoring

import (
	"math"
)

// Quality offsets for the ASCII-coded quality formats.
const (
	SangerOffset = 33 // fastq-sanger, Illumina >= 1.8
	SolexaOffset = 64 // fastq-solexa, Illumina <= 1.7
)

// ErrorProb converts an ASCII-decoded quality value to an error
// probability.
func ErrorProb(qual int, isPhred bool) float64 {
	if isPhred {
		return math.Pow(10, -0.1*float64(qual))
	}
	x := math.Pow(10, -0.1*float64(qual))
	return x / (1 + x)
}

// GeneralizedScore adjusts a substitution score for a query letter whose
// error probability is p, assuming the letter's background probability is
// letterProb: the erroneous fraction is scored as a random letter.
func GeneralizedScore(score int32, scale, p, letterProb float64) int32 {
	r := math.Exp(float64(score) / scale)
	if p >= 1 {
		p = 0.999999 // avoid numerical instability at the extreme
	}
	otherProb := 1 - letterProb
	u := p / otherProb
	x := (1-u)*r + u
	return int32(math.Floor(scale*math.Log(x) + 0.5))
}

// MakeQualityPssm fills a position-specific score matrix from one quality
// code per letter.  pssm is row-major with RowSize columns and one row per
// position in seq; rows at delimiter positions are filled with -Inf.
// scale is 1/lambda of the score matrix; offset and isPhred describe the
// quality encoding; alphabetSize gives the uniform background probability.
func MakeQualityPssm(pssm []int32, rows *[RowSize]Row, seq, quals []byte,
	delim byte, scale float64, offset int, isPhred bool, alphabetSize int) {
	letterProb := 1.0 / float64(alphabetSize)
	for j := 0; j < len(seq); j++ {
		row := pssm[j*RowSize : (j+1)*RowSize]
		y := seq[j]
		if y == delim {
			for x := range row {
				row[x] = -Inf
			}
			continue
		}
		p := ErrorProb(int(quals[j])-offset, isPhred)
		for x := 0; x < RowSize; x++ {
			s := rows[x][y&(RowSize-1)]
			if s <= -Inf {
				row[x] = -Inf
				continue
			}
			row[x] = GeneralizedScore(s, scale, p, letterProb)
		}
	}
}

// MakePrbPssm fills a position-specific score matrix from per-base
// per-letter probabilities: quals holds alphabetSize ASCII-coded
// Solexa-style values per position, and each PSSM cell is the
// log-probability-weighted mixture of the plain scores.
func MakePrbPssm(pssm []int32, rows *[RowSize]Row, seq, quals []byte,
	delim byte, scale float64, offset, alphabetSize int) {
	for j := 0; j < len(seq); j++ {
		row := pssm[j*RowSize : (j+1)*RowSize]
		if seq[j] == delim {
			for x := range row {
				row[x] = -Inf
			}
			continue
		}
		q := quals[j*alphabetSize : (j+1)*alphabetSize]
		probs := make([]float64, alphabetSize)
		sum := 0.0
		for y := 0; y < alphabetSize; y++ {
			x := math.Pow(10, 0.1*float64(int(q[y])-offset))
			probs[y] = x / (1 + x)
			sum += probs[y]
		}
		for y := range probs {
			probs[y] /= sum
		}
		for x := 0; x < RowSize; x++ {
			mix := 0.0
			bad := true
			for y := 0; y < alphabetSize; y++ {
				s := rows[x][y]
				if s <= -Inf {
					continue
				}
				bad = false
				mix += probs[y] * math.Exp(float64(s)/scale)
			}
			if bad || mix <= 0 {
				row[x] = -Inf
				continue
			}
			row[x] = int32(math.Floor(scale*math.Log(mix) + 0.5))
		}
	}
}
