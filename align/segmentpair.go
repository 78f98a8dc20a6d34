// Package align implements the alignment engine: gapless X-drop
// extension, banded gapped X-drop alignment with generalized affine gaps,
// probabilistic re-alignment inside the X-drop band, and the bookkeeping
// that assembles extensions into non-redundant alignments.
package align

import (
	"github.com/grailbio/last/scoring"
)

// SegmentPair is one gapless aligned segment: Size letters of sequence 1
// starting at Start1 aligned to Size letters of sequence 2 starting at
// Start2.
type SegmentPair struct {
	Start1 uint64
	Start2 uint64
	Size   uint64
	Score  int32
}

// Beg1 returns the start in sequence 1.
func (sp *SegmentPair) Beg1() uint64 { return sp.Start1 }

// Beg2 returns the start in sequence 2.
func (sp *SegmentPair) Beg2() uint64 { return sp.Start2 }

// End1 returns the end in sequence 1.
func (sp *SegmentPair) End1() uint64 { return sp.Start1 + sp.Size }

// End2 returns the end in sequence 2.
func (sp *SegmentPair) End2() uint64 { return sp.Start2 + sp.Size }

// Diagonal returns Start1 - Start2.
func (sp *SegmentPair) Diagonal() int64 {
	return int64(sp.Start1) - int64(sp.Start2)
}

// Scorer scores one aligned letter pair, by score matrix or by
// position-specific row.
type Scorer struct {
	// Rows is the substitution matrix, indexed by the low 6 bits of the
	// codes.
	Rows *[scoring.RowSize]scoring.Row
	// Pssm, if non-nil, overrides Rows: the row for sequence-2 position j
	// is Pssm[j*RowSize : (j+1)*RowSize], indexed by the sequence-1 code.
	Pssm []int32
}

// At scores seq1[p1] aligned to seq2[p2].
func (sc *Scorer) At(seq1, seq2 []byte, p1, p2 uint64) int32 {
	if sc.Pssm != nil {
		return sc.Pssm[p2*scoring.RowSize+uint64(seq1[p1]&(scoring.RowSize-1))]
	}
	return sc.Rows[seq1[p1]&(scoring.RowSize-1)][seq2[p2]&(scoring.RowSize-1)]
}

// AtCodes scores a pair of letter codes via the plain matrix, ignoring
// any PSSM; the translated aligner uses it on codon letters.
func (sc *Scorer) AtCodes(a, b byte) int32 {
	return sc.Rows[a&(scoring.RowSize-1)][b&(scoring.RowSize-1)]
}

// MakeGaplessXdrop extends a seed point (start1, start2) in both
// directions without gaps, stopping each direction when the score drops
// more than maxDrop below its running best, and returns the maximal-score
// segment pair.  Delimiters score -Inf, so extension always stops inside
// the sequences.
func MakeGaplessXdrop(seq1, seq2 []byte, start1, start2 uint64,
	sc *Scorer, maxDrop int32) SegmentPair {
	drop := int64(maxDrop)

	var fwdScore, fwdBest int64
	var fwdLen uint64
	for i := uint64(0); ; i++ {
		s := int64(sc.At(seq1, seq2, start1+i, start2+i))
		fwdScore += s
		if fwdScore > fwdBest {
			fwdBest = fwdScore
			fwdLen = i + 1
		} else if fwdScore < fwdBest-drop {
			break
		}
	}

	var revScore, revBest int64
	var revLen uint64
	for i := uint64(1); i <= start1 && i <= start2; i++ {
		s := int64(sc.At(seq1, seq2, start1-i, start2-i))
		revScore += s
		if revScore > revBest {
			revBest = revScore
			revLen = i
		} else if revScore < revBest-drop {
			break
		}
	}

	return SegmentPair{
		Start1: start1 - revLen,
		Start2: start2 - revLen,
		Size:   revLen + fwdLen,
		Score:  int32(revBest + fwdBest),
	}
}

// IsOptimalGapless checks that the segment has no prefix with
// non-positive score, no suffix with non-positive score, and no internal
// drop below -maxDrop.  Non-optimal extensions can hide optimal ones, so
// they are discarded.
func (sp *SegmentPair) IsOptimalGapless(seq1, seq2 []byte, sc *Scorer,
	maxDrop int32) bool {
	if sp.Size == 0 {
		return false
	}
	drop := int64(maxDrop)
	total := int64(0)
	prefixes := make([]int64, sp.Size)
	for i := uint64(0); i < sp.Size; i++ {
		total += int64(sc.At(seq1, seq2, sp.Start1+i, sp.Start2+i))
		prefixes[i] = total
	}
	runningMax := int64(0)
	for i := uint64(0); i < sp.Size; i++ {
		p := prefixes[i]
		if p <= 0 {
			return false
		}
		if i+1 < sp.Size && total-p <= 0 {
			return false
		}
		if p < runningMax-drop {
			return false
		}
		if p > runningMax {
			runningMax = p
		}
	}
	return true
}

// MaxIdenticalRun shrinks the segment to its longest run of identical
// canonical letters, so that noisy flanks do not bias the X-drop band of
// the gapped pass, and re-scores the shrunk segment.
func (sp *SegmentPair) MaxIdenticalRun(seq1, seq2 []byte,
	canonical *[256]byte, sc *Scorer) {
	var bestBeg, bestLen uint64
	var runBeg uint64
	for i := uint64(0); i <= sp.Size; i++ {
		same := i < sp.Size &&
			canonical[seq1[sp.Start1+i]] == canonical[seq2[sp.Start2+i]]
		if !same {
			if i-runBeg > bestLen {
				bestBeg = runBeg
				bestLen = i - runBeg
			}
			runBeg = i + 1
		}
	}
	sp.Start1 += bestBeg
	sp.Start2 += bestBeg
	sp.Size = bestLen
	score := int64(0)
	for i := uint64(0); i < sp.Size; i++ {
		score += int64(sc.At(seq1, seq2, sp.Start1+i, sp.Start2+i))
	}
	sp.Score = int32(score)
}
