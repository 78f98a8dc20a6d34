package align

import (
	"sort"

	"github.com/grailbio/last/scoring"
)

// Alignment is a gapped pair-wise alignment: gapless blocks, a score, and
// the seed segment it grew from.  In translated mode a block of Size
// aligned residues spans 3*Size bases of sequence 2.
type Alignment struct {
	Blocks []SegmentPair
	Score  int32
	Seed   SegmentPair
	// ColumnAmbiguities holds one phred-like code per alignment column
	// when match probabilities were calculated.
	ColumnAmbiguities []byte

	isTranslated   bool
	frameshiftCost int32
	frameSize      uint64
}

// IsTranslated reports whether sequence-2 coordinates are in DNA bases
// with three bases per aligned residue.
func (a *Alignment) IsTranslated() bool { return a.isTranslated }

// Beg1 returns the alignment start in sequence 1.
func (a *Alignment) Beg1() uint64 { return a.Blocks[0].Beg1() }

// Beg2 returns the alignment start in sequence 2.
func (a *Alignment) Beg2() uint64 { return a.Blocks[0].Beg2() }

// End1 returns the alignment end in sequence 1.
func (a *Alignment) End1() uint64 { return a.Blocks[len(a.Blocks)-1].End1() }

// End2 returns the alignment end in sequence 2 (in bases).
func (a *Alignment) End2() uint64 {
	last := &a.Blocks[len(a.Blocks)-1]
	return last.Start2 + a.width2(last.Size)
}

func (a *Alignment) width2(size uint64) uint64 {
	if a.isTranslated {
		return 3 * size
	}
	return size
}

// FromSegmentPair makes a single-block alignment.
func (a *Alignment) FromSegmentPair(sp SegmentPair) {
	a.Blocks = append(a.Blocks[:0], sp)
	a.Score = sp.Score
	a.Seed = sp
	a.ColumnAmbiguities = nil
}

// XdropOpts carries everything one gapped extension pass needs.
type XdropOpts struct {
	Scorer        *Scorer
	Delim         byte
	Gap           scoring.GapCosts
	MaxDrop       int32
	MaxMatchScore int32
	Globality     int
	// FrameshiftCost > 0 selects three-frame translated mode; FrameSize is
	// then the translated frame length.
	FrameshiftCost int32
	FrameSize      uint64
	// OutputType >= 4 computes match probabilities; 5 decodes a
	// gamma-centroid alignment, 6 an AMA alignment.
	OutputType int
	Gamma      float64
	// Temperature for the probabilistic passes.
	Temperature float64
}

func (o *XdropOpts) isTranslated() bool { return o.FrameshiftCost > 0 }

// MakeXdrop grows the seed to a gapped alignment by X-drop extension in
// both directions, optionally re-aligning within the band by
// gamma-centroid or AMA decoding.  The result might not be optimal; check
// IsOptimal.
func (a *Alignment) MakeXdrop(g *GappedXdropAligner, c *Centroid,
	seq1, seq2 []byte, opts XdropOpts) {
	a.Blocks = a.Blocks[:0]
	a.ColumnAmbiguities = nil
	a.isTranslated = opts.isTranslated()
	a.frameshiftCost = opts.FrameshiftCost
	a.frameSize = opts.FrameSize

	seedScore := int64(0)
	for i := uint64(0); i < a.Seed.Size; i++ {
		if a.isTranslated {
			dna := a.Seed.Start2 + 3*i
			letter := seq2[(dna%3)*opts.FrameSize+dna/3]
			seedScore += int64(opts.Scorer.AtCodes(seq1[a.Seed.Start1+i], letter))
		} else {
			seedScore += int64(opts.Scorer.At(seq1, seq2, a.Seed.Start1+i, a.Seed.Start2+i))
		}
	}

	var revChunks, fwdChunks []SegmentPair
	var revCodes, fwdCodes []byte

	revScore := a.extend(g, c, seq1, seq2, a.Seed.Beg1(), a.Seed.Beg2(),
		false, opts, &revChunks, &revCodes)
	fwdScore := a.extend(g, c, seq1, seq2, a.Seed.End1(),
		a.Seed.Start2+a.width2(a.Seed.Size), true, opts, &fwdChunks, &fwdCodes)

	a.Score = int32(int64(revScore) + seedScore + int64(fwdScore))

	// Chunks are extension-relative: Start1/Start2 are the chunk's
	// near-origin boundary (Start2 in DNA units when translated), Size is
	// the aligned-residue count.  Reverse-extension chunks come out
	// farthest-first, which is ascending absolute order; forward ones need
	// reversing.
	for _, ch := range revChunks {
		a.Blocks = append(a.Blocks, SegmentPair{
			Start1: a.Seed.Beg1() - ch.Start1 - ch.Size,
			Start2: a.Seed.Beg2() - ch.Start2 - a.width2(ch.Size),
			Size:   ch.Size,
		})
	}
	if a.Seed.Size > 0 {
		a.Blocks = append(a.Blocks, a.Seed)
	}
	fwdBase2 := a.Seed.Start2 + a.width2(a.Seed.Size)
	for i := len(fwdChunks) - 1; i >= 0; i-- {
		ch := fwdChunks[i]
		a.Blocks = append(a.Blocks, SegmentPair{
			Start1: a.Seed.End1() + ch.Start1,
			Start2: fwdBase2 + ch.Start2,
			Size:   ch.Size,
		})
	}
	a.mergeAdjacentBlocks()

	if opts.OutputType > 3 {
		a.ColumnAmbiguities = append(a.ColumnAmbiguities, revCodes...)
		for i := uint64(0); i < a.Seed.Size; i++ {
			a.ColumnAmbiguities = append(a.ColumnAmbiguities, AsciiProbability(1))
		}
		for i := len(fwdCodes) - 1; i >= 0; i-- {
			a.ColumnAmbiguities = append(a.ColumnAmbiguities, fwdCodes[i])
		}
	}
}

// extend runs one X-drop extension and collects its chunks
// (extension-relative) and ambiguity codes.
func (a *Alignment) extend(g *GappedXdropAligner, c *Centroid,
	seq1, seq2 []byte, start1, start2 uint64, forward bool, opts XdropOpts,
	chunks *[]SegmentPair, codes *[]byte) int32 {
	if opts.isTranslated() {
		score := g.Align3(seq1, seq2, start1, start2, forward, opts.Scorer,
			opts.Delim, opts.FrameshiftCost, opts.FrameSize,
			opts.Gap, opts.MaxDrop, opts.MaxMatchScore)
		g.Traceback3(chunks, seq1, seq2, start1, start2, forward,
			opts.Scorer, opts.Delim, opts.FrameSize)
		return score
	}

	score := g.Align(seq1, seq2, start1, start2, forward, opts.Globality,
		opts.Scorer, opts.Delim, opts.Gap, opts.MaxDrop, opts.MaxMatchScore)

	if opts.OutputType > 3 {
		if opts.Scorer.Pssm != nil {
			c.SetPssm(opts.Scorer.Pssm, opts.Temperature)
		} else {
			c.SetScoreMatrix(opts.Scorer.Rows, opts.Temperature)
		}
		c.Forward(seq1, seq2, start1, start2, forward, opts.Globality,
			opts.Delim, opts.Gap)
		c.Backward(seq1, seq2, start1, start2, forward, opts.Globality,
			opts.Delim, opts.Gap)
		if opts.OutputType > 4 {
			c.Dp(opts.Gamma, opts.OutputType)
			c.Traceback(chunks, opts.Gamma, opts.OutputType)
			c.ColumnAmbiguities(codes, *chunks, forward)
			return score
		}
	}

	if opts.Globality != 0 {
		g.TracebackFromEdge(chunks, seq1, seq2, start1, start2, forward, opts.Scorer)
	} else {
		g.Traceback(chunks, seq1, seq2, start1, start2, forward, opts.Scorer)
	}
	if opts.OutputType > 3 {
		c.ColumnAmbiguities(codes, *chunks, forward)
	}
	return score
}

func (a *Alignment) mergeAdjacentBlocks() {
	if len(a.Blocks) == 0 {
		return
	}
	out := a.Blocks[:1]
	for _, b := range a.Blocks[1:] {
		last := &out[len(out)-1]
		if b.Start1 == last.End1() && b.Start2 == last.Start2+a.width2(last.Size) {
			last.Size += b.Size
		} else {
			out = append(out, b)
		}
	}
	a.Blocks = out
}

// pairScore scores one aligned column, resolving translated sequence-2
// coordinates through the frame layout.
func (a *Alignment) pairScore(sc *Scorer, seq1, seq2 []byte, p1, p2 uint64) int32 {
	if a.isTranslated {
		return sc.AtCodes(seq1[p1], seq2[(p2%3)*a.frameSize+p2/3])
	}
	return sc.At(seq1, seq2, p1, p2)
}

// gapCost scores the gap between two adjacent blocks.
func (a *Alignment) gapCost(gap scoring.GapCosts, prev, next *SegmentPair) int64 {
	del := int64(next.Beg1() - prev.End1())
	ins := int64(next.Beg2() - (prev.Start2 + a.width2(prev.Size)))
	if !a.isTranslated {
		return int64(gap.Cost(int32(del), int32(ins)))
	}
	frameshift := int64(0)
	if ins%3 != 0 {
		frameshift = int64(a.frameshiftCost)
	}
	return int64(gap.Cost(int32(del), int32(ins/3))) + frameshift
}

// IsOptimal checks that the alignment has no prefix with score <= 0, no
// suffix with score <= 0, and no sub-segment with score < -maxDrop.
// Alignments that pass may still be non-optimal in other ways.
func (a *Alignment) IsOptimal(seq1, seq2 []byte, sc *Scorer, maxDrop int32,
	gap scoring.GapCosts) bool {
	if len(a.Blocks) == 0 {
		return false
	}
	// Gap costs fold into the next aligned column, so a score-neutral
	// detour does not read as a non-positive prefix.
	var prefixes []int64
	total := int64(0)
	for bi := range a.Blocks {
		b := &a.Blocks[bi]
		if bi > 0 {
			total -= a.gapCost(gap, &a.Blocks[bi-1], b)
		}
		for i := uint64(0); i < b.Size; i++ {
			total += int64(a.pairScore(sc, seq1, seq2, b.Start1+i, b.Start2+a.width2(i)))
			prefixes = append(prefixes, total)
		}
	}
	runningMax := int64(0)
	drop := int64(maxDrop)
	for n, p := range prefixes {
		if p <= 0 {
			return false
		}
		if total-p <= 0 && n < len(prefixes)-1 {
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

// CheckScore recomputes the score from the blocks and the cost model;
// used by tests and assertions.
func (a *Alignment) CheckScore(seq1, seq2 []byte, sc *Scorer,
	gap scoring.GapCosts) int64 {
	total := int64(0)
	for bi := range a.Blocks {
		b := &a.Blocks[bi]
		if bi > 0 {
			total -= a.gapCost(gap, &a.Blocks[bi-1], b)
		}
		for i := uint64(0); i < b.Size; i++ {
			total += int64(a.pairScore(sc, seq1, seq2, b.Start1+i, b.Start2+a.width2(i)))
		}
	}
	return total
}

// AlignmentPot collects gapped alignments for one query strand.
type AlignmentPot struct {
	Items []Alignment
}

// Add puts an alignment in the pot.
func (p *AlignmentPot) Add(a Alignment) { p.Items = append(p.Items, a) }

// Size returns the number of alignments.
func (p *AlignmentPot) Size() int { return len(p.Items) }

// Clear empties the pot for the next query.
func (p *AlignmentPot) Clear() { p.Items = p.Items[:0] }

// Sort orders the alignments by descending score, with position
// tie-breaks for reproducibility.
func (p *AlignmentPot) Sort() {
	sort.SliceStable(p.Items, func(i, j int) bool {
		x, y := &p.Items[i], &p.Items[j]
		if x.Score != y.Score {
			return x.Score > y.Score
		}
		if x.Beg1() != y.Beg1() {
			return x.Beg1() < y.Beg1()
		}
		return x.Beg2() < y.Beg2()
	})
}

// EraseSuboptimal removes alignments that share a start or end with a
// higher-scoring alignment: retained non-optimal alignments can hide
// optimal ones during non-redundantization.
func (p *AlignmentPot) EraseSuboptimal() {
	p.Sort()
	type endpoint struct{ p1, p2 uint64 }
	seenBeg := map[endpoint]bool{}
	seenEnd := map[endpoint]bool{}
	live := p.Items[:0]
	for _, a := range p.Items {
		beg := endpoint{a.Beg1(), a.Beg2()}
		end := endpoint{a.End1(), a.End2()}
		if seenBeg[beg] || seenEnd[end] {
			continue
		}
		seenBeg[beg] = true
		seenEnd[end] = true
		live = append(live, a)
	}
	p.Items = live
}
