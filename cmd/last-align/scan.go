package main

import (
	"fmt"

	"github.com/grailbio/last/align"
	"github.com/grailbio/last/scoring"
)

// scanBatch aligns one finished query batch against the database, on the
// requested strands.
func (p *pipeline) scanBatch() error {
	if p.flags.outputType == 0 {
		p.matchCounts = make([][]uint64, p.query.FinishedSequences())
		for i := range p.matchCounts {
			p.matchCounts[i] = nil
		}
	}

	if p.flags.strand != 0 {
		if err := p.translateAndScan('+'); err != nil {
			return err
		}
	}
	if p.flags.strand != 1 {
		p.reverseComplementQuery()
		if err := p.translateAndScan('-'); err != nil {
			return err
		}
		// Restore the original orientation, in case the batch continues an
		// unfinished record.
		p.reverseComplementQuery()
	}

	if p.flags.outputType == 0 {
		p.writeCounts()
	}
	p.logf("query batch done!")
	return nil
}

func (p *pipeline) reverseComplementQuery() {
	p.logf("reverse complementing...")
	p.query.ReverseComplement(&p.queryAlph.Complement)
	if p.flags.inputFormat == formatPssm {
		p.query.ReverseComplementPssm(&p.queryAlph.Complement)
	}
}

// translateAndScan translates the query in three frames when in
// translated mode, then scans.
func (p *pipeline) translateAndScan(strand byte) error {
	if p.flags.frameshift > 0 {
		p.logf("translating...")
		n := int(p.query.FinishedSize())
		if cap(p.translation) < n {
			p.translation = make([]byte, n)
		}
		p.translation = p.translation[:n]
		p.gc.Translate(p.translation, p.query.Seq[:n])
	}
	return p.scan(strand)
}

// matchSeq returns the buffer the suffix-array seeding runs on: the
// translated query in translated mode, else the query itself.
func (p *pipeline) matchSeq() []byte {
	if p.flags.frameshift > 0 {
		return p.translation
	}
	return p.query.Seq
}

// frameSize returns the translated frame length, or 0.
func (p *pipeline) frameSize() uint64 {
	if p.flags.frameshift > 0 {
		return p.query.FinishedSize() / 3
	}
	return 0
}

// dnaCoord converts a translated-buffer coordinate to a DNA coordinate.
func (p *pipeline) dnaCoord(t uint64) uint64 {
	fs := p.frameSize()
	return 3*(t%fs) + t/fs
}

func (p *pipeline) gaplessScorer() *align.Scorer {
	return &align.Scorer{
		Rows: p.matrix.Rows(p.flags.maskLowercase, 1),
		Pssm: p.query.Pssm,
	}
}

func (p *pipeline) scorerFor(stage int) *align.Scorer {
	return &align.Scorer{
		Rows: p.matrix.Rows(p.flags.maskLowercase, stage),
		Pssm: p.query.Pssm,
	}
}

// makeQualityPssm converts quality data into a position-specific score
// matrix, so that gapless and gapped extension can use per-base error
// probabilities.
func (p *pipeline) makeQualityPssm(isApplyMasking bool) {
	if !isQualityFormat(p.flags.inputFormat) {
		return
	}
	if p.lambda <= 0 {
		return
	}
	p.logf("making PSSM...")
	p.query.ResizePssm()
	stage := 1
	if !isApplyMasking {
		stage = 4 // case-insensitive
	}
	rows := p.matrix.Rows(p.flags.maskLowercase, stage)
	scale := 1 / p.lambda
	n := p.query.FinishedSize()
	if p.flags.inputFormat == formatPrb {
		scoring.MakePrbPssm(p.query.Pssm, rows, p.query.Seq[:n], p.query.Quals,
			p.queryAlph.Delimiter, scale, scoring.SolexaOffset, p.queryAlph.Size)
	} else {
		offset := scoring.SangerOffset
		isPhred := true
		if p.flags.inputFormat == formatFastqSolexa {
			offset = scoring.SolexaOffset
			isPhred = false
		}
		scoring.MakeQualityPssm(p.query.Pssm, rows, p.query.Seq[:n], p.query.Quals,
			p.queryAlph.Delimiter, scale, offset, isPhred, p.queryAlph.Size)
	}
}

// scan aligns one strand of one batch: seed, gapless-extend, gapped
// extend, and emit.
func (p *pipeline) scan(strand byte) error {
	if p.flags.outputType == 0 {
		p.countAllMatches(strand)
		return nil
	}

	isApplyMasking := p.flags.maskLowercase > 0
	p.makeQualityPssm(isApplyMasking)

	p.logf("scanning...")

	var gaplessAlns align.SegmentPairPot
	if err := p.alignGapless(&gaplessAlns, strand); err != nil {
		return err
	}
	if p.flags.outputType == 1 {
		return nil // we just want gapless alignments
	}

	if p.flags.maskLowercase == 1 {
		p.makeQualityPssm(false)
	}

	var gappedAlns align.AlignmentPot

	if p.flags.maskLowercase == 2 || p.flags.maxDropFinal != p.flags.maxDropGapped {
		if err := p.alignGapped(&gappedAlns, &gaplessAlns, 2,
			int32(p.flags.maxDropGapped), false); err != nil {
			return err
		}
		gaplessAlns.EraseNotGood()
	}

	if p.flags.maskLowercase == 2 {
		p.makeQualityPssm(false)
	}

	if err := p.alignGapped(&gappedAlns, &gaplessAlns, 3,
		int32(p.flags.maxDropFinal), true); err != nil {
		return err
	}

	if p.flags.outputType > 2 {
		gappedAlns.EraseSuboptimal()
		p.logf("nonredundant gapped alignments=%d", gappedAlns.Size())
	}

	gappedAlns.Sort()
	return p.alignFinish(&gappedAlns, strand)
}

// countAllMatches accumulates per-depth match counts for every query
// position.
func (p *pipeline) countAllMatches(strand byte) {
	p.logf("counting...")
	qseq := p.matchSeq()
	tseq := p.text.Seq
	maxDepth := ^uint64(0)

	for i := uint64(0); i+1 < uint64(len(qseq)); i += uint64(p.flags.queryStep) {
		var seqNum int
		var pos uint64
		if strand == '+' {
			seqNum = p.query.WhichSequence(i)
			pos = i
		} else {
			seqNum = p.query.WhichSequence(p.query.FinishedSize() - i - 1)
			pos = i
		}
		if seqNum < 0 || seqNum >= len(p.matchCounts) {
			continue
		}
		p.matchCounts[seqNum] = p.sa.CountMatches(p.matchCounts[seqNum],
			qseq[pos:], tseq, 0, maxDepth)
	}
}

func (p *pipeline) writeCounts() {
	p.logf("writing...")
	for i := range p.matchCounts {
		fmt.Fprintf(p.out, "%s\n", p.query.SeqName(i))
		for depth := p.flags.minHitDepth; depth < len(p.matchCounts[i]); depth++ {
			fmt.Fprintf(p.out, "%d\t%d\n", depth, p.matchCounts[i][depth])
		}
		fmt.Fprintf(p.out, "\n")
	}
}

const maxGaplessAlignmentsPerQueryPosition = 5

// alignGapless seeds at every query position and extends without gaps.
func (p *pipeline) alignGapless(pot *align.SegmentPairPot, strand byte) error {
	qseq := p.matchSeq()
	tseq := p.text.Seq
	sc := p.gaplessScorer()
	var dt align.DiagonalTable
	var matchCount, extensionCount, alignmentCount uint64
	maxDepth := ^uint64(0)
	isTranslated := p.flags.frameshift > 0

	for i := uint64(0); i+1 < uint64(len(qseq)); i += uint64(p.flags.queryStep) {
		beg, end, _ := p.sa.Match(qseq[i:], tseq, 0,
			uint64(p.flags.multiplicity), uint64(p.flags.minHitDepth), maxDepth)
		matchCount += end - beg

		perPosition := 0
		for ; beg < end; beg++ {
			if perPosition == maxGaplessAlignmentsPerQueryPosition {
				break
			}
			tpos := p.sa.PositionAt(beg)
			if dt.IsCovered(i, tpos) {
				continue
			}

			sp := align.MakeGaplessXdrop(tseq, qseq, tpos, i, sc,
				int32(p.flags.maxDropGapless))
			extensionCount++
			if int(sp.Score) < p.flags.minGapless {
				continue
			}
			if !sp.IsOptimalGapless(tseq, qseq, sc, int32(p.flags.maxDropGapless)) {
				continue // ignore sucky gapless extensions
			}

			if p.flags.outputType == 1 {
				var aln align.Alignment
				aln.FromSegmentPair(sp)
				if isTranslated {
					continue // gapless-only translated output is unsupported
				}
				if err := p.writer.Write(p.out, &aln, p.text, p.query, strand); err != nil {
					return err
				}
			} else {
				pot.Add(sp)
			}
			perPosition++
			alignmentCount++
			dt.AddEndpoint(sp.End2(), sp.End1())
		}
	}

	p.logf("initial matches=%d", matchCount)
	p.logf("gapless extensions=%d", extensionCount)
	p.logf("gapless alignments=%d", alignmentCount)
	return nil
}

// alignGapped grows the surviving gapless seeds into gapped alignments.
func (p *pipeline) alignGapped(gappedAlns *align.AlignmentPot,
	gaplessAlns *align.SegmentPairPot, stage int, maxDrop int32,
	isKeepAlignments bool) error {
	qseq := p.matchSeq()
	tseq := p.text.Seq
	sc := p.scorerFor(stage)
	var gappedExtensionCount, gappedAlignmentCount uint64

	// Redo the gapless extensions with the gapped-stage parameters;
	// without this, self-comparing a huge sequence risks huge gapped
	// extensions.
	for i := range gaplessAlns.Items {
		sp := &gaplessAlns.Items[i]
		redone := align.MakeGaplessXdrop(tseq, qseq, sp.Beg1(), sp.Beg2(), sc, maxDrop)
		*sp = redone
		if !redone.IsOptimalGapless(tseq, qseq, sc, maxDrop) {
			align.Mark(sp)
		}
	}
	gaplessAlns.EraseMarked()
	gaplessAlns.Sort()

	p.logf("redone gapless alignments=%d", gaplessAlns.Size())

	opts := align.XdropOpts{
		Scorer:         sc,
		Delim:          p.alph.Delimiter,
		Gap:            p.gapCosts,
		MaxDrop:        maxDrop,
		MaxMatchScore:  p.matrix.MaxScore,
		Globality:      p.flags.globality,
		FrameshiftCost: int32(p.flags.frameshift),
		FrameSize:      p.frameSize(),
		OutputType:     0, // probabilities only in the final pass
		Gamma:          p.flags.gamma,
		Temperature:    p.flags.temperature,
	}

	for n := 0; n < gaplessAlns.Size(); n++ {
		sp := gaplessAlns.Get(n)
		if align.IsMarked(sp) {
			continue
		}

		var aln align.Alignment
		aln.Seed = *sp

		// Shrink the seed to its longest run of identical matches, so
		// noisy flanks don't bias the X-drop band.
		aln.Seed.MaxIdenticalRun(tseq, qseq, &p.alph.ToUppercase, sc)
		if aln.Seed.Size == 0 {
			continue
		}
		if p.flags.frameshift > 0 {
			aln.Seed.Start2 = p.dnaCoord(aln.Seed.Start2)
		}

		aln.MakeXdrop(&p.aligner, p.centroid, tseq, qseq, opts)
		gappedExtensionCount++

		if int(aln.Score) < p.flags.minGapped {
			continue
		}
		if !aln.IsOptimal(tseq, qseq, sc, maxDrop, p.gapCosts) {
			// Non-optimal alignments can hide optimal ones during
			// non-redundantization.
			continue
		}

		if p.flags.frameshift == 0 {
			gaplessAlns.MarkAllOverlaps(aln.Blocks)
			gaplessAlns.MarkTandemRepeats(&aln.Seed, uint64(p.flags.maxRepeatDist))
		}

		if isKeepAlignments {
			gappedAlns.Add(aln)
		} else {
			align.MarkAsGood(sp)
		}
		gappedAlignmentCount++
	}

	p.logf("gapped extensions=%d", gappedExtensionCount)
	p.logf("gapped alignments=%d", gappedAlignmentCount)
	return nil
}

// alignFinish prints the gapped alignments, optionally re-aligning with
// match probabilities.
func (p *pipeline) alignFinish(gappedAlns *align.AlignmentPot, strand byte) error {
	qseq := p.matchSeq()
	tseq := p.text.Seq
	for i := range gappedAlns.Items {
		aln := &gappedAlns.Items[i]
		if p.flags.outputType < 4 {
			if err := p.writer.Write(p.out, aln, p.text, p.query, strand); err != nil {
				return err
			}
			continue
		}
		var probAln align.Alignment
		probAln.Seed = aln.Seed
		opts := align.XdropOpts{
			Scorer:        p.scorerFor(3),
			Delim:         p.alph.Delimiter,
			Gap:           p.gapCosts,
			MaxDrop:       int32(p.flags.maxDropFinal),
			MaxMatchScore: p.matrix.MaxScore,
			Globality:     p.flags.globality,
			OutputType:    p.flags.outputType,
			Gamma:         p.flags.gamma,
			Temperature:   p.flags.temperature,
		}
		probAln.MakeXdrop(&p.aligner, p.centroid, tseq, qseq, opts)
		if err := p.writer.Write(p.out, &probAln, p.text, p.query, strand); err != nil {
			return err
		}
	}
	return nil
}
