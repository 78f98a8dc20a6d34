package split

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Opts configures the split post-processor.
type Opts struct {
	// Score is the minimum segment score; negative picks a default from
	// the input header.
	Score int
	// Mismap drops segments whose mismap probability exceeds it.
	Mismap float64
	// Genome is the base name of a genome database for splice signals;
	// empty disables spliced alignment.
	Genome string
	// Direction: 0 reverse, 1 forward, 2 both with strand inference.
	Direction int
	// Cis is the splice prior; Trans the trans-splice probability.
	Cis   float64
	Trans float64
	// Mean and Sdev parameterize ln(intron length).
	Mean float64
	Sdev float64
	// NoSplit only annotates the input alignments with mismap estimates.
	NoSplit bool
	// Bytes is the memory budget per query; bigger queries are skipped.
	Bytes uint64
	// Format: 0 = keep input flavor, 'm' = plain MAF.
	Format  byte
	Verbose bool
	// IsTopSeqQuery treats the first MAF s line as the query.
	IsTopSeqQuery bool
}

// DefaultOpts is the default split configuration.
var DefaultOpts = Opts{
	Score:     -1,
	Mismap:    1.0,
	Direction: 1,
	Cis:       0.004,
	Trans:     1e-05,
	Mean:      7.0,
	Sdev:      1.7,
	Bytes:     8 * 1024 * 1024 * 1024,
}

// header is what we need from a lastal output header.
type header struct {
	gapExistenceCost int
	gapExtensionCost int
	insExistenceCost int
	insExtensionCost int
	scoreThreshold   int
	scale            float64
	sequenceFormat   int
	genomeSize       float64
	rowNames         string
	colNames         string
	scoreMatrix      [][]int
}

func (h *header) complete() error {
	if len(h.scoreMatrix) == 0 {
		return errors.New("split: I need a header with score parameters")
	}
	if h.gapExistenceCost < 0 || h.gapExtensionCost < 0 ||
		h.insExistenceCost < 0 || h.insExtensionCost < 0 ||
		h.scoreThreshold < 0 || h.scale <= 0 || h.genomeSize <= 0 {
		return errors.New("split: can't read the header")
	}
	if h.sequenceFormat == 2 || h.sequenceFormat >= 4 {
		return errors.New("split: unsupported Q format")
	}
	return nil
}

// Run reads lastal MAF output from r, chains each query's candidate
// alignments, and writes the split alignments to w.
func Run(opts Opts, r io.Reader, w io.Writer) error {
	sa := &SplitAligner{}
	in := bufio.NewReader(r)
	out := bufio.NewWriter(w)
	defer out.Flush() // nolint: errcheck

	h := header{
		gapExistenceCost: -1, gapExtensionCost: -1,
		insExistenceCost: -1, insExtensionCost: -1,
		scoreThreshold: -1, sequenceFormat: -1,
	}
	state := 0 // 0: header, -1: matrix rows, 1: alignments
	var blockLines []string
	var mafs []UnsplitAlignment
	order := 0
	qendMax := uint(0)

	flushGroup := func(group []UnsplitAlignment) error {
		if len(group) == 0 {
			return nil
		}
		return doOneQuery(sa, opts, out, group)
	}

	endBlock := func() error {
		if len(blockLines) == 0 {
			return nil
		}
		ua, err := ParseMafBlock(blockLines, order, opts.IsTopSeqQuery)
		blockLines = nil
		if err != nil {
			return err
		}
		order++
		mafs = append(mafs, ua)
		return nil
	}

	// Batches break when a new query name appears; candidate groups break
	// within a batch when the query intervals stop overlapping, unless we
	// are doing spliced alignment.
	flushBatch := func() error {
		if err := endBlock(); err != nil {
			return err
		}
		if len(mafs) == 0 {
			return nil
		}
		sort.SliceStable(mafs, func(i, j int) bool { return Less(&mafs[i], &mafs[j]) })
		beg := 0
		qendMax = 0
		for mid := 0; mid < len(mafs); mid++ {
			if mafs[mid].Qend > qendMax {
				qendMax = mafs[mid].Qend
			}
			next := mid + 1
			if next == len(mafs) || mafs[next].Qname != mafs[beg].Qname ||
				(mafs[next].Qstart >= qendMax && opts.Genome == "") {
				if err := flushGroup(mafs[beg:next]); err != nil {
					return err
				}
				beg = next
				qendMax = 0
			}
		}
		mafs = mafs[:0]
		return nil
	}

	lastQname := ""
	setUp := func() error {
		if err := h.complete(); err != nil {
			return err
		}
		if opts.Score < 0 {
			opts.Score = h.scoreThreshold + int(math.Floor(h.scale*math.Log(2)+0.5))
		}
		isSpliced := opts.Genome != ""
		restartCost := -(math.MinInt32 / 2)
		if !isSpliced {
			restartCost = opts.Score - 1
		}
		jumpProb := 0.0
		if isSpliced {
			jumpProb = opts.Trans / (2 * h.genomeSize) // 2 strands
		}
		jumpScore := math.MinInt32 / 2
		if jumpProb > 0 {
			jumpScore = scoreFromProb(jumpProb, h.scale)
		}
		qualityOffset := 0
		switch h.sequenceFormat {
		case 0:
			qualityOffset = 0
		case 3:
			qualityOffset = 64
		default:
			qualityOffset = 33
		}
		sa.SetParams(-h.gapExistenceCost, -h.gapExtensionCost,
			jumpScore, -restartCost, h.scale, qualityOffset)
		splicePrior := 0.0
		if isSpliced {
			splicePrior = opts.Cis
		}
		sa.SetSpliceParams(splicePrior, opts.Mean, opts.Sdev)
		if err := sa.SetScoreMat(h.scoreMatrix, h.rowNames, h.colNames); err != nil {
			return err
		}
		sa.SetSpliceSignals()
		if opts.Genome != "" {
			if err := sa.ReadGenome(opts.Genome); err != nil {
				return err
			}
		}
		sa.PrintParameters(out)
		fmt.Fprintln(out, "#")
		return nil
	}

	for {
		line, err := in.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		if line == "" && err == io.EOF {
			break
		}
		line = strings.TrimRight(line, "\r\n")

		if state == -1 { // reading the score matrix within the header
			fields := strings.Fields(line)
			if len(fields) == len(h.colNames)+2 && fields[0] == "#" && len(fields[1]) == 1 {
				row := make([]int, 0, len(h.colNames))
				ok := true
				for _, f := range fields[2:] {
					x, e := strconv.Atoi(f)
					if e != nil {
						ok = false
						break
					}
					row = append(row, x)
				}
				if ok {
					h.rowNames += strings.ToUpper(fields[1])
					h.scoreMatrix = append(h.scoreMatrix, row)
					fmt.Fprintln(out, line)
					continue
				}
			}
			state = 0
		}
		if state == 0 { // reading the header
			fields := strings.Fields(line)
			if len(fields) > 1 && fields[0] == "#" && len(h.scoreMatrix) == 0 &&
				allSingleLetters(fields[1:]) {
				h.colNames = strings.ToUpper(strings.Join(fields[1:], ""))
				state = -1
				fmt.Fprintln(out, line)
				continue
			}
			if strings.HasPrefix(line, "#") {
				for _, word := range fields {
					kv := strings.SplitN(word, "=", 2)
					if len(kv) != 2 {
						continue
					}
					v := kv[1]
					switch kv[0] {
					case "a":
						h.gapExistenceCost, _ = strconv.Atoi(v)
					case "b":
						h.gapExtensionCost, _ = strconv.Atoi(v)
					case "A":
						h.insExistenceCost, _ = strconv.Atoi(v)
					case "B":
						h.insExtensionCost, _ = strconv.Atoi(v)
					case "e":
						h.scoreThreshold, _ = strconv.Atoi(v)
					case "t":
						h.scale, _ = strconv.ParseFloat(v, 64)
					case "Q":
						h.sequenceFormat, _ = strconv.Atoi(v)
					case "letters":
						h.genomeSize, _ = strconv.ParseFloat(v, 64)
					}
				}
			} else if strings.TrimSpace(line) != "" {
				if err := setUp(); err != nil {
					return err
				}
				state = 1
			}
		}
		if strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "# batch") {
			fmt.Fprintln(out, line)
		}
		if state == 1 { // reading alignments
			if strings.TrimSpace(line) == "" {
				if err := endBlock(); err != nil {
					return err
				}
			} else {
				keep := "sqp"
				if opts.NoSplit {
					keep = "asqpc"
				}
				if strings.IndexByte(keep, line[0]) >= 0 {
					blockLines = append(blockLines, line)
					// Detect batch boundaries at query s lines.
					if line[0] == 's' && countSLines(blockLines) == 2 && !opts.IsTopSeqQuery {
						fields := strings.Fields(line)
						if len(fields) >= 2 && lastQname != "" && fields[1] != lastQname {
							current := blockLines
							blockLines = nil
							if err := flushBatch(); err != nil {
								return err
							}
							blockLines = current
						}
						if len(fields) >= 2 {
							lastQname = fields[1]
						}
					}
				}
			}
		}
		if err == io.EOF {
			break
		}
	}
	if err := flushBatch(); err != nil {
		return err
	}
	return out.Flush()
}

func allSingleLetters(fields []string) bool {
	for _, f := range fields {
		if len(f) != 1 || !isAlpha(f[0]) {
			return false
		}
	}
	return len(fields) > 0
}

func isAlpha(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z'
}

func countSLines(lines []string) int {
	n := 0
	for _, l := range lines {
		if len(l) > 0 && l[0] == 's' {
			n++
		}
	}
	return n
}

func doOneQuery(sa *SplitAligner, opts Opts, out *bufio.Writer,
	group []UnsplitAlignment) error {
	if opts.Verbose {
		log.Debug.Printf("split: %s\t%d candidates", group[0].Qname, len(group))
	}
	sa.Layout(group)
	bytes := sa.MemoryEstimate(!opts.NoSplit, opts.Direction == 2)
	if bytes > opts.Bytes {
		log.Error.Printf("split: skipping sequence %s (%d bytes)", group[0].Qname, bytes)
		return nil
	}

	if opts.Direction != 0 {
		sa.ForwardBackward()
	}
	if opts.Direction != 1 {
		sa.FlipSpliceSignals()
		sa.ForwardBackward()
		sa.FlipSpliceSignals()
	}

	senseStrandLogOdds := 0.0
	if opts.Direction == 2 {
		senseStrandLogOdds = sa.SpliceSignalStrandLogOdds()
	}

	if opts.NoSplit {
		for i := range group {
			if err := doOneAlignmentPart(sa, opts, out, i, len(group), i, i,
				group[i].Qstart, group[i].Qend, true, senseStrandLogOdds); err != nil {
				return err
			}
		}
		return nil
	}

	viterbiScore := int64(math.MinInt64)
	if opts.Direction != 0 {
		viterbiScore = sa.Viterbi()
	}
	viterbiScoreRev := int64(math.MinInt64)
	if opts.Direction != 1 {
		sa.FlipSpliceSignals()
		viterbiScoreRev = sa.Viterbi()
		sa.FlipSpliceSignals()
	}
	isSenseStrand := viterbiScore >= viterbiScoreRev
	var alnNums []int
	var queryBegs, queryEnds []uint
	if isSenseStrand {
		alnNums, queryBegs, queryEnds = sa.TraceBack(viterbiScore)
	} else {
		sa.FlipSpliceSignals()
		alnNums, queryBegs, queryEnds = sa.TraceBack(viterbiScoreRev)
		sa.FlipSpliceSignals()
	}
	reverseInts(alnNums)
	reverseUints(queryBegs)
	reverseUints(queryEnds)

	numOfParts := len(alnNums)
	for k := 0; k < numOfParts; k++ {
		i := alnNums[k]
		if err := doOneAlignmentPart(sa, opts, out, k, numOfParts, i, i,
			queryBegs[k], queryEnds[k], isSenseStrand, senseStrandLogOdds); err != nil {
			return err
		}
	}
	return nil
}

func reverseInts(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func reverseUints(s []uint) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func formatProbs(p []float64) string {
	var b strings.Builder
	for i, x := range p {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%.3g", x)
	}
	return b.String()
}

func doOneAlignmentPart(sa *SplitAligner, opts Opts, out *bufio.Writer,
	partNum, numOfParts, alnNum, alnIdx int, qSliceBeg, qSliceEnd uint,
	isSenseStrand bool, senseStrandLogOdds float64) error {
	a := &sa.alns[alnNum]
	if qSliceBeg >= a.Qend || qSliceEnd <= a.Qstart {
		return nil // this can happen for spliced alignment
	}

	qBegTrimmed, alnBeg := MafSliceBeg(a.Ralign, a.Qalign, a.Qstart, qSliceBeg)
	qEndTrimmed, alnEnd := MafSliceEnd(a.Ralign, a.Qalign, a.Qend, qSliceEnd)
	if qBegTrimmed >= qEndTrimmed {
		return nil // this can happen for spliced alignment
	}

	score := sa.SegmentScore(alnNum, qSliceBeg, qSliceEnd) -
		sa.SegmentScore(alnNum, qSliceBeg, qBegTrimmed) -
		sa.SegmentScore(alnNum, qEndTrimmed, qSliceEnd)
	if score < opts.Score {
		return nil
	}

	var p []float64
	if opts.Direction != 0 {
		p = sa.MarginalProbs(qBegTrimmed, alnNum, alnBeg, alnEnd)
	}
	var pRev []float64
	if opts.Direction != 1 {
		sa.FlipSpliceSignals()
		pRev = sa.MarginalProbs(qBegTrimmed, alnNum, alnBeg, alnEnd)
		sa.FlipSpliceSignals()
	}
	if opts.Direction == 0 {
		p = pRev
	}
	if opts.Direction == 2 {
		// The exp might overflow to inf, but that is OK.
		reverseProb := 1 / (1 + math.Exp(senseStrandLogOdds))
		forwardProb := 1 - reverseProb
		for i := range p {
			p[i] = forwardProb*p[i] + reverseProb*pRev[i]
		}
	}

	maxProb := 0.0
	for _, x := range p {
		if x > maxProb {
			maxProb = x
		}
	}
	mismap := 1 - maxProb
	if mismap < 1e-10 {
		mismap = 1e-10
	}
	if mismap > opts.Mismap {
		return nil
	}

	fmt.Fprintf(out, "a score=%d mismap=%.3g", score, mismap)
	if opts.Direction == 2 {
		b := senseStrandLogOdds / math.Ln2
		if b < 0.1 && b > -0.1 {
			b = 0
		} else if b > 10 {
			b = math.Floor(b + 0.5)
		} else if b < -10 {
			b = math.Ceil(b - 0.5)
		}
		precision := 3
		if b < 10 && b > -10 {
			precision = 2
		}
		fmt.Fprintf(out, " sense=%.*g", precision, b)
	}
	if opts.Genome != "" && !opts.NoSplit {
		if partNum > 0 {
			tag := " acc="
			if !isSenseStrand {
				tag = " don="
			}
			fmt.Fprintf(out, "%s%s", tag,
				sa.SpliceEndSignalText(alnNum, qSliceBeg, isSenseStrand))
		}
		if partNum+1 < numOfParts {
			tag := " don="
			if !isSenseStrand {
				tag = " acc="
			}
			fmt.Fprintf(out, "%s%s", tag,
				sa.SpliceBegSignalText(alnNum, qSliceEnd, isSenseStrand))
		}
	}
	fmt.Fprintln(out)

	return writeSlicedMaf(out, a, alnBeg, alnEnd, qBegTrimmed, qEndTrimmed, p)
}

// writeSlicedMaf prints the [alnBeg, alnEnd) columns of a candidate, in
// the original input orientation, with a p line of aligned-base
// probabilities.
func writeSlicedMaf(out *bufio.Writer, a *UnsplitAlignment,
	alnBeg, alnEnd uint, qBeg, qEnd uint, probs []float64) error {
	ralign, qalign, qqual := a.SliceAlignment(alnBeg, alnEnd)
	rBeg, rEnd := a.RefSpan(alnBeg, alnEnd)

	rStart := rBeg
	qStart := qBeg
	strand := "+"
	if a.Qstrand == "-" {
		// Undo the parse-time flip for printing.
		rStart = a.RSeqSize - rEnd
		qStart = a.QSeqSize - qEnd
		ralign = reverseComplement(ralign)
		qalign = reverseComplement(qalign)
		qqual = reverseString(qqual)
		probs = append([]float64(nil), probs...)
		for i, j := 0, len(probs)-1; i < j; i, j = i+1, j-1 {
			probs[i], probs[j] = probs[j], probs[i]
		}
		strand = "-"
	}

	nw := len(a.Rname)
	if len(a.Qname) > nw {
		nw = len(a.Qname)
	}
	fmt.Fprintf(out, "s %-*s %d %d + %d %s\n",
		nw, a.Rname, rStart, rEnd-rBeg, a.RSeqSize, ralign)
	fmt.Fprintf(out, "s %-*s %d %d %s %d %s\n",
		nw, a.Qname, qStart, qEnd-qBeg, strand, a.QSeqSize, qalign)
	if qqual != "" {
		fmt.Fprintf(out, "q %-*s %s\n", nw, a.Qname, qqual)
	}
	fmt.Fprintf(out, "p %-*s %s\n", nw, "", formatProbs(probs))
	fmt.Fprintln(out)
	return nil
}
