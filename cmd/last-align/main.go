package main

// last-align finds local (and semi-global) alignments between a database
// built by last-db and a stream of query sequences, BLAST-like, using a
// subset suffix array for seeding and banded X-drop dynamic programming
// for extension.
//
// Example:
//
//	last-align -f 1 humanDb reads.fastq > out.maf

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/klauspost/compress/gzip"

	"github.com/grailbio/last/align"
	"github.com/grailbio/last/alphabet"
	"github.com/grailbio/last/index"
	"github.com/grailbio/last/scoring"
	"github.com/grailbio/last/seq"
)

// Input sequence formats (-Q).
const (
	formatFasta = iota
	formatFastqSanger
	formatPrb
	formatFastqSolexa
	formatPssm
)

type alignFlags struct {
	outputFormat  int
	outputType    int
	maskLowercase int
	strand        int
	matchScore    int
	mismatchCost  int
	matrixFile    string
	gapExist      int
	gapExtend     int
	gapPair       int
	frameshift    int
	maxDropGapless int
	maxDropGapped  int
	maxDropFinal   int
	minGapless    int
	minGapped     int
	inputFormat   int
	multiplicity  int
	minHitDepth   int
	queryStep     int
	batchSize     uint64
	temperature   float64
	gamma         float64
	geneticCode   string
	outFile       string
	verbose       bool
	maxRepeatDist int
	globality     int
}

// pipeline holds everything one aligner run needs; scratch state within
// it is owned by a single goroutine.
type pipeline struct {
	flags alignFlags

	alph      *alphabet.Alphabet
	queryAlph *alphabet.Alphabet
	gc        *alphabet.GeneticCode
	manifest  *index.Manifest
	text      *seq.MultiSequence
	sa        *index.SuffixArray

	matrix   *scoring.Matrix
	gapCosts scoring.GapCosts
	lambda   float64

	query       *seq.MultiSequence
	translation []byte

	aligner  align.GappedXdropAligner
	centroid *align.Centroid
	writer   align.Writer

	matchCounts [][]uint64

	out *bufio.Writer
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "last-align: "+format+"\n", args...)
	os.Exit(1)
}

func (p *pipeline) logf(format string, args ...interface{}) {
	if p.flags.verbose {
		log.Printf("last-align: "+format, args...)
	}
}

func main() {
	var f alignFlags
	flag.IntVar(&f.outputFormat, "f", 0, "output format: 0 tabular, 1 MAF")
	flag.IntVar(&f.outputType, "j", 3, "output type: 0 counts, 1 gapless, 2 redundant gapped, 3 gapped, 4 probabilities, 5 centroid, 6 AMA")
	flag.IntVar(&f.maskLowercase, "u", 0, "lowercase policy: 0 none, 1 gapless, 2 gapless+gapped, 3 always")
	flag.IntVar(&f.strand, "s", 2, "query strand: 0 reverse, 1 forward, 2 both")
	flag.IntVar(&f.matchScore, "r", -1, "match score")
	flag.IntVar(&f.mismatchCost, "q", -1, "mismatch cost")
	flag.StringVar(&f.matrixFile, "p", "", "score matrix file")
	flag.IntVar(&f.gapExist, "a", -1, "gap existence cost")
	flag.IntVar(&f.gapExtend, "b", -1, "gap extension cost")
	flag.IntVar(&f.gapPair, "c", 100000, "unaligned pair cost")
	flag.IntVar(&f.frameshift, "F", 0, "frameshift cost (0 means not translated)")
	flag.IntVar(&f.maxDropGapless, "y", -1, "max score drop for gapless extension")
	flag.IntVar(&f.maxDropGapped, "x", -1, "max score drop for gapped extension")
	flag.IntVar(&f.maxDropFinal, "z", -1, "max score drop for final gapped extension")
	flag.IntVar(&f.minGapless, "d", -1, "min score for gapless alignments")
	flag.IntVar(&f.minGapped, "e", -1, "min score for gapped alignments")
	flag.IntVar(&f.inputFormat, "Q", 0, "input format: 0 fasta, 1 fastq-sanger, 2 prb, 3 fastq-solexa, 4 pssm")
	flag.IntVar(&f.multiplicity, "m", 10, "max initial matches per query position")
	flag.IntVar(&f.minHitDepth, "l", 1, "min length for initial matches")
	flag.IntVar(&f.queryStep, "k", 1, "use every k-th position of each query")
	flag.Uint64Var(&f.batchSize, "i", 128<<20, "query batch size in bytes")
	flag.Float64Var(&f.temperature, "t", -1, "temperature for probabilities (default 1/lambda)")
	flag.Float64Var(&f.gamma, "g", 1, "gamma for centroid/AMA alignment")
	flag.StringVar(&f.geneticCode, "G", "", "genetic code file")
	flag.StringVar(&f.outFile, "o", "-", "output file")
	flag.BoolVar(&f.verbose, "v", false, "be verbose")
	flag.IntVar(&f.maxRepeatDist, "R", 100, "tandem-repeat marking distance")
	flag.IntVar(&f.globality, "T", 0, "0 local, 1 extend to the sequence ends")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: last-align [options] db-name query-file(s)\n")
		flag.PrintDefaults()
	}
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(1)
	}
	if err := run(f, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "last-align: %v\n", err)
		os.Exit(1)
	}
}

func checkOptions(f *alignFlags) error {
	if f.outputType < 0 || f.outputType > 6 {
		return fmt.Errorf("bad option value: -j %d", f.outputType)
	}
	if f.maskLowercase < 0 || f.maskLowercase > 3 {
		return fmt.Errorf("bad option value: -u %d", f.maskLowercase)
	}
	if f.strand < 0 || f.strand > 2 {
		return fmt.Errorf("bad option value: -s %d", f.strand)
	}
	if f.inputFormat < formatFasta || f.inputFormat > formatPssm {
		return fmt.Errorf("bad option value: -Q %d", f.inputFormat)
	}
	if f.maskLowercase == 2 && f.inputFormat != formatFasta && f.inputFormat != formatPssm {
		return fmt.Errorf("can't combine option -u 2 with quality input")
	}
	if f.frameshift > 0 {
		if f.outputType > 3 {
			return fmt.Errorf("can't combine option -F with option -j %d", f.outputType)
		}
		if f.outputType == 0 {
			return fmt.Errorf("can't combine option -F with option -j 0")
		}
		if f.inputFormat != formatFasta {
			return fmt.Errorf("can't combine option -F with option -Q %d", f.inputFormat)
		}
	}
	return nil
}

func isQualityFormat(q int) bool {
	return q == formatFastqSanger || q == formatPrb || q == formatFastqSolexa
}

func run(f alignFlags, args []string) error {
	if err := checkOptions(&f); err != nil {
		return err
	}
	p := &pipeline{flags: f}
	base := args[0]

	prjFile, err := os.Open(base + ".prj")
	if err != nil {
		return fmt.Errorf("can't open file: %s", base+".prj")
	}
	p.manifest, err = index.ReadManifest(prjFile)
	prjFile.Close() // nolint: errcheck
	if err != nil {
		return err
	}
	if p.manifest.Volumes > 1 {
		return fmt.Errorf("can't read multi-volume databases, sorry")
	}
	p.alph, err = alphabet.New(p.manifest.Alphabet, false)
	if err != nil {
		return fmt.Errorf("unknown alphabet in the database: %s", p.manifest.Alphabet)
	}

	if err := p.setScoreDefaults(); err != nil {
		return err
	}

	p.logf("reading %s...", base)
	p.text, err = seq.FromFiles(base, p.manifest.NumOfSequences, 1)
	if err != nil {
		return err
	}
	p.sa, err = index.FromFiles(base, p.manifest, p.alph)
	if err != nil {
		return err
	}

	isTranslated := f.frameshift > 0
	if isTranslated {
		if !p.alph.IsProtein() {
			return fmt.Errorf("expected a protein database, but got DNA")
		}
		p.queryAlph, err = alphabet.New(alphabet.DNA, false)
		if err != nil {
			return err
		}
		if f.geneticCode == "" {
			p.gc = alphabet.MustStandardGeneticCode()
		} else {
			gcf, err := os.Open(f.geneticCode)
			if err != nil {
				return fmt.Errorf("can't open file: %s", f.geneticCode)
			}
			p.gc, err = alphabet.ParseGeneticCode(gcf)
			gcf.Close() // nolint: errcheck
			if err != nil {
				return err
			}
		}
		p.gc.Init(p.alph, p.queryAlph)
		p.query = seq.NewForAppending(3)
	} else {
		p.queryAlph = p.alph
		p.query = seq.NewForAppending(1)
	}

	p.centroid = align.NewCentroid(&p.aligner)
	p.writer = align.Writer{
		Format:       f.outputFormat,
		IsTranslated: isTranslated,
		Alph:         p.alph,
		QueryAlph:    p.queryAlph,
	}

	var outFile *os.File
	if f.outFile == "-" {
		outFile = os.Stdout
	} else {
		outFile, err = os.Create(f.outFile)
		if err != nil {
			return err
		}
		defer outFile.Close() // nolint: errcheck
	}
	p.out = bufio.NewWriter(outFile)
	defer p.out.Flush() // nolint: errcheck

	p.writeHeader()

	batchCount := 0
	for _, name := range args[1:] {
		p.logf("reading %s...", name)
		in, err := openSequenceFile(name)
		if err != nil {
			return err
		}
		r := bufio.NewReader(in)
		for {
			err := p.appendOneRecord(r)
			if err == io.EOF {
				break
			}
			finishBatch := func() error {
				if e := p.scanBatch(); e != nil {
					return e
				}
				p.query.ReinitForAppending()
				batchCount++
				// This lets downstream parsers read one batch at a time.
				fmt.Fprintf(p.out, "# batch %d\n", batchCount)
				return nil
			}
			switch {
			case err == seq.ErrBatchFull, err == nil && !p.query.IsFinished(),
				err == nil && p.query.FinishedSize() >= p.flags.batchSize:
				if err := finishBatch(); err != nil {
					return err
				}
			case err != nil:
				return err
			}
		}
		in.Close() // nolint: errcheck
	}
	if p.query.FinishedSequences() > 0 {
		if err := p.scanBatch(); err != nil {
			return err
		}
	}
	return p.out.Flush()
}

func openSequenceFile(name string) (io.ReadCloser, error) {
	if name == "-" {
		return os.Stdin, nil
	}
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("can't open file: %s", name)
	}
	if strings.HasSuffix(name, ".gz") {
		z, err := gzip.NewReader(file)
		if err != nil {
			file.Close() // nolint: errcheck
			return nil, err
		}
		return z, nil
	}
	return file, nil
}

// appendOneRecord reads one query record (or continues an unfinished
// FASTA record) and encodes the newly-read region.
func (p *pipeline) appendOneRecord(r *bufio.Reader) error {
	maxLen := p.flags.batchSize
	if p.query.FinishedSequences() == 0 {
		maxLen = ^uint64(0) // always read at least one whole record
	}
	old := p.query.UnfinishedSize()
	var err error
	switch p.flags.inputFormat {
	case formatFasta:
		err = p.query.AppendFromFasta(r, maxLen)
	case formatPrb:
		err = p.query.AppendFromPrb(r, maxLen,
			p.queryAlph.Size, &p.queryAlph.Decode)
	case formatPssm:
		err = p.query.AppendFromPssm(r, maxLen,
			&p.queryAlph.Encode, p.flags.maskLowercase > 1)
	default:
		err = p.query.AppendFromFastq(r, maxLen, true)
	}
	if err != nil {
		return err
	}
	p.queryAlph.Tr(p.query.Seq[old:], true)
	if p.flags.inputFormat == formatFastqSanger || p.flags.inputFormat == formatFastqSolexa {
		offset := scoring.SangerOffset
		if p.flags.inputFormat == formatFastqSolexa {
			offset = scoring.SolexaOffset
		}
		qold := old * uint64(p.query.QualsPerLetter())
		if e := seq.CheckQualityCodes(p.query.Quals[qold:], offset); e != nil {
			return e
		}
	}
	return nil
}

// setScoreDefaults fills in the score parameters the way the original
// does: from the alphabet, then from the matrix statistics.
func (p *pipeline) setScoreDefaults() error {
	f := &p.flags
	isDNA := p.manifest.Alphabet == alphabet.DNA

	switch {
	case f.matrixFile != "":
		mf, err := os.Open(f.matrixFile)
		if err != nil {
			return fmt.Errorf("can't open file: %s", f.matrixFile)
		}
		defer mf.Close() // nolint: errcheck
		p.matrix, err = scoring.Parse(mf)
		if err != nil {
			return err
		}
	case f.matchScore < 0 && f.mismatchCost < 0 && p.alph.IsProtein():
		p.matrix = scoring.MustParse(scoring.Blosum62)
	default:
		match, mismatch := f.matchScore, f.mismatchCost
		if match < 0 {
			match = 1
		}
		if mismatch < 0 {
			mismatch = 1
		}
		p.matrix = scoring.MatchMismatch(match, mismatch, p.alph.Letters)
	}
	p.matrix.Init(p.alph)

	if f.gapExist < 0 {
		if isDNA {
			f.gapExist = 7
		} else {
			f.gapExist = 11
		}
	}
	if f.gapExtend < 0 {
		if isDNA {
			f.gapExtend = 1
		} else {
			f.gapExtend = 2
		}
	}
	p.gapCosts = scoring.Generalized(f.gapExist, f.gapExtend, f.gapPair)

	if f.minGapped < 0 {
		if isDNA {
			f.minGapped = 40
		} else {
			f.minGapped = 100
		}
	}
	if f.minGapless < 0 {
		f.minGapless = f.minGapped * 3 / 5
	}
	if f.maxDropGapless < 0 {
		f.maxDropGapless = int(p.matrix.MaxScore) * 10
	}
	if f.maxDropGapped < 0 {
		f.maxDropGapped = f.minGapped
	}
	if f.maxDropFinal < 0 {
		f.maxDropFinal = f.maxDropGapped
	}
	if f.inputFormat == formatPssm {
		// The matrix maximum is meaningless for a PSSM; use a value high
		// enough to have no effect.
		p.matrix.MaxScore = 10000
	}

	if f.outputType > 0 {
		p.logf("calculating matrix probabilities...")
		lambda, err := scoring.Lambda(p.matrix, p.alph.Size)
		if err != nil {
			if isQualityFormat(f.inputFormat) || (f.temperature < 0 && f.outputType > 3) {
				return err
			}
			p.logf("%v", err)
		} else {
			p.lambda = lambda
			p.logf("lambda=%g", lambda)
		}
	}
	if f.temperature < 0 && p.lambda > 0 {
		f.temperature = 1 / p.lambda
	}
	return nil
}

func (p *pipeline) writeHeader() {
	fmt.Fprintf(p.out, "# last-align\n#\n")
	fmt.Fprintf(p.out, "# a=%d b=%d A=%d B=%d e=%d d=%d x=%d y=%d t=%.3g Q=%d\n",
		p.flags.gapExist, p.flags.gapExtend, p.flags.gapExist, p.flags.gapExtend,
		p.flags.minGapped, p.flags.minGapless, p.flags.maxDropGapped,
		p.flags.maxDropGapless, p.flags.temperature, p.flags.inputFormat)
	fmt.Fprintf(p.out, "# Reference sequences=%d normal letters=%d\n",
		p.manifest.NumOfSequences, p.manifest.NumOfLetters)
	fmt.Fprintf(p.out, "# letters=%d\n#\n", p.manifest.NumOfLetters)
	if p.flags.outputType == 0 {
		fmt.Fprintf(p.out, "# length\tcount\n")
	} else {
		p.matrix.WriteCommented(p.out) // nolint: errcheck
		fmt.Fprintf(p.out, "#\n")
		fmt.Fprintf(p.out, "# Coordinates are 0-based.  For - strand matches, coordinates\n")
		fmt.Fprintf(p.out, "# in the reverse complement of the 2nd sequence are used.\n")
		fmt.Fprintf(p.out, "#\n")
		if p.flags.outputFormat == align.FormatTab {
			fmt.Fprintf(p.out, "# score\tname1\tstart1\talnSize1\tstrand1\tseqSize1\t"+
				"name2\tstart2\talnSize2\tstrand2\tseqSize2\tblocks\n")
		} else {
			fmt.Fprintf(p.out, "# name start alnSize strand seqSize alignment\n")
		}
	}
	fmt.Fprintf(p.out, "#\n")
}
