package main

// last-db reads FASTA sequences and writes a database: the encoded text,
// the names, and a sorted subset suffix array with buckets, ready for
// last-align.
//
// Example:
//
//	last-db -c humanDb human.fa

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/klauspost/compress/gzip"

	"github.com/grailbio/last/alphabet"
	"github.com/grailbio/last/index"
	"github.com/grailbio/last/seed"
	"github.com/grailbio/last/seq"
)

type dbFlags struct {
	isProtein    bool
	softMask     bool
	volumeSize   uint64
	seedFile     string
	seedPattern  string
	step         int
	minSeedLimit int
	bucketDepth  int
	childTable   int
	countsOnly   bool
	inputFormat  int
	verbose      bool
	numOfThreads int
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "last-db: "+format+"\n", args...)
	os.Exit(1)
}

func openSequenceFile(name string) (io.ReadCloser, error) {
	if name == "-" {
		return os.Stdin, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(name, ".gz") {
		z, err := gzip.NewReader(f)
		if err != nil {
			f.Close() // nolint: errcheck
			return nil, err
		}
		return z, nil
	}
	return f, nil
}

func main() {
	flags := dbFlags{}
	flag.BoolVar(&flags.isProtein, "p", false, "interpret the sequences as proteins")
	flag.BoolVar(&flags.softMask, "c", false, "soft-mask lowercase letters")
	flag.Uint64Var(&flags.volumeSize, "s", 1<<40, "maximum database bytes (one volume)")
	flag.StringVar(&flags.seedFile, "u", "", "subset seed file")
	flag.StringVar(&flags.seedPattern, "m", "", "spaced seed pattern, e.g. 1110110")
	flag.IntVar(&flags.step, "w", 1, "index step: sample every w-th position")
	flag.IntVar(&flags.minSeedLimit, "i", 0, "leave suffix ranges up to this size unsorted")
	flag.IntVar(&flags.bucketDepth, "b", -1, "bucket depth (-1: automatic)")
	flag.IntVar(&flags.childTable, "C", index.ChildNone,
		"child table type: 0 none, 1 byte, 2 short, 3 full")
	flag.BoolVar(&flags.countsOnly, "x", false, "just count letters, don't build an index")
	flag.IntVar(&flags.inputFormat, "Q", 0, "input format: 0 fasta")
	flag.BoolVar(&flags.verbose, "v", false, "be verbose")
	flag.IntVar(&flags.numOfThreads, "P", runtime.NumCPU(), "number of sort threads")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: last-db [options] output-name fasta-file(s)\n")
		flag.PrintDefaults()
	}
	shutdown := grail.Init()
	defer shutdown()

	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		os.Exit(1)
	}
	if flags.inputFormat != 0 {
		fatalf("bad option value: -Q %d (the database must be fasta)", flags.inputFormat)
	}
	base := args[0]

	letters := alphabet.DNA
	if flags.isProtein {
		letters = alphabet.Protein
	}
	alph, err := alphabet.New(letters, false)
	if err != nil {
		fatalf("%v", err)
	}

	var seeds []*seed.Seed
	switch {
	case flags.seedFile != "":
		f, err := os.Open(flags.seedFile)
		if err != nil {
			fatalf("can't open file: %s", flags.seedFile)
		}
		s, err := seed.FromText(f, flags.softMask, alph)
		f.Close() // nolint: errcheck
		if err != nil {
			fatalf("%v", err)
		}
		seeds = append(seeds, s)
	case flags.seedPattern != "":
		s, err := seed.FromCode(flags.seedPattern, flags.softMask, alph)
		if err != nil {
			fatalf("%v", err)
		}
		seeds = append(seeds, s)
	case flags.isProtein:
		s, err := seed.FromString(seed.ProteinSeed, flags.softMask, alph)
		if err != nil {
			log.Panic(err)
		}
		seeds = append(seeds, s)
	default:
		s, err := seed.FromString("A C G T", flags.softMask, alph)
		if err != nil {
			log.Panic(err)
		}
		seeds = append(seeds, s)
	}

	multi := seq.NewForAppending(1)
	letterCounts := make([]uint64, alph.Size)
	var letterTotal uint64

	for _, name := range args[1:] {
		if flags.verbose {
			log.Printf("last-db: reading %s...", name)
		}
		in, err := openSequenceFile(name)
		if err != nil {
			fatalf("%v", err)
		}
		r := bufio.NewReader(in)
		for {
			old := multi.UnfinishedSize()
			err := multi.AppendFromFasta(r, flags.volumeSize)
			if err == io.EOF {
				break
			}
			if err != nil {
				fatalf("%v", err)
			}
			newRegion := multi.Seq[old:]
			alph.Tr(newRegion, true)
			alph.Count(newRegion, letterCounts)
			letterTotal += alph.CountNormalLetters(newRegion)
			if !multi.IsFinished() {
				fatalf("encountered a sequence that's too long (the volume limit is %d bytes)",
					flags.volumeSize)
			}
		}
		in.Close() // nolint: errcheck
	}

	if multi.FinishedSequences() == 0 {
		fatalf("no sequences in the input")
	}

	if flags.countsOnly {
		for i := 0; i < alph.Size; i++ {
			fmt.Printf("%c\t%d\n", alph.Letters[i], letterCounts[i])
		}
		return
	}

	if flags.verbose {
		log.Printf("last-db: sorting %d sequences, %d letters...",
			multi.FinishedSequences(), letterTotal)
	}

	finder, err := seed.NewWordsFinder(seeds, 0)
	if err != nil {
		fatalf("%v", err)
	}
	opts := index.DefaultBuildOpts
	opts.Step = flags.step
	opts.BucketDepth = flags.bucketDepth
	opts.ChildTableType = flags.childTable
	opts.MaxUnsortedInterval = uint64(flags.minSeedLimit)
	opts.NumThreads = flags.numOfThreads
	x := index.Build(multi.Seq[:multi.FinishedSize()], seeds, finder,
		&alph.ToUppercase, opts)

	if flags.verbose {
		log.Printf("last-db: writing...")
	}
	if err := multi.ToFiles(base); err != nil {
		fatalf("%v", err)
	}
	maskLowercase := 0
	if flags.softMask {
		maskLowercase = 1
	}
	m := &index.Manifest{
		Version:        index.Version,
		Alphabet:       alph.Letters,
		NumOfSequences: uint64(multi.FinishedSequences()),
		NumOfLetters:   letterTotal,
		MaskLowercase:  maskLowercase,
		SequenceFormat: 0,
		Volumes:        1,
		WordLength:     0,
		Checksums:      map[string]uint64{},
	}
	if err := x.ToFiles(base, m); err != nil {
		fatalf("%v", err)
	}
	prj, err := os.Create(base + ".prj")
	if err != nil {
		fatalf("%v", err)
	}
	if err := m.Write(prj); err != nil {
		fatalf("%v", err)
	}
	if err := prj.Close(); err != nil {
		fatalf("%v", err)
	}
}
