package main

// last-split reads candidate alignments of query sequences (lastal MAF
// output), and estimates which parts of each query align to which parts
// of the reference: it chains candidates through jumps and cis-splices,
// and annotates each emitted segment with a mismap probability.
//
// Example:
//
//	last-align -f 1 humanDb reads.fastq | last-split -g humanDb

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/grailbio/base/grail"

	"github.com/grailbio/last/split"
)

func main() {
	opts := split.DefaultOpts
	var direction int
	flag.IntVar(&opts.Score, "score", split.DefaultOpts.Score,
		"minimum score of a split segment (-1: from the input header)")
	flag.Float64Var(&opts.Mismap, "mismap", split.DefaultOpts.Mismap,
		"maximum mismap probability of a printed segment")
	flag.StringVar(&opts.Genome, "g", "", "genome database base name (enables spliced alignment)")
	flag.IntVar(&direction, "d", split.DefaultOpts.Direction,
		"RNA direction: 0 reverse, 1 forward, 2 mixed")
	flag.Float64Var(&opts.Cis, "c", split.DefaultOpts.Cis, "cis-splice probability per base")
	flag.Float64Var(&opts.Trans, "t", split.DefaultOpts.Trans, "trans-splice probability per base")
	flag.Float64Var(&opts.Mean, "M", split.DefaultOpts.Mean, "mean of ln(intron length)")
	flag.Float64Var(&opts.Sdev, "S", split.DefaultOpts.Sdev, "standard deviation of ln(intron length)")
	flag.BoolVar(&opts.NoSplit, "n", false, "write the original alignments, annotated, without splitting")
	flag.Uint64Var(&opts.Bytes, "b", split.DefaultOpts.Bytes, "memory budget per query, in bytes")
	flag.BoolVar(&opts.Verbose, "v", false, "be verbose")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: last-split [options] maf-file(s)\n")
		flag.PrintDefaults()
	}
	shutdown := grail.Init()
	defer shutdown()
	opts.Direction = direction

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"-"}
	}
	for _, name := range args {
		var in io.ReadCloser
		if name == "-" {
			in = os.Stdin
		} else {
			f, err := os.Open(name)
			if err != nil {
				fmt.Fprintf(os.Stderr, "last-split: can't open file: %s\n", name)
				os.Exit(1)
			}
			in = f
		}
		err := split.Run(opts, in, os.Stdout)
		in.Close() // nolint: errcheck
		if err != nil {
			fmt.Fprintf(os.Stderr, "last-split: %v\n", err)
			os.Exit(1)
		}
	}
}
