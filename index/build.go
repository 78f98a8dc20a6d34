package index

import (
	"github.com/grailbio/last/seed"
)

// BuildOpts controls index construction.
type BuildOpts struct {
	// Step samples every Step-th position of the text (1 = every position).
	Step int
	// MinPositionsPerBucket bounds bucket memory: the bucket depth is the
	// largest depth with (bucket cells) <= (positions)/MinPositionsPerBucket.
	MinPositionsPerBucket int
	// BucketDepth forces a bucket depth; -1 picks it automatically.
	BucketDepth int
	// ChildTableType is one of ChildNone, ChildChibi, ChildKiddy, ChildFull.
	ChildTableType int
	// MaxUnsortedInterval leaves suffix-array slices at most this long
	// unsorted.
	MaxUnsortedInterval uint64
	// NumThreads is the worker count for the parallel sort; 0 means
	// the number of CPUs.
	NumThreads int
}

// DefaultBuildOpts is the default index construction configuration.
var DefaultBuildOpts = BuildOpts{
	Step:                  1,
	MinPositionsPerBucket: 4,
	BucketDepth:           -1,
	ChildTableType:        ChildNone,
}

// Build constructs the suffix array over text for the given seeds.  finder
// routes positions to per-seed arrays (a zero-length finder sends
// everything to seed 0).  toUppercase canonicalizes codes for word lookup.
func Build(text []byte, seeds []*seed.Seed, finder *seed.WordsFinder,
	toUppercase *[256]byte, opts BuildOpts) *SuffixArray {
	x := &SuffixArray{
		seeds:    seeds,
		posParts: posPartsFor(uint64(len(text))),
	}
	x.setWordPositions(text, finder, toUppercase, opts.Step)
	x.SortIndex(text, finder.WordLength, opts.MaxUnsortedInterval,
		opts.ChildTableType, opts.NumThreads)
	x.MakeBuckets(text, finder.WordLength, opts.MinPositionsPerBucket,
		opts.BucketDepth)
	return x
}

// setWordPositions samples suffix starts: every step-th position whose
// word (if any) belongs to a seed, and whose first subset under that
// seed's first map is not the delimiter.
func (x *SuffixArray) setWordPositions(text []byte, finder *seed.WordsFinder,
	toUppercase *[256]byte, step int) {
	if step < 1 {
		step = 1
	}
	numSeeds := len(x.seeds)
	counts := make([]uint64, numSeeds)

	sampled := func(pos int) (int, bool) {
		w := finder.Find(text, pos, toUppercase)
		if w == seed.NoWord {
			return 0, false
		}
		s := x.seeds[w]
		if s.Map(s.FirstMap())[text[pos]] == seed.Delimiter {
			return 0, false
		}
		return int(w), true
	}

	for pos := 0; pos < len(text); pos += step {
		if w, ok := sampled(pos); ok {
			counts[w]++
		}
	}

	x.cumulativeCounts = make([]uint64, numSeeds)
	total := uint64(0)
	for i, c := range counts {
		total += c
		x.cumulativeCounts[i] = total
	}
	x.positions = make([]byte, total*uint64(x.posParts))

	next := make([]uint64, numSeeds)
	for i := range next {
		next[i] = x.cumulativeCounts[i] - counts[i]
	}
	for pos := 0; pos < len(text); pos += step {
		if w, ok := sampled(pos); ok {
			x.posSet(next[w], uint64(pos))
			next[w]++
		}
	}
}

// MakeBuckets builds the bucket arrays.  If bucketDepth < 0, the depth is
// the largest one keeping total bucket cells at or below
// positions/minPositionsPerBucket.
func (x *SuffixArray) MakeBuckets(text []byte, wordLength int,
	minPositionsPerBucket, bucketDepth int) {
	if minPositionsPerBucket < 1 {
		minPositionsPerBucket = 1
	}
	numSeeds := len(x.seeds)
	x.bucketSteps = make([][]uint64, numSeeds)
	x.bucketEnds = make([]uint64, numSeeds+1)

	totalCells := uint64(0)
	for i, s := range x.seeds {
		depth := bucketDepth
		if depth < 0 {
			maxBuckets := x.NumPositions()/uint64(minPositionsPerBucket) + 1
			depth = maxBucketDepth(s, maxBuckets, wordLength)
		}
		if depth < 1 {
			depth = 1
		}
		x.bucketSteps[i] = makeBucketSteps(s, depth, wordLength)
		x.bucketEnds[i] = totalCells
		totalCells += x.bucketSteps[i][0]
	}
	x.bucketEnds[numSeeds] = totalCells
	x.buckets = make([]byte, (totalCells+1)*uint64(x.posParts))

	beg := uint64(0)
	for i, s := range x.seeds {
		end := x.cumulativeCounts[i]
		steps := x.bucketSteps[i]
		depth := len(steps) - 1
		base := x.bucketEnds[i]
		cell := uint64(0) // next bucket cell to fill, relative to base
		for k := beg; k < end; k++ {
			v := bucketValue(s, steps, text, x.posGet(k), depth)
			for cell <= v {
				x.offSet(base+cell, k)
				cell++
			}
		}
		for cell <= steps[0] {
			x.offSet(base+cell, end)
			cell++
		}
		beg = end
	}
}
