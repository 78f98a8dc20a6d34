// Package index implements a subset suffix array over a delimiter-padded
// reference text.  The suffix array is a list of text positions sorted by
// the order of the suffixes starting there, where letters are compared via
// the subsets of a cyclic subset seed.  For faster matching, "buckets"
// pre-materialize the suffix-array range of every short prefix, and an
// optional child table replaces binary search with direct descent through
// the suffix tree's child intervals.
//
// The index can hold several concatenated suffix arrays, one per word of a
// seed.WordsFinder; cumulativeCounts records their endpoints.
package index

import (
	"github.com/grailbio/last/seed"
)

// Position integers are packed little-endian with posParts bytes each;
// 5 bytes supports reference texts up to 2^40 letters.
const (
	posParts4 = 4
	posParts5 = 5
)

// Range is an unsorted slice of the suffix array, queued for sorting.
type Range struct {
	Beg, End uint64
	Depth    uint64
	SeedNum  int
}

// SuffixArray is a subset suffix array, its buckets, and an optional child
// table.  It is built once, then read-only.
type SuffixArray struct {
	seeds    []*seed.Seed
	posParts int

	// positions holds the packed sorted suffix starts.
	positions []byte
	// cumulativeCounts[i] is the end, in elements, of seed i's part of
	// positions.
	cumulativeCounts []uint64

	// buckets is the flat packed bucket-offset array; bucketEnds[i] is the
	// start cell of seed i's region, and bucketSteps[i][d] is the stride of
	// one subset at depth d for seed i.
	buckets     []byte
	bucketEnds  []uint64
	bucketSteps [][]uint64

	// Child tables; at most one is non-nil.  In the uint16 and uint8 tables
	// a stored 0 means the offset did not fit and lookups fall back to binary
	// search; the type's maximum value marks entries not yet written.
	childTable []uint64
	kiddyTable []uint16
	chibiTable []uint8
}

// Child table width choices.
const (
	ChildNone  = 0
	ChildChibi = 1 // uint8
	ChildKiddy = 2 // uint16
	ChildFull  = 3 // uint64
)

// posPartsFor picks the packed-integer width for a text of the given
// length.
func posPartsFor(textLen uint64) int {
	if textLen < 1<<32 {
		return posParts4
	}
	return posParts5
}

func (x *SuffixArray) posGet(i uint64) uint64 {
	p := x.positions[i*uint64(x.posParts):]
	v := uint64(p[0]) | uint64(p[1])<<8 | uint64(p[2])<<16 | uint64(p[3])<<24
	if x.posParts == posParts5 {
		v |= uint64(p[4]) << 32
	}
	return v
}

func (x *SuffixArray) posSet(i, v uint64) {
	p := x.positions[i*uint64(x.posParts):]
	p[0] = byte(v)
	p[1] = byte(v >> 8)
	p[2] = byte(v >> 16)
	p[3] = byte(v >> 24)
	if x.posParts == posParts5 {
		p[4] = byte(v >> 32)
	}
}

func (x *SuffixArray) posCpy(dst, src uint64) {
	x.posSet(dst, x.posGet(src))
}

func (x *SuffixArray) offGet(cell uint64) uint64 {
	p := x.buckets[cell*uint64(x.posParts):]
	v := uint64(p[0]) | uint64(p[1])<<8 | uint64(p[2])<<16 | uint64(p[3])<<24
	if x.posParts == posParts5 {
		v |= uint64(p[4]) << 32
	}
	return v
}

func (x *SuffixArray) offSet(cell, v uint64) {
	p := x.buckets[cell*uint64(x.posParts):]
	p[0] = byte(v)
	p[1] = byte(v >> 8)
	p[2] = byte(v >> 16)
	p[3] = byte(v >> 24)
	if x.posParts == posParts5 {
		p[4] = byte(v >> 32)
	}
}

// Seeds returns the index's seeds.
func (x *SuffixArray) Seeds() []*seed.Seed { return x.seeds }

// NumPositions returns the number of sampled suffix starts.
func (x *SuffixArray) NumPositions() uint64 {
	return x.cumulativeCounts[len(x.cumulativeCounts)-1]
}

// maxBucketPrefix returns the bucket depth of seedNum.
func (x *SuffixArray) maxBucketPrefix(seedNum int) uint64 {
	return uint64(len(x.bucketSteps[seedNum]) - 1)
}

// maxBucketDepth returns the largest depth whose bucket cell count does not
// exceed maxBuckets.
func maxBucketDepth(s *seed.Seed, maxBuckets uint64, wordLength int) int {
	numOfBuckets := uint64(0)
	product := uint64(1)
	for d := 0; ; d++ {
		if d < wordLength {
			product *= uint64(s.RestrictedSubsetCount(d))
			numOfBuckets = product
		} else {
			product *= uint64(s.UnrestrictedSubsetCount(d))
			numOfBuckets += product
		}
		if numOfBuckets > maxBuckets {
			return d
		}
	}
}

// makeBucketSteps fills steps[0..depth] with per-depth strides:
// steps[d] is the bucket-cell contribution of one subset at depth d.
// Depths at or past wordLength reserve one extra cell per level for the
// delimiter, except at depth 0 where a delimiter cannot occur if depth>0
// positions exist only for proper prefixes.
func makeBucketSteps(s *seed.Seed, depth, wordLength int) []uint64 {
	steps := make([]uint64, depth+1)
	step := uint64(1)
	steps[depth] = step
	for d := depth - 1; d >= 0; d-- {
		if d < wordLength {
			step = step * uint64(s.RestrictedSubsetCount(d))
		} else {
			step = step * uint64(s.UnrestrictedSubsetCount(d))
			if d > 0 {
				step++
			}
		}
		steps[d] = step
	}
	return steps
}

// bucketValue returns the bucket cell of the suffix starting at text[pos],
// descending depth levels of the seed's maps.
func bucketValue(s *seed.Seed, steps []uint64, text []byte, pos uint64, depth int) uint64 {
	val := uint64(0)
	p := s.FirstMap()
	for d := 0; d < depth; {
		sub := s.Map(p)[text[pos+uint64(d)]]
		if sub == seed.Delimiter {
			return val + steps[d] - 1
		}
		d++
		val += uint64(sub) * steps[d]
		p = s.NextMap(p)
	}
	return val
}
