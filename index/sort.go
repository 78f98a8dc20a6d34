package index

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/grailbio/last/seed"
)

// The sort is a multi-threaded two-array radix sort keyed on subset values
// at progressively deeper cyclic seed positions.  Parts of it are adapted
// from "Engineering Radix Sort" by PM McIlroy, K Bostic, MD McIlroy.

const numOfRadixBuckets = 256

func pushRange(v *[]Range, beg, end, depth uint64, seedNum int) {
	if end-beg > 1 {
		*v = append(*v, Range{Beg: beg, End: end, Depth: depth, SeedNum: seedNum})
	}
}

// Specialized sort for 1 symbol + 1 delimiter, e.g. wildcard positions in
// spaced seeds.
func (x *SuffixArray) radixSort1(stack *[]Range, text []byte, m *[256]byte,
	beg, end, depth uint64, seedNum int) {
	end0 := beg // end of '0's
	begN := end // beginning of delimiters

	for end0 < begN {
		pos := x.posGet(end0)
		switch m[text[pos+depth]] {
		case 0:
			end0++
		default: // the delimiter subset
			begN--
			x.posCpy(end0, begN)
			x.posSet(begN, pos)
		}
	}

	pushRange(stack, beg, end0, depth+1, seedNum)

	if x.isChildDirectionForward(beg) {
		if end0 == end {
			return
		}
		x.setChildForward(beg, end0)
	} else {
		if begN == beg {
			return
		}
		x.setChildReverse(end, begN)
	}
}

// Specialized sort for 2 symbols + 1 delimiter, e.g. transition-constrained
// positions in subset seeds.
func (x *SuffixArray) radixSort2(stack *[]Range, text []byte, m *[256]byte,
	beg, end, depth uint64, seedNum int) {
	end0 := beg
	end1 := beg
	begN := end

	for end1 < begN {
		pos := x.posGet(end1)
		switch m[text[pos+depth]] {
		case 0:
			x.posCpy(end1, end0)
			end1++
			x.posSet(end0, pos)
			end0++
		case 1:
			end1++
		default:
			begN--
			x.posCpy(end1, begN)
			x.posSet(begN, pos)
		}
	}

	pushRange(stack, beg, end0, depth+1, seedNum)
	pushRange(stack, end0, end1, depth+1, seedNum)

	if x.isChildDirectionForward(beg) {
		if end0 == end {
			return
		}
		x.setChildForward(beg, end0)
		if end1 == end {
			return
		}
		x.setChildForward(end0, end1)
	} else {
		if begN == beg {
			return
		}
		x.setChildReverse(end, begN)
		if end0 == beg {
			return
		}
		x.setChildReverse(end1, end0)
	}
}

// Specialized sort for 3 symbols + 1 delimiter, e.g. subset seeds for
// bisulfite-converted DNA.
func (x *SuffixArray) radixSort3(stack *[]Range, text []byte, m *[256]byte,
	beg, end, depth uint64, seedNum int) {
	end0 := beg
	end1 := beg
	beg2 := end
	begN := end

	for end1 < beg2 {
		pos := x.posGet(end1)
		switch m[text[pos+depth]] {
		case 0:
			x.posCpy(end1, end0)
			end1++
			x.posSet(end0, pos)
			end0++
		case 1:
			end1++
		case 2:
			beg2--
			x.posCpy(end1, beg2)
			x.posSet(beg2, pos)
		default:
			beg2--
			x.posCpy(end1, beg2)
			begN--
			x.posCpy(beg2, begN)
			x.posSet(begN, pos)
		}
	}

	pushRange(stack, beg, end0, depth+1, seedNum)
	pushRange(stack, end0, end1, depth+1, seedNum)
	pushRange(stack, beg2, begN, depth+1, seedNum)

	if x.isChildDirectionForward(beg) {
		if end0 == end {
			return
		}
		x.setChildForward(beg, end0)
		if end1 == end {
			return
		}
		x.setChildForward(end0, end1)
		if begN == end {
			return
		}
		x.setChildForward(beg2, begN)
	} else {
		if begN == beg {
			return
		}
		x.setChildReverse(end, begN)
		if beg2 == beg {
			return
		}
		x.setChildReverse(begN, beg2)
		if end0 == beg {
			return
		}
		x.setChildReverse(end1, end0)
	}
}

// Specialized sort for 4 symbols + 1 delimiter, e.g. DNA.
func (x *SuffixArray) radixSort4(stack *[]Range, text []byte, m *[256]byte,
	beg, end, depth uint64, seedNum int) {
	end0 := beg
	end1 := beg
	end2 := beg
	beg3 := end
	begN := end

	for end2 < beg3 {
		pos := x.posGet(end2)
		switch m[text[pos+depth]] {
		case 0:
			x.posCpy(end2, end1)
			end2++
			x.posCpy(end1, end0)
			end1++
			x.posSet(end0, pos)
			end0++
		case 1:
			x.posCpy(end2, end1)
			end2++
			x.posSet(end1, pos)
			end1++
		case 2:
			end2++
		case 3:
			beg3--
			x.posCpy(end2, beg3)
			x.posSet(beg3, pos)
		default:
			beg3--
			x.posCpy(end2, beg3)
			begN--
			x.posCpy(beg3, begN)
			x.posSet(begN, pos)
		}
	}

	pushRange(stack, beg, end0, depth+1, seedNum)
	pushRange(stack, end0, end1, depth+1, seedNum)
	pushRange(stack, end1, end2, depth+1, seedNum)
	pushRange(stack, beg3, begN, depth+1, seedNum)

	if x.isChildDirectionForward(beg) {
		if end0 == end {
			return
		}
		x.setChildForward(beg, end0)
		if end1 == end {
			return
		}
		x.setChildForward(end0, end1)
		if end2 == end {
			return
		}
		x.setChildForward(end1, end2)
		if begN == end {
			return
		}
		x.setChildForward(beg3, begN)
	} else {
		if begN == beg {
			return
		}
		x.setChildReverse(end, begN)
		if beg3 == beg {
			return
		}
		x.setChildReverse(begN, beg3)
		if end1 == beg {
			return
		}
		x.setChildReverse(end2, end1)
		if end0 == beg {
			return
		}
		x.setChildReverse(end1, end0)
	}
}

// General radix sort, in-place permutation into up to 256 buckets.  The
// intermediate oracle array decouples the read and count passes (see
// "Engineering Radix Sort for Strings" by J Karkkainen & T Rantala).
func (x *SuffixArray) radixSortN(stack *[]Range, text []byte, m *[256]byte,
	beg, end, depth uint64, subsetCount int, bucketSizes []uint64, seedNum int) {
	isChildFwd := x.isChildDirectionForward(beg)
	var bucketEnds [numOfRadixBuckets]uint64

	for i := beg; i < end; {
		var oracle [256]byte
		iEnd := i + uint64(len(oracle))
		if iEnd > end {
			iEnd = end
		}
		n := 0
		for ; i < iEnd; i++ {
			oracle[n] = m[text[x.posGet(i)+depth]]
			n++
		}
		for k := 0; k < n; k++ {
			bucketSizes[oracle[k]]++
		}
	}

	// Get bucket ends, and queue the buckets for deeper sorting.
	oldPos := beg
	for i := 0; i < subsetCount; i++ {
		newPos := oldPos + bucketSizes[i]
		bucketEnds[i] = newPos
		pushRange(stack, oldPos, newPos, depth+1, seedNum)
		x.setChildLink(isChildFwd, 0, beg, end, oldPos, newPos)
		oldPos = newPos
	}
	// Don't sort within the delimiter bucket.
	bucketEnds[seed.Delimiter] = end
	x.setChildLink(isChildFwd, 0, beg, end, oldPos, end)

	// Permute items into the correct buckets.
	for i := beg; i < oldPos; {
		position := x.posGet(i)
		var subset uint
		for {
			subset = uint(m[text[position+depth]])
			bucketEnds[subset]--
			j := bucketEnds[subset]
			if j <= i {
				break
			}
			p := x.posGet(j)
			x.posSet(j, position)
			position = p
		}
		x.posSet(i, position)
		i += bucketSizes[subset]
		bucketSizes[subset] = 0 // reset it so we can reuse it
	}
	for i := 0; i < subsetCount; i++ {
		bucketSizes[i] = 0
	}
	bucketSizes[seed.Delimiter] = 0
}

// Out-of-place sort of a cached range: key cache plus bucket counts.
// positions is the unpacked cache; origin maps cache indices back to
// suffix-array slots for the child links.
func (x *SuffixArray) twoArraySort(stack *[]Range, text []byte, m *[256]byte,
	origin, beg, end, depth uint64, subsetCount int, cacheSize uint64,
	positions []uint64, seqCache []byte, seedNum int) {
	isChildFwd := x.isChildDirectionForward(origin + beg)
	var bucketEnds [numOfRadixBuckets]uint64
	bucketSizes := positions[cacheSize : cacheSize+numOfRadixBuckets]
	positions2 := positions[cacheSize+numOfRadixBuckets:]

	for i := beg; i < end; i++ {
		seqCache[i] = m[text[positions[i]+depth]]
	} // this loop fission makes it much faster
	for i := beg; i < end; i++ {
		bucketSizes[seqCache[i]]++
	}

	oldPos := beg
	for i := 0; i < subsetCount; i++ {
		newPos := oldPos + bucketSizes[i]
		bucketSizes[i] = 0 // reset it so we can reuse it
		bucketEnds[i] = oldPos
		pushRange(stack, oldPos, newPos, depth+1, seedNum)
		x.setChildLink(isChildFwd, origin, beg, end, oldPos, newPos)
		oldPos = newPos
	}
	// Don't sort within the delimiter bucket.
	bucketEnds[seed.Delimiter] = oldPos
	bucketSizes[seed.Delimiter] = 0
	x.setChildLink(isChildFwd, origin, beg, end, oldPos, end)

	for i := beg; i < end; i++ {
		positions2[bucketEnds[seqCache[i]]] = positions[i]
		bucketEnds[seqCache[i]]++
	}
	copy(positions[beg:end], positions2[beg:end])
}

func insertionSort(text []byte, s *seed.Seed, positions []uint64,
	beg, end, depth uint64, mapIdx int) {
	for i := beg + 1; i < end; i++ {
		newPos := positions[i]
		j := i
		for j > beg {
			oldPos := positions[j-1]
			if !s.IsLess(text[newPos+depth:], text[oldPos+depth:], mapIdx) {
				break
			}
			positions[j] = oldPos
			j--
		}
		positions[j] = newPos
	}
}

// sort2 orders a cached range of exactly 2 items by direct comparison, and
// records the child link between them.
func (x *SuffixArray) sort2(text []byte, s *seed.Seed, positions []uint64,
	origin, beg, depth uint64, mapIdx int) {
	mid := beg + 1

	b := positions[beg]
	m := positions[mid]
	i := uint64(0)
	p := mapIdx
	for {
		xs := s.Map(p)[text[b+depth+i]]
		ys := s.Map(p)[text[m+depth+i]]
		if xs != ys {
			if xs > ys {
				positions[beg] = m
				positions[mid] = b
			}
			break
		}
		if xs == seed.Delimiter {
			return
		}
		i++
		p = s.NextMap(p)
	}

	if x.isChildDirectionForward(origin + beg) {
		x.setChildForward(origin+beg, origin+mid)
	} else {
		x.setChildReverse(origin+beg+2, origin+mid)
	}
}

func subsetCountAt(s *seed.Seed, depth uint64, wordLength int) int {
	if depth < uint64(wordLength) {
		return s.RestrictedSubsetCount(int(depth))
	}
	return s.UnrestrictedSubsetCount(int(depth))
}

// sortOutOfPlace drains the stack entries at or above stackBase, sorting
// within the unpacked cache.
func (x *SuffixArray) sortOutOfPlace(stack *[]Range, cacheSize uint64,
	intCache []uint64, seqCache []byte, text []byte, wordLength int,
	s *seed.Seed, maxUnsortedInterval, origin uint64, seedNum int) {
	stackBase := len(*stack)

	for len(*stack) >= stackBase {
		top := (*stack)[len(*stack)-1]
		*stack = (*stack)[:len(*stack)-1]
		beg, end, depth := top.Beg, top.End, top.Depth
		interval := end - beg

		const minLength = 1
		if interval <= maxUnsortedInterval && depth >= minLength {
			continue
		}

		mapIdx := int(depth) % s.Span()

		if x.childTable == nil && x.kiddyTable == nil && x.chibiTable == nil {
			if interval < 10 {
				insertionSort(text, s, intCache, beg, end, depth, mapIdx)
				continue
			}
		} else {
			if interval == 2 {
				x.sort2(text, s, intCache, origin, beg, depth, mapIdx)
				continue
			}
		}

		subsetCount := subsetCountAt(s, depth, wordLength)
		x.twoArraySort(stack, text, s.Map(mapIdx), origin, beg, end,
			depth, subsetCount, cacheSize, intCache, seqCache, seedNum)
	}
}

// sortRanges drains one worker's stack.  Ranges that fit in the cache are
// unpacked, sorted out of place, and written back; bigger ranges get an
// in-place radix pass.
func (x *SuffixArray) sortRanges(stack *[]Range, cacheSize uint64,
	intCache []uint64, seqCache []byte, text []byte, wordLength int,
	s *seed.Seed, maxUnsortedInterval uint64, seedNum int) {
	for len(*stack) > 0 {
		top := (*stack)[len(*stack)-1]
		*stack = (*stack)[:len(*stack)-1]
		beg, end, depth := top.Beg, top.End, top.Depth

		if end-beg <= cacheSize {
			for i := beg; i < end; i++ {
				intCache[i-beg] = x.posGet(i)
			}
			pushRange(stack, 0, end-beg, depth, seedNum)
			x.sortOutOfPlace(stack, cacheSize, intCache, seqCache, text,
				wordLength, s, maxUnsortedInterval, beg, seedNum)
			for i := beg; i < end; i++ {
				x.posSet(i, intCache[i-beg])
			}
			continue
		}

		x.radixDispatch(stack, text, s, beg, end, depth, wordLength,
			intCache[cacheSize:cacheSize+numOfRadixBuckets], seedNum)
	}
}

func (x *SuffixArray) radixDispatch(stack *[]Range, text []byte, s *seed.Seed,
	beg, end, depth uint64, wordLength int, bucketSizes []uint64, seedNum int) {
	m := s.Map(int(depth) % s.Span())
	switch subsetCountAt(s, depth, wordLength) {
	case 1:
		x.radixSort1(stack, text, m, beg, end, depth, seedNum)
	case 2:
		x.radixSort2(stack, text, m, beg, end, depth, seedNum)
	case 3:
		x.radixSort3(stack, text, m, beg, end, depth, seedNum)
	case 4:
		x.radixSort4(stack, text, m, beg, end, depth, seedNum)
	default:
		x.radixSortN(stack, text, m, beg, end, depth,
			subsetCountAt(s, depth, wordLength), bucketSizes, seedNum)
	}
}

// SortIndex sorts the suffix array and (optionally) builds a child table.
// Ranges no longer than maxUnsortedInterval are left unsorted, as permitted
// by the seed-match contract.  numOfThreads worker goroutines each own a
// private range stack and caches; ranges are handed to exactly one worker,
// so all writes are to disjoint slices.
func (x *SuffixArray) SortIndex(text []byte, wordLength int,
	maxUnsortedInterval uint64, childTableType int, numOfThreads int) {
	if numOfThreads < 1 {
		numOfThreads = runtime.NumCPU()
	}
	total := x.NumPositions()
	cacheSize := total/(16*8)/uint64(numOfThreads) + 16

	switch childTableType {
	case ChildChibi:
		x.chibiTable = make([]uint8, total)
		for i := range x.chibiTable {
			x.chibiTable[i] = ^uint8(0)
		}
	case ChildKiddy:
		x.kiddyTable = make([]uint16, total)
		for i := range x.kiddyTable {
			x.kiddyTable[i] = ^uint16(0)
		}
	case ChildFull:
		x.childTable = make([]uint64, total)
	}

	beg := uint64(0)
	for i, s := range x.seeds {
		end := x.cumulativeCounts[i]
		if end == beg {
			continue
		}
		var stack []Range
		pushRange(&stack, beg, end, 0, i)
		x.setChildReverse(end, beg)

		// Expand the stack single-threaded until there is enough independent
		// work, then shard it among workers proportional to remaining work.
		var bucketSizes [numOfRadixBuckets]uint64
		for len(stack) > 0 && len(stack) < numOfThreads*4 {
			top := stack[len(stack)-1]
			if top.End-top.Beg <= cacheSize {
				break // small ranges: go straight to the workers
			}
			stack = stack[:len(stack)-1]
			x.radixDispatch(&stack, text, s, top.Beg, top.End, top.Depth,
				wordLength, bucketSizes[:], i)
		}

		shards := shardRanges(stack, numOfThreads)
		var g errgroup.Group
		for _, shard := range shards {
			shard := shard
			g.Go(func() error {
				intCache := make([]uint64, cacheSize*2+numOfRadixBuckets)
				seqCache := make([]byte, cacheSize)
				stack := shard
				x.sortRanges(&stack, cacheSize, intCache, seqCache, text,
					wordLength, s, maxUnsortedInterval, i)
				return nil
			})
		}
		_ = g.Wait() // the workers never fail

		beg = end
	}
}

// shardRanges splits ranges into at most numOfShards groups of roughly
// equal total size.
func shardRanges(ranges []Range, numOfShards int) [][]Range {
	if len(ranges) == 0 {
		return nil
	}
	total := uint64(0)
	for _, r := range ranges {
		total += r.End - r.Beg
	}
	target := total/uint64(numOfShards) + 1
	var shards [][]Range
	var cur []Range
	size := uint64(0)
	for _, r := range ranges {
		cur = append(cur, r)
		size += r.End - r.Beg
		if size >= target && len(shards) < numOfShards-1 {
			shards = append(shards, cur)
			cur = nil
			size = 0
		}
	}
	if len(cur) > 0 {
		shards = append(shards, cur)
	}
	return shards
}
