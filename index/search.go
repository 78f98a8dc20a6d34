package index

import (
	"github.com/grailbio/last/seed"
)

// Match finds the suffix-array range matching a prefix of query under seed
// seedNum: the smallest match depth such that there are at most maxHits
// matches and the depth is at least minDepth, or the depth is maxDepth.
// query is the encoded query buffer starting at the match start; text is
// the reference.  The returned range indexes positions ([beg,end) element
// indices); Depth is the matched depth.
func (x *SuffixArray) Match(query, text []byte, seedNum int,
	maxHits, minDepth, maxDepth uint64) (beg, end, depth uint64) {
	// Unnecessary, but makes it faster in some cases:
	if maxHits == 0 && minDepth < maxDepth {
		minDepth = maxDepth
	}

	s := x.seeds[seedNum]
	mapIdx := s.FirstMap()

	// Match using buckets.
	bucketDepth := x.maxBucketPrefix(seedNum)
	startDepth := bucketDepth
	if maxDepth < startDepth {
		startDepth = maxDepth
	}
	steps := x.bucketSteps[seedNum]
	bucketPtr := x.bucketEnds[seedNum]

	for depth < startDepth {
		sub := s.Map(mapIdx)[query[depth]]
		if sub == seed.Delimiter {
			break
		}
		depth++
		bucketPtr += uint64(sub) * steps[depth]
		mapIdx = s.NextMap(mapIdx)
	}

	beg = x.offGet(bucketPtr)
	end = x.offGet(bucketPtr + steps[depth])

	for depth > minDepth && end-beg < maxHits {
		// Maybe we lengthened the match too far: try shortening it again.
		oldIdx := s.PrevMap(mapIdx)
		sub := s.Map(oldIdx)[query[depth-1]]
		bucketPtr -= uint64(sub) * steps[depth]
		oldBeg := x.offGet(bucketPtr)
		oldEnd := x.offGet(bucketPtr + steps[depth-1])
		if oldEnd-oldBeg > maxHits {
			break
		}
		mapIdx = oldIdx
		beg = oldBeg
		end = oldEnd
		depth--
	}

	// Match using binary search.
	if depth < minDepth {
		d := depth
		startMapIdx := mapIdx
		for depth < minDepth {
			sub := s.Map(mapIdx)[query[depth]]
			if sub == seed.Delimiter {
				beg = end
				break
			}
			depth++
			mapIdx = s.NextMap(mapIdx)
		}
		beg, end = x.equalRange2(beg, end, query, d, depth, text, s, startMapIdx)
	}

	childDirection := childUnknown

	for end-beg > maxHits && depth < maxDepth {
		sub := s.Map(mapIdx)[query[depth]]
		if sub == seed.Delimiter {
			beg = end
			break
		}
		beg, end, childDirection =
			x.childRange(beg, end, childDirection, text, depth, s.Map(mapIdx), sub)
		depth++
		mapIdx = s.NextMap(mapIdx)
	}
	return beg, end, depth
}

// CountMatches accumulates, into counts[d], the number of matches of depth
// d starting at query, until maxDepth or a delimiter.  It returns the
// (possibly grown) counts slice.
func (x *SuffixArray) CountMatches(counts []uint64, query, text []byte,
	seedNum int, maxDepth uint64) []uint64 {
	depth := uint64(0)
	s := x.seeds[seedNum]
	mapIdx := s.FirstMap()

	// Match using buckets.
	bucketDepth := x.maxBucketPrefix(seedNum)
	steps := x.bucketSteps[seedNum]
	bucketPtr := x.bucketEnds[seedNum]
	beg := x.offGet(bucketPtr)
	end := x.offGet(bucketPtr + steps[depth])

	for depth < bucketDepth {
		if beg == end {
			return counts
		}
		for uint64(len(counts)) <= depth {
			counts = append(counts, 0)
		}
		counts[depth] += end - beg
		if depth >= maxDepth {
			return counts
		}
		sub := s.Map(mapIdx)[query[depth]]
		if sub == seed.Delimiter {
			return counts
		}
		depth++
		step := steps[depth]
		bucketPtr += uint64(sub) * step
		beg = x.offGet(bucketPtr)
		end = x.offGet(bucketPtr + step)
		mapIdx = s.NextMap(mapIdx)
	}

	// Match using binary search.
	childDirection := childUnknown

	for beg < end {
		for uint64(len(counts)) <= depth {
			counts = append(counts, 0)
		}
		counts[depth] += end - beg
		if depth >= maxDepth {
			return counts
		}
		sub := s.Map(mapIdx)[query[depth]]
		if sub == seed.Delimiter {
			return counts
		}
		beg, end, childDirection =
			x.childRange(beg, end, childDirection, text, depth, s.Map(mapIdx), sub)
		depth++
		mapIdx = s.NextMap(mapIdx)
	}
	return counts
}

// PositionAt returns the text position of suffix-array element i.
func (x *SuffixArray) PositionAt(i uint64) uint64 { return x.posGet(i) }

// Positions returns the text positions in the element range [beg, end).
func (x *SuffixArray) Positions(beg, end uint64) []uint64 {
	out := make([]uint64, 0, end-beg)
	for i := beg; i < end; i++ {
		out = append(out, x.posGet(i))
	}
	return out
}

type childDirection int

const (
	childForward childDirection = iota
	childReverse
	childUnknown
)

// childRange narrows [beg,end) to the sub-range whose letter at offset
// depth is in the given subset, using the child table where possible.
func (x *SuffixArray) childRange(beg, end uint64, dir childDirection,
	text []byte, depth uint64, m *[256]byte, subset byte) (uint64, uint64, childDirection) {
	lookup := func(i uint64) byte {
		return m[text[x.posGet(i)+depth]]
	}

	if !x.hasChildTable() {
		beg, end = x.equalRange(beg, end, text, depth, m, subset)
		return beg, end, dir
	}

	if dir == childUnknown {
		mid := x.getChildForward(beg)
		if mid == beg { // failure: never happens with the full childTable
			mid = x.getChildReverse(end)
			if mid == end { // failure: never happens with the full childTable
				beg, end = x.equalRange(beg, end, text, depth, m, subset)
				return beg, end, dir
			}
			dir = childReverse
		} else if mid < end {
			dir = childForward
		} else {
			dir = childReverse
		}
	}

	if dir == childForward {
		e := lookup(end - 1)
		if subset > e {
			return end, end, dir
		}
		if subset < e {
			dir = childReverse // flip it for next time
		}
		for {
			b := lookup(beg)
			if subset < b {
				return beg, beg, dir
			}
			if b == e {
				return beg, end, dir
			}
			mid := x.getChildForward(beg)
			if mid == beg { // failure
				beg, end = x.equalRange(beg, end, text, depth, m, subset)
				return beg, end, dir
			}
			if subset == b {
				return beg, mid, dir
			}
			beg = mid
			if b+1 == e {
				return beg, end, dir // unnecessary, but may be faster
			}
		}
	}

	b := lookup(beg)
	if subset < b {
		return beg, beg, dir
	}
	if subset > b {
		dir = childForward // flip it for next time
	}
	for {
		e := lookup(end - 1)
		if subset > e {
			return end, end, dir
		}
		if b == e {
			return beg, end, dir
		}
		mid := x.getChildReverse(end)
		if mid == end { // failure
			beg, end = x.equalRange(beg, end, text, depth, m, subset)
			return beg, end, dir
		}
		if subset == e {
			return mid, end, dir
		}
		end = mid
		if b+1 == e {
			return beg, end, dir // unnecessary, but may be faster
		}
	}
}

// equalRange narrows [beg,end) by binary search on a single depth.
func (x *SuffixArray) equalRange(beg, end uint64, text []byte, depth uint64,
	m *[256]byte, subset byte) (uint64, uint64) {
	for beg < end {
		mid := beg + (end-beg)/2
		s := m[text[x.posGet(mid)+depth]]
		if s < subset {
			beg = mid + 1
		} else if s > subset {
			end = mid
		} else {
			return x.lowerBound(beg, mid, text, depth, m, subset),
				x.upperBound(mid+1, end, text, depth, m, subset)
		}
	}
	return beg, end
}

func (x *SuffixArray) lowerBound(beg, end uint64, text []byte, depth uint64,
	m *[256]byte, subset byte) uint64 {
	for beg < end {
		mid := beg + (end-beg)/2
		if m[text[x.posGet(mid)+depth]] < subset {
			beg = mid + 1
		} else {
			end = mid
		}
	}
	return beg
}

func (x *SuffixArray) upperBound(beg, end uint64, text []byte, depth uint64,
	m *[256]byte, subset byte) uint64 {
	for beg < end {
		mid := beg + (end-beg)/2
		if m[text[x.posGet(mid)+depth]] <= subset {
			beg = mid + 1
		} else {
			end = mid
		}
	}
	return end
}

// equalRange2 narrows [beg,end) to the suffixes matching
// query[qBeg:qEnd) under the cyclic maps starting at startMap.  It
// amortizes repeated prefix comparisons between the lower-bound and
// upper-bound sides.
func (x *SuffixArray) equalRange2(beg, end uint64, query []byte,
	qBeg, qEnd uint64, text []byte, s *seed.Seed, startMap int) (uint64, uint64) {
	begDepth, endDepth := qBeg, qBeg
	begMap, endMap := startMap, startMap

	for beg < end {
		mid := beg + (end-beg)/2
		offset := x.posGet(mid)
		// Skip only the prefix known to match on both sides.
		var d uint64
		var mi int
		if begDepth < endDepth {
			d = begDepth
			mi = begMap
		} else {
			d = endDepth
			mi = endMap
		}
		for {
			tx := s.Map(mi)[text[offset+d]]
			qy := s.Map(mi)[query[d]]
			if tx != qy {
				if tx < qy {
					beg = mid + 1
					begDepth, begMap = d, mi
				} else {
					end = mid
					endDepth, endMap = d, mi
				}
				break
			}
			d++
			if d == qEnd { // full match to query[qBeg:qEnd)
				lo := x.lowerBound2(beg, mid, query, begDepth, qEnd, text, s, begMap)
				hi := x.upperBound2(mid+1, end, query, endDepth, qEnd, text, s, endMap)
				return lo, hi
			}
			mi = s.NextMap(mi)
		}
	}
	return beg, end
}

func (x *SuffixArray) lowerBound2(beg, end uint64, query []byte,
	qDepth, qEnd uint64, text []byte, s *seed.Seed, mapIdx int) uint64 {
	for beg < end {
		mid := beg + (end-beg)/2
		offset := x.posGet(mid)
		d := qDepth
		mi := mapIdx
		for {
			if s.Map(mi)[text[offset+d]] < s.Map(mi)[query[d]] {
				beg = mid + 1
				qDepth, mapIdx = d, mi
				break
			}
			d++
			if d == qEnd {
				end = mid
				break
			}
			mi = s.NextMap(mi)
		}
	}
	return beg
}

func (x *SuffixArray) upperBound2(beg, end uint64, query []byte,
	qDepth, qEnd uint64, text []byte, s *seed.Seed, mapIdx int) uint64 {
	for beg < end {
		mid := beg + (end-beg)/2
		offset := x.posGet(mid)
		d := qDepth
		mi := mapIdx
		for {
			if s.Map(mi)[text[offset+d]] > s.Map(mi)[query[d]] {
				end = mid
				qDepth, mapIdx = d, mi
				break
			}
			d++
			if d == qEnd {
				beg = mid + 1
				break
			}
			mi = s.NextMap(mi)
		}
	}
	return end
}
