package index

import "math"

// Child tables encode the Abouelhoda-Ohlebusch child intervals: for every
// inner node of the sorted array, one offset to the next sibling or to the
// sub-range beginning.  Three element widths trade memory for coverage;
// in the uint16 and uint8 tables an offset too large for the type is stored
// as 0, which makes lookups fall back to binary search.  Those tables start
// out filled with the type's maximum value, which marks entries not yet
// written during the sort.

func (x *SuffixArray) getChild(i uint64) uint64 { return x.childTable[i] }

func (x *SuffixArray) getChildForward(from uint64) uint64 {
	switch {
	case x.childTable != nil:
		return x.getChild(from)
	case x.kiddyTable != nil:
		return from + uint64(x.kiddyTable[from])
	case x.chibiTable != nil:
		return from + uint64(x.chibiTable[from])
	}
	return from
}

func (x *SuffixArray) getChildReverse(from uint64) uint64 {
	switch {
	case x.childTable != nil:
		return x.getChild(from - 1)
	case x.kiddyTable != nil:
		return from - uint64(x.kiddyTable[from-1])
	case x.chibiTable != nil:
		return from - uint64(x.chibiTable[from-1])
	}
	return from
}

func (x *SuffixArray) setChild(index, value uint64) { x.childTable[index] = value }

func (x *SuffixArray) setKiddy(index, value uint64) {
	if value < math.MaxUint16 {
		x.kiddyTable[index] = uint16(value)
	} else {
		x.kiddyTable[index] = 0
	}
}

func (x *SuffixArray) setChibi(index, value uint64) {
	if value < math.MaxUint8 {
		x.chibiTable[index] = uint8(value)
	} else {
		x.chibiTable[index] = 0
	}
}

func (x *SuffixArray) setChildForward(from, to uint64) {
	if to == from {
		return
	}
	switch {
	case x.childTable != nil:
		x.setChild(from, to)
	case x.kiddyTable != nil:
		x.setKiddy(from, to-from)
	case x.chibiTable != nil:
		x.setChibi(from, to-from)
	}
}

func (x *SuffixArray) setChildReverse(from, to uint64) {
	if to == from {
		return
	}
	switch {
	case x.childTable != nil:
		x.setChild(from-1, to)
	case x.kiddyTable != nil:
		x.setKiddy(from-1, from-to)
	case x.chibiTable != nil:
		x.setChibi(from-1, from-to)
	}
}

func (x *SuffixArray) setChildLink(isFwd bool, origin, beg, end, lo, hi uint64) {
	if isFwd {
		if hi < end {
			x.setChildForward(origin+lo, origin+hi)
		}
	} else {
		if lo > beg {
			x.setChildReverse(origin+hi, origin+lo)
		}
	}
}

func (x *SuffixArray) isChildDirectionForward(beg uint64) bool {
	switch {
	case x.childTable != nil:
		return x.childTable[beg] == 0
	case x.kiddyTable != nil:
		return x.kiddyTable[beg] == math.MaxUint16
	case x.chibiTable != nil:
		return x.chibiTable[beg] == math.MaxUint8
	}
	return true
}

func (x *SuffixArray) hasChildTable() bool {
	return x.childTable != nil || x.kiddyTable != nil || x.chibiTable != nil
}
