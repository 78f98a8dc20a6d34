package align

import (
	"sort"

	farm "github.com/dgryski/go-farm"
)

// SegmentPairPot holds gapless segment pairs and finds (near-)overlaps
// between them efficiently, by binary search after sorting by position.
// An overlapped segment pair is marked by setting its score to zero.
type SegmentPairPot struct {
	Items []SegmentPair
	// order[i] is the index into Items of the i-th pair by descending
	// score.
	order []int
}

// Add puts a segment pair in the pot.
func (p *SegmentPairPot) Add(sp SegmentPair) { p.Items = append(p.Items, sp) }

// Size returns the number of segment pairs.
func (p *SegmentPairPot) Size() int { return len(p.Items) }

// Clear empties the pot for the next query.
func (p *SegmentPairPot) Clear() {
	p.Items = p.Items[:0]
	p.order = p.order[:0]
}

func itemLess(x, y *SegmentPair) bool {
	if x.Diagonal() != y.Diagonal() {
		return x.Diagonal() < y.Diagonal()
	}
	return x.Beg1() < y.Beg1()
}

// Sort must be called before Get, MarkOverlaps or MarkTandemRepeats: it
// sorts the items by (diagonal, start1), and the score order by
// descending score with position tie-breaks for reproducibility.
func (p *SegmentPairPot) Sort() {
	sort.SliceStable(p.Items, func(i, j int) bool {
		return itemLess(&p.Items[i], &p.Items[j])
	})
	p.order = p.order[:0]
	for i := range p.Items {
		p.order = append(p.order, i)
	}
	sort.SliceStable(p.order, func(i, j int) bool {
		x := &p.Items[p.order[i]]
		y := &p.Items[p.order[j]]
		if x.Score != y.Score {
			return x.Score > y.Score
		}
		if x.Start1 != y.Start1 {
			return x.Start1 < y.Start1
		}
		return x.Start2 < y.Start2
	})
}

// Get returns the i-th segment pair by descending score.
func (p *SegmentPairPot) Get(i int) *SegmentPair { return &p.Items[p.order[i]] }

// Mark marks one segment pair as dead.
func Mark(sp *SegmentPair) { sp.Score = 0 }

// IsMarked reports whether a segment pair was marked dead.
func IsMarked(sp *SegmentPair) bool { return sp.Score <= 0 && sp.Score != goodScore }

const goodScore = -2

// MarkAsGood flags a seed that produced a gapped alignment in a probing
// pass, so a later pass can re-use just those seeds.
func MarkAsGood(sp *SegmentPair) { sp.Score = goodScore }

// IsNotMarkedAsGood reports that a segment pair was not flagged good.
func IsNotMarkedAsGood(sp *SegmentPair) bool { return sp.Score != goodScore }

// EraseNotGood removes items not flagged good, stably.
func (p *SegmentPairPot) EraseNotGood() {
	live := p.Items[:0]
	for i := range p.Items {
		if !IsNotMarkedAsGood(&p.Items[i]) {
			live = append(live, p.Items[i])
		}
	}
	p.Items = live
	p.order = p.order[:0]
}

// lowerBoundItem returns the first index whose item is not less than sp.
func (p *SegmentPairPot) lowerBoundItem(sp *SegmentPair) int {
	return sort.Search(len(p.Items), func(i int) bool {
		return !itemLess(&p.Items[i], sp)
	})
}

// MarkOverlaps zeroes the scores of all items on sp's diagonal that
// overlap sp's span.
func (p *SegmentPairPot) MarkOverlaps(sp *SegmentPair) {
	i := p.lowerBoundItem(sp)
	if i > 0 {
		prev := &p.Items[i-1]
		if prev.Diagonal() == sp.Diagonal() && prev.End1() > sp.Beg1() {
			prev.Score = 0
		}
	}
	for ; i < len(p.Items); i++ {
		it := &p.Items[i]
		if it.Diagonal() != sp.Diagonal() || it.Beg1() >= sp.End1() {
			break
		}
		it.Score = 0
	}
}

// MarkAllOverlaps marks overlaps of every segment in sps.
func (p *SegmentPairPot) MarkAllOverlaps(sps []SegmentPair) {
	for i := range sps {
		p.MarkOverlaps(&sps[i])
	}
}

// MarkTandemRepeats marks segments contained in sp within a +-maxDistance
// diagonal window, to avoid death by dynamic programming when
// self-aligning a large sequence.  The scans wrap around the sorted
// container.
func (p *SegmentPairPot) MarkTandemRepeats(sp *SegmentPair, maxDistance uint64) {
	if len(p.Items) == 0 {
		return
	}
	start := p.lowerBoundItem(sp)
	if start == len(p.Items) {
		start = 0
	}

	j := start
	for {
		it := &p.Items[j]
		d := it.Diagonal() - sp.Diagonal()
		if d < 0 || d > int64(maxDistance) {
			break
		}
		if it.Beg2() >= sp.Beg2() && it.End1() <= sp.End1() {
			it.Score = 0
		}
		j++
		if j == len(p.Items) {
			j = 0
		}
		if j == start {
			return
		}
	}

	k := start
	for {
		if k == 0 {
			k = len(p.Items)
		}
		k--
		if k == start {
			return
		}
		it := &p.Items[k]
		d := sp.Diagonal() - it.Diagonal()
		if d < 0 || d > int64(maxDistance) {
			break
		}
		if it.Beg1() >= sp.Beg1() && it.End2() <= sp.End2() {
			it.Score = 0
		}
	}
}

// EraseMarked removes the marked items, keeping the relative order of the
// survivors (a stable partition, for reproducible output).
func (p *SegmentPairPot) EraseMarked() {
	live := p.Items[:0]
	for i := range p.Items {
		if !IsMarked(&p.Items[i]) {
			live = append(live, p.Items[i])
		}
	}
	p.Items = live
	p.order = p.order[:0]
}

// DiagonalTable remembers the furthest query end covered per diagonal, so
// gapless extensions starting inside an already-covered region can be
// skipped.  Diagonals are hash-binned; each bin keeps (queryEnd,
// diagonal) pairs.
type DiagonalTable struct {
	bins [diagonalTableBins][]diagonalEntry
}

const diagonalTableBins = 256

type diagonalEntry struct {
	qryEnd   uint64
	diagonal int64
}

func diagonalBin(d int64) uint64 {
	return farm.Hash64WithSeed(nil, uint64(d)) % diagonalTableBins
}

// IsCovered reports whether (qryPos, refPos) lies in a region already
// covered on its diagonal.
func (t *DiagonalTable) IsCovered(qryPos, refPos uint64) bool {
	d := int64(refPos) - int64(qryPos)
	bin := t.bins[diagonalBin(d)]
	for _, e := range bin {
		if e.diagonal == d && e.qryEnd > qryPos {
			return true
		}
	}
	return false
}

// AddEndpoint records coverage of a diagonal up to qryEnd.
func (t *DiagonalTable) AddEndpoint(qryEnd, refEnd uint64) {
	d := int64(refEnd) - int64(qryEnd)
	bin := &t.bins[diagonalBin(d)]
	for i := range *bin {
		if (*bin)[i].diagonal == d {
			if (*bin)[i].qryEnd < qryEnd {
				(*bin)[i].qryEnd = qryEnd
			}
			return
		}
	}
	*bin = append(*bin, diagonalEntry{qryEnd: qryEnd, diagonal: d})
}

// Clear empties the table for the next query.
func (t *DiagonalTable) Clear() {
	for i := range t.bins {
		t.bins[i] = t.bins[i][:0]
	}
}
