package align

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestSegmentPairPotSort(t *testing.T) {
	var pot SegmentPairPot
	pot.Add(SegmentPair{Start1: 5, Start2: 1, Size: 4, Score: 10})
	pot.Add(SegmentPair{Start1: 1, Start2: 1, Size: 4, Score: 30})
	pot.Add(SegmentPair{Start1: 9, Start2: 2, Size: 4, Score: 20})
	pot.Sort()

	expect.EQ(t, pot.Get(0).Score, int32(30))
	expect.EQ(t, pot.Get(1).Score, int32(20))
	expect.EQ(t, pot.Get(2).Score, int32(10))

	// Items are position-sorted by (diagonal, start1).
	for i := 1; i < len(pot.Items); i++ {
		x, y := &pot.Items[i-1], &pot.Items[i]
		expect.True(t, x.Diagonal() < y.Diagonal() ||
			(x.Diagonal() == y.Diagonal() && x.Beg1() <= y.Beg1()))
	}
}

func TestMarkOverlaps(t *testing.T) {
	var pot SegmentPairPot
	pot.Add(SegmentPair{Start1: 10, Start2: 5, Size: 5, Score: 7})  // diagonal 5
	pot.Add(SegmentPair{Start1: 13, Start2: 8, Size: 5, Score: 6})  // diagonal 5, overlaps
	pot.Add(SegmentPair{Start1: 30, Start2: 25, Size: 5, Score: 9}) // diagonal 5, separate
	pot.Add(SegmentPair{Start1: 11, Start2: 5, Size: 5, Score: 8})  // diagonal 6
	pot.Sort()

	sp := SegmentPair{Start1: 9, Start2: 4, Size: 8, Score: 100} // diagonal 5, spans 9..17
	pot.MarkOverlaps(&sp)

	marked := 0
	for i := range pot.Items {
		if IsMarked(&pot.Items[i]) {
			marked++
			expect.EQ(t, pot.Items[i].Diagonal(), int64(5))
			expect.True(t, pot.Items[i].Beg1() < sp.End1())
		}
	}
	expect.EQ(t, marked, 2)
}

func TestMarkTandemRepeats(t *testing.T) {
	var pot SegmentPairPot
	pot.Add(SegmentPair{Start1: 10, Start2: 5, Size: 4, Score: 5}) // diag 5, inside
	pot.Add(SegmentPair{Start1: 12, Start2: 5, Size: 4, Score: 5}) // diag 7, inside window
	pot.Add(SegmentPair{Start1: 90, Start2: 5, Size: 4, Score: 5}) // diag 85, far away
	pot.Sort()

	sp := SegmentPair{Start1: 8, Start2: 4, Size: 20, Score: 100} // diag 4
	pot.MarkTandemRepeats(&sp, 10)

	expect.True(t, IsMarked(&pot.Items[0]))
	expect.True(t, IsMarked(&pot.Items[1]))
	expect.False(t, IsMarked(&pot.Items[2]))
}

func TestEraseMarkedStable(t *testing.T) {
	var pot SegmentPairPot
	pot.Add(SegmentPair{Start1: 1, Start2: 1, Size: 2, Score: 5})
	pot.Add(SegmentPair{Start1: 2, Start2: 1, Size: 2, Score: 0}) // marked
	pot.Add(SegmentPair{Start1: 3, Start2: 1, Size: 2, Score: 7})
	pot.EraseMarked()

	expect.EQ(t, pot.Size(), 2)
	expect.EQ(t, pot.Items[0].Start1, uint64(1))
	expect.EQ(t, pot.Items[1].Start1, uint64(3))
}

func TestDiagonalTable(t *testing.T) {
	var dt DiagonalTable
	expect.False(t, dt.IsCovered(5, 15))
	dt.AddEndpoint(10, 20) // diagonal 10, covered through query 10
	expect.True(t, dt.IsCovered(5, 15))
	expect.False(t, dt.IsCovered(10, 20)) // the endpoint itself is not covered
	expect.False(t, dt.IsCovered(5, 16))  // a different diagonal
	dt.Clear()
	expect.False(t, dt.IsCovered(5, 15))
}

func TestAlignmentPotEraseSuboptimal(t *testing.T) {
	mk := func(b1, b2, size uint64, score int32) Alignment {
		var a Alignment
		a.FromSegmentPair(SegmentPair{Start1: b1, Start2: b2, Size: size, Score: score})
		return a
	}
	var pot AlignmentPot
	pot.Add(mk(10, 10, 5, 30))
	pot.Add(mk(10, 10, 7, 20)) // same start, worse: dropped
	pot.Add(mk(50, 50, 5, 10))
	pot.EraseSuboptimal()

	expect.EQ(t, pot.Size(), 2)
	expect.EQ(t, pot.Items[0].Score, int32(30))
	expect.EQ(t, pot.Items[1].Score, int32(10))
}
