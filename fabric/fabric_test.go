package fabric

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Nirab123456/LCIM-BitTheorium/cell"
)

func TestSingleProducerSingleConsumerRoundTrip(t *testing.T) {
	arr, err := NewArray(16, cell.ModeValue32, 0, nil)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	defer arr.Close()

	if !arr.Publish(3, 0xAABBCCDD, 0x02) {
		t.Fatal("publish failed")
	}

	ranges := arr.ScanRelation(0x02)
	if len(ranges) != 1 || ranges[0] != (Range{Start: 3, Len: 1}) {
		t.Fatalf("expected scan to find {3,1}, got %v", ranges)
	}

	// Consumer claims, processes, completes.
	published := arr.Load(3)
	claimed := cell.WithState(published, cell.StateClaimed)
	if !arr.TryClaim(3, published, claimed) {
		t.Fatal("claim failed")
	}
	processing := cell.WithState(claimed, cell.StateProcessing)
	arr.Store(3, processing)

	complete := cell.PackValue32(0x11223344, cell.UnpackClk16(processing)+1, cell.StateComplete, 0x02)
	arr.MarkComplete(3, complete)

	if !arr.WaitForChange(3, processing, 100*time.Millisecond) {
		t.Fatal("producer did not observe the completion")
	}
	final := arr.Load(3)
	if cell.UnpackState(final) != cell.StateComplete {
		t.Fatalf("expected COMPLETE, got state %#x", cell.UnpackState(final))
	}
	if cell.UnpackValue32(final) != 0x11223344 {
		t.Fatalf("expected value 0x11223344, got %#x", cell.UnpackValue32(final))
	}
}

func TestRelationScanWithHoles(t *testing.T) {
	arr, err := NewArray(16, cell.ModeValue32, 0, nil)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	defer arr.Close()

	for _, idx := range []uint32{2, 3, 4, 10, 14, 15} {
		arr.Store(idx, cell.PackValue32(0, 0, cell.StateIdle, 0x08))
	}

	got := arr.ScanRelation(0x08)
	want := []Range{{2, 3}, {10, 1}, {14, 2}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("range %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestScanRelationUnionSuperset(t *testing.T) {
	arr, err := NewArray(32, cell.ModeValue32, 0, nil)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	defer arr.Close()

	arr.Store(1, cell.PackValue32(0, 0, cell.StateIdle, 0x01))
	arr.Store(2, cell.PackValue32(0, 0, cell.StateIdle, 0x02))
	arr.Store(3, cell.PackValue32(0, 0, cell.StateIdle, 0x01|0x02))

	union := arr.ScanRelation(0x01 | 0x02)
	m1 := arr.ScanRelation(0x01)
	m2 := arr.ScanRelation(0x02)

	covered := func(ranges []Range, idx int) bool {
		for _, r := range ranges {
			if idx >= r.Start && idx < r.Start+r.Len {
				return true
			}
		}
		return false
	}
	for _, r := range append(append([]Range{}, m1...), m2...) {
		for i := r.Start; i < r.Start+r.Len; i++ {
			if !covered(union, i) {
				t.Fatalf("union scan missing cell %d covered by a component mask", i)
			}
		}
	}
}

func TestRecomputeRelationIndexNarrowsStaleMask(t *testing.T) {
	arr, err := NewArray(32, cell.ModeValue32, 0, nil)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	defer arr.Close()
	arr.InitEpoch(8) // one region covering cells [0,8)

	arr.Store(5, cell.PackValue32(0, 0, cell.StateIdle, 0x01))
	if got := arr.relIndex[0].mask; uint8(got)&0x01 == 0 {
		t.Fatalf("expected the OR-accumulated mask to include 0x01 after the write, got %#x", got)
	}

	// The cell's relation narrows, but the OR-accumulated mask never shrinks
	// on its own (spec.md §3: "never cleared by the scanner"): the stale bit
	// persists until maintenance recomputes it.
	arr.Store(5, cell.PackValue32(0, 0, cell.StateIdle, 0x00))
	if got := arr.relIndex[0].mask; uint8(got)&0x01 == 0 {
		t.Fatalf("mask should still be stale before RecomputeRelationIndex, got %#x", got)
	}

	if !arr.BumpRegion(0) {
		t.Fatal("expected uncontended bump to succeed")
	}
	arr.RecomputeRelationIndex()

	if got := arr.relIndex[0].mask; uint8(got)&0x01 != 0 {
		t.Fatalf("expected RecomputeRelationIndex to drop the stale 0x01 bit, mask is still %#x", got)
	}
	if arr.epochTable.Dirty(0) {
		t.Fatal("expected RecomputeRelationIndex to clear the region's dirty flag")
	}
}

func TestContendedClaimExactlyOnce(t *testing.T) {
	const cells = 1000
	arr, err := NewArray(cells, cell.ModeValue32, 0, nil)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	defer arr.Close()

	for i := uint32(0); i < cells; i++ {
		if !arr.Publish(i, i, 0x01) {
			t.Fatalf("publish %d failed", i)
		}
	}

	var completions int64
	claimCounts := make([]int32, cells)

	var wg sync.WaitGroup
	const consumers = 8
	wg.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func() {
			defer wg.Done()
			for _, r := range arr.ScanRelation(0x01) {
				for idx := r.Start; idx < r.Start+r.Len; idx++ {
					published := arr.Load(uint32(idx))
					if cell.UnpackState(published) != cell.StatePublished {
						continue
					}
					claimed := cell.WithState(published, cell.StateClaimed)
					if !arr.TryClaim(uint32(idx), published, claimed) {
						continue
					}
					if atomic.AddInt32(&claimCounts[idx], 1) != 1 {
						t.Errorf("cell %d claimed more than once", idx)
					}
					complete := cell.WithState(claimed, cell.StateComplete)
					arr.MarkComplete(uint32(idx), complete)
					atomic.AddInt64(&completions, 1)
				}
			}
		}()
	}
	wg.Wait()

	if completions != cells {
		t.Fatalf("expected %d completions, got %d", cells, completions)
	}
}
