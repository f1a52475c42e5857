package mpmcdesc

import (
	"sync"
	"testing"

	"github.com/Nirab123456/LCIM-BitTheorium/descriptor"
)

func TestFIFOPerSingleProducer(t *testing.T) {
	q := New(16, nil)
	for i := uint32(0); i < 10; i++ {
		if !q.Push(descriptor.Descriptor{Op: descriptor.OpSet, Idx: i}) {
			t.Fatalf("push %d failed unexpectedly", i)
		}
	}
	for i := uint32(0); i < 10; i++ {
		d, ok := q.Pop()
		if !ok {
			t.Fatalf("pop %d failed unexpectedly", i)
		}
		if d.Idx != i {
			t.Fatalf("fifo violated: got idx %d, want %d", d.Idx, i)
		}
	}
}

func TestCapacityRejectsOverflow(t *testing.T) {
	q := New(8, nil) // rounds to 8
	for i := 0; i < q.Cap(); i++ {
		if !q.Push(descriptor.Descriptor{Idx: uint32(i)}) {
			t.Fatalf("push %d unexpectedly failed within capacity %d", i, q.Cap())
		}
	}
	if q.Push(descriptor.Descriptor{Idx: 999}) {
		t.Fatal("push beyond capacity unexpectedly succeeded")
	}
	if _, ok := q.Pop(); !ok {
		t.Fatal("expected to pop after full queue")
	}
	if !q.Push(descriptor.Descriptor{Idx: 999}) {
		t.Fatal("push after freeing a slot unexpectedly failed")
	}
}

func TestMPMCStressNoDuplicatesNoLosses(t *testing.T) {
	const (
		producers      = 4
		perProducer    = 10000
		queueCapacity  = 1024
		totalExpected  = producers * perProducer
	)
	q := New(queueCapacity, nil)

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				idx := uint32(p*perProducer + i)
				d := descriptor.Descriptor{Op: descriptor.OpSet, Idx: idx}
				for !q.Push(d) {
					// queue full: retry, as spec.md §8 scenario 2 allows.
				}
			}
		}(p)
	}

	seen := make(map[uint32]bool, totalExpected)
	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	drainOnce := func() int {
		n := 0
		for _, d := range q.DrainBatch(4096) {
			mu.Lock()
			if seen[d.Idx] {
				mu.Unlock()
				t.Errorf("duplicate idx %d observed", d.Idx)
				continue
			}
			seen[d.Idx] = true
			mu.Unlock()
			n++
		}
		return n
	}

	for {
		drainOnce()
		select {
		case <-done:
			// Drain whatever remains after producers finish.
			for drainOnce() > 0 {
			}
			if len(seen) != totalExpected {
				t.Fatalf("expected %d descriptors, got %d", totalExpected, len(seen))
			}
			return
		default:
		}
	}
}
