// Package mpmcdesc implements the bounded MPMC descriptor queue of spec.md
// §4.5 and §C5: a Vyukov-style sequence-based ring buffer, sized to the next
// power of two, carrying descriptor.Descriptor values in place (no heap
// allocation per enqueue).
//
// Grounded on twmb-dash/queue/mpmc/mpmcdvq (a transliteration of Dmitry
// Vyukov's bounded MPMC queue), adapted here from unsafe.Pointer slots to an
// in-place descriptor.Descriptor per spec.md §3 ("Each slot: a sequence
// counter plus an in-place descriptor").
package mpmcdesc

import (
	"sync/atomic"
	"time"

	"github.com/Nirab123456/LCIM-BitTheorium/descriptor"
	"github.com/Nirab123456/LCIM-BitTheorium/primitive"
)

type cell struct {
	seq  uintptr
	desc descriptor.Descriptor
}

// HighWaterFunc is an advisory backpressure callback, fired when occupancy
// is observed to be at or above 80% of capacity. Precise accounting is not
// required (spec.md §4.5): it is a signal, not a guarantee.
type HighWaterFunc func(occupancy, capacity int)

// Queue is a bounded multi-producer, multi-consumer descriptor queue.
type Queue struct {
	_pad0 [primitive.FalseShare - primitive.UpSz]byte
	mask  uintptr
	cells []cell
	_pad1 [primitive.FalseShare - primitive.UpSz]byte
	// enqPos tracks the current enqueueing cursor.
	enqPos uintptr
	_pad2  [primitive.FalseShare - primitive.UpSz]byte
	// deqPos tracks the current dequeueing cursor.
	deqPos uintptr
	_pad3  [primitive.FalseShare - primitive.UpSz]byte

	highWater HighWaterFunc
}

// New returns a new Queue with capacity rounded up to the next power of 2.
// A high-water callback may be nil.
func New(capacity int, highWater HighWaterFunc) *Queue {
	size2 := primitive.Next2(uintptr(capacity))
	cells := make([]cell, size2)
	for i := uintptr(0); i < size2; i++ {
		cells[i].seq = i
	}
	return &Queue{mask: size2 - 1, cells: cells, highWater: highWater}
}

// Cap returns the queue's actual (power-of-two-rounded) capacity.
func (q *Queue) Cap() int { return int(q.mask + 1) }

// Push attempts a non-blocking enqueue, returning false if the queue is
// full. Follows the Vyukov producer protocol of spec.md §4.5 step by step.
func (q *Queue) Push(d descriptor.Descriptor) bool {
	var c *cell
	pos := atomic.LoadUintptr(&q.enqPos)
	for {
		c = &q.cells[pos&q.mask]
		seq := atomic.LoadUintptr(&c.seq)
		cmp := int(seq) - int(pos)
		if cmp == 0 {
			var swapped bool
			if pos, swapped = primitive.CompareAndSwapUintptr(&q.enqPos, pos, pos+1); swapped {
				break
			}
			continue
		}
		if cmp < 0 {
			return false
		}
		pos = atomic.LoadUintptr(&q.enqPos)
	}
	c.desc = d
	atomic.StoreUintptr(&c.seq, pos)

	q.checkHighWater()
	return true
}

// PushBlocking spins with short sleeps until Push succeeds or timeout
// elapses (timeout < 0 means block indefinitely). Returns whether the push
// eventually succeeded.
func (q *Queue) PushBlocking(d descriptor.Descriptor, timeout time.Duration) bool {
	var deadline time.Time
	hasDeadline := timeout >= 0
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}
	for {
		if q.Push(d) {
			return true
		}
		if hasDeadline && time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Microsecond)
	}
}

// Pop attempts a non-blocking dequeue, returning false if the queue is
// empty.
func (q *Queue) Pop() (descriptor.Descriptor, bool) {
	var c *cell
	pos := atomic.LoadUintptr(&q.deqPos)
	for {
		c = &q.cells[pos&q.mask]
		seq := atomic.LoadUintptr(&c.seq)
		cmp := int(seq) - int(pos+1)
		if cmp == 0 {
			var swapped bool
			if pos, swapped = primitive.CompareAndSwapUintptr(&q.deqPos, pos, pos+1); swapped {
				break
			}
			continue
		}
		if cmp < 0 {
			return descriptor.Descriptor{}, false
		}
		pos = atomic.LoadUintptr(&q.deqPos)
	}
	d := c.desc
	atomic.StoreUintptr(&c.seq, pos+q.mask)
	return d, true
}

// DrainBatch opportunistically collects up to max descriptors in one call,
// to amortize worker scheduling overhead (spec.md §4.5). It never blocks;
// it simply stops as soon as Pop reports empty.
func (q *Queue) DrainBatch(max int) []descriptor.Descriptor {
	out := make([]descriptor.Descriptor, 0, max)
	for len(out) < max {
		d, ok := q.Pop()
		if !ok {
			break
		}
		out = append(out, d)
	}
	return out
}

func (q *Queue) checkHighWater() {
	if q.highWater == nil {
		return
	}
	head := int(atomic.LoadUintptr(&q.enqPos))
	tail := int(atomic.LoadUintptr(&q.deqPos))
	cap := q.Cap()
	occ := head - tail
	if occ < 0 {
		occ += cap
	}
	if occ*10 >= cap*8 {
		q.highWater(occ, cap)
	}
}
