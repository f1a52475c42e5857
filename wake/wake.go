// Package wake provides the cell-word wait/notify primitive of spec.md
// §4.7: block on a cell until its word changes, wake one or all waiters on
// that exact word. Go exposes no portable per-address atomic wait/notify, so
// this is the fallback the design notes call for: a bucketed table of
// waiter queues hashed by the word's address, each entry closing a channel
// to wake — functionally the condition-variable-plus-generation-counter
// fallback of spec.md §9, with per-address buckets so unrelated cells never
// contend on the same lock.
//
// Grounded on twmb-dash/experimental/futex/futex.go (Facebook folly's Futex,
// transliterated): same bucket-hash-by-address structure, generalized here
// from a single global state word to addressing the packed-cell word
// directly, and re-expressed with channels instead of sync.Cond so that
// WaitForChange can honor a deadline (spec.md §4.7 requires a cancelable
// wait; sync.Cond.Wait has no timeout).
package wake

import (
	"sync"
	"time"
	"unsafe"
)

const numBuckets = 4096

type waiter struct {
	next, prev *waiter
	addr       uintptr
	ch         chan struct{}
}

type bucket struct {
	mu   sync.Mutex
	root waiter // sentinel; root.next/root.prev form a circular list
}

// Table is a wait/notify table shared by every cell in one fabric.Array.
// The zero value is not usable; use NewTable.
type Table struct {
	buckets []bucket
}

// NewTable constructs a wake table. One Table is shared by an entire cell
// array; buckets are hashed by cell address so unrelated cells rarely share
// a lock even under heavy contention.
func NewTable() *Table {
	t := &Table{buckets: make([]bucket, numBuckets)}
	for i := range t.buckets {
		t.buckets[i].root.next = &t.buckets[i].root
		t.buckets[i].root.prev = &t.buckets[i].root
	}
	return t
}

func (t *Table) bucketFor(addr uintptr) *bucket {
	return &t.buckets[hash64(uint64(addr))%uint64(len(t.buckets))]
}

// hash64 is Thomas Wang's 64-bit integer hash, used by the source futex to
// spread pointer addresses across buckets.
func hash64(addr uint64) uint64 {
	addr = (^addr) + (addr << 21)
	addr = addr ^ (addr >> 24)
	addr = addr + (addr << 3) + (addr << 8)
	addr = addr ^ (addr >> 14)
	addr = addr + (addr << 2) + (addr << 4)
	addr = addr ^ (addr >> 28)
	addr = addr + (addr << 31)
	return addr
}

func (b *bucket) link(n *waiter) {
	n.prev = b.root.prev
	b.root.prev.next = n
	n.next = &b.root
	b.root.prev = n
}

func (b *bucket) unlink(n *waiter) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.next, n.prev = nil, nil
}

// WaitForChange blocks until *word differs from expected or timeout elapses
// (timeout < 0 means wait indefinitely). It returns whether a change was
// observed. A notification that leaves *word equal to expected is treated
// as a spurious wakeup: the loop rechecks *word under acquire and waits
// again.
func WaitForChange(t *Table, word *uint64, expected uint64, load func() uint64, timeout time.Duration) bool {
	addr := uintptr(unsafe.Pointer(word))
	b := t.bucketFor(addr)

	var deadline time.Time
	hasDeadline := timeout >= 0
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}

	for {
		if load() != expected {
			return true
		}

		n := &waiter{addr: addr, ch: make(chan struct{})}
		b.mu.Lock()
		// Re-check under the bucket lock so a Notify racing with our
		// registration is never missed.
		if load() != expected {
			b.mu.Unlock()
			return true
		}
		b.link(n)
		b.mu.Unlock()

		if !hasDeadline {
			<-n.ch
			if load() != expected {
				return true
			}
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			b.mu.Lock()
			b.unlink(n)
			b.mu.Unlock()
			return load() != expected
		}

		timer := time.NewTimer(remaining)
		select {
		case <-n.ch:
			timer.Stop()
			if load() != expected {
				return true
			}
		case <-timer.C:
			b.mu.Lock()
			b.unlink(n)
			b.mu.Unlock()
			return load() != expected
		}
	}
}

// NotifyOne wakes at most one waiter blocked on word.
func NotifyOne(t *Table, word *uint64) {
	notify(t, word, 1)
}

// NotifyAll wakes every waiter blocked on word.
func NotifyAll(t *Table, word *uint64) {
	notify(t, word, -1)
}

func notify(t *Table, word *uint64, count int) {
	addr := uintptr(unsafe.Pointer(word))
	b := t.bucketFor(addr)

	b.mu.Lock()
	defer b.mu.Unlock()

	woken := 0
	for n := b.root.next; n != &b.root; {
		next := n.next
		if n.addr == addr && (count < 0 || woken < count) {
			b.unlink(n)
			close(n.ch)
			woken++
		}
		n = next
	}
}
