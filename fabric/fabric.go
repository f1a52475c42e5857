// Package fabric implements the cell state machine of spec.md §4.3 — the
// central algorithm of this module: CAS-based lifecycle transitions,
// wait/notify on cell change, and relation-indexed scanning, all operating
// directly on the single array of atomic 64-bit packed cells owned by
// numa.CellArray. There is no shadow structure; every operation here reads
// or writes the one authoritative word per cell.
//
// Grounded on original_source/core/headers/AtomicPCArray.hpp: Load/store,
// CompExchange, ReserveForUpdate/CommitUpdate, TryReserveFromLoad,
// ScanRelRange and WaitForChanges map directly onto this package's
// Load/Store/CompareAndSwap, Reserve/Commit, TryClaim, ScanRelation and
// WaitForChange.
package fabric

import (
	"errors"
	"time"
	"unsafe"

	"github.com/Nirab123456/LCIM-BitTheorium/cell"
	"github.com/Nirab123456/LCIM-BitTheorium/epoch"
	"github.com/Nirab123456/LCIM-BitTheorium/numa"
	"github.com/Nirab123456/LCIM-BitTheorium/wake"
)

// ErrInvalidArgument mirrors numa.ErrInvalidArgument for construction paths
// that fail before ever touching the allocator (e.g. n == 0).
var ErrInvalidArgument = errors.New("fabric: invalid argument")

// Array is the handle of spec.md §6: an authoritative array of packed
// cells, plus the epoch table and wake table that extend it.
type Array struct {
	arr  *numa.CellArray
	mode cell.Mode
	wake *wake.Table

	epochTable *epoch.Table
	relIndex   []relBucket
}

type relBucket struct {
	// mask is an OR-accumulation of every relation byte written into this
	// region; stored as uint32 so sync/atomic has a native CAS/OR to work
	// with, even though only the low 8 bits are meaningful.
	mask uint32
}

// NewArray allocates n cells in the given mode, pinned to node via alloc
// (nil selects the platform default allocator).
func NewArray(n int, mode cell.Mode, node int, alloc numa.Allocator) (*Array, error) {
	if n <= 0 {
		return nil, ErrInvalidArgument
	}
	backing, err := numa.NewCellArray(n, node, alloc)
	if err != nil {
		return nil, err
	}
	return &Array{arr: backing, mode: mode, wake: wake.NewTable()}, nil
}

// Len returns the number of cells.
func (a *Array) Len() int { return a.arr.Len() }

// Mode returns the packed layout this array was constructed with.
func (a *Array) Mode() cell.Mode { return a.mode }

// RawPointer exposes the page-aligned base address of the backing array, so
// a co-processor driver can map the same physical pages (spec.md §4.2).
func (a *Array) RawPointer() unsafe.Pointer { return a.arr.RawPointer() }

// Close releases the array's backing allocation. Not safe to call
// concurrently with any in-flight operation.
func (a *Array) Close() error { return a.arr.Close() }

// Load returns the current word at idx with acquire semantics. Out of range
// returns a zero word.
func (a *Array) Load(idx uint32) uint64 {
	return a.arr.Load(int(idx))
}

// Store publishes w at idx with release semantics and notifies every
// waiter blocked on that cell.
func (a *Array) Store(idx uint32, w uint64) {
	i := int(idx)
	a.arr.Store(i, w)
	a.markRelation(i, cell.UnpackRelation(w))
	wake.NotifyAll(a.wake, a.wordPtr(i))
}

// StoreSilent publishes w at idx with release semantics but does not
// notify waiters. Used by the worker's commit phase when the originating
// descriptor carries FlagSkipNotify (spec.md §4.6 step 6: "each commit
// notifies one waiter on that cell (unless SKIP_NOTIFY is set)").
func (a *Array) StoreSilent(idx uint32, w uint64) {
	i := int(idx)
	a.arr.Store(i, w)
	a.markRelation(i, cell.UnpackRelation(w))
}

// Exchange returns the previous word at idx and release-stores w.
func (a *Array) Exchange(idx uint32, w uint64) uint64 {
	i := int(idx)
	prev := a.arr.Exchange(i, w)
	a.markRelation(i, cell.UnpackRelation(w))
	wake.NotifyAll(a.wake, a.wordPtr(i))
	return prev
}

// Reserve performs the IDLE/COMPLETE -> PENDING transition: CAS from
// expectedOld to a pending word carrying an odd clock (invariant 2) and
// relHint as its relation. Under ModeValue32 the clock is batchLo with its
// low bit forced to 1; under ModeClk48 batchLo is not used and the clock
// advances from expectedOld's to the next odd value. On success it returns
// the pending word actually stored; on failure (lost CAS) it returns the
// freshest observed word and false — the caller re-reads and retries,
// never overwrites blindly (invariant 3).
func (a *Array) Reserve(idx uint32, expectedOld uint64, batchLo uint16, relHint uint8) (uint64, bool) {
	i := int(idx)
	pending := a.pendingWordFrom(expectedOld, batchLo, relHint)
	fresh, swapped := a.arr.CompareAndSwap(i, expectedOld, pending)
	if swapped {
		a.markRelation(i, relHint)
		wake.NotifyAll(a.wake, a.wordPtr(i))
		return pending, true
	}
	return fresh, false
}

// Commit performs the PENDING -> committed transition (committed carries
// state PUBLISHED or COMPLETE, chosen by the caller). If the CAS against
// expectedPending loses, Commit falls through to an unconditional release
// store of committed — forward progress over strict isolation, per spec.md
// §4.3's Commit contract and §7's "reservation miss" tolerance.
func (a *Array) Commit(idx uint32, expectedPending uint64, committed uint64) bool {
	i := int(idx)
	_, swapped := a.arr.CompareAndSwap(i, expectedPending, committed)
	if !swapped {
		a.arr.Store(i, committed)
	}
	a.markRelation(i, cell.UnpackRelation(committed))
	wake.NotifyAll(a.wake, a.wordPtr(i))
	return swapped
}

// TryClaim performs the PUBLISHED -> CLAIMED transition. On success this
// goroutine owns the cell; on a lost race it returns false and the caller
// must not mutate the cell.
func (a *Array) TryClaim(idx uint32, expectedPublished uint64, claimed uint64) bool {
	i := int(idx)
	_, swapped := a.arr.CompareAndSwap(i, expectedPublished, claimed)
	if swapped {
		a.markRelation(i, cell.UnpackRelation(claimed))
		wake.NotifyAll(a.wake, a.wordPtr(i))
	}
	return swapped
}

// MarkComplete release-stores word (expected to carry state COMPLETE) and
// notifies waiters. Used by a consumer after processing a claimed cell.
func (a *Array) MarkComplete(idx uint32, word uint64) {
	a.Store(idx, word)
}

// Publish is the producer convenience of spec.md §6: it drives a cell
// through IDLE -> PENDING -> PUBLISHED in one call, internally retrying the
// reserve CAS against a fresh read until it wins (this is not itself a
// primitive of §4.3 — Reserve/Commit remain the primitives a worker
// composes for coalesced batches).
func (a *Array) Publish(idx uint32, value uint32, rel uint8) bool {
	i := int(idx)
	for {
		old := a.arr.Load(i)
		pending, ok := a.Reserve(idx, old, 0, rel)
		if !ok {
			continue
		}
		published := a.publishedWordFrom(pending, value, rel)
		return a.Commit(idx, pending, published)
	}
}

// WaitForChange blocks until the word at idx differs from expected or
// timeout elapses (negative means indefinite); a notification that leaves
// the word unchanged does not end the wait. Returns whether a change was
// observed.
func (a *Array) WaitForChange(idx uint32, expected uint64, timeout time.Duration) bool {
	if int(idx) >= a.arr.Len() {
		return false
	}
	i := int(idx)
	return wake.WaitForChange(a.wake, a.wordPtr(i), expected, func() uint64 { return a.arr.Load(i) }, timeout)
}

func (a *Array) wordPtr(i int) *uint64 {
	return (*uint64)(unsafe.Pointer(uintptr(a.arr.RawPointer()) + uintptr(i)*8))
}
