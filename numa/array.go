package numa

import (
	"sync/atomic"
	"unsafe"

	"github.com/Nirab123456/LCIM-BitTheorium/primitive"
)

// CellArray owns the single authoritative array of atomic 64-bit packed
// cells: N cells, contiguous, page-aligned, allocated on a specified NUMA
// node. N is fixed at construction. There is no shadow structure — every
// producer and consumer, including a co-processor mapping the same physical
// pages via RawPointer, operates on these exact words.
type CellArray struct {
	n         int
	sizeBytes uintptr
	base      unsafe.Pointer
	alloc     Allocator
	closed    bool
}

// NewCellArray allocates n cells (8 bytes each) on the given NUMA node using
// alloc, zero-initialized (state IDLE, clk 0, relation 0). n must be > 0.
func NewCellArray(n int, node int, alloc Allocator) (*CellArray, error) {
	if n <= 0 {
		return nil, ErrInvalidArgument
	}
	if alloc == nil {
		alloc = DefaultAllocator()
	}
	size := uintptr(n) * 8
	ptr, err := alloc.Alloc(node, size, MinAlignment)
	if err != nil {
		return nil, err
	}
	// The allocator returns zeroed pages (mmap anonymous / fresh heap), so
	// every cell already starts at word 0: state IDLE, clk 0, value 0,
	// relation 0. No explicit per-cell initialization loop is needed, but
	// we clear defensively in case a future allocator reuses memory.
	words := unsafe.Slice((*uint64)(ptr), n)
	for i := range words {
		atomic.StoreUint64(&words[i], 0)
	}
	return &CellArray{n: n, sizeBytes: size, base: ptr, alloc: alloc}, nil
}

// Len returns the number of cells in the array.
func (a *CellArray) Len() int { return a.n }

// RawPointer exposes the page-aligned base address of the array so a
// co-processor driver can map the same physical pages. This is the
// mechanism that makes CPU<->GPU sharing possible and is the system's
// architectural commitment (spec.md §4.2).
func (a *CellArray) RawPointer() unsafe.Pointer { return a.base }

// word returns a pointer to cell i's atomic word. Callers must have already
// range-checked i against Len().
func (a *CellArray) word(i int) *uint64 {
	return (*uint64)(unsafe.Pointer(uintptr(a.base) + uintptr(i)*8))
}

// Load returns the current atomic word at i with acquire semantics. Out of
// range indices return a zero word (spec.md §7: hot-path reads return a
// sentinel, never an error).
func (a *CellArray) Load(i int) uint64 {
	if i < 0 || i >= a.n {
		return 0
	}
	return atomic.LoadUint64(a.word(i))
}

// Store publishes w at i with release semantics. Out of range is a no-op.
func (a *CellArray) Store(i int, w uint64) {
	if i < 0 || i >= a.n {
		return
	}
	atomic.StoreUint64(a.word(i), w)
}

// CompareAndSwap performs the CAS at i, returning the freshest observed word
// and whether the swap succeeded, so a losing caller can retry without a
// second load.
func (a *CellArray) CompareAndSwap(i int, old, new uint64) (fresh uint64, swapped bool) {
	if i < 0 || i >= a.n {
		return 0, false
	}
	return primitive.CompareAndSwapUint64(a.word(i), old, new)
}

// Exchange returns the previous word at i and release-stores w.
func (a *CellArray) Exchange(i int, w uint64) uint64 {
	if i < 0 || i >= a.n {
		return 0
	}
	return atomic.SwapUint64(a.word(i), w)
}

// Close releases the backing allocation. Close is idempotent and safe to
// call once; the array must not be used afterward.
func (a *CellArray) Close() error {
	if a.closed || a.base == nil {
		return nil
	}
	a.alloc.Free(a.base, a.sizeBytes)
	a.base = nil
	a.closed = true
	return nil
}
