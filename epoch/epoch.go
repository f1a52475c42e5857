// Package epoch implements the lazy per-region logical clock of spec.md
// §4.4: the array is partitioned into equal-sized regions, each carrying a
// 64-bit epoch counter, a dirty flag, and a single-bit CAS lock. A region's
// epoch is bumped at most once per winning CAS on its lock, extending a
// cell's 16-bit in-word clock into a monotonic 64-bit effective timestamp
// without ever rewriting the cell itself.
package epoch

import (
	"sync/atomic"

	"github.com/Nirab123456/LCIM-BitTheorium/primitive"
)

// Callback is invoked after a successful bump, with the region index and
// its new epoch value.
type Callback func(region int, newEpoch uint64)

type region struct {
	epoch uint64
	dirty uint32
	lock  uint32
	_pad  [48]byte // keep regions on separate cache lines under contention
}

// Table holds one epoch/dirty/lock triple per region. RegionSize cells share
// a region; the last region may be short.
type Table struct {
	n          int
	regionSize int
	regions    []region
	cb         atomic.Pointer[Callback]
}

// NewTable partitions n cells into regions of regionSize cells each
// (the last region short if n is not a multiple of regionSize). regionSize
// must be > 0.
func NewTable(n, regionSize int) *Table {
	if regionSize <= 0 {
		regionSize = 1
	}
	count := (n + regionSize - 1) / regionSize
	if count == 0 {
		count = 1
	}
	return &Table{n: n, regionSize: regionSize, regions: make([]region, count)}
}

// RegionBounds returns the [start,end) cell index range owned by region,
// clamped to the array's actual length (the last region may be short).
func (t *Table) RegionBounds(region int) (start, end int) {
	start = region * t.regionSize
	end = start + t.regionSize
	if end > t.n {
		end = t.n
	}
	return
}

// RegionOf returns the region index owning cell idx.
func (t *Table) RegionOf(idx int) int {
	r := idx / t.regionSize
	if r >= len(t.regions) {
		r = len(t.regions) - 1
	}
	return r
}

// RegionCount returns the number of regions in the table.
func (t *Table) RegionCount() int { return len(t.regions) }

// SetCallback installs a callback invoked after every winning Bump. Passing
// nil clears it. Safe to call concurrently with Bump.
func (t *Table) SetCallback(cb Callback) {
	if cb == nil {
		t.cb.Store(nil)
		return
	}
	t.cb.Store(&cb)
}

// Epoch returns the current epoch counter for region, with acquire
// semantics.
func (t *Table) Epoch(region int) uint64 {
	if region < 0 || region >= len(t.regions) {
		return 0
	}
	return atomic.LoadUint64(&t.regions[region].epoch)
}

// Dirty reports whether region has been bumped at least once since the
// table was constructed (or since ClearDirty).
func (t *Table) Dirty(region int) bool {
	if region < 0 || region >= len(t.regions) {
		return false
	}
	return atomic.LoadUint32(&t.regions[region].dirty) != 0
}

// ClearDirty resets region's dirty flag; used by optional background
// maintenance (spec.md §4.4), never required for correctness.
func (t *Table) ClearDirty(region int) {
	if region < 0 || region >= len(t.regions) {
		return
	}
	atomic.StoreUint32(&t.regions[region].dirty, 0)
}

// Bump performs the region's epoch increment:
//  1. CAS lock 0->1; on loss, return false.
//  2. Increment epoch atomically (single writer under lock).
//  3. Set dirty=true.
//  4. Release lock.
//  5. Invoke the callback, if any.
func (t *Table) Bump(idx int) bool {
	if idx < 0 || idx >= len(t.regions) {
		return false
	}
	r := &t.regions[idx]
	if _, swapped := primitive.CompareAndSwapUint8AsUint32(&r.lock, 0, 1); !swapped {
		return false
	}
	newEpoch := atomic.AddUint64(&r.epoch, 1)
	atomic.StoreUint32(&r.dirty, 1)
	atomic.StoreUint32(&r.lock, 0)

	if cb := t.cb.Load(); cb != nil {
		(*cb)(idx, newEpoch)
	}
	return true
}

// EffectiveTS composes the 64-bit effective timestamp of a cell whose
// region is region and whose in-word clock is clk16: (epoch<<16)|clk16.
// This is always monotonic per cell, modulo epoch wraparound (assumed never
// to happen in practice for a 64-bit epoch counter).
func EffectiveTS(epochVal uint64, clk16 uint16) uint64 {
	return (epochVal << 16) | uint64(clk16)
}
