package fabric

import (
	"sync/atomic"

	"github.com/Nirab123456/LCIM-BitTheorium/cell"
	"github.com/Nirab123456/LCIM-BitTheorium/epoch"
)

// InitEpoch partitions the array into regions of regionSize cells and
// enables region epoch bumping, EffectiveTS, and the relation-index scan
// acceleration. Must be called before BumpRegion/EffectiveTS/SetEpochCallback
// are meaningful; ScanRelation works (unaccelerated) without it.
func (a *Array) InitEpoch(regionSize int) {
	a.epochTable = epoch.NewTable(a.arr.Len(), regionSize)
	a.relIndex = make([]relBucket, a.epochTable.RegionCount())
}

// BumpRegion bumps the epoch counter of the given region index. Returns
// false if the region's lock is already held by a concurrent bumper, or if
// InitEpoch has not been called.
func (a *Array) BumpRegion(region int) bool {
	if a.epochTable == nil {
		return false
	}
	return a.epochTable.Bump(region)
}

// RegionOf returns the region index owning cell idx (requires InitEpoch).
func (a *Array) RegionOf(idx uint32) int {
	if a.epochTable == nil {
		return 0
	}
	return a.epochTable.RegionOf(int(idx))
}

// EffectiveTS returns the monotonic effective timestamp of the cell at idx:
// (epoch<<16)|clk16 under ModeValue32, or the raw 48-bit clock under
// ModeClk48 (which needs no epoch extension — 48 bits does not wrap in
// practice). Returns the bare clock if InitEpoch has not been called.
func (a *Array) EffectiveTS(idx uint32) uint64 {
	w := a.Load(idx)
	if a.mode == cell.ModeClk48 {
		return cell.UnpackClk48(w)
	}
	clk16 := cell.UnpackClk16(w)
	if a.epochTable == nil {
		return uint64(clk16)
	}
	region := a.epochTable.RegionOf(int(idx))
	return epoch.EffectiveTS(a.epochTable.Epoch(region), clk16)
}

// SetEpochCallback installs a callback invoked after every winning
// BumpRegion call.
func (a *Array) SetEpochCallback(cb epoch.Callback) {
	if a.epochTable == nil {
		return
	}
	a.epochTable.SetCallback(cb)
}

// RecomputeRelationIndex rebuilds the OR-accumulated relation mask of every
// dirty region from a fresh per-cell scan, then clears the dirty flag. This
// is the "optional maintenance hook" of spec.md §4.4/§9: the index is
// never required for correctness (ScanRelation falls back to the per-cell
// check on a stale or absent index), but periodic recomputation bounds how
// far a region's OR can drift from cells that have since retired back to a
// narrower relation set. Safe to call concurrently with scans and writers:
// the fresh mask is installed by a CAS against the mask read before the
// per-cell scan, and the scan is redone if a writer ORed a bit in
// meanwhile, so a concurrent write is never dropped from the index.
func (a *Array) RecomputeRelationIndex() {
	if a.epochTable == nil {
		return
	}
	for region := 0; region < len(a.relIndex); region++ {
		if !a.epochTable.Dirty(region) {
			continue
		}
		start, end := a.epochTable.RegionBounds(region)
		for {
			old := atomic.LoadUint32(&a.relIndex[region].mask)
			var fresh uint32
			for i := start; i < end; i++ {
				fresh |= uint32(cell.UnpackRelation(a.arr.Load(i)))
			}
			if atomic.CompareAndSwapUint32(&a.relIndex[region].mask, old, fresh) {
				break
			}
		}
		a.epochTable.ClearDirty(region)
	}
}

// orRelationInto ORs rel into the low byte of *mask via a CAS loop — the
// region relation index's OR-accumulation (spec.md §3) has no native atomic
// "or" in sync/atomic, so winning the bit in is a compare-and-swap retry,
// same shape as every other CAS in this module.
func orRelationInto(mask *uint32, rel uint8) {
	if rel == 0 {
		return
	}
	for {
		old := atomic.LoadUint32(mask)
		next := old | uint32(rel)
		if next == old {
			return
		}
		if atomic.CompareAndSwapUint32(mask, old, next) {
			return
		}
	}
}
