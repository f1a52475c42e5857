package fabric

import (
	"sync/atomic"

	"github.com/Nirab123456/LCIM-BitTheorium/cell"
)

// Range is a maximal contiguous run of cells whose relation overlaps a scan
// mask, as returned by ScanRelation.
type Range struct {
	Start int
	Len   int
}

// ScanRelation returns an ordered sequence of (start,len) runs covering
// every maximal contiguous range of cells whose relation overlaps mask.
// When InitEpoch has been called, whole regions whose accumulated
// relation-OR has no overlap with mask are skipped outright — the region
// index is best-effort and never cleared by the scanner, so it may
// over-report (never under-report); false positives are resolved by the
// per-cell check that follows.
func (a *Array) ScanRelation(mask uint8) []Range {
	n := a.arr.Len()
	var ranges []Range
	i := 0
	for i < n {
		if a.relIndex != nil {
			region := a.epochTable.RegionOf(i)
			bucket := atomic.LoadUint32(&a.relIndex[region].mask)
			if uint8(bucket)&mask == 0 {
				_, end := a.epochTable.RegionBounds(region)
				i = end
				continue
			}
		}

		rel := cell.UnpackRelation(a.arr.Load(i))
		if !cell.RelationMatches(rel, mask) {
			i++
			continue
		}

		start := i
		i++
		for i < n {
			rel = cell.UnpackRelation(a.arr.Load(i))
			if !cell.RelationMatches(rel, mask) {
				break
			}
			i++
		}
		ranges = append(ranges, Range{Start: start, Len: i - start})
	}
	return ranges
}
