package worker

import (
	"github.com/Nirab123456/LCIM-BitTheorium/cell"
	"github.com/Nirab123456/LCIM-BitTheorium/descriptor"
	"github.com/Nirab123456/LCIM-BitTheorium/fabric"
)

// computeSoA produces the same []commitEntry result as computeAoS, but
// stages the intermediate values in flat scratch slices first — the split
// value/metadata layout of spec.md §4.6 step 5b, intended for a vectorized
// compute phase (8- or 16-wide SIMD loads over a contiguous gradient
// buffer) rather than one cell lookup per iteration. Go has no portable
// SIMD intrinsic, so the loop below is the scalar fallback the source
// itself falls back to when no wide-SIMD path is compiled in; the scratch
// layout is what actually matters for the commit phase's fence ordering
// (values are staged in full before any cell's metadata is published).
func computeSoA(arr *fabric.Array, g group) []commitEntry {
	n := len(g)
	values := make([]uint32, n)
	valid := make([]bool, n)

	var grad []int32
	var gradOK bool
	if g[0].Op == descriptor.OpApplyGrad {
		grad, gradOK = descriptor.LookupGradient(g[0].Arg)
	}

	for i, d := range g {
		switch d.Op {
		case descriptor.OpEpochBump:
			continue
		case descriptor.OpApplyGrad:
			if !gradOK || i >= len(grad) {
				continue
			}
			values[i] = uint32(grad[i])
			valid[i] = true
		case descriptor.OpAdd:
			values[i] = cell.UnpackValue32(arr.Load(d.Idx)) + uint32(d.Arg)
			valid[i] = true
		default:
			values[i] = uint32(d.Arg)
			valid[i] = true
		}
	}

	// Fence point: every value this group will commit is now staged in
	// values[], before any cell's metadata (state/clk/relation) is touched.
	out := make([]commitEntry, 0, n)
	for i, d := range g {
		if !valid[i] {
			continue
		}
		old := arr.Load(d.Idx)
		word := publishedWord(arr.Mode(), old, values[i], d.StateHint, d.Rel, d.BatchID)
		out = append(out, commitEntry{idx: d.Idx, word: word, skipNotify: d.Has(descriptor.FlagSkipNotify)})
	}
	return out
}
