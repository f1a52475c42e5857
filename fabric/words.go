package fabric

import "github.com/Nirab123456/LCIM-BitTheorium/cell"

// pendingWordFrom builds the PENDING word a Reserve call publishes. The
// clock discipline of spec.md §4.3 requires PENDING to carry an odd clock.
// Under ModeValue32, batchLo (the op table's "clk=batch_lo" guarantee) is
// used directly but with its low bit forced to 1, so the invariant holds
// regardless of what the caller passed. Under ModeClk48, batchLo is not
// used: the 48-bit clock advances from old's clock to the next odd value.
func (a *Array) pendingWordFrom(old uint64, batchLo uint16, rel uint8) uint64 {
	switch a.mode {
	case cell.ModeClk48:
		clk := cell.UnpackClk48(old) + 1
		if cell.IsCommittedClk48(clk) {
			clk++
		}
		return cell.PackClk48(clk, cell.StatePending, rel)
	default: // ModeValue32
		value := cell.UnpackValue32(old)
		clk := batchLo | 1
		return cell.PackValue32(value, clk, cell.StatePending, rel)
	}
}

// publishedWordFrom advances a PENDING word to its committed counterpart:
// even clock, new value (VALUE32 only), caller-chosen state and relation.
func (a *Array) publishedWordFrom(pending uint64, value uint32, rel uint8) uint64 {
	switch a.mode {
	case cell.ModeClk48:
		clk := cell.UnpackClk48(pending) + 1
		return cell.PackClk48(clk, cell.StatePublished, rel)
	default:
		clk := cell.UnpackClk16(pending) + 1
		return cell.PackValue32(value, clk, cell.StatePublished, rel)
	}
}

func (a *Array) markRelation(i int, rel uint8) {
	if a.relIndex == nil {
		return
	}
	region := a.epochTable.RegionOf(i)
	if region < 0 || region >= len(a.relIndex) {
		return
	}
	orRelationInto(&a.relIndex[region].mask, rel)
}
