// Arg interpretation is per Op:
//
//	OpSet:       new packed word (low 32 bits under cell.ModeValue32).
//	OpApplyGrad: a GradientBuffer handle (see gradient.go) to a contiguous
//	             buffer of int32 gradients, length == the coalesced group's
//	             size. The caller must keep the buffer alive until the
//	             worker processes the batch; see gradient.go for what
//	             happens if it does not (spec.md §7, "Caller UB").
//	OpEpochBump: the region index to bump.
package descriptor
