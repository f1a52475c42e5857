package descriptor

import "sync"

// GradientBuffer is the safer owning handoff this module chose for the open
// question in spec.md §9 ("APPLY_GRAD carries a raw pointer in arg with no
// liveness annotation... implementations may choose a safer owning
// handoff"). Rather than stuffing a raw pointer into Descriptor.Arg (which
// Go's GC cannot see through a uint64), a gradient buffer is registered
// here and referenced by an opaque handle; the registry itself keeps the
// slice alive for exactly as long as the handle is outstanding.
//
// The liveness obligation spec.md §7 places on the submitter still exists —
// Release must be called after the worker has processed the batch that
// references the handle, or it leaks — but a dangling-pointer fault (the
// undetectable "Caller UB" case) becomes, at worst, a held reference to a
// live slice, never a read of freed or reinterpreted memory.
var gradientRegistry = struct {
	mu   sync.Mutex
	next uint64
	bufs map[uint64][]int32
}{bufs: make(map[uint64][]int32)}

// RegisterGradient stores buf and returns a handle suitable for
// Descriptor.Arg on an OpApplyGrad descriptor.
func RegisterGradient(buf []int32) uint64 {
	gradientRegistry.mu.Lock()
	defer gradientRegistry.mu.Unlock()
	gradientRegistry.next++
	h := gradientRegistry.next
	gradientRegistry.bufs[h] = buf
	return h
}

// LookupGradient resolves a handle previously returned by RegisterGradient.
// ok is false if the handle is unknown (already released, or never
// registered) — the worker treats this as an empty group and skips it
// rather than faulting.
func LookupGradient(handle uint64) (buf []int32, ok bool) {
	gradientRegistry.mu.Lock()
	defer gradientRegistry.mu.Unlock()
	buf, ok = gradientRegistry.bufs[handle]
	return
}

// ReleaseGradient drops the registry's reference to handle. Must be called
// by the submitter once it knows the worker has finished with the batch
// (e.g. after observing the target cells' committed state, or via an
// application-level completion signal). A successful Submit or
// SubmitBlocking only means the descriptor was enqueued, not processed.
func ReleaseGradient(handle uint64) {
	gradientRegistry.mu.Lock()
	defer gradientRegistry.mu.Unlock()
	delete(gradientRegistry.bufs, handle)
}
