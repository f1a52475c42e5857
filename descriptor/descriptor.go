// Package descriptor defines the fixed-size, copyable-by-value work item
// submitted to the worker's MPMC queue (spec.md §4.8). Descriptors never
// heap-allocate on their own: the struct is embedded by value in each queue
// slot (queue/mpmcdesc.Queue), not referenced through a pointer.
//
// Grounded on original_source/core/headers/APCCpuWorker.hpp's ACADescriptor
// (op/flags/rel/idx/count/arg fields), extended with batch_id and undo_hint
// per spec.md §3.
package descriptor

// Op identifies the operation a descriptor requests of the worker.
type Op uint8

const (
	OpSet       Op = 1
	OpBatchSet  Op = 2
	OpAdd       Op = 3
	OpApplyGrad Op = 4
	OpEpochBump Op = 5
)

// Flags compose freely in Descriptor.OpFlags.
type Flags uint8

const (
	FlagReserveBeforeCompute Flags = 0x01
	FlagHighPriority         Flags = 0x02
	FlagUseUndo              Flags = 0x04
	FlagSkipNotify           Flags = 0x08
	FlagForceEpochBump       Flags = 0x10
)

// Descriptor is the compact work item passed from a producer to the
// worker. Fields total 36 bytes; Go's struct alignment pads BatchID's
// 8-byte field to a multiple of 8, landing at 40 bytes overall — exactly
// spec.md §6's "total size <= 40 bytes" wire contract.
type Descriptor struct {
	Op        Op
	OpFlags   Flags
	StateHint uint8
	Rel       uint8
	Idx       uint32
	Count     uint32
	BatchID   uint64 // assigned by the worker, not the producer
	UndoHint  uint64
	Arg       uint64 // interpretation is per-Op; see doc.go
}

// Has reports whether all bits of want are set in d.OpFlags.
func (d Descriptor) Has(want Flags) bool {
	return d.OpFlags&want == want
}
