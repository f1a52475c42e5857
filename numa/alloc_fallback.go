//go:build !linux

package numa

import (
	"os"
	"unsafe"
)

// fallbackAllocator provides plain page-aligned heap memory without
// NUMA affinity, for platforms without a NUMA-aware mmap path (darwin,
// windows, bsd). Matches original_source/core/headers/AllocNW.hpp's
// Windows VirtualAllocExNuma branch in spirit: best effort, never fatal
// just because node pinning isn't available.
type fallbackAllocator struct{}

func defaultAllocator() Allocator {
	return &fallbackAllocator{}
}

func (fallbackAllocator) Alloc(node int, size, alignment uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, ErrInvalidArgument
	}
	pageSize := uintptr(os.Getpagesize())
	align := normalizeAlignment(alignment)
	if align < pageSize {
		align = pageSize
	}
	raw := make([]byte, roundUp(size, pageSize)+align)
	base := uintptr(unsafe.Pointer(&raw[0]))
	offset := (align - (base % align)) % align
	ptr := unsafe.Add(unsafe.Pointer(&raw[0]), offset)
	fallbackRegistry.record(ptr, raw)
	return ptr, nil
}

func (fallbackAllocator) Free(ptr unsafe.Pointer, _ uintptr) {
	fallbackRegistry.release(ptr)
}

// fallbackRegistry keeps the original backing slice alive for as long as the
// aligned sub-pointer handed to callers is in use; Go's GC tracks liveness by
// the slice header, not by the interior pointer we return from Alloc.
var fallbackRegistry = newPinRegistry()

type pinRegistry struct {
	mu  chan struct{} // 1-buffered channel used as a cheap mutex
	set map[unsafe.Pointer][]byte
}

func newPinRegistry() *pinRegistry {
	r := &pinRegistry{mu: make(chan struct{}, 1), set: make(map[unsafe.Pointer][]byte)}
	r.mu <- struct{}{}
	return r
}

func (r *pinRegistry) record(ptr unsafe.Pointer, backing []byte) {
	<-r.mu
	r.set[ptr] = backing
	r.mu <- struct{}{}
}

func (r *pinRegistry) release(ptr unsafe.Pointer) {
	<-r.mu
	delete(r.set, ptr)
	r.mu <- struct{}{}
}
