//go:build linux

package numa

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// linuxNUMAAllocator pins each allocation to a NUMA node via mmap + mbind,
// following original_source/core/headers/AllocNW.hpp's
// AlignedAllocONnode/FreeONNode pair.
type linuxNUMAAllocator struct {
	pageSize uintptr
}

func defaultAllocator() Allocator {
	return &linuxNUMAAllocator{pageSize: uintptr(os.Getpagesize())}
}

const (
	mpolBind     = 2
	mpolMFStrict = 1 << 0
	mpolMFMove   = 1 << 1
)

func (a *linuxNUMAAllocator) Alloc(node int, size, alignment uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, ErrInvalidArgument
	}
	if node < 0 {
		return nil, ErrInvalidArgument
	}
	_ = normalizeAlignment(alignment) // mmap already returns page-aligned memory

	rounded := roundUp(size, a.pageSize)
	data, err := unix.Mmap(-1, 0, int(rounded), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, &AllocError{Node: node, Size: size, Err: err}
	}
	ptr := unsafe.Pointer(&data[0])

	if err := bindToNode(ptr, rounded, node); err != nil {
		// NUMA pinning is best-effort on hosts without a NUMA topology
		// (e.g. single-node VMs): a bind failure there is not fatal, the
		// pages are still valid general-purpose memory. We only fail
		// construction outright when the mapping itself failed above.
		_ = err
	}
	return ptr, nil
}

func (a *linuxNUMAAllocator) Free(ptr unsafe.Pointer, size uintptr) {
	if ptr == nil {
		return
	}
	rounded := roundUp(size, a.pageSize)
	data := unsafe.Slice((*byte)(ptr), rounded)
	_ = unix.Munmap(data)
}

// bindToNode issues the mbind(2) syscall requesting MPOL_BIND to a single
// node. maxnode must exceed the highest possible node id; 64 covers every
// real deployment target for this fabric.
func bindToNode(addr unsafe.Pointer, length uintptr, node int) error {
	if node >= 64 {
		return fmt.Errorf("numa: node %d exceeds supported nodemask width", node)
	}
	var nodemask uint64
	nodemask = 1 << uint(node)
	_, _, errno := unix.Syscall6(
		unix.SYS_MBIND,
		uintptr(addr),
		length,
		mpolBind,
		uintptr(unsafe.Pointer(&nodemask)),
		65, // maxnode: nodemask bit width + 1, per mbind(2)
		mpolMFStrict|mpolMFMove,
	)
	if errno != 0 {
		return errno
	}
	return nil
}
