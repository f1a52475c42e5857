// Package primitive provides the low-level sizing and CAS helpers shared by
// every lock-free package in this module: cache-line padding constants,
// power-of-two rounding, and compare-and-swap wrappers that return the
// freshest observed value alongside the swap result so callers can retry
// without a second load.
package primitive

import "unsafe"

const (
	// CacheLine is the number of bytes on an Intel cache line (and
	// presumably others).
	CacheLine = 64
	// FalseShare is the number of bytes in a false sharing range for CPUs.
	// Intel will prefetch a second cache line when loading a first.
	FalseShare = 128
	// UpSz is the size of a pointer on this system.
	UpSz = unsafe.Sizeof(uintptr(0))
)

// Next2 returns v rounded up to the next power of 2.
func Next2(v uintptr) uintptr {
	v--
	for i := uintptr(1); i < UpSz<<3; i <<= 1 {
		v |= v >> i
	}
	return v + 1
}
