// Package align computes aligned sizes and addresses for laying out several
// sub-structures inside one flat buffer.
//
// Sizes are accumulated in a uint32 and chained with &&:
//
//	var size uint32
//	ok := align.InitSize(&size) &&
//		align.UpdateSize(&size, hdrSize) &&
//		align.UpdateSize(&size, n*elemSize)
//	if !ok {
//		// overflow, size must not be used
//	}
//
// The buffer is then carved with Next, in the same order.
package align

import (
	"math"
	"unsafe"
)

// Unit is an alignment in bytes. It must be a power of two.
type Unit uint32

const (
	// Default is the alignment used by the package level functions.
	Default Unit = 16
	// CacheLine keeps independently contended words on separate lines.
	CacheLine Unit = 64
)

func (u Unit) mask() uintptr {
	return uintptr(u) - 1
}

// Up rounds n up to the next multiple of u.
func (u Unit) Up(n uintptr) uintptr {
	return (n + u.mask()) &^ u.mask()
}

// Addr returns p rounded up to the next u boundary.
func (u Unit) Addr(p uintptr) uintptr {
	return u.Up(p)
}

// IsAligned reports whether p is a multiple of u.
func (u Unit) IsAligned(p uintptr) bool {
	return p&u.mask() == 0
}

// InitSize starts a size chain. The accumulator is set to one unit so that a
// buffer which is not itself aligned still has room for the first Next.
// Always returns true.
func (u Unit) InitSize(size *uint32) bool {
	*size = uint32(u)
	return true
}

// UpdateSize adds a sub-structure of n bytes to the accumulator, rounded up
// to the unit. It returns false and leaves *size alone when the result does
// not fit in 32 bits.
func (u Unit) UpdateSize(size *uint32, n uint32) bool {
	m := uint64(u) - 1
	newSize := (uint64(*size) + uint64(n) + m) &^ m
	if newSize > math.MaxUint32 {
		return false
	}
	*size = uint32(newSize)
	return true
}

// Next returns the first aligned address at or after *mem and moves *mem past
// size bytes from there.
func (u Unit) Next(mem *unsafe.Pointer, size uint32) unsafe.Pointer {
	res := unsafe.Pointer((uintptr(*mem) + u.mask()) &^ u.mask())
	*mem = unsafe.Add(res, size)
	return res
}

// ZeroAligned zeroes size bytes at mem, rounded up to the unit. mem must be
// aligned to u, and the rounded up region must be writable.
func (u Unit) ZeroAligned(mem unsafe.Pointer, size uint32) {
	if !u.IsAligned(uintptr(mem)) {
		panic("align: ZeroAligned on unaligned pointer")
	}
	n := u.Up(uintptr(size))
	if n == 0 {
		return
	}
	clear(unsafe.Slice((*byte)(mem), n))
}

func Up(n uintptr) uintptr                   { return Default.Up(n) }
func Addr(p uintptr) uintptr                 { return Default.Addr(p) }
func InitSize(size *uint32) bool             { return Default.InitSize(size) }
func UpdateSize(size *uint32, n uint32) bool { return Default.UpdateSize(size, n) }
func ZeroAligned(mem unsafe.Pointer, size uint32) {
	Default.ZeroAligned(mem, size)
}
func Next(mem *unsafe.Pointer, size uint32) unsafe.Pointer {
	return Default.Next(mem, size)
}
