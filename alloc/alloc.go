// Package alloc provides backing memory for pools: anonymous mappings that
// live outside the Go heap, and aligned heap buffers.
package alloc

import (
	"errors"
	"unsafe"

	"github.com/funny-falcon/slotpool/align"
)

var (
	// ErrSize is returned for non-positive region sizes.
	ErrSize = errors.New("alloc: size must be positive")

	// ErrClosed is returned when a region is used after Close.
	ErrClosed = errors.New("alloc: region closed")
)

// Aligned returns a zeroed slice of size bytes whose first byte sits on a
// unit boundary. The slice keeps the whole over-allocated array alive.
func Aligned(size int, unit align.Unit) []byte {
	if size <= 0 {
		return nil
	}
	raw := make([]byte, size+int(unit)-1)
	base := uintptr(unsafe.Pointer(&raw[0]))
	off := int(unit.Addr(base) - base)
	return raw[off : off+size : off+size]
}
