//go:build unix

package alloc

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Region is an anonymous private mapping. Pages are zero on first touch, so
// a fresh Region already satisfies the zero-initialised pool contract.
type Region struct {
	mu  sync.Mutex
	mem []byte
}

// Map maps at least size bytes, rounded up to the page size.
func Map(size int) (*Region, error) {
	if size <= 0 {
		return nil, ErrSize
	}
	page := unix.Getpagesize()
	size = (size + page - 1) &^ (page - 1)
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("alloc: mmap %d bytes: %w", size, err)
	}
	return &Region{mem: mem}, nil
}

// Bytes returns the mapped memory, or nil after Close.
func (r *Region) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mem
}

func (r *Region) Len() int {
	return len(r.Bytes())
}

// Close unmaps the region. Any slice or pool built on it must not be used
// afterwards. A second Close returns ErrClosed.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mem == nil {
		return ErrClosed
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	if err != nil {
		return fmt.Errorf("alloc: munmap: %w", err)
	}
	return nil
}
