// Package pool hands out indices of equal-sized slots from a fixed pool
// without locks.
//
// The allocator state is three pieces of shared memory: an occupancy bitmap,
// a search hint and a count of allocated slots. Acquire and Release work on
// them directly, so they can live anywhere, including in a mapping shared
// with other code. Pool carves the state and the slot array out of a single
// buffer, each part on its own cache line:
//
//	[hint][allocated][bitmap words][slot 0 ... slot n-1]
//
// Slot contents belong to the caller. The allocator never reads or writes
// them, and the holder of a slot synchronises access to it on its own.
package pool

import (
	"errors"
	"fmt"
	"math/bits"
	"sync/atomic"
	"unsafe"

	"github.com/modern-go/reflect2"

	"github.com/funny-falcon/slotpool/align"
	"github.com/funny-falcon/slotpool/alloc"
	"github.com/funny-falcon/slotpool/bitmap"
)

var (
	// ErrZeroCapacity is returned for a pool of zero slots.
	ErrZeroCapacity = errors.New("pool: capacity must be positive")

	// ErrOverflow is returned when the layout does not fit in 32 bits.
	ErrOverflow = errors.New("pool: layout size overflows")

	// ErrShortBuffer is returned when the buffer is smaller than Size reports.
	ErrShortBuffer = errors.New("pool: buffer too small")
)

// unit separates the independently contended parts of the layout.
const unit = align.CacheLine

const counterSize = uint32(unsafe.Sizeof(uint32(0)))

// Size returns the number of bytes New needs for n slots of slotSize bytes.
// ok is false when the size does not fit in a uint32.
func Size(n, slotSize uint32) (size uint32, ok bool) {
	hi, slots := bits.Mul32(n, slotSize)
	if hi != 0 {
		return 0, false
	}
	ok = unit.InitSize(&size) &&
		unit.UpdateSize(&size, counterSize) &&
		unit.UpdateSize(&size, counterSize) &&
		unit.UpdateSize(&size, bitmap.Words(n)*counterSize) &&
		unit.UpdateSize(&size, slots)
	return size, ok
}

type Pool struct {
	mem       []byte
	words     []uint32
	hint      *uint32
	allocated *uint32
	slots     unsafe.Pointer
	n         uint32
	slotSize  uint32
}

// New lays a pool of n slots out in mem and zeroes its allocator state.
// Slot contents are left as they are.
func New(mem []byte, n, slotSize uint32) (*Pool, error) {
	p, err := Attach(mem, n, slotSize)
	if err != nil {
		return nil, err
	}
	unit.ZeroAligned(unsafe.Pointer(p.hint), counterSize)
	unit.ZeroAligned(unsafe.Pointer(p.allocated), counterSize)
	if len(p.words) > 0 {
		unit.ZeroAligned(unsafe.Pointer(&p.words[0]), uint32(len(p.words))*counterSize)
	}
	return p, nil
}

// Attach is New without zeroing, for a buffer that already holds the state
// of a pool with the same n and slotSize.
func Attach(mem []byte, n, slotSize uint32) (*Pool, error) {
	if n == 0 {
		return nil, ErrZeroCapacity
	}
	size, ok := Size(n, slotSize)
	if !ok {
		return nil, fmt.Errorf("%w: %d slots of %d bytes", ErrOverflow, n, slotSize)
	}
	if uint64(len(mem)) < uint64(size) {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrShortBuffer, len(mem), size)
	}
	nwords := bitmap.Words(n)
	cur := unsafe.Pointer(&mem[0])
	p := &Pool{
		mem:       mem,
		hint:      (*uint32)(unit.Next(&cur, counterSize)),
		allocated: (*uint32)(unit.Next(&cur, counterSize)),
		words:     unsafe.Slice((*uint32)(unit.Next(&cur, nwords*counterSize)), nwords),
		slots:     unit.Next(&cur, n*slotSize),
		n:         n,
		slotSize:  slotSize,
	}
	return p, nil
}

// Make allocates a cache line aligned heap buffer and builds a pool in it.
func Make(n, slotSize uint32) (*Pool, error) {
	size, ok := Size(n, slotSize)
	if !ok {
		return nil, fmt.Errorf("%w: %d slots of %d bytes", ErrOverflow, n, slotSize)
	}
	return New(alloc.Aligned(int(size), unit), n, slotSize)
}

// Acquire returns a free slot index, or Cap() when the pool is full.
func (p *Pool) Acquire() uint32 {
	return Acquire(p.words, p.hint, p.allocated, p.n)
}

// Release frees a slot returned by Acquire. Releasing a slot twice is not
// detected.
func (p *Pool) Release(idx uint32) {
	Release(idx, p.words, p.hint, p.allocated)
}

func (p *Pool) Cap() uint32      { return p.n }
func (p *Pool) SlotSize() uint32 { return p.slotSize }
func (p *Pool) Bytes() []byte    { return p.mem }

// Allocated is the allocated slot count. It trails the bitmap while
// operations are in flight.
func (p *Pool) Allocated() uint32 {
	return atomic.LoadUint32(p.allocated)
}

func (p *Pool) Hint() uint32 {
	return atomic.LoadUint32(p.hint)
}

// InUse reports whether idx is currently allocated. Out of range indices are
// never in use.
func (p *Pool) InUse(idx uint32) bool {
	return idx < p.n && bitmap.Has(p.words, idx)
}

// Each calls f with every allocated index in ascending order until f
// returns false. Under concurrent traffic the result is not a snapshot.
func (p *Pool) Each(f func(idx uint32) bool) {
	bitmap.Each(p.words, f)
}

// Slot returns the payload of slot idx. It panics if idx is out of range.
func (p *Pool) Slot(idx uint32) []byte {
	if idx >= p.n {
		panic(fmt.Sprintf("pool: slot %d out of range [0, %d)", idx, p.n))
	}
	return unsafe.Slice((*byte)(p.slot(idx)), p.slotSize)
}

// Get stores the address of slot idx into ptr, which must be a pointer to a
// pointer type:
//
//	var e *Entry
//	p.Get(idx, &e)
//
// Entry must not contain Go pointers: the garbage collector does not scan
// slot memory.
func (p *Pool) Get(idx uint32, ptr interface{}) {
	if idx >= p.n {
		panic(fmt.Sprintf("pool: slot %d out of range [0, %d)", idx, p.n))
	}
	*(*unsafe.Pointer)(reflect2.PtrOf(ptr)) = p.slot(idx)
}

func (p *Pool) slot(idx uint32) unsafe.Pointer {
	return unsafe.Add(p.slots, uintptr(idx)*uintptr(p.slotSize))
}
