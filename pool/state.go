package pool

import (
	"runtime"
	"sync/atomic"

	"github.com/funny-falcon/slotpool/bitmap"
)

// Acquire claims a free slot among n and returns its index, or n when every
// slot is taken. words, hint and allocated are shared by all callers and
// must start zeroed; hint stays in [0, n) and allocated in [0, n].
//
// The full check reads allocated, which lags the bitmap by at most the
// operations still in flight, so a slot released concurrently may be missed.
// Ownership is decided only by the CAS on the bitmap word.
func Acquire(words []uint32, hint, allocated *uint32, n uint32) uint32 {
	for probes := uint32(0); ; probes++ {
		if atomic.LoadUint32(allocated) >= n {
			return n
		}
		if probes == n {
			// a full lap lost every race, let the winners finish
			runtime.Gosched()
			probes = 0
		}
		idx := advance(hint, n)
		if bitmap.TrySet(words, idx) {
			inc(allocated)
			return idx
		}
	}
}

// Release frees idx, which must come from Acquire on the same state and not
// have been released since. Violations are not detected and corrupt the
// counter and bitmap.
//
// The hint is pulled down to idx so that low slots are reused first and the
// high end of the slot array tends to stay free.
func Release(idx uint32, words []uint32, hint, allocated *uint32) {
	bitmap.Clear(words, idx)
	dec(allocated)
	lower(hint, idx)
}

// advance moves hint one step forward modulo n and returns the old value.
// Concurrent callers each get a different candidate.
func advance(hint *uint32, n uint32) uint32 {
	for {
		h := atomic.LoadUint32(hint)
		if atomic.CompareAndSwapUint32(hint, h, (h+1)%n) {
			return h
		}
	}
}

func lower(hint *uint32, idx uint32) {
	for {
		h := atomic.LoadUint32(hint)
		if idx >= h || atomic.CompareAndSwapUint32(hint, h, idx) {
			return
		}
	}
}

func inc(c *uint32) {
	for {
		v := atomic.LoadUint32(c)
		if atomic.CompareAndSwapUint32(c, v, v+1) {
			return
		}
	}
}

func dec(c *uint32) {
	for {
		v := atomic.LoadUint32(c)
		if atomic.CompareAndSwapUint32(c, v, v-1) {
			return
		}
	}
}
