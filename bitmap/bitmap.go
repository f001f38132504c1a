// Package bitmap tracks slot occupancy in a flat array of uint32 words,
// one bit per slot. Every access is atomic, so a word may be shared by any
// number of goroutines and may live in memory the Go runtime does not own.
package bitmap

import (
	"math/bits"
	"sync/atomic"
)

const WordBits = 32

// Words is the number of words needed for n slots.
func Words(n uint32) uint32 {
	return (n + WordBits - 1) / WordBits
}

// Locate returns the word index and bit mask of slot idx.
func Locate(idx uint32) (uint32, uint32) {
	return idx / WordBits, uint32(1) << (idx % WordBits)
}

func Has(u []uint32, idx uint32) bool {
	k, b := Locate(idx)
	return atomic.LoadUint32(&u[k])&b != 0
}

// TrySet makes one attempt to claim idx. It fails if the bit is already set
// or if another goroutine changed the word between the load and the CAS.
func TrySet(u []uint32, idx uint32) bool {
	k, b := Locate(idx)
	v := atomic.LoadUint32(&u[k])
	if v&b != 0 {
		return false
	}
	return atomic.CompareAndSwapUint32(&u[k], v, v|b)
}

// Clear resets the bit of idx, retrying until no other bit of the word
// changes underneath it.
func Clear(u []uint32, idx uint32) {
	k, b := Locate(idx)
	for {
		v := atomic.LoadUint32(&u[k])
		if atomic.CompareAndSwapUint32(&u[k], v, v&^b) {
			return
		}
	}
}

// Count is the number of set bits. It is a snapshot only when no
// TrySet/Clear runs concurrently.
func Count(u []uint32) uint32 {
	var n int
	for i := range u {
		n += bits.OnesCount32(atomic.LoadUint32(&u[i]))
	}
	return uint32(n)
}

// Each calls f for every set bit in ascending order until f returns false.
// Words are loaded one at a time, so concurrent changes may or may not be
// seen.
func Each(u []uint32, f func(idx uint32) bool) {
	for k := range u {
		v := atomic.LoadUint32(&u[k])
		span := uint32(k) * WordBits
		for v != 0 {
			if !f(span + uint32(bits.TrailingZeros32(v))) {
				return
			}
			v &= v - 1
		}
	}
}
