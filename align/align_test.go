package align_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funny-falcon/slotpool/align"
)

func TestAddr(t *testing.T) {
	assert.Equal(t, uintptr(0xABC0), align.Addr(0xABC0))
	for i := uintptr(1); i <= uintptr(align.Default); i++ {
		assert.Equal(t, uintptr(0xABD0), align.Addr(0xABC0+i))
	}
	assert.Equal(t, uintptr(0x1000), align.CacheLine.Addr(0x0FC1))
	assert.Equal(t, uintptr(0x0FC0), align.CacheLine.Addr(0x0FC0))
}

func TestUpdateSize(t *testing.T) {
	var size uint32
	require.True(t, align.InitSize(&size))
	require.Equal(t, uint32(align.Default), size)
	require.True(t, align.UpdateSize(&size, 12))
	require.Equal(t, 2*uint32(align.Default), size)
	require.True(t, align.UpdateSize(&size, 12))
	require.Equal(t, 3*uint32(align.Default), size)

	align.InitSize(&size)
	require.True(t, align.UpdateSize(&size, 1))
	require.Equal(t, 2*uint32(align.Default), size)

	align.InitSize(&size)
	require.True(t, align.UpdateSize(&size, 0))
	require.Equal(t, uint32(align.Default), size)
}

func TestUpdateSize_overflow(t *testing.T) {
	size := uint32(0)
	assert.True(t, align.UpdateSize(&size, 0xFFFFFFF0))
	assert.Equal(t, uint32(0xFFFFFFF0), size)
	assert.False(t, align.UpdateSize(&size, 1))
	assert.Equal(t, uint32(0xFFFFFFF0), size)

	size = 0
	assert.False(t, align.UpdateSize(&size, 0xFFFFFFFE))

	// wraps to a value that is not smaller than the old size
	size = 64
	assert.False(t, align.CacheLine.UpdateSize(&size, 0xFFFFFFFF))
	assert.Equal(t, uint32(64), size)

	var chained uint32
	ok := align.CacheLine.InitSize(&chained) &&
		align.CacheLine.UpdateSize(&chained, 1<<31) &&
		align.CacheLine.UpdateSize(&chained, 1<<31) &&
		align.CacheLine.UpdateSize(&chained, 64)
	assert.False(t, ok)
}

type matrix struct {
	w, h       uint16
	real, imag []float32
}

func matrixSize(w, h uint16) uint32 {
	var size uint32
	n := uint32(unsafe.Sizeof(float32(0))) * uint32(w) * uint32(h)
	ok := align.InitSize(&size) &&
		align.UpdateSize(&size, uint32(unsafe.Sizeof(matrix{}))) &&
		align.UpdateSize(&size, n) &&
		align.UpdateSize(&size, n)
	if !ok {
		return 0
	}
	return size
}

func TestNext_layout(t *testing.T) {
	size := matrixSize(8, 8)
	require.Less(t, uint32(0), size)
	require.Greater(t, uint32(1024), size)

	mem := make([]byte, 1024)
	// start off by one so that Next has to realign
	cur := unsafe.Pointer(&mem[1])
	hdr := align.Next(&cur, uint32(unsafe.Sizeof(matrix{})))
	real := align.Next(&cur, 8*8*4)
	imag := align.Next(&cur, 8*8*4)

	for _, p := range []unsafe.Pointer{hdr, real, imag} {
		assert.True(t, align.Default.IsAligned(uintptr(p)))
	}
	assert.NotEqual(t, real, imag)
	assert.Equal(t, uintptr(8*8*4), uintptr(imag)-uintptr(real))
	end := uintptr(unsafe.Pointer(&mem[0])) + uintptr(size)
	assert.LessOrEqual(t, uintptr(cur), end)
}

func TestZeroAligned(t *testing.T) {
	mem := make([]byte, 256)
	for i := range mem {
		mem[i] = 0xFF
	}
	cur := unsafe.Pointer(&mem[0])
	p := align.CacheLine.Next(&cur, 0)
	off := uintptr(p) - uintptr(unsafe.Pointer(&mem[0]))

	align.CacheLine.ZeroAligned(p, 10)
	for i := uintptr(0); i < 64; i++ {
		require.Zero(t, mem[off+i], "byte %d", off+i)
	}
	if off+64 < uintptr(len(mem)) {
		require.Equal(t, byte(0xFF), mem[off+64])
	}

	require.Panics(t, func() {
		align.CacheLine.ZeroAligned(unsafe.Add(p, 1), 10)
	})
}
