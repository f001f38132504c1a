package alloc_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funny-falcon/slotpool/align"
	"github.com/funny-falcon/slotpool/alloc"
)

func TestAligned(t *testing.T) {
	for _, unit := range []align.Unit{align.Default, align.CacheLine, 4096} {
		for _, size := range []int{1, 63, 64, 1000} {
			b := alloc.Aligned(size, unit)
			require.Len(t, b, size)
			require.Equal(t, size, cap(b))
			assert.True(t, unit.IsAligned(uintptr(unsafe.Pointer(&b[0]))), "unit %d size %d", unit, size)
			for _, c := range b {
				require.Zero(t, c)
			}
		}
	}
	assert.Nil(t, alloc.Aligned(0, align.CacheLine))
}

func TestRegion(t *testing.T) {
	_, err := alloc.Map(0)
	require.ErrorIs(t, err, alloc.ErrSize)

	r, err := alloc.Map(100)
	require.NoError(t, err)
	mem := r.Bytes()
	require.GreaterOrEqual(t, len(mem), 100)
	assert.Equal(t, len(mem), r.Len())
	assert.True(t, align.CacheLine.IsAligned(uintptr(unsafe.Pointer(&mem[0]))))
	for _, c := range mem {
		require.Zero(t, c)
	}
	mem[0], mem[len(mem)-1] = 1, 2

	require.NoError(t, r.Close())
	assert.Nil(t, r.Bytes())
	require.ErrorIs(t, r.Close(), alloc.ErrClosed)
}
