package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funny-falcon/slotpool/pool"
)

func TestLoadConfig_defaults(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *c)
	require.NoError(t, c.Validate())

	n, err := c.SlotBytes()
	require.NoError(t, err)
	assert.Equal(t, uint32(4096), n)
}

func TestLoadConfig_fileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slotd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: 127.0.0.1:9000\nslots: 128\nslotSize: 64B\nmmap: false\n"), 0o644))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, Config{Addr: "127.0.0.1:9000", Slots: 128, SlotSize: "64B", Mmap: false}, *c)

	t.Setenv("SLOTD_SLOTS", "256")
	t.Setenv("SLOTD_SLOT_SIZE", "1KiB")
	c, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", c.Addr)
	assert.Equal(t, uint32(256), c.Slots)
	n, err := c.SlotBytes()
	require.NoError(t, err)
	assert.Equal(t, uint32(1024), n)
}

func TestLoadConfig_strict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slotd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("slot: 3\n"), 0o644))
	_, err := LoadConfig(path)
	require.Error(t, err)

	t.Setenv("SLOTD_SLOTS", "many")
	_, err = LoadConfig("")
	require.Error(t, err)
}

func TestConfig_validate(t *testing.T) {
	c := DefaultConfig()
	c.Addr = ""
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.Slots = 0
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.SlotSize = "lots"
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.SlotSize = "0"
	assert.Error(t, c.Validate())

	c = DefaultConfig()
	c.Slots = 1 << 20
	c.SlotSize = "1MiB"
	assert.ErrorIs(t, c.Validate(), pool.ErrOverflow)
}

func TestBuildPool(t *testing.T) {
	for _, mmap := range []bool{true, false} {
		c := DefaultConfig()
		c.Slots, c.SlotSize, c.Mmap = 100, "128", mmap
		p, closer, err := buildPool(&c)
		require.NoError(t, err)
		assert.Equal(t, uint32(100), p.Cap())
		assert.Equal(t, uint32(128), p.SlotSize())
		assert.Equal(t, uint32(0), p.Acquire())
		require.NoError(t, closer.Close())
	}
}
