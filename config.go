package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/funny-falcon/slotpool/pool"
)

const envVarPrefix = "SLOTD"

// Config is read from SLOTD_ADDR, SLOTD_SLOTS, SLOTD_SLOT_SIZE and
// SLOTD_MMAP.
type Config struct {
	Addr     string `split_words:"true" yaml:"addr"`
	Slots    uint32 `split_words:"true" yaml:"slots"`
	SlotSize string `split_words:"true" yaml:"slotSize"`
	Mmap     bool   `split_words:"true" yaml:"mmap"`
}

func DefaultConfig() Config {
	return Config{
		Addr:     ":8080",
		Slots:    4096,
		SlotSize: "4KiB",
		Mmap:     true,
	}
}

// LoadConfig applies, in order, the defaults, the YAML file (if configFile
// is set and exists) and SLOTD_* environment variables.
func LoadConfig(configFile string) (*Config, error) {
	c := DefaultConfig()
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.UnmarshalStrict(data, &c); err != nil {
				return nil, fmt.Errorf("unmarshaling config file: %w", err)
			}
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}
	return &c, nil
}

// SlotBytes parses SlotSize, e.g. "64", "4KiB" or "1MB".
func (c *Config) SlotBytes() (uint32, error) {
	n, err := humanize.ParseBytes(c.SlotSize)
	if err != nil {
		return 0, fmt.Errorf("slot size %q: %w", c.SlotSize, err)
	}
	if n == 0 || n > 1<<32-1 {
		return 0, fmt.Errorf("slot size %q: out of range", c.SlotSize)
	}
	return uint32(n), nil
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("missing required config: addr (env: %s_ADDR)", envVarPrefix)
	}
	if c.Slots == 0 {
		return fmt.Errorf("missing required config: slots (env: %s_SLOTS)", envVarPrefix)
	}
	slotSize, err := c.SlotBytes()
	if err != nil {
		return err
	}
	if _, ok := pool.Size(c.Slots, slotSize); !ok {
		return fmt.Errorf("%d slots of %s: %w", c.Slots, humanize.IBytes(uint64(slotSize)), pool.ErrOverflow)
	}
	return nil
}
