// Package config holds the JSON configuration shared by the disassembler
// tools: decoder mode, decoder options, cache geometry and logging.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/sarchlab/x86dec/icache"
	"github.com/sarchlab/x86dec/insts"
)

// CacheConfig configures the decoded-instruction cache.
type CacheConfig struct {
	// Enabled turns the cache on. Default: true.
	Enabled bool `json:"enabled"`

	// Size is the address space covered in bytes. Default: 64KB.
	Size int `json:"size"`

	// Associativity is the number of ways. Default: 8.
	Associativity int `json:"associativity"`

	// BlockSize is the block size in bytes. Default: 64.
	BlockSize int `json:"block_size"`
}

// Config holds decoder and tool settings.
type Config struct {
	// Bitness is the code size: 16, 32 or 64. Default: 64.
	Bitness int `json:"bitness"`

	// Options lists decoder option names such as "AMD" or "KNC".
	Options []string `json:"options"`

	// IP is the address of the first byte of raw input. Default: 0.
	IP uint64 `json:"ip"`

	// Parallelism bounds how many segments are decoded at once.
	// Default: 4.
	Parallelism int `json:"parallelism"`

	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `json:"log_level"`

	// Info computes register and memory usage for every instruction.
	Info bool `json:"info"`

	Cache CacheConfig `json:"cache"`
}

// Default returns a Config with default values.
func Default() *Config {
	def := icache.DefaultConfig()

	return &Config{
		Bitness:     64,
		Options:     []string{},
		Parallelism: 4,
		LogLevel:    "info",
		Cache: CacheConfig{
			Enabled:       true,
			Size:          def.Size,
			Associativity: def.Associativity,
			BlockSize:     def.BlockSize,
		},
	}
}

// Load loads a Config from a JSON file. Fields missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return config, nil
}

// Save writes the Config to a JSON file.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks every field.
func (c *Config) Validate() error {
	switch c.Bitness {
	case 16, 32, 64:
	default:
		return fmt.Errorf("bitness must be 16, 32 or 64, got %d", c.Bitness)
	}

	if _, err := c.DecoderOptions(); err != nil {
		return err
	}

	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be > 0")
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	if c.Cache.Enabled {
		if err := c.ICacheConfig().Validate(); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}

	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Options = slices.Clone(c.Options)

	return &clone
}

// DecoderOptions converts the option names to a bitset.
func (c *Config) DecoderOptions() (insts.DecoderOptions, error) {
	return insts.ParseDecoderOptions(c.Options)
}

// SlogLevel converts LogLevel to a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}

	return level, nil
}

// ICacheConfig returns the cache geometry.
func (c *Config) ICacheConfig() icache.Config {
	return icache.Config{
		Size:          c.Cache.Size,
		Associativity: c.Cache.Associativity,
		BlockSize:     c.Cache.BlockSize,
	}
}

// NewICache builds the cache described by the config, or returns nil when
// the cache is disabled.
func (c *Config) NewICache() (*icache.Cache, error) {
	if !c.Cache.Enabled {
		return nil, nil
	}

	return icache.New(c.ICacheConfig())
}
