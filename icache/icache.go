// Package icache provides a decoded-instruction cache built on Akita cache
// components.
//
// Each cache block covers BlockSize bytes of address space and holds the
// instructions that start inside it. A Cache serves a single decoder
// configuration (bitness and options); instructions decoded under another
// configuration must go to another Cache.
package icache

import (
	"fmt"
	"sync"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/x86dec/insts"
)

// Config holds cache geometry.
type Config struct {
	// Size in bytes of address space covered
	Size int
	// Associativity (number of ways)
	Associativity int
	// BlockSize in bytes
	BlockSize int
}

// DefaultConfig returns a 64KB, 8-way cache with 64B blocks.
func DefaultConfig() Config {
	return Config{
		Size:          64 * 1024, // 64KB
		Associativity: 8,         // 8-way
		BlockSize:     64,        // 64B block
	}
}

// Validate checks that the geometry describes at least one full set.
func (c Config) Validate() error {
	if c.BlockSize <= 0 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("block size must be a positive power of two, got %d", c.BlockSize)
	}

	if c.Associativity <= 0 {
		return fmt.Errorf("associativity must be positive, got %d", c.Associativity)
	}

	if c.Size <= 0 || c.Size%(c.Associativity*c.BlockSize) != 0 {
		return fmt.Errorf("size %d is not a multiple of associativity*block size (%d)",
			c.Size, c.Associativity*c.BlockSize)
	}

	return nil
}

// Statistics holds cache statistics.
type Statistics struct {
	Lookups       uint64
	Hits          uint64
	Misses        uint64
	Fills         uint64
	Evictions     uint64
	Invalidations uint64
}

// HitRate returns Hits/Lookups, or 0 before the first lookup.
func (s Statistics) HitRate() float64 {
	if s.Lookups == 0 {
		return 0
	}

	return float64(s.Hits) / float64(s.Lookups)
}

type slot struct {
	valid bool
	inst  insts.Instruction
}

// Cache is a set-associative decoded-instruction cache. It is safe for
// concurrent use.
type Cache struct {
	mu sync.Mutex

	config Config

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	// Instruction slots, indexed by (setID * associativity + wayID), one
	// per byte offset in the block.
	lines [][]slot

	stats Statistics
}

// New creates a cache with the given configuration.
func New(config Config) (*Cache, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	numSets := config.Size / (config.Associativity * config.BlockSize)

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		lines: make([][]slot, numSets*config.Associativity),
	}, nil
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stats
}

// ResetStats clears cache statistics.
func (c *Cache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats = Statistics{}
}

func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *Cache) blockAddr(addr uint64) uint64 {
	return addr &^ uint64(c.config.BlockSize-1)
}

func (c *Cache) lookupBlock(blockAddr uint64) *akitacache.Block {
	block := c.directory.Lookup(0, blockAddr)
	if block == nil || !block.IsValid {
		return nil
	}

	return block
}

// Lookup returns the cached instruction starting at ip.
func (c *Cache) Lookup(ip uint64) (insts.Instruction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Lookups++

	blockAddr := c.blockAddr(ip)
	if block := c.lookupBlock(blockAddr); block != nil {
		s := &c.lines[c.blockIndex(block)][ip-blockAddr]
		if s.valid {
			c.stats.Hits++
			c.directory.Visit(block)

			return s.inst, true
		}
	}

	c.stats.Misses++

	return insts.Instruction{}, false
}

// Insert caches inst under its IP. Invalid instructions are not cached.
func (c *Cache) Insert(inst *insts.Instruction) {
	if inst.IsInvalid() || inst.Len() == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	blockAddr := c.blockAddr(inst.IP())

	block := c.lookupBlock(blockAddr)
	if block == nil {
		block = c.fill(blockAddr)
	}

	c.lines[c.blockIndex(block)][inst.IP()-blockAddr] = slot{valid: true, inst: *inst}
	c.directory.Visit(block)
}

// fill claims a victim block for blockAddr and clears its slots.
func (c *Cache) fill(blockAddr uint64) *akitacache.Block {
	victim := c.directory.FindVictim(blockAddr)

	if victim.IsValid {
		c.stats.Evictions++
	}

	c.stats.Fills++

	idx := c.blockIndex(victim)
	if c.lines[idx] == nil {
		c.lines[idx] = make([]slot, c.config.BlockSize)
	} else {
		clear(c.lines[idx])
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false

	return victim
}

// Invalidate drops every cached instruction whose bytes overlap
// [addr, addr+size) and returns how many were dropped. Instructions that
// start in an earlier block but extend into the range are dropped too.
func (c *Cache) Invalidate(addr uint64, size int) int {
	if size <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	end := addr + uint64(size)
	if end < addr {
		end = ^uint64(0)
	}

	first := uint64(0)
	if addr >= insts.MaxInstructionLength-1 {
		first = c.blockAddr(addr - (insts.MaxInstructionLength - 1))
	}

	dropped := 0
	bs := uint64(c.config.BlockSize)

	for blockAddr := first; blockAddr < end; blockAddr += bs {
		block := c.lookupBlock(blockAddr)
		if block != nil {
			dropped += c.invalidateBlock(block, blockAddr, addr, end)
		}

		if blockAddr+bs < blockAddr {
			break
		}
	}

	c.stats.Invalidations += uint64(dropped)

	return dropped
}

func (c *Cache) invalidateBlock(block *akitacache.Block, blockAddr, start, end uint64) int {
	line := c.lines[c.blockIndex(block)]
	dropped, live := 0, 0

	for off := range line {
		s := &line[off]
		if !s.valid {
			continue
		}

		ip := blockAddr + uint64(off)
		if ip < end && ip+uint64(s.inst.Len()) > start {
			s.valid = false
			dropped++

			continue
		}

		live++
	}

	if live == 0 {
		block.IsValid = false
	}

	return dropped
}

// Decode returns the instruction at the decoder's IP from the cache, or
// decodes and caches it. It reports whether the cache hit.
func (c *Cache) Decode(d *insts.Decoder, inst *insts.Instruction) bool {
	if cached, ok := c.Lookup(d.IP()); ok {
		if d.Accept(&cached) == nil {
			*inst = cached
			return true
		}
	}

	d.DecodeOut(inst)
	if d.LastError() == insts.DecoderErrorNone {
		c.Insert(inst)
	}

	return false
}

// Reset invalidates all blocks and clears statistics.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.directory.Reset()
	c.stats = Statistics{}
}
