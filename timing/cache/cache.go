// Package cache models the accelerator's data cache using Akita cache
// components.
//
// The cache is write-back and write-allocate with LRU replacement. It keeps
// the functional data of cached blocks, so reads through the cache observe
// earlier writes even before they are written back.
package cache

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes
	Size int
	// Associativity (number of ways)
	Associativity int
	// BlockSize in bytes (cache line size)
	BlockSize int
	// HitLatency in cycles
	HitLatency uint64
	// MissLatency in cycles, on top of the hit latency
	MissLatency uint64
}

// DefaultConfig returns a 16KB 4-way cache with 64B lines in front of a
// 40-cycle DRAM.
func DefaultConfig() Config {
	return Config{
		Size:          16 * 1024,
		Associativity: 4,
		BlockSize:     64,
		HitLatency:    2,
		MissLatency:   40,
	}
}

// AccessResult contains the result of a cache access.
type AccessResult struct {
	// Hit is true if every line the access touched was present.
	Hit bool
	// Latency is the number of cycles this access takes.
	Latency uint64
	// Data is the data read (for read operations).
	Data []byte
	// Evicted is true if a valid block was replaced.
	Evicted bool
	// EvictedAddr is the address of the last evicted block.
	EvictedAddr uint64
	// Err is set when the backing store failed.
	Err error
}

// Cache is a set-associative data cache.
type Cache struct {
	config Config

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	// Data storage - indexed by (setID * associativity + wayID)
	dataStore [][]byte

	stats Statistics

	// Backing store interface (for fetching on miss and writeback)
	backing BackingStore
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// HitRate returns hits over accesses.
func (s Statistics) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// New creates a new cache with the given configuration.
func New(config Config, backing BackingStore) *Cache {
	numSets := config.Size / (config.Associativity * config.BlockSize)
	totalBlocks := numSets * config.Associativity

	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.BlockSize)
	}

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
		backing:   backing,
	}
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *Cache) blockAddr(addr uint64) uint64 {
	return addr / uint64(c.config.BlockSize) * uint64(c.config.BlockSize)
}

// Read reads size bytes. Accesses may cross line boundaries; each line is
// looked up in turn and the slowest line decides the latency.
func (c *Cache) Read(addr uint64, size int) AccessResult {
	c.stats.Reads++

	result := AccessResult{Hit: true, Data: make([]byte, size)}
	c.eachLine(addr, size, func(lineAddr uint64, lo, hi int) bool {
		data, ok := c.access(lineAddr, &result)
		if !ok {
			return false
		}
		off := int(addr + uint64(lo) - lineAddr)
		copy(result.Data[lo:hi], data[off:off+hi-lo])
		return true
	})

	return result
}

// Write writes data. On a miss the line is fetched before it is written.
func (c *Cache) Write(addr uint64, data []byte) AccessResult {
	c.stats.Writes++

	result := AccessResult{Hit: true}
	c.eachLine(addr, len(data), func(lineAddr uint64, lo, hi int) bool {
		line, ok := c.access(lineAddr, &result)
		if !ok {
			return false
		}
		off := int(addr + uint64(lo) - lineAddr)
		copy(line[off:off+hi-lo], data[lo:hi])
		block := c.directory.Lookup(0, lineAddr)
		block.IsDirty = true
		return true
	})

	return result
}

// eachLine splits [addr, addr+size) by cache line. fn receives the line
// address and the byte range of the access that falls into that line.
func (c *Cache) eachLine(addr uint64, size int, fn func(lineAddr uint64, lo, hi int) bool) {
	lo := 0
	for lo < size {
		lineAddr := c.blockAddr(addr + uint64(lo))
		hi := int(lineAddr + uint64(c.config.BlockSize) - addr)
		if hi > size {
			hi = size
		}
		if !fn(lineAddr, lo, hi) {
			return
		}
		lo = hi
	}
}

// access makes one line present and returns its data.
func (c *Cache) access(lineAddr uint64, result *AccessResult) ([]byte, bool) {
	block := c.directory.Lookup(0, lineAddr)
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		result.Latency = max(result.Latency, c.config.HitLatency)
		return c.dataStore[c.blockIndex(block)], true
	}

	c.stats.Misses++
	result.Hit = false
	result.Latency = max(result.Latency, c.config.HitLatency+c.config.MissLatency)

	data, err := c.fill(lineAddr, result)
	if err != nil {
		result.Err = err
		return nil, false
	}
	return data, true
}

// fill fetches a line into its victim way.
func (c *Cache) fill(lineAddr uint64, result *AccessResult) ([]byte, error) {
	victim := c.directory.FindVictim(lineAddr)
	if victim == nil {
		return nil, fmt.Errorf("no victim for line %#x", lineAddr)
	}

	victimData := c.dataStore[c.blockIndex(victim)]

	if victim.IsValid {
		c.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = victim.Tag

		if victim.IsDirty && c.backing != nil {
			c.stats.Writebacks++
			if err := c.backing.Write(victim.Tag, victimData); err != nil {
				return nil, fmt.Errorf("failed to write back line %#x: %w", victim.Tag, err)
			}
		}
	}

	if c.backing != nil {
		newData, err := c.backing.Read(lineAddr, c.config.BlockSize)
		if err != nil {
			victim.IsValid = false
			victim.IsDirty = false
			return nil, fmt.Errorf("failed to fill line %#x: %w", lineAddr, err)
		}
		copy(victimData, newData)
	} else {
		clear(victimData)
	}

	victim.Tag = lineAddr
	victim.IsValid = true
	victim.IsDirty = false
	c.directory.Visit(victim)

	return victimData, nil
}

// Contains reports whether the line holding addr is present.
func (c *Cache) Contains(addr uint64) bool {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	return block != nil && block.IsValid
}

// Invalidate drops the line holding addr without writing it back.
func (c *Cache) Invalidate(addr uint64) {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	if block != nil && block.IsValid {
		block.IsValid = false
		block.IsDirty = false
	}
}

// Flush writes back all dirty blocks and invalidates them.
func (c *Cache) Flush() error {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty && c.backing != nil {
				blockData := c.dataStore[c.blockIndex(block)]
				if err := c.backing.Write(block.Tag, blockData); err != nil {
					return fmt.Errorf("failed to flush line %#x: %w", block.Tag, err)
				}
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
	return nil
}

// Reset invalidates all cache lines without writeback.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}
