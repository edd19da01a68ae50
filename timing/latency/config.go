package latency

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/hwaccsim/insts"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid hardware configuration")

// Execution modes.
const (
	ModeOutOfOrder = "out_of_order"
	ModeLockstep   = "lockstep"
)

// Memory region kinds.
const (
	RegionSPM  = "spm"
	RegionDRAM = "dram"
)

// Config describes the accelerator hardware: functional units, per-opcode
// timing and the memory topology.
type Config struct {
	// Name identifies the accelerator in reports.
	Name string `json:"name" yaml:"name"`

	// ClockPeriodNS is the cycle time. Default: 5ns.
	ClockPeriodNS float64 `json:"clock_period_ns" yaml:"clock_period_ns"`

	// Mode is "out_of_order" (default) or "lockstep".
	Mode string `json:"mode" yaml:"mode"`

	// MaxWindow bounds the number of instructions in flight. 0 is unbounded.
	MaxWindow int `json:"max_window" yaml:"max_window"`

	// FunctionalUnits is keyed by unit type name, e.g. "int_addsub".
	FunctionalUnits map[string]FUConfig `json:"functional_units" yaml:"functional_units"`

	// Instructions is keyed by opcode name, e.g. "fmul".
	Instructions map[string]InstConfig `json:"instructions" yaml:"instructions"`

	Memory MemoryConfig `json:"memory" yaml:"memory"`

	// Power overrides the default 45nm power and area coefficients.
	Power *PowerModel `json:"power,omitempty" yaml:"power,omitempty"`
}

// FUConfig configures one functional unit type.
type FUConfig struct {
	// Count is the number of instances. 0 means unlimited.
	Count int `json:"count" yaml:"count"`

	// Cycles is the default latency of operations on this unit.
	Cycles *int `json:"cycles,omitempty" yaml:"cycles,omitempty"`
}

// InstConfig overrides the unit and latency of one opcode.
type InstConfig struct {
	FunctionalUnit string `json:"functional_unit,omitempty" yaml:"functional_unit,omitempty"`
	RuntimeCycles  *int   `json:"runtime_cycles,omitempty" yaml:"runtime_cycles,omitempty"`
}

// MemoryConfig lists the address regions and the data cache.
type MemoryConfig struct {
	Regions []RegionConfig `json:"regions" yaml:"regions"`
	Cache   CacheConfig    `json:"cache" yaml:"cache"`
}

// RegionConfig is one address range served by a memory port.
type RegionConfig struct {
	Name string `json:"name" yaml:"name"`

	// Kind is "spm" for scratchpad or "dram" for main memory reached by DMA.
	Kind string `json:"kind" yaml:"kind"`

	Base uint64 `json:"base" yaml:"base"`
	Size uint64 `json:"size" yaml:"size"`

	// ReadPorts and WritePorts bound the requests accepted per cycle.
	ReadPorts  int `json:"read_ports" yaml:"read_ports"`
	WritePorts int `json:"write_ports" yaml:"write_ports"`

	// Latency is the access time in cycles.
	Latency int `json:"latency" yaml:"latency"`

	// BusWidth is the number of bytes moved per cycle per port.
	BusWidth int `json:"bus_width" yaml:"bus_width"`

	// QueueDepth bounds the retry queue in front of the port. 0 means the
	// pipeline default.
	QueueDepth int `json:"queue_depth" yaml:"queue_depth"`
}

// End returns the first address past the region.
func (r *RegionConfig) End() uint64 {
	return r.Base + r.Size
}

// Contains reports whether [addr, addr+size) lies inside the region.
func (r *RegionConfig) Contains(addr uint64, size uint32) bool {
	return addr >= r.Base && addr+uint64(size) <= r.End() && addr+uint64(size) >= addr
}

// CacheConfig describes the data cache in front of DRAM regions.
type CacheConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Size       uint64 `json:"size" yaml:"size"`
	Assoc      int    `json:"assoc" yaml:"assoc"`
	BlockSize  int    `json:"block_size" yaml:"block_size"`
	HitLatency int    `json:"hit_latency" yaml:"hit_latency"`

	// MissLatency is the fill time of a miss. 0 means the latency of the
	// DRAM region behind the cache.
	MissLatency int `json:"miss_latency" yaml:"miss_latency"`
}

func intPtr(v int) *int {
	return &v
}

// DefaultConfig returns a small accelerator: a 64KB dual-ported scratchpad,
// a DRAM window reached through a 16KB cache, and one instance of every
// arithmetic unit.
func DefaultConfig() *Config {
	return &Config{
		Name:          "accelerator",
		ClockPeriodNS: 5,
		Mode:          ModeOutOfOrder,
		FunctionalUnits: map[string]FUConfig{
			"int_addsub":       {Count: 2},
			"int_muldiv":       {Count: 1},
			"int_shift":        {Count: 1},
			"int_bitwise":      {Count: 1},
			"fp_float_addsub":  {Count: 1},
			"fp_float_muldiv":  {Count: 1},
			"fp_double_addsub": {Count: 1},
			"fp_double_muldiv": {Count: 1},
			"gep":              {Count: 0},
			"conversion":       {Count: 0},
			"zero_cycle":       {Count: 0, Cycles: intPtr(0)},
		},
		Instructions: map[string]InstConfig{},
		Memory: MemoryConfig{
			Regions: []RegionConfig{
				{
					Name:       "spm",
					Kind:       RegionSPM,
					Base:       0x1000_0000,
					Size:       64 * 1024,
					ReadPorts:  2,
					WritePorts: 2,
					Latency:    2,
					BusWidth:   8,
					QueueDepth: 16,
				},
				{
					Name:       "dram",
					Kind:       RegionDRAM,
					Base:       0x8000_0000,
					Size:       256 * 1024 * 1024,
					ReadPorts:  1,
					WritePorts: 1,
					Latency:    40,
					BusWidth:   16,
					QueueDepth: 16,
				},
			},
			Cache: CacheConfig{
				Enabled:    true,
				Size:       16 * 1024,
				Assoc:      4,
				BlockSize:  64,
				HitLatency: 2,
			},
		},
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads and validates a Config from a JSON or YAML file. Fields
// absent from the file keep their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hardware config file: %w", err)
	}

	config, err := ParseConfig(data, isYAML(path))
	if err != nil {
		return nil, err
	}

	return config, nil
}

// ParseConfig decodes and validates a Config.
func ParseConfig(data []byte, asYAML bool) (*Config, error) {
	config := DefaultConfig()

	if asYAML {
		err := yaml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse hardware config: %w", err)
		}
	} else {
		err := json.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse hardware config: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig writes the Config as JSON, or YAML when the path ends in .yaml
// or .yml.
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)

	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize hardware config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write hardware config file: %w", err)
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}

// Validate checks the whole configuration. Every problem it reports is fatal
// and must be fixed before simulation starts.
func (c *Config) Validate() error {
	if c.ClockPeriodNS <= 0 {
		return invalid("clock_period_ns must be > 0")
	}
	if c.Mode != ModeOutOfOrder && c.Mode != ModeLockstep {
		return invalid("unknown mode %q", c.Mode)
	}
	if c.MaxWindow < 0 {
		return invalid("max_window must be >= 0")
	}

	if err := c.validateUnits(); err != nil {
		return err
	}
	if err := c.validateInstructions(); err != nil {
		return err
	}
	if err := c.validateMemory(); err != nil {
		return err
	}

	if c.Power != nil {
		if err := c.Power.Validate(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateUnits() error {
	for name, fu := range c.FunctionalUnits {
		if _, err := insts.ParseFUType(name); err != nil {
			return invalid("functional_units: %v", err)
		}
		if fu.Count < 0 {
			return invalid("functional_units.%s.count must be >= 0", name)
		}
		if fu.Cycles != nil && *fu.Cycles < 0 {
			return invalid("functional_units.%s.cycles must be >= 0", name)
		}
	}
	return nil
}

func (c *Config) validateInstructions() error {
	for name, ic := range c.Instructions {
		if _, err := insts.ParseOpcode(name); err != nil {
			return invalid("instructions: %v", err)
		}
		if ic.FunctionalUnit != "" {
			if _, err := insts.ParseFUType(ic.FunctionalUnit); err != nil {
				return invalid("instructions.%s: %v", name, err)
			}
		}
		if ic.RuntimeCycles != nil && *ic.RuntimeCycles < 0 {
			return invalid("instructions.%s.runtime_cycles must be >= 0", name)
		}
	}
	return nil
}

func (c *Config) validateMemory() error {
	regions := c.Memory.Regions
	if len(regions) == 0 {
		return invalid("memory.regions must not be empty")
	}

	names := make(map[string]bool)
	hasDRAM := false

	for i := range regions {
		r := &regions[i]
		if err := validateRegion(r); err != nil {
			return err
		}
		if names[r.Name] {
			return invalid("memory region %q defined twice", r.Name)
		}
		names[r.Name] = true
		hasDRAM = hasDRAM || r.Kind == RegionDRAM
	}

	sorted := make([]*RegionConfig, len(regions))
	for i := range regions {
		sorted[i] = &regions[i]
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Base < sorted[j].Base })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Base < sorted[i-1].End() {
			return invalid("memory regions %q and %q overlap",
				sorted[i-1].Name, sorted[i].Name)
		}
	}

	cache := &c.Memory.Cache
	if !cache.Enabled {
		return nil
	}

	switch {
	case !hasDRAM:
		return invalid("memory.cache needs a dram region to front")
	case cache.Size == 0 || cache.Assoc <= 0 || cache.BlockSize <= 0:
		return invalid("memory.cache size, assoc and block_size must be > 0")
	case cache.BlockSize&(cache.BlockSize-1) != 0:
		return invalid("memory.cache.block_size must be a power of two")
	case cache.Size%uint64(cache.Assoc*cache.BlockSize) != 0:
		return invalid("memory.cache.size must be a multiple of assoc * block_size")
	case cache.HitLatency < 1:
		return invalid("memory.cache.hit_latency must be >= 1")
	case cache.MissLatency < 0:
		return invalid("memory.cache.miss_latency must be >= 0")
	}

	return nil
}

func validateRegion(r *RegionConfig) error {
	switch {
	case r.Name == "":
		return invalid("memory region without a name")
	case r.Kind != RegionSPM && r.Kind != RegionDRAM:
		return invalid("memory region %q has unknown kind %q", r.Name, r.Kind)
	case r.Size == 0:
		return invalid("memory region %q has zero size", r.Name)
	case r.Base+r.Size < r.Base:
		return invalid("memory region %q wraps the address space", r.Name)
	case r.ReadPorts < 1 || r.WritePorts < 1:
		return invalid("memory region %q needs at least one read and one write port", r.Name)
	case r.Latency < 1:
		return invalid("memory region %q latency must be >= 1", r.Name)
	case r.BusWidth < 1:
		return invalid("memory region %q bus_width must be >= 1", r.Name)
	case r.QueueDepth < 0:
		return invalid("memory region %q queue_depth must be >= 0", r.Name)
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	out := *c

	out.FunctionalUnits = make(map[string]FUConfig, len(c.FunctionalUnits))
	for k, v := range c.FunctionalUnits {
		if v.Cycles != nil {
			v.Cycles = intPtr(*v.Cycles)
		}
		out.FunctionalUnits[k] = v
	}

	out.Instructions = make(map[string]InstConfig, len(c.Instructions))
	for k, v := range c.Instructions {
		if v.RuntimeCycles != nil {
			v.RuntimeCycles = intPtr(*v.RuntimeCycles)
		}
		out.Instructions[k] = v
	}

	out.Memory.Regions = append([]RegionConfig(nil), c.Memory.Regions...)

	if c.Power != nil {
		out.Power = c.Power.Clone()
	}

	return &out
}

// SetLatency overrides the cycle count of an opcode.
func (c *Config) SetLatency(op insts.Opcode, cycles int) {
	ic := c.Instructions[op.String()]
	ic.RuntimeCycles = intPtr(cycles)
	if c.Instructions == nil {
		c.Instructions = make(map[string]InstConfig)
	}
	c.Instructions[op.String()] = ic
}

// SetUnits sets the instance count of a functional unit type.
func (c *Config) SetUnits(t insts.FUType, count int) {
	if c.FunctionalUnits == nil {
		c.FunctionalUnits = make(map[string]FUConfig)
	}
	fu := c.FunctionalUnits[t.String()]
	fu.Count = count
	c.FunctionalUnits[t.String()] = fu
}
