// Package latency holds the hardware description of an accelerator: the
// functional unit inventory, per-opcode cycle counts, the memory topology and
// the power model.
//
// A Config is loaded from JSON or YAML, validated once, and compiled into a
// Table that the scheduler queries every cycle.
package latency

import (
	"github.com/sarchlab/hwaccsim/cdfg"
	"github.com/sarchlab/hwaccsim/insts"
)

type opTiming struct {
	fu       insts.FUType
	fuSet    bool
	cycles   uint64
	cyclesOK bool
}

// Table provides latency and functional unit lookups.
type Table struct {
	config *Config

	ops     [256]opTiming
	fuCount [insts.NumFUTypes]int
	fuCyc   [insts.NumFUTypes]uint64
	fuCycOK [insts.NumFUTypes]bool
	power   *PowerModel
}

// NewTable compiles a validated Config. The Config must not change
// afterwards.
func NewTable(config *Config) *Table {
	t := &Table{config: config}

	for name, fu := range config.FunctionalUnits {
		ft, err := insts.ParseFUType(name)
		if err != nil {
			continue
		}
		t.fuCount[ft] = fu.Count
		if fu.Cycles != nil {
			t.fuCyc[ft] = uint64(*fu.Cycles)
			t.fuCycOK[ft] = true
		}
	}

	for name, ic := range config.Instructions {
		op, err := insts.ParseOpcode(name)
		if err != nil {
			continue
		}
		ot := &t.ops[op]
		if ic.FunctionalUnit != "" {
			ot.fu, _ = insts.ParseFUType(ic.FunctionalUnit)
			ot.fuSet = true
		}
		if ic.RuntimeCycles != nil {
			ot.cycles = uint64(*ic.RuntimeCycles)
			ot.cyclesOK = true
		}
	}

	t.power = config.Power
	if t.power == nil {
		t.power = DefaultPowerModel()
	}

	return t
}

// Config returns the configuration the table was built from.
func (t *Table) Config() *Config {
	return t.config
}

// Power returns the power model, falling back to the defaults.
func (t *Table) Power() *PowerModel {
	return t.power
}

// Lockstep reports whether the accelerator runs in lockstep mode.
func (t *Table) Lockstep() bool {
	return t.config.Mode == ModeLockstep
}

// precisionType is the type that decides between the float and double units.
func precisionType(inst *cdfg.Instruction) insts.ValueType {
	if inst.Op == insts.OpFCmp && inst.OperandType.Kind != insts.KindVoid {
		return inst.OperandType
	}
	return inst.Type
}

// FUType returns the functional unit an instruction runs on. A per-opcode
// override beats the type-based default.
func (t *Table) FUType(inst *cdfg.Instruction) insts.FUType {
	if ot := &t.ops[inst.Op]; ot.fuSet {
		return ot.fu
	}
	return insts.DefaultFUType(inst.Op, precisionType(inst))
}

// Latency returns the execution cycles of an instruction. The per-opcode
// runtime_cycles wins, then the unit's cycles, then the built-in default.
// Loads and stores are timed by the memory system instead.
func (t *Table) Latency(inst *cdfg.Instruction) uint64 {
	if ot := &t.ops[inst.Op]; ot.cyclesOK {
		return ot.cycles
	}

	fu := t.FUType(inst)
	if t.fuCycOK[fu] {
		return t.fuCyc[fu]
	}

	return insts.DefaultLatency(inst.Op, precisionType(inst))
}

// FUCount returns the number of instances of a unit type. 0 means unlimited.
func (t *Table) FUCount(ft insts.FUType) int {
	return t.fuCount[ft]
}

// FUCounts returns the configured instance count of every unit type.
func (t *Table) FUCounts() map[insts.FUType]int {
	counts := make(map[insts.FUType]int, insts.NumFUTypes)
	for ft := insts.FUType(0); ft < insts.NumFUTypes; ft++ {
		counts[ft] = t.fuCount[ft]
	}
	return counts
}

// RegionFor returns the index of the region that holds addr, or -1.
func (t *Table) RegionFor(addr uint64) int {
	for i := range t.config.Memory.Regions {
		r := &t.config.Memory.Regions[i]
		if addr >= r.Base && addr < r.End() {
			return i
		}
	}
	return -1
}

// Region returns a region by index.
func (t *Table) Region(i int) *RegionConfig {
	return &t.config.Memory.Regions[i]
}

// NumRegions returns the number of memory regions.
func (t *Table) NumRegions() int {
	return len(t.config.Memory.Regions)
}
