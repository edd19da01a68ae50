package latency

import (
	"github.com/sarchlab/hwaccsim/insts"
)

// FUPower holds the area and power coefficients of one functional unit
// instance.
type FUPower struct {
	AreaUM2        float64 `json:"area_um2" yaml:"area_um2"`
	LeakageMW      float64 `json:"leakage_mw" yaml:"leakage_mw"`
	DynamicReadMW  float64 `json:"dynamic_read_mw" yaml:"dynamic_read_mw"`
	DynamicWriteMW float64 `json:"dynamic_write_mw" yaml:"dynamic_write_mw"`
}

// RegisterPower holds per-bit register coefficients.
type RegisterPower struct {
	BitsPerValue    int     `json:"bits_per_value" yaml:"bits_per_value"`
	AreaPerBitUM2   float64 `json:"area_per_bit_um2" yaml:"area_per_bit_um2"`
	LeakagePerBitMW float64 `json:"leakage_per_bit_mw" yaml:"leakage_per_bit_mw"`
	ReadPerBitMW    float64 `json:"read_per_bit_mw" yaml:"read_per_bit_mw"`
	WritePerBitMW   float64 `json:"write_per_bit_mw" yaml:"write_per_bit_mw"`
}

// MemoryPower holds SPM or cache coefficients.
type MemoryPower struct {
	LeakagePerKBMW   float64 `json:"leakage_per_kb_mw" yaml:"leakage_per_kb_mw"`
	ReadPerAccessMW  float64 `json:"read_per_access_mw" yaml:"read_per_access_mw"`
	WritePerAccessMW float64 `json:"write_per_access_mw" yaml:"write_per_access_mw"`
	AreaPerKBUM2     float64 `json:"area_per_kb_um2" yaml:"area_per_kb_um2"`
}

// PowerModel is the coefficient model used for the power and area sections
// of the report.
type PowerModel struct {
	FunctionalUnits map[string]FUPower `json:"functional_units" yaml:"functional_units"`
	Register        RegisterPower      `json:"register" yaml:"register"`
	SPM             MemoryPower        `json:"spm" yaml:"spm"`
	Cache           MemoryPower        `json:"cache" yaml:"cache"`
}

// DefaultPowerModel returns 45nm coefficients.
func DefaultPowerModel() *PowerModel {
	return &PowerModel{
		FunctionalUnits: map[string]FUPower{
			"int_addsub":       {179.443, 2.380803e-03, 8.115300e-03, 6.162853e-03},
			"int_muldiv":       {4595, 4.817683e-02, 5.725752e-01, 8.662890e-01},
			"int_bitwise":      {50.36996, 6.111633e-04, 1.680942e-03, 1.322420e-03},
			"int_shift":        {100, 1e-3, 2e-3, 1.5e-3},
			"fp_float_addsub":  {1500, 1.5e-2, 5e-2, 4e-2},
			"fp_float_muldiv":  {3000, 3e-2, 1e-1, 8e-2},
			"fp_double_addsub": {3000, 3e-2, 1e-1, 8e-2},
			"fp_double_muldiv": {6000, 6e-2, 2e-1, 1.5e-1},
			"gep":              {200, 2e-3, 5e-3, 4e-3},
			"conversion":       {150, 1.5e-3, 4e-3, 3e-3},
		},
		Register: RegisterPower{
			BitsPerValue:    32,
			AreaPerBitUM2:   5.981433,
			LeakagePerBitMW: 7.395312e-05,
			ReadPerBitMW:    1.322600e-03,
			WritePerBitMW:   1.792126e-04,
		},
		SPM: MemoryPower{
			LeakagePerKBMW:   0.5,
			ReadPerAccessMW:  0.1,
			WritePerAccessMW: 0.15,
			AreaPerKBUM2:     10000,
		},
		Cache: MemoryPower{
			LeakagePerKBMW:   0.8,
			ReadPerAccessMW:  0.2,
			WritePerAccessMW: 0.25,
			AreaPerKBUM2:     15000,
		},
	}
}

// Unit returns the coefficients of a functional unit type. Types without an
// entry, such as zero_cycle, cost nothing.
func (p *PowerModel) Unit(t insts.FUType) FUPower {
	return p.FunctionalUnits[t.String()]
}

// Validate rejects negative coefficients and unknown unit names.
func (p *PowerModel) Validate() error {
	for name, fu := range p.FunctionalUnits {
		if _, err := insts.ParseFUType(name); err != nil {
			return invalid("power.functional_units: %v", err)
		}
		if fu.AreaUM2 < 0 || fu.LeakageMW < 0 ||
			fu.DynamicReadMW < 0 || fu.DynamicWriteMW < 0 {
			return invalid("power.functional_units.%s has a negative coefficient", name)
		}
	}

	if p.Register.BitsPerValue < 0 {
		return invalid("power.register.bits_per_value must be >= 0")
	}

	for _, m := range []MemoryPower{p.SPM, p.Cache} {
		if m.LeakagePerKBMW < 0 || m.ReadPerAccessMW < 0 ||
			m.WritePerAccessMW < 0 || m.AreaPerKBUM2 < 0 {
			return invalid("power memory coefficients must be >= 0")
		}
	}

	return nil
}

// Clone returns a deep copy.
func (p *PowerModel) Clone() *PowerModel {
	out := *p
	out.FunctionalUnits = make(map[string]FUPower, len(p.FunctionalUnits))
	for k, v := range p.FunctionalUnits {
		out.FunctionalUnits[k] = v
	}
	return &out
}
