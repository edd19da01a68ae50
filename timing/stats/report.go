package stats

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Version is the report format version.
const Version = "1.0"

// Float is a float64 that serializes non-finite values as null.
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler. null reads as NaN.
func (f *Float) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = Float(math.NaN())
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)

	return nil
}

func ratio(num, den float64) Float {
	if den == 0 {
		return Float(math.NaN())
	}
	return Float(num / den)
}

// Report is the statistics document of one run.
type Report struct {
	Header

	Performance     Performance     `json:"performance"`
	FunctionalUnits FunctionalUnits `json:"functional_units"`
	Memory          Memory          `json:"memory"`
	MemoryAccess    MemoryAccess    `json:"memory_access"`
	Dataflow        Dataflow        `json:"dataflow"`
	FUUtilization   FUUtilization   `json:"fu_utilization"`
	StallBreakdown  StallBreakdown  `json:"stall_breakdown"`
	Power           Power           `json:"power"`
	Area            Area            `json:"area"`
}

// Header identifies a run. Its fields are filled in by the caller and are
// not part of the simulated result.
type Header struct {
	Version         string `json:"version"`
	AcceleratorName string `json:"accelerator_name"`
	RunID           string `json:"run_id,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"`
}

// Performance holds the cycle counters.
type Performance struct {
	SetupTimeNS   Float `json:"setup_time_ns"`
	SimTimeNS     Float `json:"sim_time_ns"`
	ClockPeriodNS Float `json:"clock_period_ns"`
	SysClockGHz   Float `json:"sys_clock_ghz"`

	TotalCycles   uint64 `json:"total_cycles"`
	StallCycles   uint64 `json:"stall_cycles"`
	ExecutedNodes uint64 `json:"executed_nodes"`
	Finished      bool   `json:"finished"`

	Instructions     uint64 `json:"instructions"`
	PoisonedResults  uint64 `json:"poisoned_results"`
	PoisonedBranches uint64 `json:"poisoned_branches"`
	RequestFailures  uint64 `json:"request_failures"`

	// NodeBreakdown and StallBreakdown count executed and stalled cycles by
	// the kinds of instructions in flight.
	NodeBreakdown  map[string]uint64 `json:"node_breakdown"`
	StallBreakdown map[string]uint64 `json:"stall_breakdown"`
	StallsByCause  map[string]uint64 `json:"stalls_by_cause"`
}

// FunctionalUnits describes the unit inventory and how much of it was used.
type FunctionalUnits struct {
	StaticCount    map[string]int   `json:"static_count"`
	MaxConcurrency map[string]int   `json:"max_concurrency"`
	Occupancy      map[string]Float `json:"occupancy"`
}

// Region describes one configured memory region.
type Region struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	SizeKB     Float  `json:"size_kb"`
	ReadPorts  int    `json:"read_ports"`
	WritePorts int    `json:"write_ports"`
}

// Memory describes the memory topology and its traffic.
type Memory struct {
	CacheSizeKB Float    `json:"cache_size_kb"`
	SPMSizeKB   Float    `json:"spm_size_kb"`
	Regions     []Region `json:"regions"`
	MemReads    uint64   `json:"mem_reads"`
	MemWrites   uint64   `json:"mem_writes"`
	DMAReads    uint64   `json:"dma_reads"`
	DMAWrites   uint64   `json:"dma_writes"`
}

// CacheAccess holds cache hit counters.
type CacheAccess struct {
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	HitRate     Float  `json:"hit_rate"`
	ReadHits    uint64 `json:"read_hits"`
	ReadMisses  uint64 `json:"read_misses"`
	WriteHits   uint64 `json:"write_hits"`
	WriteMisses uint64 `json:"write_misses"`
}

// SPMAccess holds scratchpad counters.
type SPMAccess struct {
	Reads      uint64 `json:"reads"`
	Writes     uint64 `json:"writes"`
	ReadBytes  uint64 `json:"read_bytes"`
	WriteBytes uint64 `json:"write_bytes"`
}

// DMAAccess holds counters of uncached DRAM traffic.
type DMAAccess struct {
	ReadRequests      uint64 `json:"read_requests"`
	WriteRequests     uint64 `json:"write_requests"`
	ReadBytes         uint64 `json:"read_bytes"`
	WriteBytes        uint64 `json:"write_bytes"`
	ReadLatencyTotal  uint64 `json:"read_latency_total"`
	WriteLatencyTotal uint64 `json:"write_latency_total"`
}

// Latency holds request latencies in cycles.
type Latency struct {
	Avg      Float  `json:"avg"`
	Min      uint64 `json:"min"`
	Max      uint64 `json:"max"`
	AvgRead  Float  `json:"avg_read"`
	AvgWrite Float  `json:"avg_write"`
	MinRead  uint64 `json:"min_read"`
	MaxRead  uint64 `json:"max_read"`
	MinWrite uint64 `json:"min_write"`
	MaxWrite uint64 `json:"max_write"`
}

// Bandwidth holds byte totals and rates.
type Bandwidth struct {
	TotalBytesRead         uint64 `json:"total_bytes_read"`
	TotalBytesWritten      uint64 `json:"total_bytes_written"`
	ReadBytesPerCycle      Float  `json:"read_bytes_per_cycle"`
	WriteBytesPerCycle     Float  `json:"write_bytes_per_cycle"`
	PeakReadBytesPerCycle  uint64 `json:"peak_read_bytes_per_cycle"`
	PeakWriteBytesPerCycle uint64 `json:"peak_write_bytes_per_cycle"`
}

// Contention holds memory port contention counters.
type Contention struct {
	ReadPortStalls  uint64 `json:"read_port_stalls"`
	WritePortStalls uint64 `json:"write_port_stalls"`
	QueuedRequests  uint64 `json:"queued_requests"`
	QueueFullStalls uint64 `json:"queue_full_stalls"`
}

// MemoryAccess is the detailed memory traffic section.
type MemoryAccess struct {
	Cache      CacheAccess `json:"cache"`
	SPM        SPMAccess   `json:"spm"`
	DMA        DMAAccess   `json:"dma"`
	Latency    Latency     `json:"latency"`
	Bandwidth  Bandwidth   `json:"bandwidth"`
	Contention Contention  `json:"contention"`
	Failures   uint64      `json:"failures"`
}

// CriticalPath describes the longest dependency chain.
type CriticalPath struct {
	Length   uint32 `json:"length"`
	Loads    uint32 `json:"loads"`
	Stores   uint32 `json:"stores"`
	Computes uint32 `json:"computes"`
}

// Dependencies counts dependency edges by kind.
type Dependencies struct {
	RAW     uint64 `json:"raw_true"`
	WAR     uint64 `json:"war_anti"`
	WAW     uint64 `json:"waw_output"`
	Control uint64 `json:"control"`
	Memory  uint64 `json:"memory"`
	Total   uint64 `json:"total_edges"`
}

// Dataflow is the dataflow section.
type Dataflow struct {
	CriticalPath      CriticalPath      `json:"critical_path"`
	TotalInstructions uint64            `json:"total_instructions"`
	ILP               Float             `json:"ilp"`
	AvgParallelism    Float             `json:"avg_parallelism"`
	MaxParallelOps    int               `json:"max_parallel_ops"`
	Dependencies      Dependencies      `json:"dependencies"`
	Histogram         map[string]uint64 `json:"parallelism_histogram"`
}

// FUTypeUtilization holds the utilization of one unit type.
type FUTypeUtilization struct {
	Instances        int    `json:"instances"`
	MaxConcurrent    int    `json:"max_concurrent"`
	BusyCycles       uint64 `json:"busy_cycles"`
	Operations       uint64 `json:"operations"`
	ContentionStalls uint64 `json:"contention_stalls"`
	ContentionRate   Float  `json:"contention_rate"`
}

// FUUtilization is the functional unit utilization section.
type FUUtilization struct {
	TotalBusyCycles       uint64                       `json:"total_busy_cycles"`
	TotalContentionStalls uint64                       `json:"total_contention_stalls"`
	ByType                map[string]FUTypeUtilization `json:"by_type"`
	MostContended         string                       `json:"most_contended"`
}

// MemoryStallDetail splits memory stalls.
type MemoryStallDetail struct {
	LatencyStalls uint64 `json:"latency_stalls"`
	DMAStalls     uint64 `json:"dma_stalls"`
	PortStalls    uint64 `json:"port_stalls"`
}

// DependencyStallDetail splits hazard stalls.
type DependencyStallDetail struct {
	RAWStalls uint64 `json:"raw_stalls"`
	WAWStalls uint64 `json:"waw_stalls"`
	WARStalls uint64 `json:"war_stalls"`
}

// ResourceStallDetail splits resource stalls.
type ResourceStallDetail struct {
	FUContention  uint64 `json:"fu_contention"`
	ResourceLimit uint64 `json:"resource_limit"`
	ControlFlow   uint64 `json:"control_flow"`
}

// StallBreakdown is the stall section.
type StallBreakdown struct {
	ByCause              map[string]uint64     `json:"by_cause"`
	MemoryDetail         MemoryStallDetail     `json:"memory_detail"`
	DependencyDetail     DependencyStallDetail `json:"dependency_detail"`
	ResourceDetail       ResourceStallDetail   `json:"resource_detail"`
	TotalStallCycles     uint64                `json:"total_stall_cycles"`
	MaxConsecutiveStalls uint64                `json:"max_consecutive_stalls"`
	StallEvents          uint64                `json:"stall_events"`
	AvgStallDuration     Float                 `json:"avg_stall_duration"`
	DominantBottleneck   string                `json:"dominant_bottleneck"`
}

// DomainPower is the power of one domain in mW.
type DomainPower struct {
	Leakage Float `json:"leakage_mw"`
	Dynamic Float `json:"dynamic_mw"`
	Total   Float `json:"total_mw"`
}

// Power is the power section.
type Power struct {
	FU            DomainPower `json:"functional_units"`
	Register      DomainPower `json:"registers"`
	SPM           DomainPower `json:"spm"`
	Cache         DomainPower `json:"cache"`
	TotalPowerMW  Float       `json:"total_power_mw"`
	TotalEnergyNJ Float       `json:"total_energy_nj"`
}

// Area is the area section.
type Area struct {
	FUUM2       Float `json:"fu_area_um2"`
	RegisterUM2 Float `json:"reg_area_um2"`
	SPMUM2      Float `json:"spm_area_um2"`
	CacheUM2    Float `json:"cache_area_um2"`
	TotalUM2    Float `json:"total_area_um2"`
	TotalMM2    Float `json:"total_area_mm2"`
}

// Marshal serializes the report as JSON, indented when pretty is set.
func (r *Report) Marshal(pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(r, "", "  ")
	}
	return json.Marshal(r)
}

// Unmarshal parses a report produced by Marshal.
func Unmarshal(data []byte) (*Report, error) {
	r := &Report{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, err
	}
	return r, nil
}
