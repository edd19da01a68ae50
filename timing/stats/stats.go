// Package stats aggregates the per-cycle output of the scheduler and the
// counters of the other timing components into a Report.
//
// The Engine only accumulates what it is handed. It never inspects the
// scheduler, so a Report is a pure function of the observed data.
package stats

import (
	"io"
	"log/slog"
	"math"
	"strconv"

	"github.com/sarchlab/hwaccsim/cdfg"
	"github.com/sarchlab/hwaccsim/timing/fu"
	"github.com/sarchlab/hwaccsim/timing/hazard"
	"github.com/sarchlab/hwaccsim/timing/latency"
	"github.com/sarchlab/hwaccsim/timing/memaccess"
	"github.com/sarchlab/hwaccsim/timing/pipeline"
)

// Mix is the combination of instruction kinds in flight in a cycle.
type Mix uint8

// Mix bits.
const (
	MixLoad Mix = 1 << iota
	MixStore
	MixCompute

	numMixes = 8
)

var mixNames = [numMixes]string{
	0:                               "idle",
	MixLoad:                         "load_only",
	MixStore:                        "store_only",
	MixCompute:                      "comp_only",
	MixLoad | MixStore:              "load_store",
	MixLoad | MixCompute:            "load_comp",
	MixStore | MixCompute:           "store_comp",
	MixLoad | MixStore | MixCompute: "load_store_comp",
}

func (m Mix) String() string {
	return mixNames[m&(numMixes-1)]
}

// MixOf classifies a snapshot.
func MixOf(s Snapshot) Mix {
	var m Mix
	if s.InFlightLoads > 0 {
		m |= MixLoad
	}
	if s.InFlightStores > 0 {
		m |= MixStore
	}
	if s.InFlightCompute > 0 {
		m |= MixCompute
	}
	return m
}

// MemoryCounters are the counters a memory system reports about its
// regions and cache.
type MemoryCounters struct {
	CacheReadHits    uint64
	CacheReadMisses  uint64
	CacheWriteHits   uint64
	CacheWriteMisses uint64

	SPMReads      uint64
	SPMWrites     uint64
	SPMReadBytes  uint64
	SPMWriteBytes uint64

	DMAReads        uint64
	DMAWrites       uint64
	DMAReadBytes    uint64
	DMAWriteBytes   uint64
	DMAReadLatency  uint64
	DMAWriteLatency uint64

	ReadLatency  LatencyCounter
	WriteLatency LatencyCounter

	ReadPortStalls  uint64
	WritePortStalls uint64

	PeakReadBytesPerCycle  uint64
	PeakWriteBytesPerCycle uint64
}

// LatencyCounter accumulates request latencies.
type LatencyCounter struct {
	Count uint64
	Sum   uint64
	Min   uint64
	Max   uint64
}

// Add records one latency.
func (c *LatencyCounter) Add(lat uint64) {
	if c.Count == 0 || lat < c.Min {
		c.Min = lat
	}
	c.Max = max(c.Max, lat)
	c.Sum += lat
	c.Count++
}

// Avg returns the mean latency, NaN without samples.
func (c LatencyCounter) Avg() Float {
	return ratio(float64(c.Sum), float64(c.Count))
}

// DataflowCounters are the dependency counters of a run.
type DataflowCounters struct {
	Instructions uint64
	CriticalPath hazard.Chain
	Edges        hazard.Edges
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRingCapacity sets the number of snapshots kept.
func WithRingCapacity(n int) EngineOption {
	return func(e *Engine) {
		e.ring = NewCycleRing(n)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// Engine accumulates statistics over one run.
type Engine struct {
	config *latency.Config
	table  *latency.Table
	graph  *cdfg.Graph
	ring   *CycleRing
	logger *slog.Logger

	inCycle bool

	cycles    uint64
	stalls    uint64
	executed  uint64
	finished  bool
	lastStall bool

	nodeMix  [numMixes]uint64
	stallMix [numMixes]uint64
	byCause  [pipeline.NumStallCauses]uint64

	consecutive    uint64
	maxConsecutive uint64
	stallEvents    uint64

	histogram   map[int]uint64
	maxParallel int

	fuStats  []fu.TypeStats
	memStats memaccess.Stats
	counters MemoryCounters
	dataflow DataflowCounters
	sched    pipeline.Statistics
}

// NewEngine creates an Engine for a graph running on the given hardware.
func NewEngine(
	config *latency.Config,
	table *latency.Table,
	graph *cdfg.Graph,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		config:    config,
		table:     table,
		graph:     graph,
		ring:      NewCycleRing(DefaultRingCapacity),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		histogram: make(map[int]uint64),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// OnCycleStart marks the beginning of a cycle.
func (e *Engine) OnCycleStart() {
	if e.inCycle {
		e.logger.Warn("cycle started twice")
	}
	e.inCycle = true
}

// OnCycleEnd accounts one cycle. The record of the cycle in which the run
// was found complete only counts toward the total.
func (e *Engine) OnCycleEnd(rec pipeline.CycleRecord) {
	e.inCycle = false
	e.cycles++

	if rec.Done {
		e.finished = true
		return
	}

	s := NewSnapshot(rec)
	e.ring.Push(s)
	e.lastStall = s.Stalled

	e.histogram[s.Ready]++
	e.maxParallel = max(e.maxParallel, rec.Issued)

	mix := MixOf(s)
	if !s.Stalled {
		e.executed++
		e.nodeMix[mix]++
		e.consecutive = 0
		return
	}

	e.stalls++
	e.stallMix[mix]++
	e.byCause[s.Cause]++

	if e.consecutive == 0 {
		e.stallEvents++
	}
	e.consecutive++
	e.maxConsecutive = max(e.maxConsecutive, e.consecutive)
}

// ObserveFU hands over the functional unit statistics.
func (e *Engine) ObserveFU(stats []fu.TypeStats) {
	e.fuStats = stats
}

// ObserveMemory hands over the memory pipeline and memory system counters.
func (e *Engine) ObserveMemory(stats memaccess.Stats, counters MemoryCounters) {
	e.memStats = stats
	e.counters = counters
}

// ObserveDataflow hands over the dependency counters.
func (e *Engine) ObserveDataflow(d DataflowCounters) {
	e.dataflow = d
}

// ObserveScheduler hands over the scheduler counters.
func (e *Engine) ObserveScheduler(s pipeline.Statistics) {
	e.sched = s
}

// Ring returns the snapshot ring.
func (e *Engine) Ring() *CycleRing {
	return e.ring
}

// Cycles returns the number of cycles accounted.
func (e *Engine) Cycles() uint64 {
	return e.cycles
}

// Reset clears everything accumulated.
func (e *Engine) Reset() {
	e.ring.Reset()

	e.inCycle = false
	e.cycles = 0
	e.stalls = 0
	e.executed = 0
	e.finished = false
	e.lastStall = false
	e.nodeMix = [numMixes]uint64{}
	e.stallMix = [numMixes]uint64{}
	e.byCause = [pipeline.NumStallCauses]uint64{}
	e.consecutive = 0
	e.maxConsecutive = 0
	e.stallEvents = 0
	e.histogram = make(map[int]uint64)
	e.maxParallel = 0

	e.fuStats = nil
	e.memStats = memaccess.Stats{}
	e.counters = MemoryCounters{}
	e.dataflow = DataflowCounters{}
	e.sched = pipeline.Statistics{}
}

// Summarize builds the report from what has been observed.
func (e *Engine) Summarize() Report {
	r := Report{
		Header: Header{
			Version:         Version,
			AcceleratorName: e.config.Name,
		},
	}

	e.summarizePerformance(&r)
	e.summarizeFU(&r)
	e.summarizeMemory(&r)
	e.summarizeDataflow(&r)
	e.summarizeStalls(&r)
	e.summarizePower(&r)

	return r
}

func (e *Engine) summarizePerformance(r *Report) {
	period := e.config.ClockPeriodNS
	p := &r.Performance

	p.ClockPeriodNS = Float(period)
	p.SysClockGHz = ratio(1, period)
	p.SimTimeNS = Float(float64(e.cycles) * period)
	p.TotalCycles = e.cycles
	p.ExecutedNodes, p.StallCycles = e.closedCounts()
	p.Finished = e.finished

	p.Instructions = e.sched.Issued
	p.PoisonedResults = e.sched.PoisonedResults
	p.PoisonedBranches = e.sched.PoisonedBranches
	p.RequestFailures = e.sched.RequestFailures

	p.NodeBreakdown = mixMap(&e.nodeMix)
	p.StallBreakdown = mixMap(&e.stallMix)
	p.StallsByCause = e.causeMap()
}

// closedCounts returns the executed and stalled cycle counts with one cycle
// set aside as the closing cycle. A finished run already left its closing
// cycle out. An unfinished run closes on the last cycle it accounted.
func (e *Engine) closedCounts() (executed, stalls uint64) {
	executed, stalls = e.executed, e.stalls
	if e.finished || e.cycles == 0 {
		return executed, stalls
	}

	if e.lastStall {
		stalls--
	} else {
		executed--
	}
	return executed, stalls
}

func mixMap(counts *[numMixes]uint64) map[string]uint64 {
	m := make(map[string]uint64, numMixes-1)
	for mix := Mix(1); mix < numMixes; mix++ {
		m[mix.String()] = counts[mix]
	}
	return m
}

func (e *Engine) causeMap() map[string]uint64 {
	m := make(map[string]uint64, pipeline.NumStallCauses)
	for c := pipeline.StallCause(0); c < pipeline.NumStallCauses; c++ {
		m[c.String()] = e.byCause[c]
	}
	return m
}

// instances is the number of units of a type that exist in hardware. An
// unlimited type is sized by its peak use.
func instances(s fu.TypeStats) int {
	if s.Count > 0 {
		return s.Count
	}
	return s.PeakConcurrency
}

func (e *Engine) summarizeFU(r *Report) {
	units := &r.FunctionalUnits
	units.StaticCount = make(map[string]int)
	units.MaxConcurrency = make(map[string]int)
	units.Occupancy = make(map[string]Float)

	util := &r.FUUtilization
	util.ByType = make(map[string]FUTypeUtilization)
	util.MostContended = "none"

	var most uint64
	for _, s := range e.fuStats {
		name := s.Type.String()
		n := instances(s)

		units.StaticCount[name] = s.Count
		units.MaxConcurrency[name] = s.PeakConcurrency
		units.Occupancy[name] = ratio(float64(s.BusyCycles),
			float64(n)*float64(e.cycles))

		util.ByType[name] = FUTypeUtilization{
			Instances:        n,
			MaxConcurrent:    s.PeakConcurrency,
			BusyCycles:       s.BusyCycles,
			Operations:       s.Ops,
			ContentionStalls: s.Contentions,
			ContentionRate: ratio(float64(s.Contentions),
				float64(s.Ops+s.Contentions)),
		}

		util.TotalBusyCycles += s.BusyCycles
		util.TotalContentionStalls += s.Contentions
		if s.Contentions > most {
			most = s.Contentions
			util.MostContended = name
		}
	}
}

func (e *Engine) summarizeMemory(r *Report) {
	c := &e.counters
	m := &r.Memory

	for i := range e.config.Memory.Regions {
		reg := &e.config.Memory.Regions[i]
		kb := float64(reg.Size) / 1024
		m.Regions = append(m.Regions, Region{
			Name:       reg.Name,
			Kind:       reg.Kind,
			SizeKB:     Float(kb),
			ReadPorts:  reg.ReadPorts,
			WritePorts: reg.WritePorts,
		})
		if reg.Kind == latency.RegionSPM {
			m.SPMSizeKB += Float(kb)
		}
	}

	if e.config.Memory.Cache.Enabled {
		m.CacheSizeKB = Float(float64(e.config.Memory.Cache.Size) / 1024)
	}

	m.MemReads = e.memStats.Reads
	m.MemWrites = e.memStats.Writes
	m.DMAReads = c.DMAReads
	m.DMAWrites = c.DMAWrites

	a := &r.MemoryAccess
	hits := c.CacheReadHits + c.CacheWriteHits
	misses := c.CacheReadMisses + c.CacheWriteMisses
	a.Cache = CacheAccess{
		Hits:        hits,
		Misses:      misses,
		HitRate:     ratio(float64(hits), float64(hits+misses)),
		ReadHits:    c.CacheReadHits,
		ReadMisses:  c.CacheReadMisses,
		WriteHits:   c.CacheWriteHits,
		WriteMisses: c.CacheWriteMisses,
	}
	a.SPM = SPMAccess{
		Reads:      c.SPMReads,
		Writes:     c.SPMWrites,
		ReadBytes:  c.SPMReadBytes,
		WriteBytes: c.SPMWriteBytes,
	}
	a.DMA = DMAAccess{
		ReadRequests:      c.DMAReads,
		WriteRequests:     c.DMAWrites,
		ReadBytes:         c.DMAReadBytes,
		WriteBytes:        c.DMAWriteBytes,
		ReadLatencyTotal:  c.DMAReadLatency,
		WriteLatencyTotal: c.DMAWriteLatency,
	}
	a.Latency = Latency{
		Avg:      Float(e.memStats.AvgLatency()),
		Min:      e.memStats.LatencyMin,
		Max:      e.memStats.LatencyMax,
		AvgRead:  c.ReadLatency.Avg(),
		AvgWrite: c.WriteLatency.Avg(),
		MinRead:  c.ReadLatency.Min,
		MaxRead:  c.ReadLatency.Max,
		MinWrite: c.WriteLatency.Min,
		MaxWrite: c.WriteLatency.Max,
	}
	if e.memStats.Completed == 0 {
		a.Latency.Avg = Float(math.NaN())
	}
	a.Bandwidth = Bandwidth{
		TotalBytesRead:         e.memStats.BytesRead,
		TotalBytesWritten:      e.memStats.BytesWritten,
		ReadBytesPerCycle:      ratio(float64(e.memStats.BytesRead), float64(e.cycles)),
		WriteBytesPerCycle:     ratio(float64(e.memStats.BytesWritten), float64(e.cycles)),
		PeakReadBytesPerCycle:  c.PeakReadBytesPerCycle,
		PeakWriteBytesPerCycle: c.PeakWriteBytesPerCycle,
	}
	a.Contention = Contention{
		ReadPortStalls:  c.ReadPortStalls,
		WritePortStalls: c.WritePortStalls,
		QueuedRequests:  e.memStats.PortContention,
		QueueFullStalls: e.memStats.Rejected,
	}
	a.Failures = e.memStats.Failures
}

func (e *Engine) summarizeDataflow(r *Report) {
	d := &r.Dataflow
	cp := e.dataflow.CriticalPath
	edges := e.dataflow.Edges

	d.CriticalPath = CriticalPath{
		Length:   cp.Length,
		Loads:    cp.Loads,
		Stores:   cp.Stores,
		Computes: cp.Computes,
	}
	d.TotalInstructions = e.dataflow.Instructions
	d.ILP = ratio(float64(e.dataflow.Instructions), float64(cp.Length))
	d.MaxParallelOps = e.maxParallel
	d.Dependencies = Dependencies{
		RAW:     edges.RAW,
		WAR:     edges.WAR,
		WAW:     edges.WAW,
		Control: edges.Control,
		Memory:  edges.Memory,
		Total:   edges.Total(),
	}

	d.Histogram = make(map[string]uint64, len(e.histogram))
	var ready, sampled uint64
	for n, cycles := range e.histogram {
		d.Histogram[strconv.Itoa(n)] = cycles
		ready += uint64(n) * cycles
		sampled += cycles
	}
	d.AvgParallelism = ratio(float64(ready), float64(sampled))
}

// Bottleneck returns the report label of a dominant stall cause.
func Bottleneck(c pipeline.StallCause) string {
	switch c {
	case pipeline.StallMemoryLatency:
		return "memory_latency"
	case pipeline.StallRAW:
		return "data_dependency"
	case pipeline.StallFUContention:
		return "compute_bound"
	case pipeline.StallPortContention:
		return "memory_bandwidth"
	case pipeline.StallControlFlow:
		return "control_flow"
	case pipeline.StallDMAPending:
		return "dma"
	case pipeline.StallResourceLimit:
		return "resource_limit"
	}
	return "none"
}

// DominantCause returns the cause with the most stall cycles, ignoring
// StallNone. Ties go to the cause declared first.
func (e *Engine) DominantCause() pipeline.StallCause {
	best := pipeline.StallNone
	var most uint64
	for c := pipeline.StallNone + 1; c < pipeline.NumStallCauses; c++ {
		if e.byCause[c] > most {
			most = e.byCause[c]
			best = c
		}
	}
	return best
}

func (e *Engine) summarizeStalls(r *Report) {
	s := &r.StallBreakdown

	s.ByCause = e.causeMap()
	s.MemoryDetail = MemoryStallDetail{
		LatencyStalls: e.byCause[pipeline.StallMemoryLatency],
		DMAStalls:     e.byCause[pipeline.StallDMAPending],
		PortStalls:    e.byCause[pipeline.StallPortContention],
	}
	s.DependencyDetail = DependencyStallDetail{
		RAWStalls: e.byCause[pipeline.StallRAW],
		WAWStalls: e.byCause[pipeline.StallWAW],
		WARStalls: e.byCause[pipeline.StallWAR],
	}
	s.ResourceDetail = ResourceStallDetail{
		FUContention:  e.byCause[pipeline.StallFUContention],
		ResourceLimit: e.byCause[pipeline.StallResourceLimit],
		ControlFlow:   e.byCause[pipeline.StallControlFlow],
	}
	_, stalls := e.closedCounts()
	s.TotalStallCycles = stalls
	s.MaxConsecutiveStalls = e.maxConsecutive
	s.StallEvents = e.stallEvents
	s.AvgStallDuration = ratio(float64(stalls), float64(e.stallEvents))
	s.DominantBottleneck = Bottleneck(e.DominantCause())
}
