package host

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/sarchlab/akita/v4/mem/mem"

	"github.com/sarchlab/hwaccsim/timing/cache"
	"github.com/sarchlab/hwaccsim/timing/core"
	"github.com/sarchlab/hwaccsim/timing/latency"
	"github.com/sarchlab/hwaccsim/timing/memaccess"
	"github.com/sarchlab/hwaccsim/timing/stats"
)

// Clock converts host ticks to accelerator cycles.
type Clock struct {
	Origin        uint64
	TicksPerCycle uint64
}

// Cycle returns the cycle a tick falls in.
func (c Clock) Cycle(tick uint64) uint64 {
	if c.TicksPerCycle == 0 || tick < c.Origin {
		return 0
	}
	return (tick - c.Origin) / c.TicksPerCycle
}

// Tick returns the first tick of a cycle.
func (c Clock) Tick(cycle uint64) uint64 {
	return c.Origin + cycle*c.TicksPerCycle
}

// MemoryOption configures a MemorySystem.
type MemoryOption func(*MemorySystem)

// WithMemoryLogger sets the logger.
func WithMemoryLogger(logger *slog.Logger) MemoryOption {
	return func(m *MemorySystem) {
		m.logger = logger
	}
}

// MemorySystem serves the configured memory regions. Each region has its own
// port, its own storage and, for DRAM with the cache enabled, its own cache.
type MemorySystem struct {
	ctx    core.SimContext
	clock  Clock
	ports  []*RegionPort
	logger *slog.Logger

	counters   stats.MemoryCounters
	peakCycle  uint64
	readBytes  uint64
	writeBytes uint64
}

var _ core.MemoryStats = (*MemorySystem)(nil)

// NewMemorySystem creates the regions of a configuration.
func NewMemorySystem(
	ctx core.SimContext,
	config *latency.Config,
	opts ...MemoryOption,
) *MemorySystem {
	m := &MemorySystem{
		ctx:    ctx,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(m)
	}

	for i := range config.Memory.Regions {
		r := config.Memory.Regions[i]
		p := &RegionPort{
			sys:     m,
			region:  r,
			storage: mem.NewStorage(r.Size),
		}

		if r.Kind == latency.RegionDRAM && config.Memory.Cache.Enabled {
			p.cache = newCache(config.Memory.Cache, &r,
				cache.NewStorageBacking(p.storage, r.Base))
		}

		m.ports = append(m.ports, p)
	}

	return m
}

func newCache(
	c latency.CacheConfig,
	region *latency.RegionConfig,
	backing cache.BackingStore,
) *cache.Cache {
	miss := c.MissLatency
	if miss == 0 {
		miss = region.Latency
	}

	return cache.New(cache.Config{
		Size:          int(c.Size),
		Associativity: c.Assoc,
		BlockSize:     c.BlockSize,
		HitLatency:    uint64(c.HitLatency),
		MissLatency:   uint64(miss),
	}, backing)
}

// SetClock sets how ticks map to accelerator cycles. It must be called once
// the accelerator is initialized.
func (m *MemorySystem) SetClock(clock Clock) {
	m.clock = clock
}

// Ports returns one port per region, in configuration order.
func (m *MemorySystem) Ports() []memaccess.Port {
	out := make([]memaccess.Port, len(m.ports))
	for i, p := range m.ports {
		out[i] = p
	}
	return out
}

// Port returns the port of region i.
func (m *MemorySystem) Port(i int) *RegionPort {
	return m.ports[i]
}

// MemoryCounters implements core.MemoryStats.
func (m *MemorySystem) MemoryCounters() stats.MemoryCounters {
	return m.counters
}

// Reset clears the counters and the cache tags. Stored data is kept so
// inputs survive a rerun.
func (m *MemorySystem) Reset() {
	m.counters = stats.MemoryCounters{}
	m.peakCycle = 0
	m.readBytes = 0
	m.writeBytes = 0

	for _, p := range m.ports {
		if p.cache != nil {
			if err := p.flush(); err != nil {
				m.logger.Warn("cache flush failed", "region", p.region.Name, "err", err)
			}
			p.cache.Reset()
		}
		p.cycle = 0
		p.reads = 0
		p.writes = 0
	}
}

// countBandwidth tracks the busiest cycle.
func (m *MemorySystem) countBandwidth(cycle uint64, read bool, n uint64) {
	if cycle != m.peakCycle {
		m.peakCycle = cycle
		m.readBytes = 0
		m.writeBytes = 0
	}

	if read {
		m.readBytes += n
		m.counters.PeakReadBytesPerCycle =
			max(m.counters.PeakReadBytesPerCycle, m.readBytes)
		return
	}

	m.writeBytes += n
	m.counters.PeakWriteBytesPerCycle =
		max(m.counters.PeakWriteBytesPerCycle, m.writeBytes)
}

// RegionPort is the memory port of one region.
type RegionPort struct {
	sys     *MemorySystem
	region  latency.RegionConfig
	storage *mem.Storage
	cache   *cache.Cache

	callback func(memaccess.Response)

	cycle  uint64
	reads  int
	writes int
}

var _ memaccess.Port = (*RegionPort)(nil)

// Region returns the configuration of the region.
func (p *RegionPort) Region() latency.RegionConfig {
	return p.region
}

// Cache returns the cache in front of the region, or nil.
func (p *RegionPort) Cache() *cache.Cache {
	return p.cache
}

// SetCompletionCallback implements memaccess.Port.
func (p *RegionPort) SetCompletionCallback(fn func(memaccess.Response)) {
	p.callback = fn
}

func (p *RegionPort) now() uint64 {
	return p.sys.clock.Cycle(p.sys.ctx.CurrentTick())
}

func (p *RegionPort) roll(cycle uint64) {
	if cycle != p.cycle {
		p.cycle = cycle
		p.reads = 0
		p.writes = 0
	}
}

// IsReady implements memaccess.Port.
func (p *RegionPort) IsReady() bool {
	p.roll(p.now())
	return p.reads < p.region.ReadPorts || p.writes < p.region.WritePorts
}

// IsStalled implements memaccess.Port. Requests never wait inside the port.
func (p *RegionPort) IsStalled() bool {
	return false
}

// beats is the number of bus transfers an access takes.
func (p *RegionPort) beats(size int) uint64 {
	bus := p.region.BusWidth
	if bus <= 0 || size <= 0 {
		return 1
	}
	return uint64((size + bus - 1) / bus)
}

// SendTimingRequest implements memaccess.Port. It accepts up to ReadPorts
// reads and WritePorts writes per cycle.
func (p *RegionPort) SendTimingRequest(req memaccess.Request) bool {
	now := p.now()
	p.roll(now)

	c := &p.sys.counters
	isWrite := req.Kind.IsWrite()
	switch {
	case isWrite && p.writes >= p.region.WritePorts:
		c.WritePortStalls++
		return false
	case !isWrite && p.reads >= p.region.ReadPorts:
		c.ReadPortStalls++
		return false
	}

	if isWrite {
		p.writes++
	} else {
		p.reads++
	}

	resp, lat := p.serve(&req)
	resp.Cycle = now + lat
	p.count(&req, resp.Success, lat, now)

	p.deliver(resp)

	return true
}

// deliver fires the completion half a cycle before the completion cycle so
// that the response is visible when that cycle is simulated.
func (p *RegionPort) deliver(resp memaccess.Response) {
	clock := p.sys.clock
	tick := clock.Tick(resp.Cycle) - clock.TicksPerCycle/2

	ev := p.sys.ctx.CreateEvent(func() {
		if p.callback != nil {
			p.callback(resp)
		}
	}, p.region.Name+".complete")
	p.sys.ctx.Schedule(ev, tick)
}

// serve performs the data movement of a request and returns its latency.
func (p *RegionPort) serve(req *memaccess.Request) (memaccess.Response, uint64) {
	resp := memaccess.Response{ID: req.ID, Success: true}
	size := int(req.Size)
	if req.Kind.IsWrite() {
		size = len(req.Data)
	}

	lat := uint64(p.region.Latency) + p.beats(size) - 1

	if !p.region.Contains(req.Addr, uint32(size)) {
		resp.Success = false
		return resp, max(lat, 1)
	}

	switch {
	case req.Kind.IsRead():
		if p.cache != nil {
			res := p.cache.Read(req.Addr, size)
			lat = res.Latency + p.beats(size) - 1
			p.countCache(false, res.Hit)
			resp.Data, resp.Success = res.Data, res.Err == nil
			break
		}
		data, err := p.storage.Read(req.Addr-p.region.Base, uint64(size))
		resp.Data, resp.Success = data, err == nil

	case req.Kind.IsWrite():
		if p.cache != nil {
			res := p.cache.Write(req.Addr, req.Data)
			lat = res.Latency + p.beats(size) - 1
			p.countCache(true, res.Hit)
			resp.Success = res.Err == nil
			break
		}
		resp.Success = p.storage.Write(req.Addr-p.region.Base, req.Data) == nil

	default:
		// Cache maintenance only travels the functional path.
		resp.Success = false
	}

	if !resp.Success {
		p.sys.logger.Warn("memory request failed",
			"region", p.region.Name, "kind", req.Kind.String(), "addr", req.Addr)
	}

	return resp, max(lat, 1)
}

func (p *RegionPort) countCache(write, hit bool) {
	c := &p.sys.counters
	switch {
	case write && hit:
		c.CacheWriteHits++
	case write:
		c.CacheWriteMisses++
	case hit:
		c.CacheReadHits++
	default:
		c.CacheReadMisses++
	}
}

func (p *RegionPort) count(req *memaccess.Request, ok bool, lat, now uint64) {
	if !ok {
		return
	}

	read := req.Kind.IsRead()
	if !read && !req.Kind.IsWrite() {
		return
	}

	c := &p.sys.counters
	n := uint64(req.Size)
	if !read {
		n = uint64(len(req.Data))
	}

	dma := p.region.Kind == latency.RegionDRAM && p.cache == nil

	switch {
	case read:
		c.ReadLatency.Add(lat)
	default:
		c.WriteLatency.Add(lat)
	}

	switch {
	case p.region.Kind == latency.RegionSPM && read:
		c.SPMReads++
		c.SPMReadBytes += n
	case p.region.Kind == latency.RegionSPM:
		c.SPMWrites++
		c.SPMWriteBytes += n
	case dma && read:
		c.DMAReads++
		c.DMAReadBytes += n
		c.DMAReadLatency += lat
	case dma:
		c.DMAWrites++
		c.DMAWriteBytes += n
		c.DMAWriteLatency += lat
	}

	p.sys.countBandwidth(now, read, n)
}

// SendFunctional implements memaccess.Port. Functional accesses go to the
// backing storage at once and keep the cache coherent. They are not counted.
func (p *RegionPort) SendFunctional(req *memaccess.Request) {
	size := req.Size
	if req.Kind.IsWrite() {
		size = uint32(len(req.Data))
	}

	req.Completed = true
	if !p.region.Contains(req.Addr, size) {
		req.Success = false
		return
	}

	var err error
	switch {
	case req.Kind.IsRead():
		req.Data, err = p.read(req.Addr, int(size))
	case req.Kind.IsWrite():
		err = p.write(req.Addr, req.Data)
	case req.Kind == memaccess.Invalidate:
		p.invalidate(req.Addr, int(size))
	case req.Kind == memaccess.Flush:
		err = p.flush()
	default:
		err = fmt.Errorf("unsupported functional %s", req.Kind)
	}

	req.Success = err == nil
	if err != nil {
		p.sys.logger.Warn("functional request failed",
			"region", p.region.Name, "kind", req.Kind.String(),
			"addr", req.Addr, "err", err)
	}
}

func (p *RegionPort) flush() error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Flush()
}

func (p *RegionPort) read(addr uint64, size int) ([]byte, error) {
	if err := p.flush(); err != nil {
		return nil, err
	}
	return p.storage.Read(addr-p.region.Base, uint64(size))
}

// write stores directly and drops any cached copy of the lines it touches.
// Dirty lines are written back first so that their other bytes survive.
func (p *RegionPort) write(addr uint64, data []byte) error {
	if err := p.flush(); err != nil {
		return err
	}

	if err := p.storage.Write(addr-p.region.Base, data); err != nil {
		return err
	}

	p.invalidate(addr, len(data))

	return nil
}

// invalidate drops the cached lines overlapping [addr, addr+size). At least
// the line holding addr is dropped.
func (p *RegionPort) invalidate(addr uint64, size int) {
	if p.cache == nil {
		return
	}

	block := uint64(p.cache.Config().BlockSize)
	end := addr + uint64(max(size, 1))
	for a := addr / block * block; a < end; a += block {
		p.cache.Invalidate(a)
	}
}
