// Package memaccess moves memory requests from the scheduler to the host's
// memory ports.
//
// Requests live in an arena and are referred to by RequestID. A launched
// request is either pending at its port or waiting in that port's FIFO retry
// queue. Completions arrive through the port callback, are latched into the
// arena, and are announced to the completion handler. The scheduler releases
// the slot once it has consumed the result.
package memaccess

import (
	"io"
	"log/slog"
	"math"
)

// DefaultQueueDepth bounds each retry queue when no depth is configured.
const DefaultQueueDepth = 16

// PortStats are the counters of one port.
type PortStats struct {
	Reads      uint64
	Writes     uint64
	Contention uint64
	Rejected   uint64
}

// Stats summarizes the traffic through the pipeline.
type Stats struct {
	Reads        uint64
	Writes       uint64
	BytesRead    uint64
	BytesWritten uint64
	Completed    uint64
	Failures     uint64

	LatencyMin uint64
	LatencyMax uint64
	LatencySum uint64

	// PortContention counts request-cycles spent in retry queues.
	PortContention uint64

	// Rejected counts launches refused because a retry queue was full.
	Rejected uint64

	Ports []PortStats
}

// AvgLatency returns the mean request latency in cycles.
func (s Stats) AvgLatency() float64 {
	if s.Completed == 0 {
		return 0
	}
	return float64(s.LatencySum) / float64(s.Completed)
}

type slot struct {
	req  Request
	live bool
}

// Pipeline is the memory access pipeline of one accelerator.
type Pipeline struct {
	router Router
	ports  []Port

	defaultDepth int
	depths       map[int]int
	queues       [][]RequestID

	slots []slot
	free  []RequestID

	outstanding int
	onComplete  func(RequestID)

	stats  Stats
	logger *slog.Logger
}

// A PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithQueueDepth sets the retry queue bound of every port.
func WithQueueDepth(n int) PipelineOption {
	return func(p *Pipeline) {
		p.defaultDepth = n
	}
}

// WithPortQueueDepth sets the retry queue bound of one port.
func WithPortQueueDepth(port, n int) PipelineOption {
	return func(p *Pipeline) {
		p.depths[port] = n
	}
}

// WithCompletionHandler sets the function called when a request completes.
func WithCompletionHandler(fn func(RequestID)) PipelineOption {
	return func(p *Pipeline) {
		p.onComplete = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// NewPipeline creates a pipeline in front of the given ports and installs
// its completion callback on each of them.
func NewPipeline(router Router, ports []Port, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		router:       router,
		ports:        ports,
		defaultDepth: DefaultQueueDepth,
		depths:       make(map[int]int),
		queues:       make([][]RequestID, len(ports)),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.resetStats()

	for _, port := range ports {
		port.SetCompletionCallback(p.complete)
	}

	return p
}

func (p *Pipeline) resetStats() {
	p.stats = Stats{
		LatencyMin: math.MaxUint64,
		Ports:      make([]PortStats, len(p.ports)),
	}
}

func (p *Pipeline) queueDepth(port int) int {
	if n, found := p.depths[port]; found && n > 0 {
		return n
	}
	return p.defaultDepth
}

func (p *Pipeline) alloc(req Request) RequestID {
	var id RequestID
	if n := len(p.free); n > 0 {
		id = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		id = RequestID(len(p.slots))
		p.slots = append(p.slots, slot{})
	}

	req.ID = id
	p.slots[id] = slot{req: req, live: true}

	return id
}

// LaunchRead starts a timed read. It returns false if the port's retry
// queue is full, in which case nothing was launched.
func (p *Pipeline) LaunchRead(
	owner uint64,
	addr uint64,
	size uint32,
	cycle uint64,
) (RequestID, bool) {
	return p.launch(Request{
		Kind:       Read,
		Addr:       addr,
		Size:       size,
		Owner:      owner,
		IssueCycle: cycle,
	})
}

// LaunchWrite starts a timed write. It returns false if the port's retry
// queue is full, in which case nothing was launched.
func (p *Pipeline) LaunchWrite(
	owner uint64,
	addr uint64,
	data []byte,
	cycle uint64,
) (RequestID, bool) {
	return p.launch(Request{
		Kind:       Write,
		Addr:       addr,
		Size:       uint32(len(data)),
		Data:       data,
		Owner:      owner,
		IssueCycle: cycle,
	})
}

func (p *Pipeline) launch(req Request) (RequestID, bool) {
	req.Port = p.router.Route(req.Addr, req.Size)

	if req.Port < 0 {
		id := p.alloc(req)
		p.countLaunch(&p.slots[id].req)
		p.outstanding++
		p.logger.Warn("memory access outside every region",
			"addr", req.Addr, "size", req.Size, "owner", req.Owner)
		p.complete(Response{ID: id, Success: false, Cycle: req.IssueCycle})
		return id, true
	}

	port := p.ports[req.Port]
	queue := p.queues[req.Port]

	if len(queue) == 0 && port.IsReady() {
		id := p.alloc(req)
		p.outstanding++
		if port.SendTimingRequest(p.slots[id].req) {
			p.countLaunch(&p.slots[id].req)
			return id, true
		}
		p.outstanding--
		p.release(id)
	}

	if len(queue) >= p.queueDepth(req.Port) {
		p.stats.Rejected++
		p.stats.Ports[req.Port].Rejected++
		p.logger.Debug("memory retry queue full",
			"port", req.Port, "addr", req.Addr)
		return NoRequest, false
	}

	id := p.alloc(req)
	p.queues[req.Port] = append(queue, id)
	p.countLaunch(&p.slots[id].req)
	p.outstanding++

	return id, true
}

func (p *Pipeline) countLaunch(req *Request) {
	var ps *PortStats
	if req.Port >= 0 {
		ps = &p.stats.Ports[req.Port]
	}

	if req.Kind.IsWrite() {
		p.stats.Writes++
		p.stats.BytesWritten += uint64(req.Size)
		if ps != nil {
			ps.Writes++
		}
		return
	}

	p.stats.Reads++
	p.stats.BytesRead += uint64(req.Size)
	if ps != nil {
		ps.Reads++
	}
}

// LaunchFunctional performs an untimed access and returns the finished
// request. It bypasses the retry queues and the arena.
func (p *Pipeline) LaunchFunctional(kind Kind, addr uint64, data []byte) Request {
	req := Request{
		ID:   NoRequest,
		Kind: kind,
		Addr: addr,
		Size: uint32(len(data)),
		Data: data,
		Port: p.router.Route(addr, uint32(len(data))),
	}

	if req.Port < 0 {
		req.Completed = true
		return req
	}

	p.ports[req.Port].SendFunctional(&req)
	req.Completed = true

	return req
}

// Tick retries queued requests in FIFO order while their port accepts them.
// Requests left waiting are counted as port contention.
func (p *Pipeline) Tick(cycle uint64) {
	for i, queue := range p.queues {
		port := p.ports[i]

		sent := 0
		for sent < len(queue) && port.IsReady() {
			id := queue[sent]
			if !port.SendTimingRequest(p.slots[id].req) {
				break
			}
			sent++
		}

		if sent > 0 {
			queue = append(queue[:0], queue[sent:]...)
			p.queues[i] = queue
		}

		p.stats.PortContention += uint64(len(queue))
		p.stats.Ports[i].Contention += uint64(len(queue))
	}
}

func (p *Pipeline) complete(resp Response) {
	if resp.ID < 0 || int(resp.ID) >= len(p.slots) {
		p.logger.Error("completion for unknown request", "id", resp.ID)
		return
	}

	s := &p.slots[resp.ID]
	if !s.live || s.req.Completed {
		p.logger.Error("duplicate completion", "id", resp.ID)
		return
	}

	req := &s.req
	req.Completed = true
	req.Success = resp.Success
	req.CompletionCycle = max(resp.Cycle, req.IssueCycle)
	if resp.Data != nil {
		req.Data = append(req.Data[:0:0], resp.Data...)
	}

	p.outstanding--

	lat := req.Latency()
	p.stats.Completed++
	p.stats.LatencySum += lat
	p.stats.LatencyMin = min(p.stats.LatencyMin, lat)
	p.stats.LatencyMax = max(p.stats.LatencyMax, lat)
	if !resp.Success {
		p.stats.Failures++
	}

	if p.onComplete != nil {
		p.onComplete(resp.ID)
	}
}

// Get returns a copy of a request.
func (p *Pipeline) Get(id RequestID) Request {
	return p.slots[id].req
}

// Release returns a completed request's slot to the arena.
func (p *Pipeline) Release(id RequestID) {
	s := &p.slots[id]
	if !s.live {
		panic("releasing a request twice")
	}
	if !s.req.Completed {
		panic("releasing a request that has not completed")
	}
	p.release(id)
}

func (p *Pipeline) release(id RequestID) {
	p.slots[id] = slot{}
	p.free = append(p.free, id)
}

// InFlight returns the number of launched requests that have not
// completed.
func (p *Pipeline) InFlight() int {
	return p.outstanding
}

// Queued returns the number of requests waiting in retry queues.
func (p *Pipeline) Queued() int {
	n := 0
	for _, q := range p.queues {
		n += len(q)
	}
	return n
}

// Drained reports whether no request is queued or pending at a port.
func (p *Pipeline) Drained() bool {
	return p.outstanding == 0
}

// Stalled reports whether any port reports itself stalled.
func (p *Pipeline) Stalled() bool {
	for _, port := range p.ports {
		if port.IsStalled() {
			return true
		}
	}
	return false
}

// Stats returns a copy of the counters.
func (p *Pipeline) Stats() Stats {
	s := p.stats
	s.Ports = append([]PortStats(nil), p.stats.Ports...)
	if s.Completed == 0 {
		s.LatencyMin = 0
	}
	return s
}

// Reset empties the arena and the queues and clears the counters. Requests
// still pending at a port are forgotten; their completions are ignored.
func (p *Pipeline) Reset() {
	p.slots = nil
	p.free = nil
	for i := range p.queues {
		p.queues[i] = nil
	}
	p.outstanding = 0
	p.resetStats()
}
