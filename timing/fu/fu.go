// Package fu arbitrates functional unit instances between instructions.
//
// Each unit type has a configured number of instances. An instance is held
// from the cycle an instruction issues until the cycle its result commits.
// A count of 0 means the type is unlimited: acquisition always succeeds and
// never records contention.
package fu

import "github.com/sarchlab/hwaccsim/insts"

// TypeStats summarizes one unit type.
type TypeStats struct {
	Type            insts.FUType
	Count           int
	Ops             uint64
	Contentions     uint64
	BusyCycles      uint64
	PeakConcurrency int
}

type slot struct {
	busy   bool
	since  uint64
	freeAt uint64
}

type pool struct {
	count int
	slots []slot

	active      int
	peak        int
	ops         uint64
	contentions uint64
	busyCycles  uint64
}

// Allocator hands out functional unit instances.
type Allocator struct {
	pools [insts.NumFUTypes]pool
	cycle uint64
}

// NewAllocator creates an allocator. Types missing from counts are
// unlimited.
func NewAllocator(counts map[insts.FUType]int) *Allocator {
	a := &Allocator{}

	for t, n := range counts {
		if t < insts.NumFUTypes && n > 0 {
			a.pools[t].count = n
			a.pools[t].slots = make([]slot, n)
		}
	}

	return a
}

// BeginCycle sets the cycle that later acquisitions are made in.
func (a *Allocator) BeginCycle(cycle uint64) {
	a.cycle = cycle
}

// Cycle returns the current cycle.
func (a *Allocator) Cycle() uint64 {
	return a.cycle
}

func (p *pool) available(s *slot, cycle uint64) bool {
	return !s.busy && s.freeAt <= cycle
}

// TryAcquire grants the first available instance of t. On failure the
// contention counter of t is incremented and nothing is queued.
func (a *Allocator) TryAcquire(t insts.FUType) (int, bool) {
	p := &a.pools[t]

	for i := range p.slots {
		if p.available(&p.slots[i], a.cycle) {
			a.grant(p, i)
			return i, true
		}
	}

	if p.count == 0 {
		p.slots = append(p.slots, slot{})
		i := len(p.slots) - 1
		a.grant(p, i)
		return i, true
	}

	p.contentions++
	return -1, false
}

func (a *Allocator) grant(p *pool, i int) {
	s := &p.slots[i]
	s.busy = true
	s.since = a.cycle

	p.ops++
	p.active++
	if p.active > p.peak {
		p.peak = p.active
	}
}

// Release ends the busy interval of an instance at the given cycle. An
// instance is held for at least one cycle, so a zero-latency operation still
// blocks its instance until the next cycle.
func (a *Allocator) Release(t insts.FUType, instance int, cycle uint64) {
	p := &a.pools[t]
	if instance < 0 || instance >= len(p.slots) {
		panic("releasing an unknown functional unit instance")
	}

	s := &p.slots[instance]
	if !s.busy {
		panic("releasing a functional unit instance that is not busy")
	}

	end := cycle
	if end < s.since+1 {
		end = s.since + 1
	}

	s.busy = false
	s.freeAt = end
	p.active--
	p.busyCycles += end - s.since
}

// Holding reports whether any instance of any type is held.
func (a *Allocator) Holding() bool {
	for t := range a.pools {
		if a.pools[t].active > 0 {
			return true
		}
	}
	return false
}

// Stats returns the statistics of every unit type.
func (a *Allocator) Stats() []TypeStats {
	out := make([]TypeStats, 0, insts.NumFUTypes)

	for t := insts.FUType(0); t < insts.NumFUTypes; t++ {
		p := &a.pools[t]
		out = append(out, TypeStats{
			Type:            t,
			Count:           p.count,
			Ops:             p.ops,
			Contentions:     p.contentions,
			BusyCycles:      p.busyCycles,
			PeakConcurrency: p.peak,
		})
	}

	return out
}

// Reset returns every instance and clears the statistics.
func (a *Allocator) Reset() {
	for t := range a.pools {
		p := &a.pools[t]
		n := p.count
		*p = pool{count: n}
		if n > 0 {
			p.slots = make([]slot, n)
		}
	}
	a.cycle = 0
}
