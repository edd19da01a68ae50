package stats

import "github.com/sarchlab/hwaccsim/timing/pipeline"

// DefaultRingCapacity is the number of cycles a CycleRing keeps.
const DefaultRingCapacity = 4096

// Snapshot is the state of the accelerator at the end of one cycle.
type Snapshot struct {
	Cycle uint64

	Window          int
	InFlightLoads   int
	InFlightStores  int
	InFlightCompute int
	Ready           int

	Issued  bool
	Stalled bool
	Cause   pipeline.StallCause
}

// NewSnapshot converts a scheduler cycle record.
func NewSnapshot(rec pipeline.CycleRecord) Snapshot {
	return Snapshot{
		Cycle:           rec.Cycle,
		Window:          rec.Window,
		InFlightLoads:   rec.InFlightLoads,
		InFlightStores:  rec.InFlightStores,
		InFlightCompute: rec.InFlightCompute,
		Ready:           rec.Ready,
		Issued:          rec.Issued > 0,
		Stalled:         rec.Stalled,
		Cause:           rec.Cause,
	}
}

// Peaks holds the largest counts seen in any snapshot.
type Peaks struct {
	Window          int
	InFlightLoads   int
	InFlightStores  int
	InFlightCompute int
	Ready           int
}

// CycleRing keeps the most recent snapshots. Peaks cover every snapshot
// ever pushed, not only the retained ones.
type CycleRing struct {
	buf   []Snapshot
	next  int
	total uint64
	peaks Peaks
}

// NewCycleRing creates a ring. A non-positive capacity selects
// DefaultRingCapacity.
func NewCycleRing(capacity int) *CycleRing {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &CycleRing{buf: make([]Snapshot, 0, capacity)}
}

// Push appends a snapshot, overwriting the oldest when full.
func (r *CycleRing) Push(s Snapshot) {
	if len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, s)
	} else {
		r.buf[r.next] = s
	}
	r.next = (r.next + 1) % cap(r.buf)
	r.total++

	r.peaks.Window = max(r.peaks.Window, s.Window)
	r.peaks.InFlightLoads = max(r.peaks.InFlightLoads, s.InFlightLoads)
	r.peaks.InFlightStores = max(r.peaks.InFlightStores, s.InFlightStores)
	r.peaks.InFlightCompute = max(r.peaks.InFlightCompute, s.InFlightCompute)
	r.peaks.Ready = max(r.peaks.Ready, s.Ready)
}

// Len returns the number of retained snapshots.
func (r *CycleRing) Len() int {
	return len(r.buf)
}

// Cap returns the capacity.
func (r *CycleRing) Cap() int {
	return cap(r.buf)
}

// Total returns the number of snapshots ever pushed.
func (r *CycleRing) Total() uint64 {
	return r.total
}

// At returns the i-th retained snapshot, oldest first.
func (r *CycleRing) At(i int) Snapshot {
	if i < 0 || i >= len(r.buf) {
		panic("cycle ring index out of range")
	}

	if len(r.buf) < cap(r.buf) {
		return r.buf[i]
	}
	return r.buf[(r.next+i)%cap(r.buf)]
}

// Snapshots returns the retained snapshots, oldest first.
func (r *CycleRing) Snapshots() []Snapshot {
	out := make([]Snapshot, len(r.buf))
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}

// Peaks returns the largest counts seen.
func (r *CycleRing) Peaks() Peaks {
	return r.peaks
}

// Reset empties the ring.
func (r *CycleRing) Reset() {
	r.buf = r.buf[:0]
	r.next = 0
	r.total = 0
	r.peaks = Peaks{}
}
