package hazard

import (
	"github.com/google/btree"
)

// AccessKind tells loads from stores.
type AccessKind uint8

// Access kinds.
const (
	AccessLoad AccessKind = iota
	AccessStore
)

// Hazard is a memory ordering conflict between two accesses.
type Hazard uint8

// Memory hazards.
const (
	HazardNone Hazard = iota
	// HazardRAW is a load waiting on an earlier store.
	HazardRAW
	// HazardWAW is a store waiting on an earlier store.
	HazardWAW
	// HazardWAR is a store waiting on an earlier load.
	HazardWAR
)

func (h Hazard) String() string {
	switch h {
	case HazardRAW:
		return "raw"
	case HazardWAW:
		return "waw"
	case HazardWAR:
		return "war"
	}
	return "none"
}

type access struct {
	seq   uint64
	kind  AccessKind
	addr  uint64
	size  uint32
	known bool
}

type addrKey struct {
	addr uint64
	seq  uint64
}

func lessAddr(a, b addrKey) bool {
	if a.addr != b.addr {
		return a.addr < b.addr
	}
	return a.seq < b.seq
}

func lessSeq(a, b uint64) bool {
	return a < b
}

// memoryOrder keeps the unretired accesses of a run. Accesses whose address
// is still unknown are indexed by sequence number; resolved ones by address.
type memoryOrder struct {
	accesses map[uint64]*access

	unknownLoads  *btree.BTreeG[uint64]
	unknownStores *btree.BTreeG[uint64]
	resolved      *btree.BTreeG[addrKey]

	maxSize uint32
}

func (m *memoryOrder) reset() {
	m.accesses = make(map[uint64]*access)
	m.unknownLoads = btree.NewG(16, lessSeq)
	m.unknownStores = btree.NewG(16, lessSeq)
	m.resolved = btree.NewG(16, lessAddr)
	m.maxSize = 0
}

func (m *memoryOrder) unknown(kind AccessKind) *btree.BTreeG[uint64] {
	if kind == AccessStore {
		return m.unknownStores
	}
	return m.unknownLoads
}

// overlapping calls fn for every resolved access that overlaps
// [addr, addr+size), in address order, until fn returns false.
func (m *memoryOrder) overlapping(addr uint64, size uint32, fn func(a *access) bool) {
	lo := uint64(0)
	if m.maxSize > 0 && addr >= uint64(m.maxSize)-1 {
		lo = addr - uint64(m.maxSize) + 1
	}
	hi := addr + uint64(size)

	m.resolved.AscendRange(addrKey{addr: lo}, addrKey{addr: hi},
		func(k addrKey) bool {
			other := m.accesses[k.seq]
			if other.addr+uint64(other.size) <= addr {
				return true
			}
			return fn(other)
		})
}

// AddAccess registers a load or store in program order. Its address is
// unknown until ResolveAddress.
func (t *Tracker) AddAccess(seq uint64, kind AccessKind) {
	m := &t.memory
	m.accesses[seq] = &access{seq: seq, kind: kind}
	m.unknown(kind).ReplaceOrInsert(seq)
}

// ResolveAddress records the address of an access and counts the ordering
// edges it forms with other unretired accesses to the same bytes.
func (t *Tracker) ResolveAddress(seq uint64, addr uint64, size uint32) {
	m := &t.memory
	a := m.accesses[seq]
	if a == nil || a.known {
		return
	}

	m.unknown(a.kind).Delete(seq)
	a.addr = addr
	a.size = size
	a.known = true

	m.overlapping(addr, size, func(other *access) bool {
		if other.seq < seq {
			t.edges.count(other.kind, a.kind)
		} else {
			t.edges.count(a.kind, other.kind)
		}
		return true
	})

	m.resolved.ReplaceOrInsert(addrKey{addr: addr, seq: seq})
	if size > m.maxSize {
		m.maxSize = size
	}
}

// MemoryHazard reports whether an access must wait for an earlier one. An
// earlier unretired access blocks it if the two overlap, or if the earlier
// address is still unknown. Loads never wait on loads.
func (t *Tracker) MemoryHazard(seq uint64) (Hazard, bool) {
	m := &t.memory
	a := m.accesses[seq]
	if a == nil {
		return HazardNone, false
	}

	if earliest, found := m.unknownStores.Min(); found && earliest < seq {
		if a.kind == AccessLoad {
			return HazardRAW, true
		}
		return HazardWAW, true
	}

	if a.kind == AccessStore {
		if earliest, found := m.unknownLoads.Min(); found && earliest < seq {
			return HazardWAR, true
		}
	}

	if !a.known {
		return HazardNone, false
	}

	h := HazardNone
	m.overlapping(a.addr, a.size, func(other *access) bool {
		if other.seq >= seq {
			return true
		}
		switch {
		case other.kind == AccessStore && a.kind == AccessLoad:
			h = HazardRAW
		case other.kind == AccessStore:
			h = HazardWAW
		case a.kind == AccessStore:
			if h == HazardNone {
				h = HazardWAR
			}
			return true
		default:
			return true
		}
		return false
	})

	return h, h != HazardNone
}

// RetireAccess removes a completed access. Later accesses no longer order
// against it.
func (t *Tracker) RetireAccess(seq uint64) {
	m := &t.memory
	a := m.accesses[seq]
	if a == nil {
		return
	}

	if a.known {
		m.resolved.Delete(addrKey{addr: a.addr, seq: seq})
	} else {
		m.unknown(a.kind).Delete(seq)
	}
	delete(m.accesses, seq)
}

// PendingAccesses returns the number of unretired accesses.
func (t *Tracker) PendingAccesses() int {
	return len(t.memory.accesses)
}
