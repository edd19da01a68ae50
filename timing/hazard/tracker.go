// Package hazard tracks the dynamic dependencies between instruction
// instances: the availability of SSA values, loop iterations, phi
// resolution, and the ordering of memory accesses.
//
// The tracker never looks at the static graph for anything but phi
// incoming pairs. A value is addressed by a Key of (frame, instruction,
// iteration), so one graph can be shared by any number of runs.
package hazard

import (
	"fmt"

	"github.com/sarchlab/hwaccsim/cdfg"
	"github.com/sarchlab/hwaccsim/emu"
)

// Key identifies one dynamic instance of an instruction.
type Key struct {
	// Frame is the activation frame the instance runs in.
	Frame uint32

	// Inst is the static instruction.
	Inst cdfg.InstID

	// Iter counts the entries into the instruction's block within the
	// frame, starting at 0.
	Iter uint32
}

func (k Key) String() string {
	return fmt.Sprintf("f%d/i%d#%d", k.Frame, k.Inst, k.Iter)
}

// Chain describes the longest dependency chain that ends at an instance.
type Chain struct {
	Length   uint32
	Loads    uint32
	Stores   uint32
	Computes uint32
}

type entry struct {
	seq        uint64
	published  bool
	value      emu.Value
	readyCycle uint64
	chain      Chain

	refs       int
	superseded bool
}

type frameBlock struct {
	frame uint32
	block cdfg.BlockID
}

// Tracker is the execution context of one run.
type Tracker struct {
	values map[Key]*entry
	latest map[uint32]map[cdfg.InstID]uint32
	iters  map[frameBlock]uint32

	memory memoryOrder
	edges  Edges
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.Reset()
	return t
}

// Reset drops every value, iteration and access.
func (t *Tracker) Reset() {
	t.values = make(map[Key]*entry)
	t.latest = make(map[uint32]map[cdfg.InstID]uint32)
	t.iters = make(map[frameBlock]uint32)
	t.memory.reset()
	t.edges = Edges{}
}

// NextIteration returns a fresh iteration number for an entry into block
// within frame.
func (t *Tracker) NextIteration(frame uint32, block cdfg.BlockID) uint32 {
	fb := frameBlock{frame: frame, block: block}
	iter := t.iters[fb]
	t.iters[fb] = iter + 1
	return iter
}

// Define creates the pending entry of a new instance. The instance becomes
// the latest definition of its instruction in the frame. A key can only be
// defined once.
func (t *Tracker) Define(key Key, seq uint64) error {
	if _, found := t.values[key]; found {
		return fmt.Errorf("value %s is defined twice", key)
	}

	t.values[key] = &entry{seq: seq}

	insts := t.latest[key.Frame]
	if insts == nil {
		insts = make(map[cdfg.InstID]uint32)
		t.latest[key.Frame] = insts
	}

	if prev, found := insts[key.Inst]; found {
		t.supersede(Key{Frame: key.Frame, Inst: key.Inst, Iter: prev})
	}
	insts[key.Inst] = key.Iter

	return nil
}

func (t *Tracker) supersede(key Key) {
	e := t.values[key]
	if e == nil {
		return
	}
	e.superseded = true
	t.collect(key, e)
}

func (t *Tracker) collect(key Key, e *entry) {
	if e.superseded && e.published && e.refs == 0 {
		delete(t.values, key)
	}
}

// Latest returns the key of the most recent instance of inst in frame.
func (t *Tracker) Latest(frame uint32, inst cdfg.InstID) (Key, bool) {
	iter, found := t.latest[frame][inst]
	if !found {
		return Key{}, false
	}
	return Key{Frame: frame, Inst: inst, Iter: iter}, true
}

// Bind records that a consumer reads key and counts a true dependency. The
// value is kept until every bound consumer calls Unbind.
func (t *Tracker) Bind(key Key) {
	e := t.values[key]
	if e == nil {
		panic(fmt.Sprintf("binding to unknown value %s", key))
	}
	e.refs++
	t.edges.RAW++
}

// Unbind releases a reference taken by Bind.
func (t *Tracker) Unbind(key Key) {
	e := t.values[key]
	if e == nil {
		return
	}
	e.refs--
	t.collect(key, e)
}

// Publish latches the value of an instance. It becomes readable from
// readyCycle on.
func (t *Tracker) Publish(key Key, value emu.Value, readyCycle uint64) {
	e := t.values[key]
	if e == nil {
		panic(fmt.Sprintf("publishing unknown value %s", key))
	}
	e.value = value
	e.readyCycle = readyCycle
	e.published = true
	t.collect(key, e)
}

// Available reports whether key is published and readable in cycle.
func (t *Tracker) Available(key Key, cycle uint64) bool {
	e := t.values[key]
	return e != nil && e.published && e.readyCycle <= cycle
}

// Value returns the latched value of key. Unknown keys read as poison.
func (t *Tracker) Value(key Key) emu.Value {
	e := t.values[key]
	if e == nil || !e.published {
		return emu.PoisonValue()
	}
	return e.value
}

// Producer returns the program-order sequence number of the instance that
// defines key.
func (t *Tracker) Producer(key Key) (uint64, bool) {
	e := t.values[key]
	if e == nil {
		return 0, false
	}
	return e.seq, true
}

// SetChain records the dependency chain that ends at key.
func (t *Tracker) SetChain(key Key, c Chain) {
	if e := t.values[key]; e != nil {
		e.chain = c
	}
}

// Chain returns the dependency chain that ends at key.
func (t *Tracker) Chain(key Key) Chain {
	if e := t.values[key]; e != nil {
		return e.chain
	}
	return Chain{}
}

// DropFrame forgets the iterations and latest definitions of a returned
// frame. Values still bound by consumers stay readable.
func (t *Tracker) DropFrame(frame uint32) {
	for inst, iter := range t.latest[frame] {
		t.supersede(Key{Frame: frame, Inst: inst, Iter: iter})
	}
	delete(t.latest, frame)

	for fb := range t.iters {
		if fb.frame == frame {
			delete(t.iters, fb)
		}
	}
}

// Live returns the number of values held.
func (t *Tracker) Live() int {
	return len(t.values)
}

// ResolvePhi returns the operand a phi reads when control entered its block
// from the given predecessor. It returns false when the predecessor is not
// known yet or has no incoming pair.
func ResolvePhi(
	g *cdfg.Graph,
	phi cdfg.InstID,
	enteredFrom cdfg.BlockID,
) (cdfg.Operand, bool) {
	if enteredFrom == cdfg.NoBlock {
		return cdfg.Operand{}, false
	}
	return g.PhiIncoming(phi, enteredFrom)
}
