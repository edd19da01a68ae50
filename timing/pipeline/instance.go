package pipeline

import (
	"github.com/sarchlab/hwaccsim/cdfg"
	"github.com/sarchlab/hwaccsim/emu"
	"github.com/sarchlab/hwaccsim/insts"
	"github.com/sarchlab/hwaccsim/timing/hazard"
	"github.com/sarchlab/hwaccsim/timing/memaccess"
)

// State is the lifecycle state of an instruction instance.
type State uint8

// Instance states, in the order an instance moves through them.
const (
	StateWaiting State = iota
	StateReady
	StateIssued
	StateExecuting
	StateCompleted
	StateRetired
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateReady:
		return "ready"
	case StateIssued:
		return "issued"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateRetired:
		return "retired"
	}
	return "unknown"
}

// operand is an input of an instance. It is either a value known at launch
// or a binding to the producing instance.
type operand struct {
	key   hazard.Key
	bound bool
	value emu.Value
}

// instance is one dynamic execution of a static instruction.
type instance struct {
	seq   uint64
	key   hazard.Key
	inst  *cdfg.Instruction
	frame *frame
	state State
	ops   []operand

	fuType insts.FUType
	fuInst int

	issueCycle uint64
	readyCycle uint64
	result     emu.Value

	req      memaccess.RequestID
	addr     emu.Value
	region   int
	addrDone bool

	// cause is why the instance did not issue in the current cycle.
	cause StallCause
}

func (in *instance) isLoad() bool {
	return in.inst.Op == insts.OpLoad
}

func (in *instance) isStore() bool {
	return in.inst.Op == insts.OpStore
}

func (in *instance) isMemory() bool {
	return in.isLoad() || in.isStore()
}

func (in *instance) addrOperand() int {
	if in.isStore() {
		return 1
	}
	return 0
}

func (in *instance) inFlight() bool {
	return in.state == StateIssued || in.state == StateExecuting
}

// frame is one activation of a function. The fetch cursor walks the block
// that control last entered.
type frame struct {
	id     uint32
	fn     *cdfg.Function
	args   []emu.Value
	call   *instance
	caller *frame

	block cdfg.BlockID
	index int
	iter  uint32
	from  cdfg.BlockID

	fetching       bool
	awaitingCallee bool
}

// InstEvent is the hook item of instruction issue and retirement.
type InstEvent struct {
	Seq   uint64
	Key   hazard.Key
	Inst  *cdfg.Instruction
	Cycle uint64
}
