package pipeline

import "fmt"

// StallCause is the reason an instruction could not issue in a cycle.
type StallCause uint8

// Stall causes. When several causes are equally common in a cycle, the one
// declared first wins.
const (
	StallNone StallCause = iota
	StallMemoryLatency
	StallRAW
	StallWAW
	StallWAR
	StallFUContention
	StallPortContention
	StallControlFlow
	StallDMAPending
	StallResourceLimit

	NumStallCauses
)

var stallNames = [NumStallCauses]string{
	StallNone:           "none",
	StallMemoryLatency:  "memory_latency",
	StallRAW:            "raw_hazard",
	StallWAW:            "waw_hazard",
	StallWAR:            "war_hazard",
	StallFUContention:   "fu_contention",
	StallPortContention: "port_contention",
	StallControlFlow:    "control_flow",
	StallDMAPending:     "dma_pending",
	StallResourceLimit:  "resource_limit",
}

func (c StallCause) String() string {
	if c >= NumStallCauses {
		return fmt.Sprintf("stall(%d)", uint8(c))
	}
	return stallNames[c]
}

// ParseStallCause looks a cause up by name.
func ParseStallCause(name string) (StallCause, error) {
	for c := StallNone; c < NumStallCauses; c++ {
		if stallNames[c] == name {
			return c, nil
		}
	}
	return StallNone, fmt.Errorf("unknown stall cause %q", name)
}

// StallTally counts blocked instructions per cause.
type StallTally [NumStallCauses]int

// Dominant returns the cause with the most votes. Ties go to the cause
// declared first; an empty tally is StallNone.
func (t *StallTally) Dominant() StallCause {
	best := StallNone
	for c := StallNone + 1; c < NumStallCauses; c++ {
		if t[c] > t[best] {
			best = c
		}
	}
	return best
}

// CycleRecord describes what the scheduler did in one cycle.
type CycleRecord struct {
	Cycle uint64

	// Window is the number of instructions in flight.
	Window int

	// InFlightLoads, InFlightStores and InFlightCompute count the issued
	// instructions that have not completed yet, by kind.
	InFlightLoads   int
	InFlightStores  int
	InFlightCompute int

	// Ready counts the instructions whose operands were available, whether
	// they were granted resources or not.
	Ready int

	Issued int

	// Stalled is set when nothing issued.
	Stalled bool
	Cause   StallCause
	Blocked StallTally

	// Done marks the cycle in which the run was found complete.
	Done bool
}
