package pipeline

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/hwaccsim/emu"
	"github.com/sarchlab/hwaccsim/insts"
	"github.com/sarchlab/hwaccsim/timing/hazard"
	"github.com/sarchlab/hwaccsim/timing/latency"
)

// issue walks the window in program order and issues every instance whose
// operands, memory ordering and resources allow it.
func (s *Scheduler) issue(now uint64, rec *CycleRecord) {
	if s.draining {
		return
	}

	if s.lockstep {
		s.issueLockstep(now, rec)
		return
	}

	for _, in := range s.window {
		if in.state != StateWaiting && in.state != StateReady {
			continue
		}

		if !s.tryInstance(in, now, rec) {
			rec.Blocked[in.cause]++
		}
	}
}

// issueLockstep issues in strict program order. An instance that cannot
// issue blocks every later one. Nothing issues while a memory request is
// outstanding or a functional unit is still held.
func (s *Scheduler) issueLockstep(now uint64, rec *CycleRecord) {
	if s.mem.InFlight() > 0 {
		rec.Blocked[s.outstandingMemoryCause()]++
		return
	}

	if s.fus.Holding() {
		rec.Blocked[StallFUContention]++
		return
	}

	for _, in := range s.window {
		if in.state != StateWaiting && in.state != StateReady {
			continue
		}

		if !s.tryInstance(in, now, rec) {
			rec.Blocked[in.cause]++
			return
		}

		if in.state != StateCompleted {
			return
		}
	}
}

func (s *Scheduler) tryInstance(in *instance, now uint64, rec *CycleRecord) bool {
	cause, ok := s.evaluate(in, now)
	if ok {
		rec.Ready++
		cause, ok = s.tryIssue(in, now)
	}

	if !ok {
		in.cause = cause
		return false
	}

	in.cause = StallNone
	rec.Issued++

	return true
}

func (s *Scheduler) operandReady(op operand, now uint64) bool {
	return !op.bound || s.tracker.Available(op.key, now)
}

func (s *Scheduler) operandValue(op operand) emu.Value {
	if !op.bound {
		return op.value
	}
	return s.tracker.Value(op.key)
}

// evaluate checks whether an instance may issue this cycle. The address of a
// memory access is resolved as soon as it is known so that later accesses
// can order against it.
func (s *Scheduler) evaluate(in *instance, now uint64) (StallCause, bool) {
	if in.isMemory() && !in.addrDone {
		op := in.ops[in.addrOperand()]
		if !s.operandReady(op, now) {
			return s.producerCause(op), false
		}

		in.addr = s.operandValue(op)
		in.addrDone = true

		if !in.addr.Poison {
			in.region = s.table.RegionFor(in.addr.Bits)
			s.tracker.ResolveAddress(in.seq, in.addr.Bits, in.inst.Size)
		}
	}

	for _, op := range in.ops {
		if !s.operandReady(op, now) {
			return s.producerCause(op), false
		}
	}

	if in.isMemory() && !in.addr.Poison {
		if h, blocked := s.tracker.MemoryHazard(in.seq); blocked {
			return hazardCause(h), false
		}
	}

	in.state = StateReady

	return StallNone, true
}

// producerCause attributes a wait on an operand to what its producer is
// doing.
func (s *Scheduler) producerCause(op operand) StallCause {
	seq, found := s.tracker.Producer(op.key)
	if !found {
		return StallRAW
	}

	p := s.bySeq[seq]
	if p == nil {
		return StallRAW
	}

	switch {
	case p.state == StateWaiting || p.state == StateReady:
		if p.cause != StallNone {
			return p.cause
		}
	case p.isMemory() && p.inFlight():
		return s.memoryCause(p.region)
	}

	return StallRAW
}

// memoryCause is the stall cause of waiting on a request to a region.
func (s *Scheduler) memoryCause(region int) StallCause {
	if region < 0 {
		return StallMemoryLatency
	}

	config := s.table.Config()
	if s.table.Region(region).Kind == latency.RegionDRAM &&
		!config.Memory.Cache.Enabled {
		return StallDMAPending
	}

	return StallMemoryLatency
}

// outstandingMemoryCause explains a wait on memory in general. Requests
// still queued for a port, or a port that reports itself stalled, make it
// port contention.
func (s *Scheduler) outstandingMemoryCause() StallCause {
	if s.mem.Queued() > 0 || s.mem.Stalled() {
		return StallPortContention
	}

	for _, in := range s.window {
		if in.isMemory() && in.inFlight() {
			return s.memoryCause(in.region)
		}
	}
	return StallMemoryLatency
}

func hazardCause(h hazard.Hazard) StallCause {
	switch h {
	case hazard.HazardWAW:
		return StallWAW
	case hazard.HazardWAR:
		return StallWAR
	}
	return StallRAW
}

// collect reads the operand values of an issuing instance and drops its
// bindings.
func (s *Scheduler) collect(in *instance) []emu.Value {
	vals := make([]emu.Value, len(in.ops))
	for i, op := range in.ops {
		vals[i] = s.operandValue(op)
		if op.bound {
			s.tracker.Unbind(op.key)
			in.ops[i] = operand{value: vals[i]}
		}
	}
	return vals
}

func (s *Scheduler) tryIssue(in *instance, now uint64) (StallCause, bool) {
	if in.isMemory() {
		return s.issueMemory(in, now)
	}

	in.fuType = s.table.FUType(in.inst)
	fuInst, granted := s.fus.TryAcquire(in.fuType)
	if !granted {
		return StallFUContention, false
	}
	in.fuInst = fuInst

	vals := s.collect(in)
	lat := s.table.Latency(in.inst)

	in.issueCycle = now
	in.readyCycle = now + lat
	in.state = StateIssued
	s.markIssued(in, now)

	switch in.inst.Op {
	case insts.OpBr, insts.OpSwitch:
		s.branch(in, vals)
	case insts.OpCall:
		s.call(in, vals, now)
		return StallNone, true
	case insts.OpRet, insts.OpUnreachable:
		s.ret(in, vals)
	default:
		in.result = s.eval.Evaluate(in.inst, vals)
		if in.result.Poison {
			s.stats.PoisonedResults++
		}
	}

	s.tracker.Publish(in.key, in.result, in.readyCycle)

	if lat == 0 {
		s.fus.Release(in.fuType, in.fuInst, now)
		in.fuInst = -1
		in.state = StateCompleted
	}

	return StallNone, true
}

func (s *Scheduler) issueMemory(in *instance, now uint64) (StallCause, bool) {
	if in.addr.Poison {
		s.collect(in)

		in.issueCycle = now
		in.readyCycle = now
		in.state = StateCompleted
		if in.isLoad() {
			in.result = emu.PoisonValue()
			s.stats.PoisonedResults++
		}

		s.logger.Warn("memory access with a poisoned address",
			"inst", in.inst.Name, "key", in.key.String())
		s.tracker.Publish(in.key, in.result, now)
		s.tracker.RetireAccess(in.seq)
		s.markIssued(in, now)

		return StallNone, true
	}

	var launched bool
	if in.isLoad() {
		in.req, launched = s.mem.LaunchRead(in.seq, in.addr.Bits, in.inst.Size, now)
	} else {
		data := emu.Encode(s.operandValue(in.ops[0]), in.inst.Size)
		in.req, launched = s.mem.LaunchWrite(in.seq, in.addr.Bits, data, now)
	}

	if !launched {
		return StallPortContention, false
	}

	s.collect(in)
	in.issueCycle = now
	in.state = StateIssued
	s.markIssued(in, now)

	return StallNone, true
}

func (s *Scheduler) markIssued(in *instance, now uint64) {
	s.stats.Issued++

	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    HookPosInstIssue,
		Item:   InstEvent{Seq: in.seq, Key: in.key, Inst: in.inst, Cycle: now},
	})
}

// branch moves the fetch cursor of the frame to the taken successor.
func (s *Scheduler) branch(in *instance, vals []emu.Value) {
	cond := emu.Value{}
	if len(vals) > 0 {
		cond = vals[0]
	}

	target, poisoned := emu.BranchTarget(in.inst, cond)
	if poisoned {
		s.stats.PoisonedBranches++
		s.logger.Warn("branch on a poisoned condition",
			"inst", in.inst.Name, "target", target)
	}

	s.enter(in.frame, target, in.inst.Block)
}

// call pushes a frame for the callee. The call instance completes when the
// callee returns.
func (s *Scheduler) call(in *instance, vals []emu.Value, now uint64) {
	s.fus.Release(in.fuType, in.fuInst, now)
	in.fuInst = -1
	in.state = StateExecuting

	callee := s.graph.Function(in.inst.Callee)
	s.top = s.newFrame(callee, vals, in, in.frame)
	s.stats.Calls++

	s.logger.Debug("call",
		"callee", callee.Name, "frame", s.top.id, "cycle", now)
}

// ret pops the returning frame and hands its value to the caller.
func (s *Scheduler) ret(in *instance, vals []emu.Value) {
	v := emu.Value{}
	switch {
	case in.inst.Op == insts.OpUnreachable:
		v = emu.PoisonValue()
		s.logger.Warn("reached unreachable", "inst", in.inst.Name)
	case len(vals) > 0:
		v = vals[0]
	}
	in.result = v

	f := in.frame
	f.fetching = false
	s.tracker.DropFrame(f.id)

	if f.call == nil {
		s.finishing = true
		s.result = v
		s.top = nil
		return
	}

	call := f.call
	call.result = v
	call.readyCycle = in.readyCycle
	call.state = StateCompleted
	s.tracker.Publish(call.key, v, in.readyCycle)

	s.top = f.caller
	s.top.awaitingCallee = false
}
