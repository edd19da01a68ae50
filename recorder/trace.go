package recorder

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/hwaccsim/timing/pipeline"
)

// Trace event names.
const (
	EventIssue  = "issue"
	EventRetire = "retire"
)

// TraceEntry is one issue or retirement of an instruction instance.
type TraceEntry struct {
	RunID  string `json:"run_id"`
	Seq    uint64 `json:"seq"`
	Opcode string `json:"opcode"`
	Name   string `json:"name"`
	Event  string `json:"event"`
	Cycle  uint64 `json:"cycle"`
}

// TraceHook records instruction issue and retirement. Register it with the
// scheduler of an accelerator.
type TraceHook struct {
	r *Recorder
}

// TraceHook returns a hook that writes to the recorder. Its entries belong to
// the run recorded next.
func (r *Recorder) TraceHook() *TraceHook {
	return &TraceHook{r: r}
}

// Func implements sim.Hook.
func (h *TraceHook) Func(ctx sim.HookCtx) {
	var event string

	switch ctx.Pos {
	case pipeline.HookPosInstIssue:
		event = EventIssue
	case pipeline.HookPosInstRetire:
		event = EventRetire
	default:
		return
	}

	ev := ctx.Item.(pipeline.InstEvent)
	h.r.write(TraceEntry{
		RunID:  h.r.nextRun,
		Seq:    ev.Seq,
		Opcode: ev.Inst.Op.String(),
		Name:   ev.Inst.Name,
		Event:  event,
		Cycle:  ev.Cycle,
	})
}

func (r *Recorder) write(e TraceEntry) {
	r.pending = append(r.pending, e)
	if len(r.pending) >= r.batchSize {
		if err := r.Flush(); err != nil {
			r.logger.Error("failed to flush trace", "err", err)
		}
	}
}

// Flush writes all buffered trace entries.
func (r *Recorder) Flush() error {
	if len(r.pending) == 0 {
		return nil
	}

	tx, err := r.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt := tx.Stmt(r.traceStmt)
	for _, e := range r.pending {
		_, err := stmt.Exec(e.RunID, e.Seq, e.Opcode, e.Name, e.Event, e.Cycle)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to write trace entry %d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trace: %w", err)
	}

	r.pending = nil

	return nil
}

// Trace returns the trace of a run in recording order.
func (r *Recorder) Trace(runID string) ([]TraceEntry, error) {
	rows, err := r.Query(
		`SELECT run_id, seq, opcode, name, event, cycle FROM trace
		WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []TraceEntry
	for rows.Next() {
		var e TraceEntry
		err := rows.Scan(&e.RunID, &e.Seq, &e.Opcode, &e.Name, &e.Event, &e.Cycle)
		if err != nil {
			return nil, fmt.Errorf("failed to read trace: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
