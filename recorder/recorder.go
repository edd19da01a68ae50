// Package recorder stores simulation reports and instruction traces in a
// SQLite database.
package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/hwaccsim/timing/stats"
)

// ErrRunNotFound is returned by GetRun for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// DefaultBatchSize is the number of trace entries buffered before they are
// written.
const DefaultBatchSize = 10000

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Timestamp     string  `json:"timestamp"`
	TotalCycles   uint64  `json:"total_cycles"`
	StallCycles   uint64  `json:"stall_cycles"`
	ExecutedNodes uint64  `json:"executed_nodes"`
	Finished      bool    `json:"finished"`
	ILP           float64 `json:"ilp"`
	PowerMW       float64 `json:"power_mw"`
	EnergyNJ      float64 `json:"energy_nj"`
}

// Run is a recorded run with its full report.
type Run struct {
	RunSummary
	Report *stats.Report `json:"report"`
}

// An Option configures a Recorder.
type Option func(*Recorder)

// WithBatchSize sets how many trace entries are buffered.
func WithBatchSize(n int) Option {
	return func(r *Recorder) {
		r.batchSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// Recorder writes runs and traces to a SQLite database.
type Recorder struct {
	*sql.DB

	path      string
	batchSize int
	logger    *slog.Logger

	runStmt   *sql.Stmt
	traceStmt *sql.Stmt

	nextRun string
	pending []TraceEntry
}

// New opens the database at path, creating the tables if needed. An empty
// path creates a new database with a unique name in the working directory.
func New(path string, opts ...Option) (*Recorder, error) {
	r := &Recorder{
		path:      path,
		batchSize: DefaultBatchSize,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		nextRun:   xid.New().String(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.path == "" {
		r.path = "hwaccsim_" + xid.New().String() + ".sqlite3"
	}

	db, err := sql.Open("sqlite3", r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", r.path, err)
	}
	r.DB = db

	if err := r.createTables(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := r.prepareStatements(); err != nil {
		_ = db.Close()
		return nil, err
	}

	atexit.Register(func() {
		if err := r.Flush(); err != nil {
			r.logger.Error("failed to flush trace", "err", err)
		}
	})

	r.logger.Info("recording to database", "path", r.path)

	return r, nil
}

// Open opens an existing database for reading.
func Open(path string, opts ...Option) (*Recorder, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return New(path, opts...)
}

// Path returns the database file name.
func (r *Recorder) Path() string {
	return r.path
}

func (r *Recorder) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs
		(
			id             VARCHAR(20) PRIMARY KEY,
			name           VARCHAR(200),
			timestamp      VARCHAR(40),
			total_cycles   INTEGER,
			stall_cycles   INTEGER,
			executed_nodes INTEGER,
			finished       INTEGER,
			ilp            FLOAT,
			power_mw       FLOAT,
			energy_nj      FLOAT,
			report         TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS trace
		(
			run_id VARCHAR(20) NOT NULL,
			seq    INTEGER     NOT NULL,
			opcode VARCHAR(20),
			name   VARCHAR(200),
			event  VARCHAR(20),
			cycle  INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS trace_run_id_index ON trace (run_id);`,
		`CREATE INDEX IF NOT EXISTS trace_cycle_index ON trace (cycle);`,
	}

	for _, s := range stmts {
		if _, err := r.Exec(s); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return nil
}

func (r *Recorder) prepareStatements() error {
	var err error

	r.runStmt, err = r.Prepare(`INSERT INTO runs VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}

	r.traceStmt, err = r.Prepare(`INSERT INTO trace VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}

	return nil
}

// finite maps NaN and infinities to 0 so that summary columns stay numeric.
func finite(f stats.Float) float64 {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// RecordRun stores a report and returns its run id. Trace entries collected
// since the previous run are attributed to this one. The run id and the
// timestamp of the report are filled in when empty.
func (r *Recorder) RecordRun(report stats.Report) (string, error) {
	if report.RunID == "" {
		report.RunID = r.nextRun
	}
	if report.Timestamp == "" {
		report.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if err := r.Flush(); err != nil {
		return "", err
	}

	if report.RunID != r.nextRun {
		_, err := r.Exec(`UPDATE trace SET run_id = ? WHERE run_id = ?`,
			report.RunID, r.nextRun)
		if err != nil {
			return "", fmt.Errorf("failed to attach trace to run: %w", err)
		}
	}

	data, err := report.Marshal(false)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	p := &report.Performance
	_, err = r.runStmt.Exec(
		report.RunID,
		report.AcceleratorName,
		report.Timestamp,
		p.TotalCycles,
		p.StallCycles,
		p.ExecutedNodes,
		p.Finished,
		finite(report.Dataflow.ILP),
		finite(report.Power.TotalPowerMW),
		finite(report.Power.TotalEnergyNJ),
		string(data),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}

	r.nextRun = xid.New().String()
	r.logger.Debug("run recorded", "id", report.RunID, "cycles", p.TotalCycles)

	return report.RunID, nil
}

const summaryColumns = `id, name, timestamp, total_cycles, stall_cycles,
	executed_nodes, finished, ilp, power_mw, energy_nj`

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(s scanner, extra ...any) (RunSummary, error) {
	var run RunSummary
	dest := append([]any{
		&run.ID, &run.Name, &run.Timestamp, &run.TotalCycles, &run.StallCycles,
		&run.ExecutedNodes, &run.Finished, &run.ILP, &run.PowerMW, &run.EnergyNJ,
	}, extra...)
	err := s.Scan(dest...)
	return run, err
}

// ListRuns returns all recorded runs, oldest first.
func (r *Recorder) ListRuns() ([]RunSummary, error) {
	rows, err := r.Query(`SELECT ` + summaryColumns + ` FROM runs ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []RunSummary
	for rows.Next() {
		run, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetRun returns one recorded run.
func (r *Recorder) GetRun(id string) (*Run, error) {
	row := r.QueryRow(`SELECT `+summaryColumns+`, report FROM runs WHERE id = ?`, id)

	var data string
	summary, err := scanSummary(row, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", id, err)
	}

	report, err := stats.Unmarshal([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode report of run %s: %w", id, err)
	}

	return &Run{RunSummary: summary, Report: report}, nil
}

// Close flushes pending trace entries and closes the database.
func (r *Recorder) Close() error {
	if err := r.Flush(); err != nil {
		return err
	}
	return r.DB.Close()
}
