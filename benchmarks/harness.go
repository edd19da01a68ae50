// Package benchmarks runs accelerator kernels and reports their timing.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/sarchlab/hwaccsim/host"
	"github.com/sarchlab/hwaccsim/timing/latency"
	"github.com/sarchlab/hwaccsim/timing/stats"
)

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// TotalCycles is the cycle count of the run
	TotalCycles uint64 `json:"total_cycles"`

	// StallCycles is the number of cycles nothing was issued
	StallCycles uint64 `json:"stall_cycles"`

	// ExecutedNodes is the number of cycles something was issued
	ExecutedNodes uint64 `json:"executed_nodes"`

	// Instructions is the number of instruction instances issued
	Instructions uint64 `json:"instructions"`

	// ILP is the average number of issues per executing cycle
	ILP float64 `json:"ilp"`

	// Bottleneck is the dominant stall cause
	Bottleneck string `json:"bottleneck"`

	// CacheHitRate is the hit rate of the DRAM caches, if any were accessed
	CacheHitRate float64 `json:"cache_hit_rate,omitempty"`

	// PowerMW and EnergyNJ come from the power model
	PowerMW  float64 `json:"power_mw"`
	EnergyNJ float64 `json:"energy_nj"`

	// Result is the raw bits returned by the top function
	Result uint64 `json:"result"`

	// Passed is true when the run finished with the expected outputs
	Passed bool `json:"passed"`

	// Error describes why the benchmark failed
	Error string `json:"error,omitempty"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Hardware is the accelerator configuration every benchmark starts from
	Hardware *latency.Config

	// MaxCycles bounds each run. 0 means no bound.
	MaxCycles uint64

	// Parallelism is how many benchmarks run at once
	Parallelism int

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Logger receives per-run progress
	Logger *slog.Logger
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Hardware:    latency.DefaultConfig(),
		MaxCycles:   1_000_000,
		Parallelism: runtime.NumCPU(),
		Output:      os.Stdout,
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Hardware == nil {
		config.Hardware = latency.DefaultConfig()
	}
	if config.Parallelism < 1 {
		config.Parallelism = 1
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results in the order the
// benchmarks were added. Each benchmark gets its own simulation.
func (h *Harness) RunAll() []BenchmarkResult {
	results := make([]BenchmarkResult, len(h.benchmarks))
	sem := make(chan struct{}, h.config.Parallelism)

	var wg sync.WaitGroup
	for i, bench := range h.benchmarks {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			results[i] = h.runBenchmark(bench)
		}()
	}
	wg.Wait()

	return results
}

func (h *Harness) runBenchmark(bench Benchmark) BenchmarkResult {
	result := BenchmarkResult{
		Name:        bench.Name,
		Description: bench.Description,
	}

	config := h.config.Hardware.Clone()
	if bench.Configure != nil {
		bench.Configure(config)
	}

	runner, err := host.NewRunner(bench.Graph, config,
		host.WithMaxCycles(h.config.MaxCycles))
	if err != nil {
		result.Error = err.Error()
		return result
	}

	mem := runner.Functional()
	if bench.Setup != nil {
		if err := bench.Setup(mem); err != nil {
			result.Error = fmt.Sprintf("setup: %v", err)
			return result
		}
	}

	start := time.Now()
	report, err := runner.Run(bench.Args...)
	result.WallTime = time.Since(start)

	h.fill(&result, &report)
	result.Result = runner.Accelerator().Result().Bits

	h.config.Logger.Info("benchmark finished", "name", bench.Name,
		"cycles", result.TotalCycles, "wall", result.WallTime)

	switch {
	case err != nil:
		result.Error = err.Error()
	case result.Result != bench.Expected:
		result.Error = fmt.Sprintf("returned 0x%x, want 0x%x",
			result.Result, bench.Expected)
	case bench.Verify != nil:
		if err := mem.Flush(); err != nil {
			result.Error = err.Error()
			break
		}
		if err := bench.Verify(mem); err != nil {
			result.Error = fmt.Sprintf("verify: %v", err)
		}
	}

	result.Passed = result.Error == "" && report.Performance.Finished

	return result
}

func (h *Harness) fill(r *BenchmarkResult, report *stats.Report) {
	p := &report.Performance
	r.TotalCycles = p.TotalCycles
	r.StallCycles = p.StallCycles
	r.ExecutedNodes = p.ExecutedNodes
	r.Instructions = p.Instructions
	r.ILP = finite(report.Dataflow.ILP)
	r.Bottleneck = report.StallBreakdown.DominantBottleneck
	r.PowerMW = finite(report.Power.TotalPowerMW)
	r.EnergyNJ = finite(report.Power.TotalEnergyNJ)

	cache := &report.MemoryAccess.Cache
	if cache.Hits+cache.Misses > 0 {
		r.CacheHitRate = finite(cache.HitRate)
	}
}

// finite maps undefined metrics to 0 so that results stay encodable.
func finite(f stats.Float) float64 {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	out := h.config.Output
	_, _ = fmt.Fprintln(out, "=== Accelerator Benchmark Results ===")
	_, _ = fmt.Fprintln(out, "")

	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}

		_, _ = fmt.Fprintf(out, "Benchmark: %s [%s]\n", r.Name, status)
		_, _ = fmt.Fprintf(out, "  Description: %s\n", r.Description)
		if r.Error != "" {
			_, _ = fmt.Fprintf(out, "  Error: %s\n", r.Error)
		}
		_, _ = fmt.Fprintln(out, "  --- Timing ---")
		_, _ = fmt.Fprintf(out, "  Total Cycles:   %d\n", r.TotalCycles)
		_, _ = fmt.Fprintf(out, "  Stall Cycles:   %d\n", r.StallCycles)
		_, _ = fmt.Fprintf(out, "  Executed Nodes: %d\n", r.ExecutedNodes)
		_, _ = fmt.Fprintf(out, "  Instructions:   %d\n", r.Instructions)
		_, _ = fmt.Fprintf(out, "  ILP:            %.3f\n", r.ILP)
		_, _ = fmt.Fprintf(out, "  Bottleneck:     %s\n", r.Bottleneck)
		if r.CacheHitRate > 0 {
			_, _ = fmt.Fprintf(out, "  Cache Hit Rate: %.1f%%\n", 100*r.CacheHitRate)
		}
		_, _ = fmt.Fprintln(out, "  --- Power ---")
		_, _ = fmt.Fprintf(out, "  Power:  %.3f mW\n", r.PowerMW)
		_, _ = fmt.Fprintf(out, "  Energy: %.3f nJ\n", r.EnergyNJ)
		_, _ = fmt.Fprintf(out, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(out, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,stalls,executed,ilp,bottleneck,cache_hit_rate,power_mw,energy_nj,passed")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%d,%.3f,%s,%.3f,%.3f,%.3f,%t\n",
			r.Name,
			r.TotalCycles,
			r.StallCycles,
			r.ExecutedNodes,
			r.ILP,
			r.Bottleneck,
			r.CacheHitRate,
			r.PowerMW,
			r.EnergyNJ,
			r.Passed,
		)
	}
}

// BenchmarkReport is the JSON document written by PrintJSON.
type BenchmarkReport struct {
	Timestamp string            `json:"timestamp"`
	Results   []BenchmarkResult `json:"results"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
}

// PrintJSON outputs benchmark results as an indented JSON document.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	report := BenchmarkReport{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Results:   results,
	}
	for _, r := range results {
		if r.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	return nil
}
