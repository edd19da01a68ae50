package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/sarchlab/hwaccsim/benchmarks"
)

func (a *app) newBenchCmd() *cobra.Command {
	var (
		config    string
		format    string
		parallel  int
		maxCycles uint64
		only      []string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run the built-in kernels and report their timing.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hw, err := a.loadHardware(config)
			if err != nil {
				return err
			}

			harness := benchmarks.NewHarness(benchmarks.HarnessConfig{
				Hardware:    hw,
				MaxCycles:   maxCycles,
				Parallelism: parallel,
				Output:      cmd.OutOrStdout(),
				Logger:      a.logger,
			})

			selected, err := selectBenchmarks(benchmarks.GetAll(), only)
			if err != nil {
				return err
			}
			harness.AddBenchmarks(selected)

			results := harness.RunAll()

			switch format {
			case "text":
				harness.PrintResults(results)
			case "csv":
				harness.PrintCSV(results)
			case "json":
				if err := harness.PrintJSON(results); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown format %q", format)
			}

			failed := 0
			for _, r := range results {
				if !r.Passed {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d benchmarks failed", failed, len(results))
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&config, "config", "c", "", "Hardware configuration file")
	flags.StringVar(&format, "format", "text", "Output format (text, csv, json)")
	flags.IntVar(&parallel, "parallel", runtime.NumCPU(), "Benchmarks to run at once")
	flags.Uint64Var(&maxCycles, "max-cycles", 1_000_000, "Cycle limit of each benchmark")
	flags.StringSliceVar(&only, "only", nil, "Run only the named benchmarks")

	return cmd
}

func selectBenchmarks(all []benchmarks.Benchmark, names []string) ([]benchmarks.Benchmark, error) {
	if len(names) == 0 {
		return all, nil
	}

	byName := make(map[string]benchmarks.Benchmark, len(all))
	for _, b := range all {
		byName[b.Name] = b
	}

	selected := make([]benchmarks.Benchmark, 0, len(names))
	for _, n := range names {
		b, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown benchmark %q", n)
		}
		selected = append(selected, b)
	}

	return selected, nil
}
