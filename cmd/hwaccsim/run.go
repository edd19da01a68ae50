package main

import (
	"errors"
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/sarchlab/akita/v4/monitoring"
	"github.com/spf13/cobra"

	"github.com/sarchlab/hwaccsim/host"
	"github.com/sarchlab/hwaccsim/loader"
	"github.com/sarchlab/hwaccsim/recorder"
	"github.com/sarchlab/hwaccsim/timing/stats"
)

type runFlags struct {
	config     string
	pretty     bool
	compact    bool
	out        string
	record     string
	trace      bool
	monitor    bool
	maxCycles  uint64
	cpuProfile string
	quiet      bool
}

func (a *app) newRunCmd() *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run GRAPH",
		Short: "Simulate a workload and print its report.",
		Long: "Simulate the top function of a workload file (JSON or YAML) on " +
			"the configured accelerator. The report is written as JSON and a " +
			"summary is printed to stderr.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args[0], f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.config, "config", "c", "", "Hardware configuration file")
	flags.BoolVar(&f.pretty, "pretty", true, "Indent the JSON report")
	flags.BoolVar(&f.compact, "compact", false, "Write the JSON report on one line")
	flags.StringVarP(&f.out, "out", "o", "", "Write the report to a file instead of stdout")
	flags.StringVar(&f.record, "record", "", "Record the run in a SQLite database")
	flags.BoolVar(&f.trace, "trace", false, "Record instruction issue and retirement (needs --record)")
	flags.BoolVar(&f.monitor, "monitor", false, "Start the simulation monitoring server")
	flags.Uint64Var(&f.maxCycles, "max-cycles", 0, "Stop after this many cycles (0 = unlimited)")
	flags.StringVar(&f.cpuProfile, "cpuprofile", "", "Write a CPU profile to a file")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "Do not print the summary")

	return cmd
}

func (a *app) run(cmd *cobra.Command, graphPath string, f *runFlags) error {
	if f.trace && f.record == "" {
		return errors.New("--trace requires --record")
	}

	if f.cpuProfile != "" {
		stop, err := startCPUProfile(f.cpuProfile)
		if err != nil {
			return err
		}
		defer stop()
	}

	hw, err := a.loadHardware(f.config)
	if err != nil {
		return err
	}

	prog, err := loader.Load(graphPath)
	if err != nil {
		return err
	}

	opts := []host.RunnerOption{
		host.WithRunnerLogger(a.logger),
		host.WithMaxCycles(f.maxCycles),
	}

	var rec *recorder.Recorder
	if f.record != "" {
		rec, err = recorder.New(f.record, recorder.WithLogger(a.logger))
		if err != nil {
			return err
		}
		defer func() { _ = rec.Close() }()

		if f.trace {
			opts = append(opts, host.WithHooks(rec.TraceHook()))
		}
	}

	runner, err := host.NewRunner(prog.Graph, hw, opts...)
	if err != nil {
		return err
	}

	if err := prog.Preload(runner.Functional()); err != nil {
		return err
	}

	if f.monitor {
		monitor := monitoring.NewMonitor()
		monitor.RegisterEngine(runner.Context().Engine())
		monitor.StartServer()
	}

	report, err := runner.Run(prog.Args...)
	switch {
	case errors.Is(err, host.ErrMaxTick):
		a.logger.Warn("run stopped at the cycle limit", "cycles", f.maxCycles)
	case err != nil:
		return err
	}

	a.logger.Info("run finished",
		"graph", graphPath,
		"cycles", report.Performance.TotalCycles,
		"result", fmt.Sprintf("0x%x", runner.Accelerator().Result().Bits))

	if rec != nil {
		id, err := rec.RecordRun(report)
		if err != nil {
			return err
		}
		report.RunID = id
		a.logger.Info("run recorded", "id", id, "db", rec.Path())
	}

	if err := a.writeReport(cmd, &report, f); err != nil {
		return err
	}

	if !f.quiet {
		return stats.WriteSummary(cmd.ErrOrStderr(), &report)
	}

	return nil
}

func (a *app) writeReport(cmd *cobra.Command, report *stats.Report, f *runFlags) error {
	data, err := report.Marshal(f.pretty && !f.compact)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')

	if f.out == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	if err := os.WriteFile(f.out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	a.logger.Info("report written", "path", f.out)

	return nil
}

func startCPUProfile(path string) (func(), error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create CPU profile: %w", err)
	}

	if err := pprof.StartCPUProfile(file); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to start CPU profile: %w", err)
	}

	return func() {
		pprof.StopCPUProfile()
		_ = file.Close()
	}, nil
}
