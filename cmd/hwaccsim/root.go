package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sarchlab/hwaccsim/timing/latency"
)

// Environment variables read after .env is loaded.
const (
	envConfig   = "HWACCSIM_CONFIG"
	envLogLevel = "HWACCSIM_LOG_LEVEL"
)

type app struct {
	logLevel string
	logger   *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{
		logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}

	root := &cobra.Command{
		Use: "hwaccsim",
		Short: "hwaccsim simulates the cycle-level timing of hardware " +
			"accelerators described as dataflow graphs.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "",
		"Log level (debug, info, warn, error). Defaults to $"+envLogLevel+" or warn.")

	root.AddCommand(
		a.newRunCmd(),
		a.newValidateCmd(),
		a.newRunsCmd(),
		a.newServeCmd(),
		a.newBenchCmd(),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	if a.logLevel == "" {
		a.logLevel = os.Getenv(envLogLevel)
	}
	if a.logLevel == "" {
		a.logLevel = "warn"
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", a.logLevel, err)
	}

	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(),
		&slog.HandlerOptions{Level: level}))

	return nil
}

// loadHardware loads the hardware configuration from path, from
// $HWACCSIM_CONFIG when path is empty, or falls back to the defaults.
func (a *app) loadHardware(path string) (*latency.Config, error) {
	if path == "" {
		path = os.Getenv(envConfig)
	}
	if path == "" {
		a.logger.Debug("using the default hardware configuration")
		return latency.DefaultConfig(), nil
	}

	config, err := latency.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("hardware configuration loaded", "path", path)

	return config, nil
}
