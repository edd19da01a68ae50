package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/hwaccsim/host"
	"github.com/sarchlab/hwaccsim/loader"
)

func (a *app) newValidateCmd() *cobra.Command {
	var config, export string

	cmd := &cobra.Command{
		Use:   "validate GRAPH",
		Short: "Check a workload against a hardware configuration.",
		Long: "Load a workload and a hardware configuration and build the " +
			"accelerator without simulating it. With --export the workload is " +
			"written back in normalized form.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hw, err := a.loadHardware(config)
			if err != nil {
				return err
			}

			prog, err := loader.Load(args[0])
			if err != nil {
				return err
			}

			_, err = host.NewRunner(prog.Graph, hw, host.WithRunnerLogger(a.logger))
			if err != nil {
				return err
			}

			g := prog.Graph
			_, _ = fmt.Fprintf(cmd.OutOrStdout(),
				"%s: ok (top %s, %d functions, %d blocks, %d instructions)\n",
				args[0], g.Top().Name, g.NumFunctions(), g.NumBlocks(), g.NumInsts())

			if export != "" {
				return loader.Export(g).Save(export)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&config, "config", "c", "", "Hardware configuration file")
	cmd.Flags().StringVar(&export, "export", "", "Write the normalized workload to a file")

	return cmd
}
