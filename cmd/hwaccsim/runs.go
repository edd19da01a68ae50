package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/hwaccsim/recorder"
)

func (a *app) newRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs DB",
		Short: "List the runs recorded in a database.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := recorder.Open(args[0], recorder.WithLogger(a.logger))
			if err != nil {
				return err
			}
			defer func() { _ = rec.Close() }()

			runs, err := rec.ListRuns()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tNAME\tTIMESTAMP\tCYCLES\tSTALLS\tILP\tFINISHED")
			for _, r := range runs {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.3f\t%t\n",
					r.ID, r.Name, r.Timestamp, r.TotalCycles, r.StallCycles,
					r.ILP, r.Finished)
			}

			return w.Flush()
		},
	}
}
