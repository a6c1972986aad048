package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show repository statistics",
		Long: `Display row counts for every repository table plus per-study case
progress.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			stats, err := ws.repo.GetStats(context.Background())
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Repository:")
			fmt.Fprintf(out, "  studies:      %d\n", stats.Studies)
			fmt.Fprintf(out, "  cases:        %d\n", stats.Cases)
			fmt.Fprintf(out, "  parameters:   %d\n", stats.Parameters)
			fmt.Fprintf(out, "  curve points: %d\n", stats.CurvePoints)
			fmt.Fprintf(out, "  features:     %d\n", stats.Features)
			fmt.Fprintf(out, "  deltas:       %d\n", stats.Deltas)

			if len(stats.PerStudy) > 0 {
				fmt.Fprintln(out, "\nStudies:")
				for _, s := range stats.PerStudy {
					fmt.Fprintf(out, "  %-20s %-12s %-10s %d cases (%d completed, %d failed, %d pending)\n",
						s.Name, s.Type, s.Status, s.Total, s.Completed, s.Failed, s.Pending)
				}
			}
			return nil
		},
	}
	return cmd
}
