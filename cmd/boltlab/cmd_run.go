package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/structdyn/boltlab/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the experiment pipeline over a study",
		Long: `Execute every case of a study: write solver inputs, invoke the
external solver, extract frequency-response features and store the
results. Completed cases are skipped in append mode (the default), so
an interrupted run picks up where it left off. Reset mode drops the
study's results and reruns everything.

Examples:
  boltlab run --study sweep-1
  boltlab run --study sweep-1 --mode reset`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			studyName, _ := cmd.Flags().GetString("study")
			modeStr, _ := cmd.Flags().GetString("mode")

			if studyName == "" {
				return fmt.Errorf("--study is required")
			}
			mode, err := pipeline.ParseMode(modeStr)
			if err != nil {
				return err
			}

			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			// A long solver campaign should stop cleanly between cases.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			summary, err := ws.pipeline().Run(ctx, studyName, mode)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(summary)
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"Run %s finished: %d cases (%d completed, %d failed, %d skipped)\n",
				summary.RunID, summary.Total, summary.Completed, summary.Failed, summary.Skipped)
			return nil
		},
	}
	cmd.Flags().String("study", "", "Study name (required)")
	cmd.Flags().String("mode", "append", "Run mode: append or reset")
	return cmd
}
