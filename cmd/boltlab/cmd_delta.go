package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newDeltaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delta",
		Short: "Recompute baseline-relative deltas for a study",
		Long: `Compute (or recompute) the baseline-minus-current feature deltas for
every completed case of a study. The operation is idempotent; rerunning
it overwrites the previous values. Requires a completed baseline case.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			studyName, _ := cmd.Flags().GetString("study")
			if studyName == "" {
				return fmt.Errorf("--study is required")
			}

			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			if err := ws.pipeline().ComputeDeltas(context.Background(), studyName); err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{"study": studyName})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deltas recomputed for study %q\n", studyName)
			return nil
		},
	}
	cmd.Flags().String("study", "", "Study name (required)")
	return cmd
}
