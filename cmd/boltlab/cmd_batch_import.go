package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newBatchImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch-import",
		Short: "Import a solver batch output tree",
		Long: `Scan a batch output tree laid out as Design<N>/Analysis_1/*.pch and
import every design as case N of the study. Design0 becomes the healthy
baseline. Already-ingested case numbers are skipped; --reset drops the
study first.

Example:
  boltlab batch-import --study thesis --dir /data/post0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			studyName, _ := cmd.Flags().GetString("study")
			dir, _ := cmd.Flags().GetString("dir")
			reset, _ := cmd.Flags().GetBool("reset")

			if studyName == "" || dir == "" {
				return fmt.Errorf("--study and --dir are required")
			}

			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			summary, err := ws.pipeline().BatchImport(context.Background(), studyName, dir, reset)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(summary)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Batch import: %d imported, %d skipped, %d failed\n",
				summary.Imported, summary.Skipped, summary.Failed)
			return nil
		},
	}
	cmd.Flags().String("study", "", "Study name (required)")
	cmd.Flags().String("dir", "", "Batch output directory (required)")
	cmd.Flags().Bool("reset", false, "Drop the study before importing")
	return cmd
}
