package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/structdyn/boltlab/internal/export"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a study's feature matrix to Parquet",
		Long: `Write the per-case feature matrix (parameters, extracted features,
deltas; one row per case and channel) to a Parquet file for model
training.

Example:
  boltlab export --study sweep-1 --output features.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			studyName, _ := cmd.Flags().GetString("study")
			output, _ := cmd.Flags().GetString("output")

			if studyName == "" || output == "" {
				return fmt.Errorf("--study and --output are required")
			}

			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			ctx := context.Background()
			study, err := ws.repo.GetStudy(ctx, studyName)
			if err != nil {
				return err
			}
			rows, err := ws.repo.FeatureMatrix(ctx, study.ID)
			if err != nil {
				return err
			}
			if err := export.WriteFile(output, rows); err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"study":  studyName,
					"output": output,
					"rows":   len(rows),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rows to %s\n", len(rows), output)
			return nil
		},
	}
	cmd.Flags().String("study", "", "Study name (required)")
	cmd.Flags().String("output", "", "Output Parquet file (required)")
	return cmd
}
