package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/structdyn/boltlab/internal/pipeline"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import an existing solver output as one case",
		Long: `Ingest a punch file produced outside the pipeline as one case of a
study. The study is created (type manual) if it does not exist. With
--bush the stiffness parameters are reconstructed from the Bush.blk
artifact; with --baseline the case becomes the study's healthy
reference.

Examples:
  boltlab import --study manual-1 --case-number 0 --pch healthy.pch --baseline
  boltlab import --study manual-1 --case-number 12 --pch run12.pch --bush Bush.blk`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			studyName, _ := cmd.Flags().GetString("study")
			caseNumber, _ := cmd.Flags().GetInt("case-number")
			pchPath, _ := cmd.Flags().GetString("pch")
			bushPath, _ := cmd.Flags().GetString("bush")
			baseline, _ := cmd.Flags().GetBool("baseline")
			replace, _ := cmd.Flags().GetBool("replace")

			if studyName == "" || pchPath == "" {
				return fmt.Errorf("--study and --pch are required")
			}
			if caseNumber < 0 {
				return fmt.Errorf("--case-number must be non-negative")
			}

			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			err = ws.pipeline().ImportCase(context.Background(), pipeline.ImportOptions{
				Study:      studyName,
				CaseNumber: caseNumber,
				PCHPath:    pchPath,
				BushPath:   bushPath,
				IsBaseline: baseline,
				Replace:    replace,
			})
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"study": studyName,
					"case":  caseNumber,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported case %d into study %q\n", caseNumber, studyName)
			return nil
		},
	}
	cmd.Flags().String("study", "", "Study name (required)")
	cmd.Flags().Int("case-number", -1, "Case number (required)")
	cmd.Flags().String("pch", "", "Punch file to ingest (required)")
	cmd.Flags().String("bush", "", "Bush.blk artifact for parameter reconstruction")
	cmd.Flags().Bool("baseline", false, "Mark the case as the healthy baseline")
	cmd.Flags().Bool("replace", false, "Replace an existing case of the same number")
	return cmd
}
