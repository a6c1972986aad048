package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/structdyn/boltlab/internal/design"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a study's case list and solver artifacts",
		Long: `Create a new study and its ordered case list in the repository, and
write the per-case solver input artifacts (Bush.blk, case.json) under
cases/. The healthy baseline is always case 0.

Examples:
  boltlab generate --study sweep-1 --type sweep
  boltlab generate --study doe-1 --type doe --cases 50 --seed 42
  boltlab generate --study mc-1 --type monte_carlo --cases 200 --seed 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			studyName, _ := cmd.Flags().GetString("study")
			typeStr, _ := cmd.Flags().GetString("type")
			nCases, _ := cmd.Flags().GetInt("cases")
			seed, _ := cmd.Flags().GetInt64("seed")

			if studyName == "" {
				return fmt.Errorf("--study is required")
			}
			typ, err := design.ParseStudyType(typeStr)
			if err != nil {
				return err
			}

			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			study, err := ws.pipeline().Generate(context.Background(), studyName, typ, nCases, seed)
			if err != nil {
				return err
			}

			cases, err := ws.repo.ListCases(context.Background(), study.ID)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"study": study.Name,
					"type":  study.Type,
					"seed":  study.Seed,
					"cases": len(cases),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated study %q (%s): %d cases including baseline\n",
				study.Name, study.Type, len(cases))
			return nil
		},
	}
	cmd.Flags().String("study", "", "Study name (required)")
	cmd.Flags().String("type", "sweep", "Study type: sweep, doe, or monte_carlo")
	cmd.Flags().Int("cases", 0, "Case count for doe/monte_carlo studies")
	cmd.Flags().Int64("seed", 0, "Random seed for doe/monte_carlo studies")
	return cmd
}
