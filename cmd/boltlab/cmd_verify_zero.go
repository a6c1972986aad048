package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/structdyn/boltlab/internal/delta"
)

func newVerifyZeroCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-zero",
		Short: "Assert a case's deltas are zero",
		Long: `Check that every delta metric of a case is within tolerance of zero.
Run against the baseline case (which is compared with itself) this
validates the whole extract-store-delta chain end to end.

Example:
  boltlab verify-zero --study sweep-1 --case-number 0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			studyName, _ := cmd.Flags().GetString("study")
			caseNumber, _ := cmd.Flags().GetInt("case-number")
			tolerance, _ := cmd.Flags().GetFloat64("tolerance")

			if studyName == "" {
				return fmt.Errorf("--study is required")
			}
			if caseNumber < 0 {
				return fmt.Errorf("--case-number must be non-negative")
			}
			if tolerance < 0 {
				return fmt.Errorf("--tolerance must be non-negative")
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
			c, err := ws.repo.GetCase(ctx, study.ID, caseNumber)
			if err != nil {
				return err
			}
			deltas, err := ws.repo.GetDeltas(ctx, c.ID)
			if err != nil {
				return err
			}
			if len(deltas) == 0 {
				return fmt.Errorf("case %d has no deltas (run 'boltlab delta' first)", caseNumber)
			}

			violations := delta.VerifyZero(deltas, tolerance)

			if jsonOut {
				out := map[string]any{
					"study":      studyName,
					"case":       caseNumber,
					"channels":   len(deltas),
					"violations": len(violations),
				}
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(out); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Checked %d channels of case %d\n", len(deltas), caseNumber)
				for _, v := range violations {
					fmt.Fprintf(cmd.OutOrStdout(), "  violation: %s\n", v)
				}
			}

			if len(violations) > 0 {
				return fmt.Errorf("%d delta metrics exceed tolerance %g", len(violations), tolerance)
			}
			return nil
		},
	}
	cmd.Flags().String("study", "", "Study name (required)")
	cmd.Flags().Int("case-number", -1, "Case number (required)")
	cmd.Flags().Float64("tolerance", 0, "Allowed absolute deviation from zero")
	return cmd
}
