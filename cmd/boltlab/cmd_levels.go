package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/structdyn/boltlab/internal/design"
	"github.com/structdyn/boltlab/internal/stiffness"
)

func newLevelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "levels",
		Short: "Print the stiffness level table and sweep mapping",
		Long: `Print the level-to-stiffness encoding (level L maps to 10^(L+3)
N·mm/rad) and, with --sweep, the full case-number mapping of the
72-case single-element sweep.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			showSweep, _ := cmd.Flags().GetBool("sweep")
			out := cmd.OutOrStdout()

			type levelRow struct {
				Level   int     `json:"level"`
				Value   float64 `json:"value"`
				Nastran string  `json:"nastran"`
				Healthy bool    `json:"healthy,omitempty"`
			}
			var levels []levelRow
			for l := stiffness.MinLevel; l <= stiffness.MaxLevel; l++ {
				v, err := stiffness.Encode(l)
				if err != nil {
					return err
				}
				levels = append(levels, levelRow{
					Level:   l,
					Value:   v,
					Nastran: stiffness.FormatNastran(v),
					Healthy: l == stiffness.HealthyLevel,
				})
			}

			type sweepRow struct {
				Case    int `json:"case"`
				Element int `json:"element"`
				Level   int `json:"level"`
			}
			var sweep []sweepRow
			if showSweep {
				for n := 1; n <= design.SweepCases; n++ {
					elem, level, err := design.SweepCaseElementLevel(n)
					if err != nil {
						return err
					}
					sweep = append(sweep, sweepRow{Case: n, Element: elem, Level: level})
				}
			}

			if jsonOut {
				payload := map[string]any{"levels": levels}
				if showSweep {
					payload["sweep"] = sweep
				}
				return json.NewEncoder(out).Encode(payload)
			}

			fmt.Fprintln(out, "Level  Stiffness      Card")
			for _, r := range levels {
				marker := ""
				if r.Healthy {
					marker = "  (healthy)"
				}
				fmt.Fprintf(out, "%5d  %-13g  %s%s\n", r.Level, r.Value, r.Nastran, marker)
			}
			if showSweep {
				fmt.Fprintln(out, "\nCase   Element  Level")
				for _, r := range sweep {
					fmt.Fprintf(out, "%4d   %7d  %5d\n", r.Case, r.Element, r.Level)
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("sweep", false, "Also print the 72-case sweep mapping")
	return cmd
}
