package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "boltlab",
		Short: "Parametric bolt-loosening experiment pipeline",
		Long: `boltlab runs parametric structural-dynamics experiments on a bolted
beam model: it generates bolt-stiffness configurations, drives the
external finite-element solver, extracts frequency-response features
and stores everything in a relational result repository.`,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("root", ".", "Workspace root directory")

	// Add subcommands
	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newGenerateCmd(),
		newRunCmd(),
		newImportCmd(),
		newBatchImportCmd(),
		newDeltaCmd(),
		newVerifyZeroCmd(),
		newExportCmd(),
		newStatsCmd(),
		newLevelsCmd(),
		newBackupCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "boltlab version %s\n", version)
			}
		},
	}
}
