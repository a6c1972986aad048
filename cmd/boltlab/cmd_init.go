package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/structdyn/boltlab/internal/config"
	"github.com/structdyn/boltlab/internal/store"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a boltlab workspace",
		Long: `Create the workspace directory with a default boltlab.yaml, an empty
result repository and the cases/ artifact directory. Safe to rerun; an
existing configuration is left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			if err := os.MkdirAll(root, 0755); err != nil {
				return fmt.Errorf("failed to create workspace directory: %w", err)
			}
			if err := os.MkdirAll(config.CasesRoot(root), 0755); err != nil {
				return fmt.Errorf("failed to create cases directory: %w", err)
			}

			cfgPath := config.Path(root)
			created := false
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := config.Default().Write(root); err != nil {
					return err
				}
				created = true
			}

			// Opening the repository creates the schema.
			repo, err := store.Open(config.DatabasePath(root))
			if err != nil {
				return err
			}
			repo.Close()

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"root":           root,
					"config_created": created,
					"database":       config.DatabasePath(root),
				})
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Initialized workspace in %s\n", root)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Workspace %s already initialized\n", root)
			}
			return nil
		},
	}
	return cmd
}
