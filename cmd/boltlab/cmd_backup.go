package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/structdyn/boltlab/internal/backup"
	"github.com/structdyn/boltlab/internal/config"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the result repository",
		Long: `Snapshot the result repository into a checksummed, compressed archive
under <root>/backups/ and prune old archives per the retention policy.

Examples:
  boltlab backup
  boltlab backup --output /mnt/nas/results-20260830.db.gz
  boltlab backup list
  boltlab backup verify backups/boltlab-backup-20260830-120000.db.gz
  boltlab backup restore backups/boltlab-backup-20260830-120000.db.gz --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			outputPath, _ := cmd.Flags().GetString("output")

			ws, err := openWorkspace(cmd)
			if err != nil {
				return err
			}
			defer ws.Close()

			backupDir := config.BackupsDir(ws.root)
			if outputPath == "" {
				outputPath = backup.GeneratePath(backupDir)
			}

			header, err := backup.Create(context.Background(), ws.repo, outputPath)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			if dir := filepath.Dir(outputPath); dir == backupDir {
				policy := retentionPolicy(&ws.cfg.Backup)
				if _, err := backup.ApplyRetention(dir, policy); err != nil {
					fmt.Fprintf(os.Stderr, "warning: failed to apply retention: %v\n", err)
				}
			}

			if jsonOut {
				info, _ := os.Stat(outputPath)
				var size int64
				if info != nil {
					size = info.Size()
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"path":       outputPath,
					"studies":    header.Studies,
					"cases":      header.Cases,
					"size_bytes": size,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %d studies, %d cases\n", header.Studies, header.Cases)
			fmt.Fprintf(cmd.OutOrStdout(), "  Path: %s\n", outputPath)
			return nil
		},
	}
	cmd.Flags().String("output", "", "Archive path (default: timestamped file in <root>/backups/)")

	cmd.AddCommand(
		newBackupListCmd(),
		newBackupVerifyCmd(),
		newBackupRestoreCmd(),
	)
	return cmd
}

// retentionPolicy builds the pruning policy from config. Every configured
// rule keeps its own set; the union survives.
func retentionPolicy(cfg *config.BackupConfig) backup.Policy {
	var policies []backup.Policy
	if cfg.Retention.MaxCount > 0 {
		policies = append(policies, &backup.CountPolicy{MaxCount: cfg.Retention.MaxCount})
	}
	if cfg.Retention.MaxAge != "" {
		if d, err := backup.ParseDuration(cfg.Retention.MaxAge); err == nil {
			policies = append(policies, &backup.AgePolicy{MaxAge: d})
		}
	}
	if cfg.Retention.MaxTotalSize != "" {
		if s, err := backup.ParseSize(cfg.Retention.MaxTotalSize); err == nil {
			policies = append(policies, &backup.SizePolicy{MaxTotalBytes: s})
		}
	}
	switch len(policies) {
	case 0:
		return &backup.CountPolicy{MaxCount: 10}
	case 1:
		return policies[0]
	}
	return &backup.CompositePolicy{Policies: policies}
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backup archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, _ := cmd.Flags().GetString("root")

			backups, err := backup.List(config.BackupsDir(root))
			if err != nil {
				return err
			}

			if jsonOut {
				type entry struct {
					Path    string `json:"path"`
					Size    int64  `json:"size_bytes"`
					Studies int    `json:"studies"`
					Cases   int    `json:"cases"`
				}
				entries := make([]entry, 0, len(backups))
				for _, b := range backups {
					e := entry{Path: b.Path, Size: b.Size}
					if h, err := backup.ReadHeader(b.Path); err == nil {
						e.Studies = h.Studies
						e.Cases = h.Cases
					}
					entries = append(entries, e)
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(entries)
			}

			if len(backups) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No backups found")
				return nil
			}
			for _, b := range backups {
				line := fmt.Sprintf("%s  %8d bytes", filepath.Base(b.Path), b.Size)
				if h, err := backup.ReadHeader(b.Path); err == nil {
					line += fmt.Sprintf("  %d studies, %d cases", h.Studies, h.Cases)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func newBackupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify a backup archive's integrity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			if err := backup.VerifyChecksum(args[0]); err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			header, err := backup.ReadHeader(args[0])
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"path":    args[0],
					"valid":   true,
					"studies": header.Studies,
					"cases":   header.Cases,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archive OK: %d studies, %d cases, created %s\n",
				header.Studies, header.Cases, header.CreatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newBackupRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore the result repository from an archive",
		Long: `Replace <root>/results.db with the snapshot in the archive. Refuses to
overwrite an existing database without --force.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, _ := cmd.Flags().GetString("root")
			force, _ := cmd.Flags().GetBool("force")

			if _, err := os.Stat(root); err != nil {
				return fmt.Errorf("workspace %s does not exist (run 'boltlab init' first)", root)
			}

			dbPath := config.DatabasePath(root)
			if _, err := os.Stat(dbPath); err == nil && !force {
				return fmt.Errorf("%s exists; use --force to overwrite it", dbPath)
			}

			header, err := backup.Restore(args[0], dbPath)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"database": dbPath,
					"studies":  header.Studies,
					"cases":    header.Cases,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d studies, %d cases to %s\n",
				header.Studies, header.Cases, dbPath)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing database")
	return cmd
}
