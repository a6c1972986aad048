package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/structdyn/boltlab/internal/config"
	"github.com/structdyn/boltlab/internal/logging"
	"github.com/structdyn/boltlab/internal/pipeline"
	"github.com/structdyn/boltlab/internal/solver"
	"github.com/structdyn/boltlab/internal/store"
)

// workspace bundles everything a subcommand needs: the loaded
// configuration, the open repository and the operational logger.
type workspace struct {
	root   string
	cfg    *config.Config
	repo   *store.Repository
	logger *slog.Logger
}

// openWorkspace loads the workspace behind the global --root flag. The
// repository file is created on first use; a missing config file means
// defaults.
func openWorkspace(cmd *cobra.Command) (*workspace, error) {
	root, _ := cmd.Flags().GetString("root")

	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("workspace %s does not exist (run 'boltlab init' first)", root)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	repo, err := store.Open(config.DatabasePath(root))
	if err != nil {
		return nil, err
	}

	return &workspace{
		root:   root,
		cfg:    cfg,
		repo:   repo,
		logger: logging.NewLogger(cfg.Logging.Level, os.Stderr),
	}, nil
}

func (w *workspace) Close() {
	w.repo.Close()
}

// pipeline builds the ingestion pipeline with the configured external
// solver.
func (w *workspace) pipeline() *pipeline.Pipeline {
	runner := solver.NewExec(w.cfg.Solver.Command, w.cfg.Solver.Args, w.cfg.Solver.Timeout.Std(), w.logger)
	return pipeline.New(w.root, w.cfg, w.repo, runner, w.logger)
}
