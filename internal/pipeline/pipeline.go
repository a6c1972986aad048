// Package pipeline runs the experiment loop: for every case of a study
// it writes the solver artifacts, invokes the external solver, parses
// and validates the punch output, extracts curve features, stores the
// result atomically and computes baseline-relative deltas. Case
// failures are isolated; an interrupted run resumes in append mode.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/structdyn/boltlab/internal/bush"
	"github.com/structdyn/boltlab/internal/config"
	"github.com/structdyn/boltlab/internal/curve"
	"github.com/structdyn/boltlab/internal/delta"
	"github.com/structdyn/boltlab/internal/design"
	"github.com/structdyn/boltlab/internal/logging"
	"github.com/structdyn/boltlab/internal/pch"
	"github.com/structdyn/boltlab/internal/solver"
	"github.com/structdyn/boltlab/internal/stiffness"
	"github.com/structdyn/boltlab/internal/store"
)

// Mode selects how Run treats already-ingested cases.
type Mode string

const (
	// ModeAppend skips completed cases and runs the rest. The default;
	// makes an interrupted run resumable.
	ModeAppend Mode = "append"

	// ModeReset deletes the study's results and reruns every case from a
	// freshly regenerated definition.
	ModeReset Mode = "reset"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAppend, ModeReset:
		return Mode(s), nil
	case "":
		return ModeAppend, nil
	default:
		return "", fmt.Errorf("unknown run mode %q (want append or reset)", s)
	}
}

// extractWorkers bounds concurrent per-channel feature extraction.
const extractWorkers = 4

// Pipeline coordinates one workspace: configuration, repository, solver.
type Pipeline struct {
	Root   string
	Config *config.Config
	Repo   *store.Repository
	Runner solver.Runner
	Logger *slog.Logger
	Trace  *logging.RunTraceLogger
}

// New creates a pipeline for a workspace. A nil logger discards output.
func New(root string, cfg *config.Config, repo *store.Repository, runner solver.Runner, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{
		Root:   root,
		Config: cfg,
		Repo:   repo,
		Runner: runner,
		Logger: logger,
		Trace:  logging.NewRunTraceLogger(root, cfg.Logging.Level),
	}
}

// Generate creates a study and its ordered case list (baseline first),
// persists every case with its parameters, and writes the per-case
// solver artifacts.
func (p *Pipeline) Generate(ctx context.Context, name string, typ design.StudyType, n int, seed int64) (*store.Study, error) {
	defs, err := design.Generate(typ, n, seed)
	if err != nil {
		return nil, err
	}
	defs = append([]design.CaseDef{design.Baseline()}, defs...)

	study, err := p.Repo.CreateStudy(ctx, name, string(typ), seed, "")
	if err != nil {
		return nil, err
	}

	for _, def := range defs {
		if err := p.addCase(ctx, study.ID, def); err != nil {
			return nil, err
		}
	}

	p.Logger.Info("study generated", "study", name, "type", typ, "cases", len(defs))
	return study, nil
}

// addCase persists one case definition and writes its artifacts.
func (p *Pipeline) addCase(ctx context.Context, studyID int64, def design.CaseDef) error {
	params := make([]store.Parameter, 0, len(def.Assignments))
	for _, a := range def.Assignments {
		params = append(params, store.Parameter{
			ElementID: a.ElementID,
			K4:        a.Triple.K4,
			K5:        a.Triple.K5,
			K6:        a.Triple.K6,
			Level:     a.Level,
			Varied:    a.Varied,
		})
	}

	if _, err := p.Repo.CreateCase(ctx, studyID, store.Case{
		CaseNumber: def.Number,
		Name:       def.Name,
		IsBaseline: def.IsBaseline,
	}, params); err != nil {
		return err
	}

	return p.writeArtifacts(def)
}

// writeArtifacts creates the case directory with Bush.blk and case.json.
func (p *Pipeline) writeArtifacts(def design.CaseDef) error {
	dir := config.CaseDir(p.Root, def.Number)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create case directory: %w", err)
	}

	if err := bush.WriteFile(filepath.Join(dir, "Bush.blk"), def); err != nil {
		return err
	}

	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal case definition: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "case.json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write case.json: %w", err)
	}
	return nil
}

// ensureArtifacts rebuilds a case's solver inputs from the stored
// parameters when the artifact directory is missing, so a run can
// proceed on a workspace that lost its cases/ tree.
func (p *Pipeline) ensureArtifacts(ctx context.Context, c *store.Case) error {
	dir := config.CaseDir(p.Root, c.CaseNumber)
	if _, err := os.Stat(filepath.Join(dir, "Bush.blk")); err == nil {
		return nil
	}

	params, err := p.Repo.GetParameters(ctx, c.ID)
	if err != nil {
		return err
	}
	if len(params) == 0 {
		return fmt.Errorf("case %d has no stored parameters to rebuild artifacts from", c.CaseNumber)
	}

	def := design.CaseDef{
		Number:     c.CaseNumber,
		Name:       c.Name,
		IsBaseline: c.IsBaseline,
	}
	for _, prm := range params {
		def.Assignments = append(def.Assignments, design.Assignment{
			ElementID: prm.ElementID,
			Triple:    stiffness.Triple{K4: prm.K4, K5: prm.K5, K6: prm.K6},
			Level:     prm.Level,
			Varied:    prm.Varied,
		})
	}
	return p.writeArtifacts(def)
}

// RunSummary reports the outcome of one pipeline run.
type RunSummary struct {
	RunID     string
	Study     string
	Total     int
	Skipped   int
	Completed int
	Failed    int
}

// Run executes the ingestion loop over every case of the study. In
// append mode cases already in a terminal status are skipped, so a
// completed study re-runs as an all-skipped no-op; in reset mode the
// study is deleted and regenerated first. A solver timeout, nonzero
// exit or signal kill fails only that case; a solver that cannot start
// at all aborts the run and fails the study. Cancellation leaves the
// study status untouched so the next append run resumes.
func (p *Pipeline) Run(ctx context.Context, studyName string, mode Mode) (*RunSummary, error) {
	runID := uuid.NewString()
	logger := p.Logger.With("run_id", runID, "study", studyName)

	study, err := p.Repo.GetStudy(ctx, studyName)
	if err != nil {
		return nil, err
	}

	if mode == ModeReset {
		study, err = p.reset(ctx, study)
		if err != nil {
			return nil, err
		}
	}

	// A completed study has only terminal cases left; its status is
	// already final and must not move.
	if study.Status != store.StudyCompleted {
		if err := p.Repo.SetStudyStatus(ctx, study.ID, store.StudyRunning); err != nil {
			return nil, err
		}
	}

	cases, err := p.Repo.ListCases(ctx, study.ID)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{RunID: runID, Study: studyName, Total: len(cases)}
	for _, c := range cases {
		if c.Status == store.CaseCompleted || c.Status == store.CaseFailed {
			summary.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		caseErr := p.runCase(ctx, logger, &c)
		if caseErr == nil {
			summary.Completed++
			continue
		}
		if ctx.Err() != nil {
			// A kill observed during shutdown is cancellation, not a
			// solver defect; leave the study resumable.
			return summary, ctx.Err()
		}

		var solverErr *solver.Error
		if errors.As(caseErr, &solverErr) && solverErr.StartFailed {
			// The solver binary itself is broken; no case can succeed.
			logger.Error("solver cannot start, aborting run", "error", caseErr)
			if err := p.Repo.SetStudyStatus(ctx, study.ID, store.StudyFailed); err != nil {
				logger.Error("failed to mark study failed", "error", err)
			}
			return summary, caseErr
		}

		summary.Failed++
		logger.Warn("case failed", "case", c.CaseNumber, "error", caseErr)
	}

	if err := p.ComputeDeltas(ctx, studyName); err != nil {
		if errors.Is(err, store.ErrNoBaseline) {
			logger.Warn("deltas skipped", "reason", err)
		} else {
			return summary, err
		}
	}

	if err := p.Repo.SetStudyStatus(ctx, study.ID, store.StudyCompleted); err != nil {
		return summary, err
	}

	logger.Info("run finished",
		"total", summary.Total,
		"skipped", summary.Skipped,
		"completed", summary.Completed,
		"failed", summary.Failed)
	return summary, nil
}

// reset deletes the study and regenerates the same case list from the
// recorded type and seed.
func (p *Pipeline) reset(ctx context.Context, study *store.Study) (*store.Study, error) {
	typ, err := design.ParseStudyType(study.Type)
	if err != nil {
		return nil, fmt.Errorf("study %q cannot be reset: %w", study.Name, err)
	}
	if typ == design.TypeManual {
		// Manual cases came from punch imports and cannot be regenerated.
		return nil, fmt.Errorf("study %q is manual and cannot be reset here; use batch-import --reset", study.Name)
	}

	// The original case count excludes the prepended baseline.
	cases, err := p.Repo.ListCases(ctx, study.ID)
	if err != nil {
		return nil, err
	}
	n := len(cases) - 1

	if err := p.Repo.DeleteStudy(ctx, study.Name); err != nil {
		return nil, err
	}
	return p.Generate(ctx, study.Name, typ, n, study.Seed)
}

// runCase executes one case end to end. Any error leaves the case in
// status failed with the cause recorded; the repository is only touched
// through the atomic result insert.
func (p *Pipeline) runCase(ctx context.Context, logger *slog.Logger, c *store.Case) error {
	dir := config.CaseDir(p.Root, c.CaseNumber)
	logger.Info("running case", "case", c.CaseNumber, "dir", dir)
	p.Trace.Log(map[string]any{"event": "case_start", "case": c.CaseNumber})

	fail := func(stage string, err error) error {
		p.Trace.Log(map[string]any{"event": "case_failed", "case": c.CaseNumber, "stage": stage, "error": err.Error()})
		if serr := p.Repo.SetCaseStatus(ctx, c.ID, store.CaseFailed, err.Error()); serr != nil {
			logger.Error("failed to record case failure", "case", c.CaseNumber, "error", serr)
		}
		return err
	}

	if err := p.ensureArtifacts(ctx, c); err != nil {
		return fail("artifacts", err)
	}

	if err := p.Repo.SetCaseStatus(ctx, c.ID, store.CaseRunning, ""); err != nil {
		return err
	}

	if err := p.Runner.Run(ctx, dir); err != nil {
		return fail("solver", err)
	}

	result, err := pch.ParseFile(filepath.Join(dir, p.Config.Solver.OutputFile))
	if err != nil {
		return fail("parse", err)
	}
	contract := pch.Contract{Nodes: p.Config.Extraction.Nodes, GridLength: p.Config.Extraction.GridLength}
	if err := result.Validate(contract); err != nil {
		return fail("validate", err)
	}

	points, features, err := ExtractFeatures(ctx, result)
	if err != nil {
		return fail("extract", err)
	}

	if err := p.Repo.InsertCaseResults(ctx, c.ID, points, features); err != nil {
		return fail("store", err)
	}

	p.Trace.Log(map[string]any{"event": "case_completed", "case": c.CaseNumber, "channels": len(features)})
	return nil
}

// ExtractFeatures flattens a parsed result into curve points and
// per-channel feature rows. Channels are extracted concurrently and
// returned in deterministic (node, kind, dof) order.
func ExtractFeatures(ctx context.Context, result *pch.Result) ([]store.CurvePoint, []store.ChannelFeatures, error) {
	channels := make([]pch.Channel, 0, len(result.Curves))
	for ch := range result.Curves {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool {
		a, b := channels[i], channels[j]
		if a.NodeID != b.NodeID {
			return a.NodeID < b.NodeID
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.DOF < b.DOF
	})

	features := make([]store.ChannelFeatures, len(channels))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(extractWorkers)
	for i, ch := range channels {
		i, ch := i, ch
		g.Go(func() error {
			f := curve.Extract(result.Curves[ch])
			row := store.ChannelFeatures{
				NodeID: ch.NodeID,
				DOF:    ch.DOF,
				Kind:   string(ch.Kind),
				Area:   f.Area,
			}
			for j, peak := range f.Peaks {
				if peak != nil {
					row.Peaks[j] = &store.PeakSlot{Frequency: peak.Frequency, Magnitude: peak.Magnitude}
				}
			}
			features[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var points []store.CurvePoint
	for _, ch := range channels {
		for _, s := range result.Curves[ch] {
			points = append(points, store.CurvePoint{
				NodeID:    ch.NodeID,
				DOF:       ch.DOF,
				Kind:      string(ch.Kind),
				Frequency: s.Frequency,
				Magnitude: s.Magnitude,
			})
		}
	}
	return points, features, nil
}

// ComputeDeltas (re)computes baseline-relative deltas for every
// completed case of the study. Recomputation is idempotent. Returns
// store.ErrNoBaseline when the study's baseline has not completed.
func (p *Pipeline) ComputeDeltas(ctx context.Context, studyName string) error {
	study, err := p.Repo.GetStudy(ctx, studyName)
	if err != nil {
		return err
	}

	baseCase, err := p.Repo.BaselineCase(ctx, study.ID)
	if err != nil {
		return err
	}
	baseline, err := p.Repo.GetFeatures(ctx, baseCase.ID)
	if err != nil {
		return err
	}

	cases, err := p.Repo.ListCases(ctx, study.ID)
	if err != nil {
		return err
	}

	for _, c := range cases {
		if c.Status != store.CaseCompleted {
			continue
		}
		current, err := p.Repo.GetFeatures(ctx, c.ID)
		if err != nil {
			return err
		}
		deltas, err := delta.Compute(baseline, current)
		if err != nil {
			return fmt.Errorf("case %d: %w", c.CaseNumber, err)
		}
		if err := p.Repo.UpsertDeltas(ctx, c.ID, deltas); err != nil {
			return err
		}
	}

	p.Logger.Debug("deltas computed", "study", studyName, "baseline_case", baseCase.CaseNumber)
	return nil
}
