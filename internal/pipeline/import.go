package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/structdyn/boltlab/internal/bush"
	"github.com/structdyn/boltlab/internal/design"
	"github.com/structdyn/boltlab/internal/pch"
	"github.com/structdyn/boltlab/internal/stiffness"
	"github.com/structdyn/boltlab/internal/store"
)

// ImportOptions controls a manual single-case import.
type ImportOptions struct {
	Study      string
	CaseNumber int
	PCHPath    string
	BushPath   string // optional; parameters are recorded when given
	IsBaseline bool
	Replace    bool // delete an existing case of the same number first
}

// ImportCase ingests one existing solver output file into the
// repository without running the solver. The study is created with type
// manual if it does not exist. Deltas are recomputed afterwards when a
// completed baseline is available.
func (p *Pipeline) ImportCase(ctx context.Context, opts ImportOptions) error {
	study, err := p.Repo.GetStudy(ctx, opts.Study)
	if errors.Is(err, store.ErrStudyNotFound) {
		study, err = p.Repo.CreateStudy(ctx, opts.Study, "manual", 0, "imported solver outputs")
	}
	if err != nil {
		return err
	}

	result, err := pch.ParseFile(opts.PCHPath)
	if err != nil {
		return err
	}
	contract := pch.Contract{Nodes: p.Config.Extraction.Nodes, GridLength: p.Config.Extraction.GridLength}
	if err := result.Validate(contract); err != nil {
		return err
	}

	var params []store.Parameter
	if opts.BushPath != "" {
		params, err = parametersFromBush(opts.BushPath)
		if err != nil {
			return err
		}
	}

	if opts.Replace {
		err := p.Repo.DeleteCase(ctx, study.ID, opts.CaseNumber)
		if err != nil && !errors.Is(err, store.ErrCaseNotFound) {
			return err
		}
	}

	c, err := p.Repo.CreateCase(ctx, study.ID, store.Case{
		CaseNumber: opts.CaseNumber,
		Name:       fmt.Sprintf("case_%03d", opts.CaseNumber),
		IsBaseline: opts.IsBaseline,
	}, params)
	if err != nil {
		return err
	}

	if err := p.Repo.SetCaseStatus(ctx, c.ID, store.CaseRunning, ""); err != nil {
		return err
	}

	points, features, err := ExtractFeatures(ctx, result)
	if err != nil {
		if serr := p.Repo.SetCaseStatus(ctx, c.ID, store.CaseFailed, err.Error()); serr != nil {
			p.Logger.Error("failed to record case failure", "case", opts.CaseNumber, "error", serr)
		}
		return err
	}
	if err := p.Repo.InsertCaseResults(ctx, c.ID, points, features); err != nil {
		return err
	}

	p.Logger.Info("case imported", "study", opts.Study, "case", opts.CaseNumber, "channels", len(features))

	if err := p.ComputeDeltas(ctx, opts.Study); err != nil {
		if errors.Is(err, store.ErrNoBaseline) {
			p.Logger.Debug("deltas deferred, no completed baseline yet", "study", opts.Study)
			return nil
		}
		return err
	}
	return nil
}

// parametersFromBush reconstructs the stored parameter rows from a
// Bush.blk artifact. A level is recorded when the triple round-trips
// through the level codec; elements differing from the healthy triple
// are marked varied.
func parametersFromBush(path string) ([]store.Parameter, error) {
	triples, err := bush.ParseFile(path)
	if err != nil {
		return nil, err
	}

	elements := make([]int, 0, len(triples))
	for id := range triples {
		elements = append(elements, id)
	}
	sort.Ints(elements)

	params := make([]store.Parameter, 0, len(elements))
	for _, id := range elements {
		tr := triples[id]
		p := store.Parameter{ElementID: id, K4: tr.K4, K5: tr.K5, K6: tr.K6}
		if id != design.DrivingElement {
			if tr.K4 == tr.K5 && tr.K5 == tr.K6 {
				if level, err := stiffness.Decode(tr.K4); err == nil {
					p.Level = &level
				}
			}
			p.Varied = tr != stiffness.HealthyTriple()
		}
		params = append(params, p)
	}
	return params, nil
}

// designDirPattern matches the per-design output directories of a
// solver batch tree, e.g. Design17.
var designDirPattern = regexp.MustCompile(`^Design(\d+)$`)

// BatchSummary reports a batch import.
type BatchSummary struct {
	Imported int
	Skipped  int
	Failed   int
}

// BatchImport scans a solver batch output tree laid out as
// Design<N>/Analysis_1/*.pch and imports every design as case N of the
// study. Design0 is the healthy baseline. Existing case numbers are
// skipped unless reset, which drops the whole study first. Designs whose
// punch file is missing or malformed are reported and skipped.
func (p *Pipeline) BatchImport(ctx context.Context, studyName, dir string, reset bool) (*BatchSummary, error) {
	if reset {
		if err := p.Repo.DeleteStudy(ctx, studyName); err != nil && !errors.Is(err, store.ErrStudyNotFound) {
			return nil, err
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch directory: %w", err)
	}

	type designDir struct {
		number int
		path   string
	}
	var designs []designDir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := designDirPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		designs = append(designs, designDir{number: n, path: filepath.Join(dir, e.Name())})
	}
	if len(designs) == 0 {
		return nil, fmt.Errorf("no Design<N> directories under %s", dir)
	}
	sort.Slice(designs, func(i, j int) bool { return designs[i].number < designs[j].number })

	summary := &BatchSummary{}
	for _, d := range designs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		pchPath, err := findPunchFile(filepath.Join(d.path, "Analysis_1"))
		if err != nil {
			p.Logger.Warn("design skipped", "design", d.number, "error", err)
			summary.Failed++
			continue
		}

		bushPath := filepath.Join(d.path, "Bush.blk")
		if _, err := os.Stat(bushPath); err != nil {
			bushPath = ""
		}

		err = p.ImportCase(ctx, ImportOptions{
			Study:      studyName,
			CaseNumber: d.number,
			PCHPath:    pchPath,
			BushPath:   bushPath,
			IsBaseline: d.number == 0,
		})
		switch {
		case err == nil:
			summary.Imported++
		case errors.Is(err, store.ErrDuplicateCase):
			summary.Skipped++
		default:
			p.Logger.Warn("design import failed", "design", d.number, "error", err)
			summary.Failed++
		}
	}

	p.Logger.Info("batch import finished", "study", studyName,
		"imported", summary.Imported, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

// findPunchFile returns the single .pch file of an analysis directory.
func findPunchFile(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.pch"))
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no punch file in %s", dir)
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return matches[0], nil
	}
}
