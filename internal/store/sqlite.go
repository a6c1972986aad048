package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// timeFormat is the canonical timestamp encoding in the database.
const timeFormat = time.RFC3339Nano

// Repository is the SQLite-backed result repository. It is safe for
// concurrent use; writes are serialized on a single connection.
type Repository struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (or creates) the repository at path and ensures the schema.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// DB exposes the underlying handle for read-only consumers (export, stats).
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Snapshot writes a consistent, compacted copy of the database to destPath
// via VACUUM INTO. destPath must not exist.
func (r *Repository) Snapshot(ctx context.Context, destPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// VACUUM INTO takes a string literal, not a bind parameter, in some
	// SQLite builds; escape single quotes by doubling them.
	escaped := strings.ReplaceAll(destPath, "'", "''")
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", escaped)); err != nil {
		return fmt.Errorf("failed to snapshot database to %s: %w", destPath, err)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CreateStudy inserts a new study in status created.
// Returns ErrDuplicateStudy if the name is taken.
func (r *Repository) CreateStudy(ctx context.Context, name, studyType string, seed int64, description string) (*Study, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return nil, fmt.Errorf("study name is required")
	}

	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM studies WHERE name = ?`, name).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check study %q: %w", name, err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("study %q: %w", name, ErrDuplicateStudy)
	}

	ts := now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO studies (name, study_type, status, seed, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		name, studyType, StudyCreated, seed, description, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to insert study %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get study id: %w", err)
	}

	return &Study{
		ID:          id,
		Name:        name,
		Type:        studyType,
		Status:      StudyCreated,
		Seed:        seed,
		Description: description,
		CreatedAt:   parseTime(ts),
		UpdatedAt:   parseTime(ts),
	}, nil
}

// GetStudy returns the study with the given name, or ErrStudyNotFound.
func (r *Repository) GetStudy(ctx context.Context, name string) (*Study, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, study_type, status, seed, description, created_at, updated_at
		 FROM studies WHERE name = ?`, name)
	return scanStudy(row, name)
}

func scanStudy(row *sql.Row, name string) (*Study, error) {
	var s Study
	var status, createdAt, updatedAt string
	err := row.Scan(&s.ID, &s.Name, &s.Type, &status, &s.Seed, &s.Description, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("study %q: %w", name, ErrStudyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load study %q: %w", name, err)
	}
	s.Status = StudyStatus(status)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

// ListStudies returns all studies ordered by creation.
func (r *Repository) ListStudies(ctx context.Context) ([]Study, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, study_type, status, seed, description, created_at, updated_at
		 FROM studies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list studies: %w", err)
	}
	defer rows.Close()

	var studies []Study
	for rows.Next() {
		var s Study
		var status, createdAt, updatedAt string
		if err := rows.Scan(&s.ID, &s.Name, &s.Type, &status, &s.Seed, &s.Description, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan study: %w", err)
		}
		s.Status = StudyStatus(status)
		s.CreatedAt = parseTime(createdAt)
		s.UpdatedAt = parseTime(updatedAt)
		studies = append(studies, s)
	}
	return studies, rows.Err()
}

// SetStudyStatus moves a study along its state machine.
// Returns a TransitionError for a non-monotone move. Setting the current
// status is a no-op.
func (r *Repository) SetStudyStatus(ctx context.Context, studyID int64, to StudyStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var from string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM studies WHERE id = ?`, studyID).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("study id %d: %w", studyID, ErrStudyNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load study status: %w", err)
	}

	if !validStudyTransition(StudyStatus(from), to) {
		return &TransitionError{Entity: "study", From: from, To: string(to)}
	}
	if StudyStatus(from) == to {
		return nil
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE studies SET status = ?, updated_at = ? WHERE id = ?`, to, now(), studyID)
	if err != nil {
		return fmt.Errorf("failed to update study status: %w", err)
	}
	return nil
}

// DeleteStudy removes a study and all dependent rows in one transaction.
// Foreign keys cascade through cases to parameters, curve points, peaks
// and deltas. Returns ErrStudyNotFound for an unknown name.
func (r *Repository) DeleteStudy(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM studies WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete study %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("study %q: %w", name, ErrStudyNotFound)
	}

	return tx.Commit()
}

// CreateCase appends a case with its parameters in one transaction.
// Returns ErrDuplicateCase if the case number already exists in the
// study, and ErrDuplicateBaseline if the study already has a baseline
// case; existing rows are left untouched.
func (r *Repository) CreateCase(ctx context.Context, studyID int64, c Case, params []Parameter) (*Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cases WHERE study_id = ? AND case_number = ?`,
		studyID, c.CaseNumber).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check case %d: %w", c.CaseNumber, err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("study %d case %d: %w", studyID, c.CaseNumber, ErrDuplicateCase)
	}

	if c.IsBaseline {
		var baselines int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM cases WHERE study_id = ? AND is_baseline = 1`,
			studyID).Scan(&baselines)
		if err != nil {
			return nil, fmt.Errorf("failed to check baseline for study %d: %w", studyID, err)
		}
		if baselines > 0 {
			return nil, fmt.Errorf("study %d case %d: %w", studyID, c.CaseNumber, ErrDuplicateBaseline)
		}
	}

	ts := now()
	isBaseline := 0
	if c.IsBaseline {
		isBaseline = 1
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO cases (study_id, case_number, name, is_baseline, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		studyID, c.CaseNumber, c.Name, isBaseline, CasePending, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to insert case %d: %w", c.CaseNumber, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get case id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO parameters (case_id, element_id, k4, k5, k6, stiffness_level, is_varied)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare parameter insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range params {
		var level any
		if p.Level != nil {
			level = *p.Level
		}
		varied := 0
		if p.Varied {
			varied = 1
		}
		if _, err := stmt.ExecContext(ctx, id, p.ElementID, p.K4, p.K5, p.K6, level, varied); err != nil {
			return nil, fmt.Errorf("failed to insert parameter for element %d: %w", p.ElementID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit case %d: %w", c.CaseNumber, err)
	}

	out := c
	out.ID = id
	out.StudyID = studyID
	out.Status = CasePending
	out.CreatedAt = parseTime(ts)
	return &out, nil
}

// DeleteCase removes one case and its dependent rows in one
// transaction. Used by replace-mode imports; the normal pipeline never
// deletes cases.
func (r *Repository) DeleteCase(ctx context.Context, studyID int64, caseNumber int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM cases WHERE study_id = ? AND case_number = ?`, studyID, caseNumber)
	if err != nil {
		return fmt.Errorf("failed to delete case %d: %w", caseNumber, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("study %d case %d: %w", studyID, caseNumber, ErrCaseNotFound)
	}

	return tx.Commit()
}

// GetCase returns one case by study and case number, or ErrCaseNotFound.
func (r *Repository) GetCase(ctx context.Context, studyID int64, caseNumber int) (*Case, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, study_id, case_number, name, is_baseline, status, error, created_at, completed_at
		 FROM cases WHERE study_id = ? AND case_number = ?`, studyID, caseNumber)

	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("study %d case %d: %w", studyID, caseNumber, ErrCaseNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load case %d: %w", caseNumber, err)
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*Case, error) {
	var c Case
	var isBaseline int
	var status string
	var createdAt string
	var completedAt sql.NullString
	err := row.Scan(&c.ID, &c.StudyID, &c.CaseNumber, &c.Name, &isBaseline,
		&status, &c.Error, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}
	c.IsBaseline = isBaseline != 0
	c.Status = CaseStatus(status)
	c.CreatedAt = parseTime(createdAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		c.CompletedAt = &t
	}
	return &c, nil
}

// ListCases returns all cases of a study ordered by case number.
func (r *Repository) ListCases(ctx context.Context, studyID int64) ([]Case, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, study_id, case_number, name, is_baseline, status, error, created_at, completed_at
		 FROM cases WHERE study_id = ? ORDER BY case_number`, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	var cases []Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		cases = append(cases, *c)
	}
	return cases, rows.Err()
}

// CompletedCaseNumbers returns the set of completed case numbers of a
// study. Used by the pipeline to resume an interrupted run.
func (r *Repository) CompletedCaseNumbers(ctx context.Context, studyID int64) (map[int]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT case_number FROM cases WHERE study_id = ? AND status = ?`,
		studyID, CaseCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed cases: %w", err)
	}
	defer rows.Close()

	done := make(map[int]bool)
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan case number: %w", err)
		}
		done[n] = true
	}
	return done, rows.Err()
}

// SetCaseStatus moves a case along its state machine. errMsg is recorded
// for failed transitions and ignored otherwise. Returns a TransitionError
// for a non-monotone move.
func (r *Repository) SetCaseStatus(ctx context.Context, caseID int64, to CaseStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setCaseStatus(ctx, r.db, caseID, to, errMsg)
}

// execer abstracts *sql.DB and *sql.Tx for status updates.
type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) setCaseStatus(ctx context.Context, ex execer, caseID int64, to CaseStatus, errMsg string) error {
	var from string
	err := ex.QueryRowContext(ctx, `SELECT status FROM cases WHERE id = ?`, caseID).Scan(&from)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("case id %d: %w", caseID, ErrCaseNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load case status: %w", err)
	}

	if !validCaseTransition(CaseStatus(from), to) {
		return &TransitionError{Entity: "case", From: from, To: string(to)}
	}
	if CaseStatus(from) == to {
		return nil
	}

	if to != CaseFailed {
		errMsg = ""
	}
	var completedAt any
	if to == CaseCompleted {
		completedAt = now()
	}
	_, err = ex.ExecContext(ctx,
		`UPDATE cases SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		to, errMsg, completedAt, caseID)
	if err != nil {
		return fmt.Errorf("failed to update case status: %w", err)
	}
	return nil
}

// InsertCaseResults stores the full extraction result of one case: all
// curve points and all channel feature rows, and marks the case
// completed. Everything happens in a single transaction; on any error
// nothing is persisted and the case status is unchanged.
func (r *Repository) InsertCaseResults(ctx context.Context, caseID int64, points []CurvePoint, features []ChannelFeatures) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Replace any partial rows from a previous interrupted attempt.
	for _, table := range []string{"psd_data", "peaks"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE case_id = ?`, table), caseID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO psd_data (case_id, node_id, dof, kind, frequency, magnitude)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare curve insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, caseID, p.NodeID, p.DOF, p.Kind, p.Frequency, p.Magnitude); err != nil {
			return fmt.Errorf("failed to insert curve point: %w", err)
		}
	}

	peakStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO peaks (case_id, node_id, dof, kind, area,
		                    peak1_freq, peak1_mag, peak2_freq, peak2_mag, peak3_freq, peak3_mag)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare peak insert: %w", err)
	}
	defer peakStmt.Close()

	for _, f := range features {
		vals := make([]any, 0, 11)
		vals = append(vals, caseID, f.NodeID, f.DOF, f.Kind, f.Area)
		for _, p := range f.Peaks {
			if p == nil {
				vals = append(vals, nil, nil)
			} else {
				vals = append(vals, p.Frequency, p.Magnitude)
			}
		}
		if _, err := peakStmt.ExecContext(ctx, vals...); err != nil {
			return fmt.Errorf("failed to insert peaks for node %d %s %s: %w", f.NodeID, f.DOF, f.Kind, err)
		}
	}

	if err := r.setCaseStatus(ctx, tx, caseID, CaseCompleted, ""); err != nil {
		return err
	}

	return tx.Commit()
}

// GetFeatures returns the channel feature rows of one case ordered by
// node, kind, dof.
func (r *Repository) GetFeatures(ctx context.Context, caseID int64) ([]ChannelFeatures, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT node_id, dof, kind, area,
		        peak1_freq, peak1_mag, peak2_freq, peak2_mag, peak3_freq, peak3_mag
		 FROM peaks WHERE case_id = ? ORDER BY node_id, kind, dof`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query features: %w", err)
	}
	defer rows.Close()

	var feats []ChannelFeatures
	for rows.Next() {
		var f ChannelFeatures
		var pf, pm [3]sql.NullFloat64
		if err := rows.Scan(&f.NodeID, &f.DOF, &f.Kind, &f.Area,
			&pf[0], &pm[0], &pf[1], &pm[1], &pf[2], &pm[2]); err != nil {
			return nil, fmt.Errorf("failed to scan feature row: %w", err)
		}
		for i := 0; i < 3; i++ {
			if pf[i].Valid {
				f.Peaks[i] = &PeakSlot{Frequency: pf[i].Float64, Magnitude: pm[i].Float64}
			}
		}
		feats = append(feats, f)
	}
	return feats, rows.Err()
}

// GetCurvePoints returns the raw curve samples of one channel of a case
// ordered by frequency.
func (r *Repository) GetCurvePoints(ctx context.Context, caseID int64, nodeID int, dof, kind string) ([]CurvePoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT node_id, dof, kind, frequency, magnitude
		 FROM psd_data WHERE case_id = ? AND node_id = ? AND dof = ? AND kind = ?
		 ORDER BY frequency`, caseID, nodeID, dof, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query curve points: %w", err)
	}
	defer rows.Close()

	var points []CurvePoint
	for rows.Next() {
		var p CurvePoint
		if err := rows.Scan(&p.NodeID, &p.DOF, &p.Kind, &p.Frequency, &p.Magnitude); err != nil {
			return nil, fmt.Errorf("failed to scan curve point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// CountCurvePoints returns the number of curve samples stored for a case.
func (r *Repository) CountCurvePoints(ctx context.Context, caseID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM psd_data WHERE case_id = ?`, caseID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count curve points: %w", err)
	}
	return n, nil
}

// GetParameters returns the stiffness assignments of one case ordered by
// element.
func (r *Repository) GetParameters(ctx context.Context, caseID int64) ([]Parameter, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT element_id, k4, k5, k6, stiffness_level, is_varied
		 FROM parameters WHERE case_id = ? ORDER BY element_id`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query parameters: %w", err)
	}
	defer rows.Close()

	var params []Parameter
	for rows.Next() {
		var p Parameter
		var level sql.NullInt64
		var varied int
		if err := rows.Scan(&p.ElementID, &p.K4, &p.K5, &p.K6, &level, &varied); err != nil {
			return nil, fmt.Errorf("failed to scan parameter: %w", err)
		}
		if level.Valid {
			l := int(level.Int64)
			p.Level = &l
		}
		p.Varied = varied != 0
		params = append(params, p)
	}
	return params, rows.Err()
}

// UpsertDeltas stores baseline-relative deltas for one case. The
// operation is idempotent: recomputing overwrites the prior rows in one
// transaction.
func (r *Repository) UpsertDeltas(ctx context.Context, caseID int64, deltas []Delta) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO deltas (case_id, node_id, dof, kind, d_area, d_peak1_freq, d_peak1_mag)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (case_id, node_id, dof, kind)
		 DO UPDATE SET d_area = excluded.d_area,
		               d_peak1_freq = excluded.d_peak1_freq,
		               d_peak1_mag = excluded.d_peak1_mag`)
	if err != nil {
		return fmt.Errorf("failed to prepare delta upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range deltas {
		if _, err := stmt.ExecContext(ctx, caseID, d.NodeID, d.DOF, d.Kind, d.Area, d.PeakFreq, d.PeakMag); err != nil {
			return fmt.Errorf("failed to upsert delta for node %d %s %s: %w", d.NodeID, d.DOF, d.Kind, err)
		}
	}

	return tx.Commit()
}

// GetDeltas returns the delta rows of one case ordered by node, kind, dof.
func (r *Repository) GetDeltas(ctx context.Context, caseID int64) ([]Delta, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT node_id, dof, kind, d_area, d_peak1_freq, d_peak1_mag
		 FROM deltas WHERE case_id = ? ORDER BY node_id, kind, dof`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deltas: %w", err)
	}
	defer rows.Close()

	var deltas []Delta
	for rows.Next() {
		var d Delta
		if err := rows.Scan(&d.NodeID, &d.DOF, &d.Kind, &d.Area, &d.PeakFreq, &d.PeakMag); err != nil {
			return nil, fmt.Errorf("failed to scan delta: %w", err)
		}
		deltas = append(deltas, d)
	}
	return deltas, rows.Err()
}

// BaselineCase returns the completed baseline case of a study, or
// ErrNoBaseline when none exists.
func (r *Repository) BaselineCase(ctx context.Context, studyID int64) (*Case, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, study_id, case_number, name, is_baseline, status, error, created_at, completed_at
		 FROM cases WHERE study_id = ? AND is_baseline = 1 AND status = ?
		 ORDER BY case_number LIMIT 1`, studyID, CaseCompleted)

	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("study %d: %w", studyID, ErrNoBaseline)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline case: %w", err)
	}
	return c, nil
}

// GetStats returns row counts for every table plus per-study progress.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	counts := []struct {
		table string
		dest  *int
	}{
		{"studies", &stats.Studies},
		{"cases", &stats.Cases},
		{"parameters", &stats.Parameters},
		{"psd_data", &stats.CurvePoints},
		{"peaks", &stats.Features},
		{"deltas", &stats.Deltas},
	}
	for _, c := range counts {
		err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, c.table)).Scan(c.dest)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT s.name, s.study_type, s.status,
		        COUNT(c.id),
		        COALESCE(SUM(c.status = 'pending'), 0),
		        COALESCE(SUM(c.status = 'running'), 0),
		        COALESCE(SUM(c.status = 'completed'), 0),
		        COALESCE(SUM(c.status = 'failed'), 0)
		 FROM studies s LEFT JOIN cases c ON c.study_id = s.id
		 GROUP BY s.id ORDER BY s.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query per-study stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ss StudyStats
		var status string
		if err := rows.Scan(&ss.Name, &ss.Type, &status, &ss.Total,
			&ss.Pending, &ss.Running, &ss.Completed, &ss.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan study stats: %w", err)
		}
		ss.Status = StudyStatus(status)
		stats.PerStudy = append(stats.PerStudy, ss)
	}
	return &stats, rows.Err()
}
