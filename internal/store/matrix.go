package store

import (
	"context"
	"database/sql"
	"fmt"
)

// MatrixRow is one row of the per-case feature matrix used for export:
// the case identity, the varied-element parameters, and one channel's
// features and deltas.
type MatrixRow struct {
	CaseNumber int
	CaseName   string
	IsBaseline bool
	ElementID  int // varied element, 0 for the baseline
	Level      *int
	K4         float64
	NodeID     int
	DOF        string
	Kind       string
	Area       float64
	Peak1Freq  *float64
	Peak1Mag   *float64
	DeltaArea  *float64
	DeltaFreq  *float64
	DeltaMag   *float64
}

// FeatureMatrix returns the flattened feature matrix of a study's
// completed cases, one row per (case, channel), ordered by case number
// then node, kind, dof. Cases varying more than one element contribute
// the first varied element's parameters.
func (r *Repository) FeatureMatrix(ctx context.Context, studyID int64) ([]MatrixRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.case_number, c.name, c.is_baseline,
		        COALESCE(v.element_id, 0), v.stiffness_level, COALESCE(v.k4, 0),
		        p.node_id, p.dof, p.kind, p.area, p.peak1_freq, p.peak1_mag,
		        d.d_area, d.d_peak1_freq, d.d_peak1_mag
		 FROM cases c
		 JOIN peaks p ON p.case_id = c.id
		 LEFT JOIN deltas d ON d.case_id = c.id
		      AND d.node_id = p.node_id AND d.dof = p.dof AND d.kind = p.kind
		 LEFT JOIN (
		     SELECT case_id, MIN(element_id) AS element_id
		     FROM parameters WHERE is_varied = 1 GROUP BY case_id
		 ) ve ON ve.case_id = c.id
		 LEFT JOIN parameters v ON v.case_id = c.id AND v.element_id = ve.element_id
		 WHERE c.study_id = ? AND c.status = ?
		 ORDER BY c.case_number, p.node_id, p.kind, p.dof`,
		studyID, CaseCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature matrix: %w", err)
	}
	defer rows.Close()

	var matrix []MatrixRow
	for rows.Next() {
		var m MatrixRow
		var isBaseline int
		var level sql.NullInt64
		var p1f, p1m, da, df, dm sql.NullFloat64
		if err := rows.Scan(&m.CaseNumber, &m.CaseName, &isBaseline,
			&m.ElementID, &level, &m.K4,
			&m.NodeID, &m.DOF, &m.Kind, &m.Area, &p1f, &p1m,
			&da, &df, &dm); err != nil {
			return nil, fmt.Errorf("failed to scan matrix row: %w", err)
		}
		m.IsBaseline = isBaseline != 0
		if level.Valid {
			l := int(level.Int64)
			m.Level = &l
		}
		m.Peak1Freq = nullFloat(p1f)
		m.Peak1Mag = nullFloat(p1m)
		m.DeltaArea = nullFloat(da)
		m.DeltaFreq = nullFloat(df)
		m.DeltaMag = nullFloat(dm)
		matrix = append(matrix, m)
	}
	return matrix, rows.Err()
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
