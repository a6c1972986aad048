package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func intPtr(v int) *int { return &v }

func TestCreateAndGetStudy(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateStudy(ctx, "sweep-a", "sweep", 42, "element sweep")
	if err != nil {
		t.Fatalf("CreateStudy failed: %v", err)
	}
	if created.ID == 0 {
		t.Error("expected nonzero study ID")
	}
	if created.Status != StudyCreated {
		t.Errorf("status = %s, want created", created.Status)
	}

	got, err := repo.GetStudy(ctx, "sweep-a")
	if err != nil {
		t.Fatalf("GetStudy failed: %v", err)
	}
	if got.ID != created.ID || got.Type != "sweep" || got.Seed != 42 {
		t.Errorf("study = %+v", got)
	}
}

func TestCreateStudy_Duplicate(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if _, err := repo.CreateStudy(ctx, "dup", "sweep", 0, ""); err != nil {
		t.Fatalf("first CreateStudy failed: %v", err)
	}
	_, err := repo.CreateStudy(ctx, "dup", "doe", 0, "")
	if !errors.Is(err, ErrDuplicateStudy) {
		t.Errorf("expected ErrDuplicateStudy, got %v", err)
	}
}

func TestGetStudy_NotFound(t *testing.T) {
	repo := openTestRepo(t)

	_, err := repo.GetStudy(context.Background(), "missing")
	if !errors.Is(err, ErrStudyNotFound) {
		t.Errorf("expected ErrStudyNotFound, got %v", err)
	}
}

func TestStudyStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []StudyStatus
		wantErr bool
	}{
		{"created to running to completed", []StudyStatus{StudyRunning, StudyCompleted}, false},
		{"created to running to failed", []StudyStatus{StudyRunning, StudyFailed}, false},
		{"created straight to completed", []StudyStatus{StudyCompleted}, true},
		{"completed is terminal", []StudyStatus{StudyRunning, StudyCompleted, StudyRunning}, true},
		{"same status is a no-op", []StudyStatus{StudyRunning, StudyRunning}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := openTestRepo(t)
			ctx := context.Background()
			study, err := repo.CreateStudy(ctx, "s", "sweep", 0, "")
			if err != nil {
				t.Fatalf("CreateStudy failed: %v", err)
			}

			var lastErr error
			for _, to := range tt.path {
				lastErr = repo.SetStudyStatus(ctx, study.ID, to)
				if lastErr != nil {
					break
				}
			}
			if (lastErr != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", lastErr, tt.wantErr)
			}
			if tt.wantErr {
				var te *TransitionError
				if !errors.As(lastErr, &te) {
					t.Errorf("expected TransitionError, got %v", lastErr)
				}
			}
		})
	}
}

func TestCreateCase_WithParameters(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	study, _ := repo.CreateStudy(ctx, "s", "sweep", 0, "")

	params := []Parameter{
		{ElementID: 1, K4: 1e8, K5: 1e12, K6: 1e12},
		{ElementID: 2, K4: 1e7, K5: 1e7, K6: 1e7, Level: intPtr(4), Varied: true},
	}
	c, err := repo.CreateCase(ctx, study.ID, Case{CaseNumber: 20, Name: "case_0020"}, params)
	if err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}
	if c.Status != CasePending {
		t.Errorf("status = %s, want pending", c.Status)
	}

	got, err := repo.GetParameters(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetParameters failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d parameters, want 2", len(got))
	}
	if got[0].Level != nil {
		t.Error("element 1 should have no level")
	}
	if got[1].Level == nil || *got[1].Level != 4 {
		t.Errorf("element 2 level = %v, want 4", got[1].Level)
	}
	if !got[1].Varied || got[0].Varied {
		t.Errorf("varied flags wrong: %+v", got)
	}
}

func TestCreateCase_DuplicateDoesNotMutate(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	study, _ := repo.CreateStudy(ctx, "s", "sweep", 0, "")

	first, err := repo.CreateCase(ctx, study.ID, Case{CaseNumber: 5, Name: "original"}, nil)
	if err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}

	_, err = repo.CreateCase(ctx, study.ID, Case{CaseNumber: 5, Name: "replacement"}, nil)
	if !errors.Is(err, ErrDuplicateCase) {
		t.Fatalf("expected ErrDuplicateCase, got %v", err)
	}

	got, err := repo.GetCase(ctx, study.ID, 5)
	if err != nil {
		t.Fatalf("GetCase failed: %v", err)
	}
	if got.ID != first.ID || got.Name != "original" {
		t.Errorf("existing case was mutated: %+v", got)
	}
}

func TestCreateCase_SecondBaselineRejected(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	study, _ := repo.CreateStudy(ctx, "s", "manual", 0, "")

	first, err := repo.CreateCase(ctx, study.ID, Case{CaseNumber: 0, Name: "baseline", IsBaseline: true}, nil)
	if err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}

	_, err = repo.CreateCase(ctx, study.ID, Case{CaseNumber: 7, Name: "case_0007", IsBaseline: true}, nil)
	if !errors.Is(err, ErrDuplicateBaseline) {
		t.Fatalf("expected ErrDuplicateBaseline, got %v", err)
	}

	// Non-baseline cases still append, and the baseline is unchanged.
	if _, err := repo.CreateCase(ctx, study.ID, Case{CaseNumber: 8, Name: "case_0008"}, nil); err != nil {
		t.Fatalf("CreateCase after rejection failed: %v", err)
	}
	got, err := repo.GetCase(ctx, study.ID, 0)
	if err != nil {
		t.Fatalf("GetCase failed: %v", err)
	}
	if got.ID != first.ID || !got.IsBaseline {
		t.Errorf("baseline = %+v, want case 0", got)
	}
}

func TestCaseStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []CaseStatus
		wantErr bool
	}{
		{"pending to running to completed", []CaseStatus{CaseRunning, CaseCompleted}, false},
		{"pending to failed", []CaseStatus{CaseFailed}, false},
		{"pending straight to completed", []CaseStatus{CaseCompleted}, true},
		{"failed is terminal", []CaseStatus{CaseFailed, CaseRunning}, true},
		{"completed is terminal", []CaseStatus{CaseRunning, CaseCompleted, CaseFailed}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := openTestRepo(t)
			ctx := context.Background()
			study, _ := repo.CreateStudy(ctx, "s", "sweep", 0, "")
			c, _ := repo.CreateCase(ctx, study.ID, Case{CaseNumber: 1}, nil)

			var lastErr error
			for _, to := range tt.path {
				lastErr = repo.SetCaseStatus(ctx, c.ID, to, "solver blew up")
				if lastErr != nil {
					break
				}
			}
			if (lastErr != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", lastErr, tt.wantErr)
			}
		})
	}
}

func TestSetCaseStatus_FailedRecordsError(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	study, _ := repo.CreateStudy(ctx, "s", "sweep", 0, "")
	c, _ := repo.CreateCase(ctx, study.ID, Case{CaseNumber: 1}, nil)

	if err := repo.SetCaseStatus(ctx, c.ID, CaseFailed, "solver timeout"); err != nil {
		t.Fatalf("SetCaseStatus failed: %v", err)
	}

	got, _ := repo.GetCase(ctx, study.ID, 1)
	if got.Status != CaseFailed || got.Error != "solver timeout" {
		t.Errorf("case = %+v", got)
	}
}

func TestInsertCaseResults(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	study, _ := repo.CreateStudy(ctx, "s", "sweep", 0, "")
	c, _ := repo.CreateCase(ctx, study.ID, Case{CaseNumber: 1}, nil)
	if err := repo.SetCaseStatus(ctx, c.ID, CaseRunning, ""); err != nil {
		t.Fatalf("SetCaseStatus failed: %v", err)
	}

	points := []CurvePoint{
		{NodeID: 111, DOF: "T3", Kind: "acceleration", Frequency: 20, Magnitude: 1.5},
		{NodeID: 111, DOF: "T3", Kind: "acceleration", Frequency: 21, Magnitude: 2.5},
	}
	features := []ChannelFeatures{
		{
			NodeID: 111, DOF: "T3", Kind: "acceleration", Area: 2.0,
			Peaks: [3]*PeakSlot{{Frequency: 21, Magnitude: 2.5}, nil, nil},
		},
	}
	if err := repo.InsertCaseResults(ctx, c.ID, points, features); err != nil {
		t.Fatalf("InsertCaseResults failed: %v", err)
	}

	got, _ := repo.GetCase(ctx, study.ID, 1)
	if got.Status != CaseCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}

	n, err := repo.CountCurvePoints(ctx, c.ID)
	if err != nil {
		t.Fatalf("CountCurvePoints failed: %v", err)
	}
	if n != 2 {
		t.Errorf("curve points = %d, want 2", n)
	}

	feats, err := repo.GetFeatures(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetFeatures failed: %v", err)
	}
	if len(feats) != 1 {
		t.Fatalf("got %d feature rows, want 1", len(feats))
	}
	f := feats[0]
	if f.Area != 2.0 {
		t.Errorf("area = %v, want 2.0", f.Area)
	}
	if f.Peaks[0] == nil || f.Peaks[0].Frequency != 21 {
		t.Errorf("peak1 = %+v", f.Peaks[0])
	}
	if f.Peaks[1] != nil || f.Peaks[2] != nil {
		t.Error("expected nil peak slots 2 and 3")
	}
}

func TestInsertCaseResults_ReplacesPartialRows(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	study, _ := repo.CreateStudy(ctx, "s", "sweep", 0, "")
	c, _ := repo.CreateCase(ctx, study.ID, Case{CaseNumber: 1}, nil)
	repo.SetCaseStatus(ctx, c.ID, CaseRunning, "")

	// Simulate leftover rows from an interrupted attempt.
	if _, err := repo.db.Exec(
		`INSERT INTO psd_data (case_id, node_id, dof, kind, frequency, magnitude) VALUES (?, 1, 'T1', 'acceleration', 20, 9)`,
		c.ID); err != nil {
		t.Fatalf("seeding stale row failed: %v", err)
	}

	points := []CurvePoint{{NodeID: 1, DOF: "T1", Kind: "acceleration", Frequency: 20, Magnitude: 1}}
	features := []ChannelFeatures{{NodeID: 1, DOF: "T1", Kind: "acceleration", Area: 0}}
	if err := repo.InsertCaseResults(ctx, c.ID, points, features); err != nil {
		t.Fatalf("InsertCaseResults failed: %v", err)
	}

	got, _ := repo.GetCurvePoints(ctx, c.ID, 1, "T1", "acceleration")
	if len(got) != 1 || got[0].Magnitude != 1 {
		t.Errorf("stale rows survived: %+v", got)
	}
}

func TestUpsertDeltas_Idempotent(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	study, _ := repo.CreateStudy(ctx, "s", "sweep", 0, "")
	c, _ := repo.CreateCase(ctx, study.ID, Case{CaseNumber: 1}, nil)

	deltas := []Delta{{NodeID: 111, DOF: "T3", Kind: "acceleration", Area: 0.5, PeakFreq: -2, PeakMag: 0.1}}
	for i := 0; i < 2; i++ {
		if err := repo.UpsertDeltas(ctx, c.ID, deltas); err != nil {
			t.Fatalf("UpsertDeltas pass %d failed: %v", i, err)
		}
	}

	got, err := repo.GetDeltas(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetDeltas failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d delta rows, want 1 (upsert must not duplicate)", len(got))
	}
	if got[0].Area != 0.5 || got[0].PeakFreq != -2 {
		t.Errorf("delta = %+v", got[0])
	}
}

func TestDeleteStudy_Cascades(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	study, _ := repo.CreateStudy(ctx, "s", "sweep", 0, "")
	c, _ := repo.CreateCase(ctx, study.ID, Case{CaseNumber: 1},
		[]Parameter{{ElementID: 2, K4: 1e7, K5: 1e7, K6: 1e7, Varied: true}})
	repo.SetCaseStatus(ctx, c.ID, CaseRunning, "")
	repo.InsertCaseResults(ctx, c.ID,
		[]CurvePoint{{NodeID: 1, DOF: "T1", Kind: "acceleration", Frequency: 20, Magnitude: 1}},
		[]ChannelFeatures{{NodeID: 1, DOF: "T1", Kind: "acceleration", Area: 1}})
	repo.UpsertDeltas(ctx, c.ID, []Delta{{NodeID: 1, DOF: "T1", Kind: "acceleration"}})

	if err := repo.DeleteStudy(ctx, "s"); err != nil {
		t.Fatalf("DeleteStudy failed: %v", err)
	}

	stats, err := repo.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.Studies != 0 || stats.Cases != 0 || stats.Parameters != 0 ||
		stats.CurvePoints != 0 || stats.Features != 0 || stats.Deltas != 0 {
		t.Errorf("cascade left rows behind: %+v", stats)
	}
}

func TestDeleteStudy_NotFound(t *testing.T) {
	repo := openTestRepo(t)
	err := repo.DeleteStudy(context.Background(), "missing")
	if !errors.Is(err, ErrStudyNotFound) {
		t.Errorf("expected ErrStudyNotFound, got %v", err)
	}
}

func TestCompletedCaseNumbers(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	study, _ := repo.CreateStudy(ctx, "s", "sweep", 0, "")

	for n := 1; n <= 3; n++ {
		c, _ := repo.CreateCase(ctx, study.ID, Case{CaseNumber: n}, nil)
		repo.SetCaseStatus(ctx, c.ID, CaseRunning, "")
		if n != 2 {
			if err := repo.InsertCaseResults(ctx, c.ID, nil, nil); err != nil {
				t.Fatalf("InsertCaseResults failed: %v", err)
			}
		}
	}

	done, err := repo.CompletedCaseNumbers(ctx, study.ID)
	if err != nil {
		t.Fatalf("CompletedCaseNumbers failed: %v", err)
	}
	if !done[1] || done[2] || !done[3] {
		t.Errorf("completed set = %v, want {1,3}", done)
	}
}

func TestBaselineCase(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	study, _ := repo.CreateStudy(ctx, "s", "sweep", 0, "")

	if _, err := repo.BaselineCase(ctx, study.ID); !errors.Is(err, ErrNoBaseline) {
		t.Errorf("expected ErrNoBaseline, got %v", err)
	}

	c, _ := repo.CreateCase(ctx, study.ID, Case{CaseNumber: 0, IsBaseline: true}, nil)

	// Not completed yet: still no usable baseline.
	if _, err := repo.BaselineCase(ctx, study.ID); !errors.Is(err, ErrNoBaseline) {
		t.Errorf("expected ErrNoBaseline for pending baseline, got %v", err)
	}

	repo.SetCaseStatus(ctx, c.ID, CaseRunning, "")
	repo.InsertCaseResults(ctx, c.ID, nil, nil)

	got, err := repo.BaselineCase(ctx, study.ID)
	if err != nil {
		t.Fatalf("BaselineCase failed: %v", err)
	}
	if got.CaseNumber != 0 || !got.IsBaseline {
		t.Errorf("baseline = %+v", got)
	}
}

func TestGetStats_PerStudy(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	study, _ := repo.CreateStudy(ctx, "s", "monte_carlo", 7, "")

	c1, _ := repo.CreateCase(ctx, study.ID, Case{CaseNumber: 1}, nil)
	repo.CreateCase(ctx, study.ID, Case{CaseNumber: 2}, nil)
	repo.SetCaseStatus(ctx, c1.ID, CaseRunning, "")
	repo.InsertCaseResults(ctx, c1.ID, nil, nil)

	stats, err := repo.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if len(stats.PerStudy) != 1 {
		t.Fatalf("per-study rows = %d, want 1", len(stats.PerStudy))
	}
	ss := stats.PerStudy[0]
	if ss.Total != 2 || ss.Completed != 1 || ss.Pending != 1 {
		t.Errorf("study stats = %+v", ss)
	}
}

func TestFeatureMatrix(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	study, _ := repo.CreateStudy(ctx, "s", "sweep", 0, "")

	c, _ := repo.CreateCase(ctx, study.ID, Case{CaseNumber: 20, Name: "case_0020"},
		[]Parameter{
			{ElementID: 1, K4: 1e8, K5: 1e12, K6: 1e12},
			{ElementID: 4, K4: 1e7, K5: 1e7, K6: 1e7, Level: intPtr(4), Varied: true},
		})
	repo.SetCaseStatus(ctx, c.ID, CaseRunning, "")
	repo.InsertCaseResults(ctx, c.ID, nil, []ChannelFeatures{
		{NodeID: 111, DOF: "T3", Kind: "acceleration", Area: 3.5,
			Peaks: [3]*PeakSlot{{Frequency: 40, Magnitude: 9}, nil, nil}},
	})
	repo.UpsertDeltas(ctx, c.ID, []Delta{
		{NodeID: 111, DOF: "T3", Kind: "acceleration", Area: 0.5, PeakFreq: 0, PeakMag: 0.01},
	})

	rows, err := repo.FeatureMatrix(ctx, study.ID)
	if err != nil {
		t.Fatalf("FeatureMatrix failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	m := rows[0]
	if m.CaseNumber != 20 || m.ElementID != 4 || m.Level == nil || *m.Level != 4 {
		t.Errorf("row identity = %+v", m)
	}
	if m.Area != 3.5 || m.Peak1Freq == nil || *m.Peak1Freq != 40 {
		t.Errorf("row features = %+v", m)
	}
	if m.DeltaArea == nil || *m.DeltaArea != 0.5 {
		t.Errorf("row deltas = %+v", m)
	}
}

func TestFeatureMatrix_SkipsIncompleteCases(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	study, _ := repo.CreateStudy(ctx, "s", "sweep", 0, "")

	c, _ := repo.CreateCase(ctx, study.ID, Case{CaseNumber: 1}, nil)
	repo.SetCaseStatus(ctx, c.ID, CaseFailed, "boom")

	rows, err := repo.FeatureMatrix(ctx, study.ID)
	if err != nil {
		t.Fatalf("FeatureMatrix failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows from a failed case, want 0", len(rows))
	}
}
