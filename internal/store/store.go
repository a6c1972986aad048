// Package store provides the SQLite result repository for boltlab.
// It persists studies, cases, stiffness parameters, response curves,
// extracted features and deltas, and enforces the case/study state
// machines at the storage boundary.
package store

import "time"

// StudyStatus is the lifecycle state of a study.
type StudyStatus string

// Study lifecycle states. Transitions are monotone:
// created -> running -> completed|failed. Terminal states never change.
const (
	StudyCreated   StudyStatus = "created"
	StudyRunning   StudyStatus = "running"
	StudyCompleted StudyStatus = "completed"
	StudyFailed    StudyStatus = "failed"
)

// CaseStatus is the lifecycle state of a single case.
type CaseStatus string

// Case lifecycle states. Transitions are monotone:
// pending -> running -> completed|failed. Terminal states never change.
const (
	CasePending   CaseStatus = "pending"
	CaseRunning   CaseStatus = "running"
	CaseCompleted CaseStatus = "completed"
	CaseFailed    CaseStatus = "failed"
)

// studyTransitions lists the allowed study status transitions.
var studyTransitions = map[StudyStatus][]StudyStatus{
	StudyCreated: {StudyRunning, StudyFailed},
	StudyRunning: {StudyCompleted, StudyFailed},
}

// caseTransitions lists the allowed case status transitions.
var caseTransitions = map[CaseStatus][]CaseStatus{
	CasePending: {CaseRunning, CaseFailed},
	CaseRunning: {CaseCompleted, CaseFailed},
}

func validStudyTransition(from, to StudyStatus) bool {
	if from == to {
		return true
	}
	for _, t := range studyTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

func validCaseTransition(from, to CaseStatus) bool {
	if from == to {
		return true
	}
	for _, t := range caseTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Study is one experiment campaign: an ordered family of cases generated
// by a single design strategy.
type Study struct {
	ID          int64
	Name        string
	Type        string
	Status      StudyStatus
	Seed        int64
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Case is one solver run within a study. CaseNumber is unique per study;
// number 0 is conventionally the healthy baseline.
type Case struct {
	ID          int64
	StudyID     int64
	CaseNumber  int
	Name        string
	IsBaseline  bool
	Status      CaseStatus
	Error       string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Parameter is the stiffness assignment of one bolt element in one case.
// Level is nil for direct-value assignments (DOE, Monte Carlo, baseline
// driving element).
type Parameter struct {
	ElementID int
	K4        float64
	K5        float64
	K6        float64
	Level     *int
	Varied    bool
}

// CurvePoint is one sample of a frequency-response curve.
type CurvePoint struct {
	NodeID    int
	DOF       string
	Kind      string
	Frequency float64
	Magnitude float64
}

// PeakSlot is one ranked peak of a channel, or absent.
type PeakSlot struct {
	Frequency float64
	Magnitude float64
}

// ChannelFeatures is the extracted feature row of one response channel:
// integral area plus up to three ranked peaks (nil slots for curves with
// fewer peaks).
type ChannelFeatures struct {
	NodeID int
	DOF    string
	Kind   string
	Area   float64
	Peaks  [3]*PeakSlot
}

// Delta is the baseline-relative feature difference of one channel.
// Values are baseline minus current, with magnitudes below the zero
// clamp stored as exact 0.
type Delta struct {
	NodeID   int
	DOF      string
	Kind     string
	Area     float64
	PeakFreq float64
	PeakMag  float64
}

// StudyStats summarizes case progress within one study.
type StudyStats struct {
	Name      string
	Type      string
	Status    StudyStatus
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
}

// Stats summarizes the whole repository.
type Stats struct {
	Studies     int
	Cases       int
	Parameters  int
	CurvePoints int
	Features    int
	Deltas      int
	PerStudy    []StudyStats
}
