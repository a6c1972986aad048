package store

import (
	"errors"
	"fmt"
)

// Sentinel errors for repository lookups and append-mode conflicts.
// Callers classify with errors.Is.
var (
	// ErrStudyNotFound is returned when a study name or ID does not exist.
	ErrStudyNotFound = errors.New("study not found")

	// ErrCaseNotFound is returned when a case number does not exist in a study.
	ErrCaseNotFound = errors.New("case not found")

	// ErrDuplicateStudy is returned when creating a study whose name exists.
	ErrDuplicateStudy = errors.New("study already exists")

	// ErrDuplicateCase is returned when appending a case number already
	// present in the study. The existing case is never mutated.
	ErrDuplicateCase = errors.New("case number already exists in study")

	// ErrDuplicateBaseline is returned when appending a baseline case to a
	// study that already has one. At most one case per study is the baseline.
	ErrDuplicateBaseline = errors.New("study already has a baseline case")

	// ErrNoBaseline is returned when a delta computation finds no completed
	// baseline case in the study.
	ErrNoBaseline = errors.New("study has no completed baseline case")
)

// TransitionError reports an attempt to move a study or case status
// against the monotone state machine.
type TransitionError struct {
	Entity string // "study" or "case"
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition %s -> %s", e.Entity, e.From, e.To)
}
