// Package audits owns the audit lifecycle: status transitions, completion
// checks and the hand-off of completed audits to report generation.
package audits

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/hygaudit/internal/answers"
)

var (
	// ErrNotFound is returned when an audit does not exist.
	ErrNotFound = errors.New("audit not found")
	// ErrInvalidTransition is returned when an operation is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid audit status transition")
	// ErrReadOnly is returned when answers are edited while the audit is completed or locked.
	ErrReadOnly = errors.New("audit answers are read-only")
	// ErrIncompleteAudit is matched by *IncompleteAuditError.
	ErrIncompleteAudit = errors.New("audit has unanswered items")
	// ErrNoChecklist is returned when completing an audit with no checklist assigned.
	ErrNoChecklist = errors.New("audit has no checklist")
)

// Status is the lifecycle state of an audit.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRevised    Status = "revised"
	StatusLocked     Status = "locked"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusNotStarted, StatusInProgress, StatusCompleted, StatusRevised, StatusLocked:
		return true
	}
	return false
}

// Finished reports whether an audit in status s carries a completion time.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusRevised || s == StatusLocked
}

// Editable reports whether answers may change in status s.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusInProgress || s == StatusRevised
}

// Audit is one audit of a premise.
type Audit struct {
	ID              string                         `json:"id"`
	PremiseID       string                         `json:"premise_id"`
	ChecklistID     string                         `json:"checklist_id"`
	Status          Status                         `json:"status"`
	Answers         map[string]answers.AuditAnswer `json:"answers"`
	HeaderValues    map[string]string              `json:"header_values"`
	Dirty           bool                           `json:"dirty"`
	CreatedAt       time.Time                      `json:"created_at"`
	UpdatedAt       time.Time                      `json:"updated_at"`
	CompletedAt     *time.Time                     `json:"completed_at,omitempty"`
	ProgressSavedAt *time.Time                     `json:"progress_saved_at,omitempty"`
}

// IncompleteAuditError names the active checklist items without an answer.
type IncompleteAuditError struct {
	AuditID string
	Missing []string
}

func (e *IncompleteAuditError) Error() string {
	return fmt.Sprintf("audit %s has %d unanswered item(s): %s", e.AuditID, len(e.Missing), strings.Join(e.Missing, ", "))
}

// Is makes errors.Is(err, ErrIncompleteAudit) match.
func (e *IncompleteAuditError) Is(target error) bool {
	return target == ErrIncompleteAudit
}

// transitions lists the statuses each operation may start from.
var transitions = map[string][]Status{
	"start":    {StatusDraft, StatusNotStarted},
	"complete": {StatusInProgress, StatusRevised},
	"unlock":   {StatusCompleted, StatusLocked},
	"lock":     {StatusCompleted},
	"revise":   {StatusCompleted},
}

func checkTransition(op string, a *Audit) error {
	for _, s := range transitions[op] {
		if a.Status == s {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot %s audit %s in status %s", ErrInvalidTransition, op, a.ID, a.Status)
}
