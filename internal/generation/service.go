// Package generation runs report generation jobs against an external,
// possibly slow and fallible, generation service.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/hygaudit/internal/answers"
	"github.com/ziadkadry99/hygaudit/internal/auditor"
	"github.com/ziadkadry99/hygaudit/internal/checklist"
)

var (
	// ErrGenerationInProgress is returned when an audit already has a job in flight.
	ErrGenerationInProgress = errors.New("report generation already in progress")
	// ErrGenerationFailed wraps every failure recorded on a report, timeouts included.
	ErrGenerationFailed = errors.New("report generation failed")
	// ErrGenerationCancelled marks a job stopped by a cancel request.
	ErrGenerationCancelled = errors.New("report generation cancelled")
	// ErrJobFinished is returned when cancelling a job whose outcome was already observed.
	ErrJobFinished = errors.New("report generation already finished")
	// ErrUnknownHandle is returned by a service asked to cancel a handle it did not issue.
	ErrUnknownHandle = errors.New("unknown generation handle")
)

// Snapshot is the frozen audit state a job compiles. It is deep-copied
// when the job starts, so later edits to the audit never reach it.
type Snapshot struct {
	AuditID      string                         `json:"audit_id"`
	PremiseID    string                         `json:"premise_id"`
	ChecklistID  string                         `json:"checklist_id"`
	Items        []checklist.Item               `json:"items"`
	Answers      map[string]answers.AuditAnswer `json:"answers"`
	HeaderValues map[string]string              `json:"header_values"`
	Auditor      *auditor.Profile               `json:"auditor,omitempty"`
	CompletedAt  time.Time                      `json:"completed_at"`
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Items = append([]checklist.Item(nil), s.Items...)
	out.Answers = answers.CloneAll(s.Answers)
	out.HeaderValues = make(map[string]string, len(s.HeaderValues))
	for k, v := range s.HeaderValues {
		out.HeaderValues[k] = v
	}
	if s.Auditor != nil {
		a := *s.Auditor
		out.Auditor = &a
	}
	return out
}

// Request is what the controller submits for one report version.
type Request struct {
	ReportID      string
	VersionNumber int
	Snapshot      Snapshot
}

// Outcome is the asynchronous result of a submitted request. Exactly one
// of ReportData and Err is meaningful.
type Outcome struct {
	ReportData string
	Err        error
}

// Handle identifies a submitted request.
type Handle interface {
	ID() string
	// Outcome delivers exactly one value and is never closed without one.
	Outcome() <-chan Outcome
}

// Service is the external generation collaborator. A nil error from
// Submit means the service accepted the work.
type Service interface {
	Submit(ctx context.Context, req Request) (Handle, error)
	Cancel(ctx context.Context, h Handle) error
}

// asyncHandle runs in-process work on its own goroutine.
type asyncHandle struct {
	id      string
	outcome chan Outcome
	cancel  context.CancelFunc
}

func (h *asyncHandle) ID() string              { return h.id }
func (h *asyncHandle) Outcome() <-chan Outcome { return h.outcome }

// startAsync runs fn in the background. The buffered outcome channel lets
// fn finish even when nobody is listening any more.
func startAsync(ctx context.Context, id string, fn func(ctx context.Context) (string, error)) *asyncHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := &asyncHandle{id: id, outcome: make(chan Outcome, 1), cancel: cancel}
	go func() {
		defer cancel()
		data, err := fn(ctx)
		h.outcome <- Outcome{ReportData: data, Err: err}
	}()
	return h
}

func cancelAsync(h Handle) error {
	ah, ok := h.(*asyncHandle)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnknownHandle, h)
	}
	ah.cancel()
	return nil
}
