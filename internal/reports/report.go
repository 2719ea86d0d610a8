package reports

import (
	"errors"
	"time"

	"github.com/ziadkadry99/hygaudit/internal/auditor"
)

var (
	// ErrVersionNotFound is returned for an unknown report id, or one that
	// belongs to a different audit than the caller named.
	ErrVersionNotFound = errors.New("report version not found")
	// ErrNotDone is returned when promoting a report that has not finished successfully.
	ErrNotDone = errors.New("report version is not done")
	// ErrVersionBusy is returned when deleting a version whose generation is still running.
	ErrVersionBusy = errors.New("report version is still generating")
	// ErrNotInFlight is returned when a terminal report is moved again.
	ErrNotInFlight = errors.New("report version is not in flight")
	// ErrActiveVersion is returned by CreatePending while another version of
	// the same audit is pending or generating.
	ErrActiveVersion = errors.New("audit already has a version in flight")
	// ErrNoCurrent is returned when an audit has no done report.
	ErrNoCurrent = errors.New("audit has no current report")
	// ErrUnknownAudit is returned when creating a version for a missing audit.
	ErrUnknownAudit = errors.New("unknown audit")
	// ErrInvariantViolation marks a latest-flag inconsistency found and
	// repaired by the registry. It is logged, never returned.
	ErrInvariantViolation = errors.New("latest version invariant violated")
)

// Status is the generation state of a report version.
type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// InFlight reports whether a job still owns the version.
func (s Status) InFlight() bool {
	return s == StatusPending || s == StatusGenerating
}

// Report is one generation attempt for an audit. Apart from IsLatest it
// never changes once Status is terminal.
type Report struct {
	ID              string           `json:"id"`
	AuditID         string           `json:"audit_id"`
	Status          Status           `json:"status"`
	VersionNumber   int              `json:"version_number"`
	IsLatest        bool             `json:"is_latest"`
	ReportData      string           `json:"report_data,omitempty"`
	Error           string           `json:"error,omitempty"`
	AuditorSnapshot *auditor.Profile `json:"auditor_snapshot,omitempty"`
	CreatedByName   string           `json:"created_by_name,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// CreateOptions carries the attribution captured when a version is requested.
type CreateOptions struct {
	ID              string // optional; generated when empty
	CreatedByName   string
	AuditorSnapshot *auditor.Profile
}
