package activity

import "time"

// ActorType identifies who performed an action.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
)

// Action describes what was done.
type Action string

const (
	ActionAuditCreated    Action = "audit_created"
	ActionAuditStarted    Action = "audit_started"
	ActionAuditCompleted  Action = "audit_completed"
	ActionAuditUnlocked   Action = "audit_unlocked"
	ActionAuditLocked     Action = "audit_locked"
	ActionAuditRevised    Action = "audit_revised"
	ActionProgressSaved   Action = "progress_saved"
	ActionReportDone      Action = "report_done"
	ActionReportFailed    Action = "report_failed"
	ActionReportCancelled Action = "report_cancelled"
	ActionReportPromoted  Action = "report_promoted"
	ActionReportDeleted   Action = "report_deleted"
	ActionLatestRepaired  Action = "latest_repaired"
)

// Entry is a single activity trail record.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	ActorType ActorType `json:"actor_type"`
	ActorID   string    `json:"actor_id"`
	Action    Action    `json:"action"`
	AuditID   string    `json:"audit_id,omitempty"`
	ReportID  string    `json:"report_id,omitempty"`
	Summary   string    `json:"summary"`
	Detail    string    `json:"detail,omitempty"`
}
