package notifications

import "time"

// Severity indicates the importance of a notification.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// NotificationType categorises the report event that triggered the notification.
type NotificationType string

const (
	TypeReportDone      NotificationType = "report_done"
	TypeReportFailed    NotificationType = "report_failed"
	TypeReportCancelled NotificationType = "report_cancelled"
	TypeLatestRepaired  NotificationType = "latest_repaired"
)

// Notification is a single report outcome notification.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Severity  Severity         `json:"severity"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	AuditID   string           `json:"audit_id,omitempty"`
	ReportID  string           `json:"report_id,omitempty"`
	Delivered bool             `json:"delivered"`
	CreatedAt time.Time        `json:"created_at"`
}
