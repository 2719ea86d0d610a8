// Package events fans report status changes out to live subscribers.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ReportEvent describes a status change of one report version.
type ReportEvent struct {
	Type          string    `json:"type"`
	AuditID       string    `json:"audit_id"`
	ReportID      string    `json:"report_id"`
	VersionNumber int       `json:"version_number"`
	Status        string    `json:"status"`
	IsLatest      bool      `json:"is_latest"`
	Error         string    `json:"error,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Event types.
const (
	TypeReportStatus  = "report.status"
	TypeReportLatest  = "report.latest"
	TypeReportDeleted = "report.deleted"
)

const subscriberBuffer = 32

type subscriber struct {
	auditID string
	ch      chan ReportEvent
}

// Hub is an in-process publish/subscribe point. Publish never blocks; a
// subscriber that falls behind loses events rather than stalling jobs.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	logger zerolog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[*subscriber]struct{}),
		logger: logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers for events of auditID, or of every audit when auditID
// is empty. The returned function unsubscribes and closes the channel.
func (h *Hub) Subscribe(auditID string) (<-chan ReportEvent, func()) {
	sub := &subscriber{auditID: auditID, ch: make(chan ReportEvent, subscriberBuffer)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Publish delivers ev to every matching subscriber.
func (h *Hub) Publish(ev ReportEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Type == "" {
		ev.Type = TypeReportStatus
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.auditID != "" && sub.auditID != ev.AuditID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn().Str("audit_id", ev.AuditID).Str("report_id", ev.ReportID).Msg("subscriber full, dropping event")
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
