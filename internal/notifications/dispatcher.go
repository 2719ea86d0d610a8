package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Dispatcher persists notifications and delivers them to webhook endpoints.
type Dispatcher struct {
	store       *Store
	client      *http.Client
	webhooks    []string
	minSeverity Severity
	logger      zerolog.Logger
}

// DispatcherOptions configures webhook delivery.
type DispatcherOptions struct {
	WebhookURLs []string
	MinSeverity Severity
	Timeout     time.Duration
}

// NewDispatcher creates a Dispatcher backed by the given store.
func NewDispatcher(store *Store, opts DispatcherOptions, logger zerolog.Logger) *Dispatcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	threshold := opts.MinSeverity
	if threshold == "" {
		threshold = SeverityInfo
	}
	return &Dispatcher{
		store:       store,
		client:      &http.Client{Timeout: timeout},
		webhooks:    append([]string(nil), opts.WebhookURLs...),
		minSeverity: threshold,
		logger:      logger.With().Str("component", "notifications").Logger(),
	}
}

// Dispatch persists n and sends it to every webhook whose severity
// threshold it meets. Delivery failures are logged and leave the
// notification pending for Redeliver; only persistence errors are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) (*Notification, error) {
	stored, err := d.store.Create(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("creating notification: %w", err)
	}

	if d.deliver(ctx, *stored) {
		if err := d.store.MarkDelivered(ctx, stored.ID); err != nil {
			return nil, err
		}
		stored.Delivered = true
	}
	return stored, nil
}

// Redeliver retries every pending notification and returns how many were
// delivered.
func (d *Dispatcher) Redeliver(ctx context.Context) (int, error) {
	pending, err := d.store.GetPending(ctx)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, n := range pending {
		if !d.deliver(ctx, n) {
			continue
		}
		if err := d.store.MarkDelivered(ctx, n.ID); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

// deliver reports whether every applicable webhook accepted n. With no
// webhooks configured the notification counts as delivered.
func (d *Dispatcher) deliver(ctx context.Context, n Notification) bool {
	if len(d.webhooks) == 0 || !severityMatches(n.Severity, d.minSeverity) {
		return true
	}

	payload, err := json.Marshal(n)
	if err != nil {
		d.logger.Warn().Err(err).Str("notification_id", n.ID).Msg("failed to marshal notification")
		return false
	}

	ok := true
	for _, url := range d.webhooks {
		if err := d.SendWebhook(ctx, url, payload); err != nil {
			d.logger.Warn().Err(err).
				Str("url", url).
				Str("notification_id", n.ID).
				Msg("webhook delivery failed")
			ok = false
		}
	}
	return ok
}

// SendWebhook POSTs payload to the given URL.
func (d *Dispatcher) SendWebhook(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// severityMatches returns true if the notification severity meets or exceeds the filter threshold.
func severityMatches(actual, filter Severity) bool {
	levels := map[Severity]int{
		SeverityInfo:     0,
		SeverityWarning:  1,
		SeverityCritical: 2,
	}
	return levels[actual] >= levels[filter]
}
