package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/ziadkadry99/hygaudit/internal/activity"
	"github.com/ziadkadry99/hygaudit/internal/auditor"
	"github.com/ziadkadry99/hygaudit/internal/events"
	"github.com/ziadkadry99/hygaudit/internal/notifications"
	"github.com/ziadkadry99/hygaudit/internal/reports"
)

const (
	defaultTimeout = 5 * time.Minute
	persistTimeout = 30 * time.Second

	reasonCancelled   = "generation cancelled by user"
	reasonInterrupted = "generation interrupted: the server stopped before the job finished"
)

// Options configures a Controller. Hub, Notifier and Activity are optional.
type Options struct {
	Timeout  time.Duration
	Hub      *events.Hub
	Notifier *notifications.Dispatcher
	Activity *activity.Store
	Logger   zerolog.Logger
}

// StartOptions carries attribution for a new version.
type StartOptions struct {
	CreatedByName string
	Auditor       *auditor.Profile
}

// Controller owns report status transitions while a job is in flight.
// Every job runs detached from the request that started it.
type Controller struct {
	registry *reports.Registry
	service  Service
	opts     Options
	logger   zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*job // by report id
	wg   sync.WaitGroup
}

type job struct {
	reportID string
	auditID  string

	mu              sync.Mutex
	cancelRequested bool
	outcomeSeen     bool
	cancelCh        chan struct{}
	stop            context.CancelFunc

	done   chan struct{}
	result *reports.Report
}

// NewController creates a Controller submitting work to service.
func NewController(registry *reports.Registry, service Service, opts Options) *Controller {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Controller{
		registry: registry,
		service:  service,
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "generation").Logger(),
		jobs:     make(map[string]*job),
	}
}

// Start creates the next pending version of auditID and generates it in
// the background from a deep copy of snap. It fails with
// ErrGenerationInProgress while another version of the audit is in flight.
func (c *Controller) Start(ctx context.Context, auditID string, snap Snapshot, opts StartOptions) (*reports.Report, error) {
	snap = snap.Clone()
	snap.AuditID = auditID
	if opts.Auditor != nil {
		a := *opts.Auditor
		snap.Auditor = &a
	}

	// The job is registered before its row exists so Cancel and Recover
	// always find it once the pending version is visible.
	reportID := uuid.New().String()
	jobCtx, stop := context.WithTimeout(context.Background(), c.opts.Timeout)
	j := &job{
		reportID: reportID,
		auditID:  auditID,
		cancelCh: make(chan struct{}),
		stop:     stop,
		done:     make(chan struct{}),
	}
	c.mu.Lock()
	c.jobs[reportID] = j
	c.mu.Unlock()

	rep, err := c.registry.CreatePending(ctx, auditID, reports.CreateOptions{
		ID:              reportID,
		CreatedByName:   opts.CreatedByName,
		AuditorSnapshot: opts.Auditor,
	})
	if err != nil {
		c.mu.Lock()
		delete(c.jobs, reportID)
		c.mu.Unlock()
		stop()
		close(j.done)

		if errors.Is(err, reports.ErrActiveVersion) {
			return nil, fmt.Errorf("%w: audit %s", ErrGenerationInProgress, auditID)
		}
		return nil, err
	}

	c.publish(rep, "")
	c.logger.Info().Str("audit_id", auditID).Str("report_id", rep.ID).Int("version", rep.VersionNumber).Msg("generation started")

	c.wg.Add(1)
	go c.run(jobCtx, j, Request{ReportID: rep.ID, VersionNumber: rep.VersionNumber, Snapshot: snap})
	return rep, nil
}

type submission struct {
	handle Handle
	err    error
}

func (c *Controller) run(ctx context.Context, j *job, req Request) {
	defer c.wg.Done()
	defer j.stop()

	select {
	case <-j.cancelCh:
		c.finish(j, "", ErrGenerationCancelled)
		return
	default:
	}

	// Submit may block without honouring ctx, so the timeout and Cancel
	// race its acknowledgement.
	acked := make(chan submission, 1)
	go func() {
		h, err := c.service.Submit(ctx, req)
		acked <- submission{handle: h, err: err}
	}()

	var handle Handle
	select {
	case s := <-acked:
		if s.err != nil {
			c.finish(j, "", c.resolve(j, c.failure(ctx, s.err)))
			return
		}
		handle = s.handle

	case <-j.cancelCh:
		c.abandon(acked)
		c.finish(j, "", ErrGenerationCancelled)
		return

	case <-ctx.Done():
		c.abandon(acked)
		c.finish(j, "", c.resolve(j, c.failure(ctx, ctx.Err())))
		return
	}

	if err := c.registry.MarkGenerating(ctx, j.reportID); err != nil {
		c.logger.Warn().Err(err).Str("report_id", j.reportID).Msg("marking report generating")
	} else if rep, err := c.registry.Get(ctx, j.reportID); err == nil {
		c.publish(rep, "")
	}

	select {
	case out := <-handle.Outcome():
		if out.Err != nil {
			c.finish(j, "", c.resolve(j, c.failure(ctx, out.Err)))
			return
		}
		if err := c.resolve(j, nil); err != nil {
			c.finish(j, "", err)
			return
		}
		c.finish(j, out.ReportData, nil)

	case <-j.cancelCh:
		c.cancelService(handle)
		c.finish(j, "", ErrGenerationCancelled)

	case <-ctx.Done():
		c.cancelService(handle)
		c.finish(j, "", c.resolve(j, c.failure(ctx, ctx.Err())))
	}
}

// abandon cancels the handle of a submission whose job already ended. An
// acknowledgement still outstanding is cancelled when it arrives.
func (c *Controller) abandon(acked <-chan submission) {
	select {
	case s := <-acked:
		c.cancelSubmission(s)
	default:
		go func() { c.cancelSubmission(<-acked) }()
	}
}

func (c *Controller) cancelSubmission(s submission) {
	if s.err != nil || s.handle == nil {
		return
	}
	c.cancelService(s.handle)
}

// failure wraps a job error, reporting an expired job context as a timeout.
func (c *Controller) failure(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: timed out after %s", ErrGenerationFailed, c.opts.Timeout)
	}
	return fmt.Errorf("%w: %v", ErrGenerationFailed, err)
}

// resolve fixes the job's outcome the first time one is observed. A cancel
// requested before that point wins; any later cancel gets ErrJobFinished.
func (c *Controller) resolve(j *job, err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cancelRequested {
		return ErrGenerationCancelled
	}
	j.outcomeSeen = true
	return err
}

func (c *Controller) cancelService(h Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.service.Cancel(ctx, h); err != nil {
		c.logger.Warn().Err(err).Str("handle", h.ID()).Msg("cancelling generation service call")
	}
}

// finish records the terminal state. It runs on a fresh context because
// the job context may already be cancelled or expired.
func (c *Controller) finish(j *job, data string, jobErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var (
		rep *reports.Report
		err error
	)
	switch {
	case jobErr == nil:
		rep, err = c.registry.Complete(ctx, j.reportID, data)
	case errors.Is(jobErr, ErrGenerationCancelled):
		rep, err = c.registry.Fail(ctx, j.reportID, reasonCancelled)
	default:
		rep, err = c.registry.Fail(ctx, j.reportID, jobErr.Error())
	}
	// When the write fails the version was ended elsewhere, or is left for
	// Recover; either way this job does not own its activity entry.
	recorded := err == nil
	if err != nil {
		c.logger.Error().Err(err).Str("report_id", j.reportID).Msg("recording generation outcome")
		rep, _ = c.registry.Get(ctx, j.reportID)
	}

	c.mu.Lock()
	delete(c.jobs, j.reportID)
	c.mu.Unlock()
	j.result = rep
	close(j.done)

	if rep == nil {
		return
	}
	c.publish(rep, "")
	if recorded {
		c.record(ctx, rep, jobErr)
	}
}

// Cancel stops the in-flight job for reportID and waits for its terminal
// state. The version ends in error with a cancellation reason; ErrJobFinished
// is returned when the job's outcome was observed first.
func (c *Controller) Cancel(ctx context.Context, reportID string) (*reports.Report, error) {
	c.mu.Lock()
	j, ok := c.jobs[reportID]
	c.mu.Unlock()

	if !ok {
		return c.cancelOrphan(ctx, reportID)
	}

	j.mu.Lock()
	if j.outcomeSeen {
		j.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobFinished, reportID)
	}
	if !j.cancelRequested {
		j.cancelRequested = true
		close(j.cancelCh)
		j.stop()
	}
	j.mu.Unlock()

	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if j.result == nil {
		return nil, fmt.Errorf("%w: %s", reports.ErrVersionNotFound, reportID)
	}
	return j.result, nil
}

// cancelOrphan handles a version with no job in this process: either it is
// already terminal, or it was left in flight by an earlier process.
func (c *Controller) cancelOrphan(ctx context.Context, reportID string) (*reports.Report, error) {
	rep, err := c.registry.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !rep.Status.InFlight() {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobFinished, reportID, rep.Status)
	}
	rep, err = c.registry.Fail(ctx, reportID, reasonCancelled)
	if err != nil {
		return nil, err
	}
	c.publish(rep, "")
	c.record(ctx, rep, ErrGenerationCancelled)
	return rep, nil
}

// Wait blocks until reportID is terminal and returns it.
func (c *Controller) Wait(ctx context.Context, reportID string) (*reports.Report, error) {
	c.mu.Lock()
	j, ok := c.jobs[reportID]
	c.mu.Unlock()

	if ok {
		select {
		case <-j.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if j.result != nil {
			return j.result, nil
		}
	}
	return c.registry.Get(ctx, reportID)
}

// hasJob reports whether this process is running a job for auditID.
func (c *Controller) hasJob(auditID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, j := range c.jobs {
		if j.auditID == auditID {
			return true
		}
	}
	return false
}

// Running returns the number of jobs in flight.
func (c *Controller) Running() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

// Recover fails every version left pending or generating by an earlier
// process so those audits can be completed again. It returns the count.
func (c *Controller) Recover(ctx context.Context) (int, error) {
	inflight, err := c.registry.ListInFlight(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, rep := range inflight {
		c.mu.Lock()
		_, running := c.jobs[rep.ID]
		c.mu.Unlock()
		if running {
			continue
		}

		failed, err := c.registry.Fail(ctx, rep.ID, reasonInterrupted)
		if errors.Is(err, reports.ErrNotInFlight) || errors.Is(err, reports.ErrVersionNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		n++
		c.publish(failed, "")
		c.record(ctx, failed, fmt.Errorf("%w: interrupted", ErrGenerationFailed))
	}
	if n > 0 {
		c.logger.Warn().Int("count", n).Msg("recovered interrupted report versions")
	}
	return n, nil
}

// Shutdown waits for running jobs until ctx ends. Jobs still running then
// are picked up by Recover on the next start.
func (c *Controller) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) publish(rep *reports.Report, eventType string) {
	if c.opts.Hub == nil || rep == nil {
		return
	}
	c.opts.Hub.Publish(events.ReportEvent{
		Type:          eventType,
		AuditID:       rep.AuditID,
		ReportID:      rep.ID,
		VersionNumber: rep.VersionNumber,
		Status:        string(rep.Status),
		IsLatest:      rep.IsLatest,
		Error:         rep.Error,
	})
}

// record writes the activity entry and notification for a terminal version.
func (c *Controller) record(ctx context.Context, rep *reports.Report, jobErr error) {
	var (
		action   activity.Action
		ntype    notifications.NotificationType
		severity notifications.Severity
		title    string
	)
	switch {
	case jobErr == nil:
		action, ntype, severity = activity.ActionReportDone, notifications.TypeReportDone, notifications.SeverityInfo
		title = fmt.Sprintf("Report v%d ready", rep.VersionNumber)
	case errors.Is(jobErr, ErrGenerationCancelled):
		action, ntype, severity = activity.ActionReportCancelled, notifications.TypeReportCancelled, notifications.SeverityInfo
		title = fmt.Sprintf("Report v%d cancelled", rep.VersionNumber)
	default:
		action, ntype, severity = activity.ActionReportFailed, notifications.TypeReportFailed, notifications.SeverityWarning
		title = fmt.Sprintf("Report v%d failed", rep.VersionNumber)
	}

	log := c.logger.Info()
	if jobErr != nil {
		log = c.logger.Warn().Err(jobErr)
	}
	log.Str("audit_id", rep.AuditID).Str("report_id", rep.ID).Int("version", rep.VersionNumber).Msg(title)

	if c.opts.Activity != nil {
		err := c.opts.Activity.Log(ctx, activity.Entry{
			Action:   action,
			AuditID:  rep.AuditID,
			ReportID: rep.ID,
			Summary:  title,
			Detail:   rep.Error,
		})
		if err != nil {
			c.logger.Warn().Err(err).Msg("logging activity")
		}
	}
	if c.opts.Notifier != nil {
		_, err := c.opts.Notifier.Dispatch(ctx, notifications.Notification{
			Type:     ntype,
			Severity: severity,
			Title:    title,
			Message:  notificationMessage(rep),
			AuditID:  rep.AuditID,
			ReportID: rep.ID,
		})
		if err != nil {
			c.logger.Warn().Err(err).Msg("dispatching notification")
		}
	}
}

func notificationMessage(rep *reports.Report) string {
	if rep.Status == reports.StatusDone {
		return fmt.Sprintf("Report version %d for audit %s is ready and is now the latest version.", rep.VersionNumber, rep.AuditID)
	}
	return fmt.Sprintf("Report version %d for audit %s ended with an error: %s", rep.VersionNumber, rep.AuditID, rep.Error)
}
