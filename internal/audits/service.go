package audits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/ziadkadry99/hygaudit/internal/activity"
	"github.com/ziadkadry99/hygaudit/internal/answers"
	"github.com/ziadkadry99/hygaudit/internal/auditor"
	"github.com/ziadkadry99/hygaudit/internal/checklist"
	"github.com/ziadkadry99/hygaudit/internal/events"
	"github.com/ziadkadry99/hygaudit/internal/generation"
	"github.com/ziadkadry99/hygaudit/internal/keylock"
	"github.com/ziadkadry99/hygaudit/internal/reports"
)

// Deps are the collaborators of a Service. Activity and Hub may be nil.
type Deps struct {
	Audits     *Store
	Answers    *answers.Store
	Checklists *checklist.Store
	Auditors   *auditor.Store
	Registry   *reports.Registry
	Jobs       *generation.Controller
	Activity   *activity.Store
	Hub        *events.Hub
	Logger     zerolog.Logger
}

// Service is the entry point for every operation on an audit and its
// report versions. Operations on one audit are serialized; different
// audits proceed in parallel.
type Service struct {
	Deps
	locks  *keylock.Map
	logger zerolog.Logger
}

// NewService creates a Service.
func NewService(deps Deps) *Service {
	return &Service{
		Deps:   deps,
		locks:  keylock.New(),
		logger: deps.Logger.With().Str("component", "audits").Logger(),
	}
}

type actorKey struct{}

// WithActor attaches the name of the person performing an operation.
func WithActor(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, actorKey{}, name)
}

func actorFrom(ctx context.Context) string {
	name, _ := ctx.Value(actorKey{}).(string)
	return name
}

// Create registers a new audit.
func (s *Service) Create(ctx context.Context, a Audit) (*Audit, error) {
	if a.ChecklistID != "" {
		if _, err := s.Checklists.Get(ctx, a.ChecklistID); err != nil {
			return nil, err
		}
	}
	created, err := s.Audits.Create(ctx, a)
	if err != nil {
		return nil, err
	}
	created.Answers = map[string]answers.AuditAnswer{}
	s.record(ctx, activity.ActionAuditCreated, created.ID, "", fmt.Sprintf("Audit created for premise %s", created.PremiseID))
	return created, nil
}

// Get returns the audit with its answers.
func (s *Service) Get(ctx context.Context, id string) (*Audit, error) {
	a, err := s.Audits.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Answers, err = s.Answers.List(ctx, id)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// List returns audits without their answers.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Audit, error) {
	return s.Audits.List(ctx, filter)
}

// StartAudit moves a draft or not-started audit to in progress.
func (s *Service) StartAudit(ctx context.Context, id string) (*Audit, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	a, err := s.Audits.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition("start", a); err != nil {
		return nil, err
	}
	if err := s.Audits.setStatus(ctx, id, StatusInProgress, nil); err != nil {
		return nil, err
	}
	s.record(ctx, activity.ActionAuditStarted, id, "", "Audit started")
	return s.Get(ctx, id)
}

// CompleteOptions attributes a completion.
type CompleteOptions struct {
	// AuditorName selects the profile copied onto the report. Defaults to
	// the actor on the context.
	AuditorName string
}

// CompleteAudit checks that every active checklist item is answered,
// marks the audit completed and starts generating a new report version.
// The generation outcome is recorded on the returned report, never
// returned here.
func (s *Service) CompleteAudit(ctx context.Context, id string, opts CompleteOptions) (*Audit, *reports.Report, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := checkTransition("complete", a); err != nil {
		return nil, nil, err
	}
	if a.ChecklistID == "" {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoChecklist, id)
	}
	list, err := s.Checklists.Get(ctx, a.ChecklistID)
	if err != nil {
		return nil, nil, err
	}

	var missing []string
	for _, itemID := range list.ActiveIDs() {
		if _, ok := a.Answers[itemID]; !ok {
			missing = append(missing, itemID)
		}
	}
	if len(missing) > 0 {
		return nil, nil, &IncompleteAuditError{AuditID: id, Missing: missing}
	}

	active, err := s.Registry.HasActive(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if active {
		return nil, nil, fmt.Errorf("%w: audit %s", generation.ErrGenerationInProgress, id)
	}

	name := opts.AuditorName
	if name == "" {
		name = actorFrom(ctx)
	}
	profile, err := s.Auditors.Snapshot(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	previous, previousCompleted := a.Status, a.CompletedAt
	now := time.Now().UTC()
	if err := s.Audits.setStatus(ctx, id, StatusCompleted, &now); err != nil {
		return nil, nil, err
	}

	var items []checklist.Item
	for _, it := range list.Items {
		if it.Active {
			items = append(items, it)
		}
	}
	snap := generation.Snapshot{
		AuditID:      id,
		PremiseID:    a.PremiseID,
		ChecklistID:  a.ChecklistID,
		Items:        items,
		Answers:      a.Answers,
		HeaderValues: a.HeaderValues,
		CompletedAt:  now,
	}
	rep, err := s.Jobs.Start(ctx, id, snap, generation.StartOptions{CreatedByName: name, Auditor: profile})
	if err != nil {
		if rerr := s.Audits.setStatus(ctx, id, previous, previousCompleted); rerr != nil {
			s.logger.Error().Err(rerr).Str("audit_id", id).Msg("restoring audit status after failed start")
		}
		return nil, nil, err
	}

	s.record(ctx, activity.ActionAuditCompleted, id, rep.ID, fmt.Sprintf("Audit completed, generating report v%d", rep.VersionNumber))
	a, err = s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return a, rep, nil
}

// Unlock reopens a completed or locked audit for editing. Report versions
// are kept; the next completion creates a higher version.
func (s *Service) Unlock(ctx context.Context, id string) (*Audit, error) {
	return s.transition(ctx, id, "unlock", StatusInProgress, activity.ActionAuditUnlocked, "Audit unlocked")
}

// Lock freezes a completed audit until it is unlocked.
func (s *Service) Lock(ctx context.Context, id string) (*Audit, error) {
	return s.transition(ctx, id, "lock", StatusLocked, activity.ActionAuditLocked, "Audit locked")
}

// Revise reopens a completed audit for corrections while keeping its
// completion time.
func (s *Service) Revise(ctx context.Context, id string) (*Audit, error) {
	return s.transition(ctx, id, "revise", StatusRevised, activity.ActionAuditRevised, "Audit opened for revision")
}

func (s *Service) transition(ctx context.Context, id, op string, to Status, action activity.Action, summary string) (*Audit, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	a, err := s.Audits.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(op, a); err != nil {
		return nil, err
	}
	completedAt := a.CompletedAt
	if !to.Finished() {
		completedAt = nil
	}
	if err := s.Audits.setStatus(ctx, id, to, completedAt); err != nil {
		return nil, err
	}
	s.record(ctx, action, id, "", summary)
	return s.Get(ctx, id)
}

// SaveProgress persists the audit as it stands. Status never changes.
func (s *Service) SaveProgress(ctx context.Context, id string) (*Audit, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	if _, err := s.Audits.MarkSaved(ctx, id); err != nil {
		return nil, err
	}
	s.record(ctx, activity.ActionProgressSaved, id, "", "Progress saved")
	return s.Get(ctx, id)
}

// SetHeaderValues replaces the header fields of an editable audit.
func (s *Service) SetHeaderValues(ctx context.Context, id string, values map[string]string) (*Audit, error) {
	err := s.mutate(ctx, id, func() error {
		return s.Audits.SetHeaderValues(ctx, id, values)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// SetAnswer replaces the answer for one item.
func (s *Service) SetAnswer(ctx context.Context, id, itemID string, a answers.AuditAnswer) error {
	return s.mutate(ctx, id, func() error {
		return s.Answers.SetAnswer(ctx, id, itemID, a)
	})
}

// AddNonCompliance appends an empty record to an item and returns its index.
func (s *Service) AddNonCompliance(ctx context.Context, id, itemID string) (int, error) {
	var index int
	err := s.mutate(ctx, id, func() error {
		var err error
		index, err = s.Answers.AddNonCompliance(ctx, id, itemID)
		return err
	})
	return index, err
}

// RemoveNonCompliance deletes one record of an item.
func (s *Service) RemoveNonCompliance(ctx context.Context, id, itemID string, index int) error {
	return s.mutate(ctx, id, func() error {
		return s.Answers.RemoveNonCompliance(ctx, id, itemID, index)
	})
}

// UpdateNonCompliance edits one record of an item.
func (s *Service) UpdateNonCompliance(ctx context.Context, id, itemID string, index int, r answers.NonComplianceRecord) error {
	return s.mutate(ctx, id, func() error {
		return s.Answers.UpdateNonCompliance(ctx, id, itemID, index, r)
	})
}

// mutate runs fn under the audit lock if the audit is editable.
func (s *Service) mutate(ctx context.Context, id string, fn func() error) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	a, err := s.Audits.Get(ctx, id)
	if err != nil {
		return err
	}
	if !a.Status.Editable() {
		return fmt.Errorf("%w: audit %s is %s", ErrReadOnly, id, a.Status)
	}
	return fn()
}

// ListVersions returns every report version of the audit, newest first.
func (s *Service) ListVersions(ctx context.Context, auditID string) ([]reports.Report, error) {
	if _, err := s.Audits.Get(ctx, auditID); err != nil {
		return nil, err
	}
	return s.Registry.ListVersions(ctx, auditID)
}

// CurrentReport returns the latest done version of the audit.
func (s *Service) CurrentReport(ctx context.Context, auditID string) (*reports.Report, error) {
	if _, err := s.Audits.Get(ctx, auditID); err != nil {
		return nil, err
	}
	return s.Registry.Current(ctx, auditID)
}

// GetReport returns one version, which must belong to auditID.
func (s *Service) GetReport(ctx context.Context, auditID, reportID string) (*reports.Report, error) {
	rep, err := s.Registry.Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if rep.AuditID != auditID {
		return nil, fmt.Errorf("%w: %s does not belong to audit %s", reports.ErrVersionNotFound, reportID, auditID)
	}
	return rep, nil
}

// CancelReport stops an in-flight generation. The version is kept with a
// cancellation reason.
func (s *Service) CancelReport(ctx context.Context, reportID string) (*reports.Report, error) {
	rep, err := s.Jobs.Cancel(ctx, reportID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("audit_id", rep.AuditID).Str("report_id", rep.ID).Str("actor", actorFrom(ctx)).Msg("report generation cancelled")
	return rep, nil
}

// DeleteReportVersion removes one version. Removing the latest promotes
// the highest remaining done version, which is returned.
func (s *Service) DeleteReportVersion(ctx context.Context, auditID, reportID string) (*reports.Report, error) {
	unlock := s.locks.Lock(auditID)
	defer unlock()

	rep, err := s.GetReport(ctx, auditID, reportID)
	if err != nil {
		return nil, err
	}
	promoted, err := s.Registry.DeleteVersion(ctx, auditID, reportID)
	if err != nil {
		return nil, err
	}

	s.publish(events.TypeReportDeleted, rep)
	s.record(ctx, activity.ActionReportDeleted, auditID, reportID, fmt.Sprintf("Report v%d deleted", rep.VersionNumber))
	if promoted != nil {
		s.publish(events.TypeReportLatest, promoted)
		s.record(ctx, activity.ActionReportPromoted, auditID, promoted.ID,
			fmt.Sprintf("Report v%d promoted to latest after v%d was deleted", promoted.VersionNumber, rep.VersionNumber))
	}
	return promoted, nil
}

// SetReportAsLatest makes a done version of the audit the latest one.
func (s *Service) SetReportAsLatest(ctx context.Context, auditID, reportID string) (*reports.Report, error) {
	unlock := s.locks.Lock(auditID)
	defer unlock()

	if _, err := s.GetReport(ctx, auditID, reportID); err != nil {
		return nil, err
	}
	rep, err := s.Registry.PromoteToLatest(ctx, reportID)
	if err != nil {
		return nil, err
	}
	s.publish(events.TypeReportLatest, rep)
	s.record(ctx, activity.ActionReportPromoted, auditID, reportID, fmt.Sprintf("Report v%d set as latest", rep.VersionNumber))
	return rep, nil
}

func (s *Service) publish(eventType string, rep *reports.Report) {
	if s.Hub == nil {
		return
	}
	s.Hub.Publish(events.ReportEvent{
		Type:          eventType,
		AuditID:       rep.AuditID,
		ReportID:      rep.ID,
		VersionNumber: rep.VersionNumber,
		Status:        string(rep.Status),
		IsLatest:      rep.IsLatest,
		Error:         rep.Error,
	})
}

func (s *Service) record(ctx context.Context, action activity.Action, auditID, reportID, summary string) {
	if s.Activity == nil {
		return
	}
	entry := activity.Entry{
		Action:   action,
		AuditID:  auditID,
		ReportID: reportID,
		Summary:  summary,
	}
	if name := actorFrom(ctx); name != "" {
		entry.ActorType = activity.ActorUser
		entry.ActorID = name
	}
	if err := s.Activity.Log(ctx, entry); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).Str("audit_id", auditID).Msg("logging activity")
	}
}
