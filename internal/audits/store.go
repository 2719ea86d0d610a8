package audits

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ziadkadry99/hygaudit/internal/db"
)

const auditColumns = `id, premise_id, checklist_id, status, header_values, dirty, created_at, updated_at, completed_at, progress_saved_at`

// Store persists audit rows. Answers live in the answers store.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// ListFilter selects audits for List.
type ListFilter struct {
	PremiseID string
	Status    Status
	Limit     int
	Offset    int
}

// Create inserts a new audit. Missing ID and status default to a fresh
// uuid and draft.
func (s *Store) Create(ctx context.Context, a Audit) (*Audit, error) {
	if a.PremiseID == "" {
		return nil, fmt.Errorf("creating audit: premise id is required")
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = StatusDraft
	}
	if !a.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, a.Status)
	}
	if a.Status.Finished() {
		return nil, fmt.Errorf("%w: new audits cannot start %s", ErrInvalidTransition, a.Status)
	}
	if a.HeaderValues == nil {
		a.HeaderValues = map[string]string{}
	}
	headers, err := json.Marshal(a.HeaderValues)
	if err != nil {
		return nil, fmt.Errorf("encoding header values: %w", err)
	}

	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	a.CompletedAt, a.ProgressSavedAt = nil, nil
	a.Dirty = false

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audits (id, premise_id, checklist_id, status, header_values, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PremiseID, a.ChecklistID, string(a.Status), string(headers), now, now)
	if err != nil {
		return nil, fmt.Errorf("inserting audit: %w", err)
	}
	return &a, nil
}

// Get returns the audit row without answers.
func (s *Store) Get(ctx context.Context, id string) (*Audit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audits WHERE id = ?`, id)
	a, err := scanAudit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting audit: %w", err)
	}
	return a, nil
}

// List returns audits matching the filter, most recently updated first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Audit, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.PremiseID != "" {
		clauses = append(clauses, "premise_id = ?")
		args = append(args, filter.PremiseID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + auditColumns + ` FROM audits`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY updated_at DESC, id"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audits: %w", err)
	}
	defer rows.Close()

	var result []Audit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning audit: %w", err)
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// setStatus writes status and completedAt together so the two never
// disagree.
func (s *Store) setStatus(ctx context.Context, id string, status Status, completedAt *time.Time) error {
	if status.Finished() != (completedAt != nil) {
		return fmt.Errorf("%w: completed_at must be set exactly when status is finished", ErrInvalidTransition)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE audits SET status = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		string(status), completedAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating audit status: %w", err)
	}
	return requireRow(res, id)
}

// SetHeaderValues replaces the free-form header fields and marks the audit dirty.
func (s *Store) SetHeaderValues(ctx context.Context, id string, values map[string]string) error {
	if values == nil {
		values = map[string]string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encoding header values: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE audits SET header_values = ?, dirty = 1, updated_at = ? WHERE id = ?`,
		string(data), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating header values: %w", err)
	}
	return requireRow(res, id)
}

// MarkSaved clears the dirty flag and records when progress was saved.
// Status is never touched.
func (s *Store) MarkSaved(ctx context.Context, id string) (time.Time, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE audits SET dirty = 0, progress_saved_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("saving progress: %w", err)
	}
	return now, requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAudit(sc scanner) (*Audit, error) {
	var (
		a         Audit
		status    string
		headers   string
		dirty     int
		completed sql.NullTime
		saved     sql.NullTime
	)
	err := sc.Scan(&a.ID, &a.PremiseID, &a.ChecklistID, &status, &headers, &dirty,
		&a.CreatedAt, &a.UpdatedAt, &completed, &saved)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.Dirty = dirty != 0
	if err := json.Unmarshal([]byte(headers), &a.HeaderValues); err != nil {
		return nil, fmt.Errorf("decoding header values: %w", err)
	}
	if completed.Valid {
		t := completed.Time
		a.CompletedAt = &t
	}
	if saved.Valid {
		t := saved.Time
		a.ProgressSavedAt = &t
	}
	return &a, nil
}
