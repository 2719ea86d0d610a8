package answers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/hygaudit/internal/db"
)

// Store persists audit answers. It validates every write but knows nothing
// about audit status; callers gate mutations on the lifecycle.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Get returns the answer for one item.
func (s *Store) Get(ctx context.Context, auditID, itemID string) (*AuditAnswer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT compliant, non_compliance FROM audit_answers WHERE audit_id = ? AND item_id = ?`,
		auditID, itemID)
	a, err := scanAnswer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrAnswerNotFound, auditID, itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting answer: %w", err)
	}
	return a, nil
}

// List returns every answer recorded for the audit keyed by item id.
func (s *Store) List(ctx context.Context, auditID string) (map[string]AuditAnswer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, compliant, non_compliance FROM audit_answers WHERE audit_id = ?`, auditID)
	if err != nil {
		return nil, fmt.Errorf("querying answers: %w", err)
	}
	defer rows.Close()

	result := make(map[string]AuditAnswer)
	for rows.Next() {
		var (
			itemID    string
			compliant int
			records   string
		)
		if err := rows.Scan(&itemID, &compliant, &records); err != nil {
			return nil, fmt.Errorf("scanning answer: %w", err)
		}
		a, err := decode(compliant, records)
		if err != nil {
			return nil, fmt.Errorf("decoding answer %s: %w", itemID, err)
		}
		result[itemID] = *a
	}
	return result, rows.Err()
}

// SetAnswer replaces the answer for itemID. Inconsistent answers are
// rejected with ErrInvalidAnswer.
func (s *Store) SetAnswer(ctx context.Context, auditID, itemID string, a AuditAnswer) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return write(ctx, tx, auditID, itemID, a)
	})
}

// AddNonCompliance appends an empty record to the item's answer and marks
// it non-compliant. It returns the index of the new record.
func (s *Store) AddNonCompliance(ctx context.Context, auditID, itemID string) (int, error) {
	var index int
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := read(ctx, tx, auditID, itemID)
		if err != nil {
			return err
		}
		var base AuditAnswer
		if current != nil {
			base = *current
		}
		next := base.WithRecord(NonComplianceRecord{Photos: []string{}})
		index = len(next.NonComplianceData) - 1
		return write(ctx, tx, auditID, itemID, next)
	})
	return index, err
}

// RemoveNonCompliance deletes one record. When none remain the answer
// reverts to compliant.
func (s *Store) RemoveNonCompliance(ctx context.Context, auditID, itemID string, index int) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := read(ctx, tx, auditID, itemID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: item %s has no answer", ErrRecordNotFound, itemID)
		}
		next, err := current.WithoutRecord(index)
		if err != nil {
			return err
		}
		return write(ctx, tx, auditID, itemID, next)
	})
}

// UpdateNonCompliance replaces the text and photos of one record.
func (s *Store) UpdateNonCompliance(ctx context.Context, auditID, itemID string, index int, r NonComplianceRecord) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := read(ctx, tx, auditID, itemID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: item %s has no answer", ErrRecordNotFound, itemID)
		}
		next, err := current.WithRecordAt(index, r)
		if err != nil {
			return err
		}
		return write(ctx, tx, auditID, itemID, next)
	})
}

func read(ctx context.Context, tx *sql.Tx, auditID, itemID string) (*AuditAnswer, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT compliant, non_compliance FROM audit_answers WHERE audit_id = ? AND item_id = ?`,
		auditID, itemID)
	a, err := scanAnswer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading answer: %w", err)
	}
	return a, nil
}

// write upserts the answer and marks the owning audit dirty.
func write(ctx context.Context, tx *sql.Tx, auditID, itemID string, a AuditAnswer) error {
	if err := a.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()

	res, err := tx.ExecContext(ctx, `UPDATE audits SET dirty = 1, updated_at = ? WHERE id = ?`, now, auditID)
	if err != nil {
		return fmt.Errorf("marking audit dirty: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownAudit, auditID)
	}

	records, err := json.Marshal(a.NonComplianceData)
	if err != nil {
		return fmt.Errorf("marshalling non-compliance records: %w", err)
	}
	compliant := 0
	if a.Compliant {
		compliant = 1
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_answers (audit_id, item_id, compliant, non_compliance, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(audit_id, item_id) DO UPDATE SET
			compliant = excluded.compliant,
			non_compliance = excluded.non_compliance,
			updated_at = excluded.updated_at`,
		auditID, itemID, compliant, string(records), now,
	)
	if err != nil {
		return fmt.Errorf("upserting answer: %w", err)
	}
	return nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAnswer(sc scanner) (*AuditAnswer, error) {
	var (
		compliant int
		records   string
	)
	if err := sc.Scan(&compliant, &records); err != nil {
		return nil, err
	}
	return decode(compliant, records)
}

func decode(compliant int, records string) (*AuditAnswer, error) {
	a := AuditAnswer{Compliant: compliant != 0}
	if err := json.Unmarshal([]byte(records), &a.NonComplianceData); err != nil {
		return nil, fmt.Errorf("unmarshalling non-compliance records: %w", err)
	}
	if a.NonComplianceData == nil {
		a.NonComplianceData = []NonComplianceRecord{}
	}
	for i := range a.NonComplianceData {
		if a.NonComplianceData[i].Photos == nil {
			a.NonComplianceData[i].Photos = []string{}
		}
	}
	return &a, nil
}
