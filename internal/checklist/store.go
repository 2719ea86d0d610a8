package checklist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/hygaudit/internal/db"
)

// ErrNotFound is returned when a checklist does not exist.
var ErrNotFound = errors.New("checklist not found")

// Store persists checklists and their items.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Save creates or replaces a checklist together with all of its items.
func (s *Store) Save(ctx context.Context, c Checklist) error {
	if c.ID == "" {
		return fmt.Errorf("checklist id is required")
	}
	seen := make(map[string]bool, len(c.Items))
	for _, it := range c.Items {
		if it.ID == "" {
			return fmt.Errorf("checklist %s: item id is required", c.ID)
		}
		if seen[it.ID] {
			return fmt.Errorf("checklist %s: duplicate item id %q", c.ID, it.ID)
		}
		seen[it.ID] = true
	}

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO checklists (id, name, created_at) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
			c.ID, c.Name, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("upserting checklist: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM checklist_items WHERE checklist_id = ?`, c.ID); err != nil {
			return fmt.Errorf("clearing checklist items: %w", err)
		}
		for i, it := range c.Items {
			active := 0
			if it.Active {
				active = 1
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO checklist_items (checklist_id, id, section, text, position, active)
				VALUES (?, ?, ?, ?, ?, ?)`,
				c.ID, it.ID, it.Section, it.Text, i, active)
			if err != nil {
				return fmt.Errorf("inserting checklist item %s: %w", it.ID, err)
			}
		}
		return nil
	})
}

// Get returns a checklist with its items in position order.
func (s *Store) Get(ctx context.Context, id string) (*Checklist, error) {
	c := Checklist{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT name FROM checklists WHERE id = ?`, id).Scan(&c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting checklist: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, section, text, position, active FROM checklist_items
		WHERE checklist_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("querying checklist items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		var active int
		if err := rows.Scan(&it.ID, &it.Section, &it.Text, &it.Position, &active); err != nil {
			return nil, fmt.Errorf("scanning checklist item: %w", err)
		}
		it.Active = active != 0
		c.Items = append(c.Items, it)
	}
	return &c, rows.Err()
}

// List returns all checklists without their items.
func (s *Store) List(ctx context.Context) ([]Checklist, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM checklists ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying checklists: %w", err)
	}
	defer rows.Close()

	var result []Checklist
	for rows.Next() {
		var c Checklist
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scanning checklist: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// ActiveItemIDs returns the ids an audit against this checklist must answer.
func (s *Store) ActiveItemIDs(ctx context.Context, checklistID string) ([]string, error) {
	c, err := s.Get(ctx, checklistID)
	if err != nil {
		return nil, err
	}
	return c.ActiveIDs(), nil
}

// SetItemActive toggles whether an item is required for completion.
func (s *Store) SetItemActive(ctx context.Context, checklistID, itemID string, active bool) error {
	v := 0
	if active {
		v = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE checklist_items SET active = ? WHERE checklist_id = ? AND id = ?`, v, checklistID, itemID)
	if err != nil {
		return fmt.Errorf("updating checklist item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: item %s in %s", ErrNotFound, itemID, checklistID)
	}
	return nil
}
