package auditor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ziadkadry99/hygaudit/internal/db"
)

// ErrNotFound is returned when no profile exists for a name.
var ErrNotFound = errors.New("auditor profile not found")

// Profile holds the identity fields printed on a report. Reports keep
// their own copy so later edits do not rewrite history.
type Profile struct {
	Name          string    `json:"name"`
	Company       string    `json:"company"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Certification string    `json:"certification"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store persists auditor profiles.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Save upserts a profile keyed by name.
func (s *Store) Save(ctx context.Context, p Profile) (*Profile, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("auditor name is required")
	}
	p.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auditor_profiles (name, company, email, phone, certification, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			company = excluded.company,
			email = excluded.email,
			phone = excluded.phone,
			certification = excluded.certification,
			updated_at = excluded.updated_at`,
		p.Name, p.Company, p.Email, p.Phone, p.Certification, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upserting auditor profile: %w", err)
	}
	return &p, nil
}

// Get returns the profile for name.
func (s *Store) Get(ctx context.Context, name string) (*Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT name, company, email, phone, certification, updated_at
		FROM auditor_profiles WHERE name = ?`, name,
	).Scan(&p.Name, &p.Company, &p.Email, &p.Phone, &p.Certification, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("getting auditor profile: %w", err)
	}
	return &p, nil
}

// Snapshot returns a copy of the named profile for embedding in a report.
// An unknown auditor yields a profile carrying only the name.
func (s *Store) Snapshot(ctx context.Context, name string) (*Profile, error) {
	if name == "" {
		return nil, nil
	}
	p, err := s.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return &Profile{Name: name}, nil
	}
	return p, err
}

// RegisterRoutes mounts auditor profile endpoints under /api/auditors.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/auditors", func(r chi.Router) {
		r.Put("/", func(w http.ResponseWriter, r *http.Request) {
			var p Profile
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
			saved, err := store.Save(r.Context(), p)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			writeJSON(w, http.StatusOK, saved)
		})
		r.Get("/{name}", func(w http.ResponseWriter, r *http.Request) {
			p, err := store.Get(r.Context(), chi.URLParam(r, "name"))
			if errors.Is(err, ErrNotFound) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, p)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
