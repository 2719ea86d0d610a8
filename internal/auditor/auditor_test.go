package auditor

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/ziadkadry99/hygaudit/internal/db"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestSaveAndGet(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if _, err := store.Save(ctx, Profile{Name: "alice", Company: "CleanCo", Certification: "L3"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Save(ctx, Profile{Name: "alice", Company: "CleanCo Ltd"}); err != nil {
		t.Fatalf("Save update: %v", err)
	}

	got, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Company != "CleanCo Ltd" {
		t.Errorf("Company = %q, want %q", got.Company, "CleanCo Ltd")
	}
	if got.Certification != "" {
		t.Errorf("Certification = %q, want empty after overwrite", got.Certification)
	}
}

func TestSaveRequiresName(t *testing.T) {
	store := setupStore(t)
	if _, err := store.Save(context.Background(), Profile{}); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestSnapshot(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	p, err := store.Snapshot(ctx, "")
	if err != nil || p != nil {
		t.Errorf("Snapshot(\"\") = %v, %v; want nil, nil", p, err)
	}

	p, err = store.Snapshot(ctx, "bob")
	if err != nil {
		t.Fatalf("Snapshot unknown: %v", err)
	}
	if p.Name != "bob" {
		t.Errorf("Name = %q, want bob", p.Name)
	}

	store.Save(ctx, Profile{Name: "bob", Email: "bob@example.com"})
	p, _ = store.Snapshot(ctx, "bob")
	if p.Email != "bob@example.com" {
		t.Errorf("Email = %q", p.Email)
	}
}

func TestGetNotFound(t *testing.T) {
	store := setupStore(t)
	if _, err := store.Get(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestHTTPRoutes(t *testing.T) {
	store := setupStore(t)
	r := chi.NewRouter()
	RegisterRoutes(r, store)

	req := httptest.NewRequest(http.MethodPut, "/api/auditors", bytes.NewBufferString(`{"name":"carol","company":"Inspect"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/auditors/carol", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("GET status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/auditors/nobody", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rec.Code)
	}
}
