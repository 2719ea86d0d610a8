package reports

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/ziadkadry99/hygaudit/internal/auditor"
	"github.com/ziadkadry99/hygaudit/internal/db"
)

func setupRegistry(t *testing.T, auditIDs ...string) (*Registry, *db.DB) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	now := time.Now().UTC()
	for _, id := range auditIDs {
		_, err := database.Exec(`INSERT INTO audits (id, premise_id, status, created_at, updated_at, completed_at)
			VALUES (?, 'p-1', 'completed', ?, ?, ?)`, id, now, now, now)
		if err != nil {
			t.Fatalf("insert audit: %v", err)
		}
	}
	return NewRegistry(database, zerolog.Nop()), database
}

// doneVersion creates a version and completes it.
func doneVersion(t *testing.T, r *Registry, auditID string) *Report {
	t.Helper()
	ctx := context.Background()
	rep, err := r.CreatePending(ctx, auditID, CreateOptions{})
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	done, err := r.Complete(ctx, rep.ID, fmt.Sprintf("# Report v%d", rep.VersionNumber))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	return done
}

func failedVersion(t *testing.T, r *Registry, auditID string) *Report {
	t.Helper()
	ctx := context.Background()
	rep, err := r.CreatePending(ctx, auditID, CreateOptions{})
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	failed, err := r.Fail(ctx, rep.ID, "service unavailable")
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	return failed
}

func latestIDs(t *testing.T, r *Registry, auditID string) []string {
	t.Helper()
	versions, err := r.ListVersions(context.Background(), auditID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	var ids []string
	for _, v := range versions {
		if v.IsLatest {
			ids = append(ids, v.ID)
		}
	}
	return ids
}

func TestCreatePendingNumbersVersions(t *testing.T) {
	r, _ := setupRegistry(t, "a-1", "a-2")
	ctx := context.Background()

	snap := &auditor.Profile{Name: "Dana", Company: "CleanCheck"}
	first, err := r.CreatePending(ctx, "a-1", CreateOptions{CreatedByName: "Dana", AuditorSnapshot: snap})
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if first.VersionNumber != 1 || first.Status != StatusPending || first.IsLatest {
		t.Errorf("first = %+v", first)
	}

	snap.Company = "changed"
	got, _ := r.Get(ctx, first.ID)
	if got.AuditorSnapshot == nil || got.AuditorSnapshot.Company != "CleanCheck" {
		t.Errorf("snapshot = %+v, want stored copy", got.AuditorSnapshot)
	}
	if got.CreatedByName != "Dana" {
		t.Errorf("CreatedByName = %q", got.CreatedByName)
	}

	r.Complete(ctx, first.ID, "v1")
	second, err := r.CreatePending(ctx, "a-1", CreateOptions{})
	if err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if second.VersionNumber != 2 {
		t.Errorf("second version = %d, want 2", second.VersionNumber)
	}

	other, _ := r.CreatePending(ctx, "a-2", CreateOptions{})
	if other.VersionNumber != 1 {
		t.Errorf("other audit version = %d, want 1", other.VersionNumber)
	}
}

func TestCreatePendingRejectsSecondInFlight(t *testing.T) {
	r, _ := setupRegistry(t, "a-1")
	ctx := context.Background()

	if _, err := r.CreatePending(ctx, "a-1", CreateOptions{}); err != nil {
		t.Fatalf("CreatePending: %v", err)
	}
	if _, err := r.CreatePending(ctx, "a-1", CreateOptions{}); !errors.Is(err, ErrActiveVersion) {
		t.Errorf("err = %v, want ErrActiveVersion", err)
	}
}

func TestCreatePendingUnknownAudit(t *testing.T) {
	r, _ := setupRegistry(t)
	if _, err := r.CreatePending(context.Background(), "missing", CreateOptions{}); !errors.Is(err, ErrUnknownAudit) {
		t.Errorf("err = %v, want ErrUnknownAudit", err)
	}
}

func TestVersionNumbersNeverReused(t *testing.T) {
	r, _ := setupRegistry(t, "a-1")
	ctx := context.Background()

	doneVersion(t, r, "a-1")
	v2 := doneVersion(t, r, "a-1")
	if _, err := r.DeleteVersion(ctx, "a-1", v2.ID); err != nil {
		t.Fatalf("DeleteVersion: %v", err)
	}

	v3 := doneVersion(t, r, "a-1")
	if v3.VersionNumber != 3 {
		t.Errorf("version after deleting highest = %d, want 3", v3.VersionNumber)
	}
}

func TestConcurrentCreateStrictlyIncreasing(t *testing.T) {
	r, _ := setupRegistry(t, "a-1")
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int]bool{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, err := r.CreatePending(ctx, "a-1", CreateOptions{})
			if err != nil {
				return
			}
			if _, err := r.Fail(ctx, rep.ID, "x"); err != nil {
				t.Errorf("Fail: %v", err)
			}
			mu.Lock()
			seen[rep.VersionNumber] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	versions, _ := r.ListVersions(ctx, "a-1")
	if len(versions) != len(seen) {
		t.Fatalf("stored %d versions, created %d", len(versions), len(seen))
	}
	for i, v := range versions {
		if want := len(versions) - i; v.VersionNumber != want {
			t.Errorf("versions[%d] = %d, want %d", i, v.VersionNumber, want)
		}
	}
}

func TestCompletePromotesAndKeepsHistory(t *testing.T) {
	r, _ := setupRegistry(t, "a-1")
	ctx := context.Background()

	v1 := doneVersion(t, r, "a-1")
	if !v1.IsLatest || v1.CompletedAt == nil {
		t.Errorf("v1 = %+v", v1)
	}

	v2 := doneVersion(t, r, "a-1")
	ids := latestIDs(t, r, "a-1")
	if len(ids) != 1 || ids[0] != v2.ID {
		t.Errorf("latest = %v, want [%s]", ids, v2.ID)
	}

	old, err := r.Get(ctx, v1.ID)
	if err != nil {
		t.Fatalf("Get v1: %v", err)
	}
	if old.IsLatest || old.Status != StatusDone || old.ReportData == "" {
		t.Errorf("v1 after v2 = %+v", old)
	}
}

func TestFailedVersionLeavesLatest(t *testing.T) {
	r, _ := setupRegistry(t, "a-1")

	v1 := doneVersion(t, r, "a-1")
	v2 := failedVersion(t, r, "a-1")

	if v2.Status != StatusError || v2.Error != "service unavailable" || v2.IsLatest {
		t.Errorf("v2 = %+v", v2)
	}
	ids := latestIDs(t, r, "a-1")
	if len(ids) != 1 || ids[0] != v1.ID {
		t.Errorf("latest = %v, want v1", ids)
	}
}

func TestTerminalVersionsAreFrozen(t *testing.T) {
	r, _ := setupRegistry(t, "a-1")
	ctx := context.Background()

	v1 := doneVersion(t, r, "a-1")
	if _, err := r.Fail(ctx, v1.ID, "late failure"); !errors.Is(err, ErrNotInFlight) {
		t.Errorf("Fail on done: err = %v, want ErrNotInFlight", err)
	}
	if err := r.MarkGenerating(ctx, v1.ID); !errors.Is(err, ErrNotInFlight) {
		t.Errorf("MarkGenerating on done: err = %v, want ErrNotInFlight", err)
	}

	v2 := failedVersion(t, r, "a-1")
	if _, err := r.Complete(ctx, v2.ID, "late data"); !errors.Is(err, ErrNotInFlight) {
		t.Errorf("Complete on error: err = %v, want ErrNotInFlight", err)
	}
}

func TestMarkGenerating(t *testing.T) {
	r, _ := setupRegistry(t, "a-1")
	ctx := context.Background()

	rep, _ := r.CreatePending(ctx, "a-1", CreateOptions{})
	if err := r.MarkGenerating(ctx, rep.ID); err != nil {
		t.Fatalf("MarkGenerating: %v", err)
	}
	got, _ := r.Get(ctx, rep.ID)
	if got.Status != StatusGenerating {
		t.Errorf("status = %s, want generating", got.Status)
	}

	active, err := r.HasActive(ctx, "a-1")
	if err != nil || !active {
		t.Errorf("HasActive = %v, %v", active, err)
	}
	inflight, _ := r.ListInFlight(ctx)
	if len(inflight) != 1 || inflight[0].ID != rep.ID {
		t.Errorf("ListInFlight = %+v", inflight)
	}
}

func TestPromoteToLatest(t *testing.T) {
	r, _ := setupRegistry(t, "a-1")
	ctx := context.Background()

	v1 := doneVersion(t, r, "a-1")
	v2 := doneVersion(t, r, "a-1")
	v3 := doneVersion(t, r, "a-1")

	if _, err := r.PromoteToLatest(ctx, v1.ID); err != nil {
		t.Fatalf("PromoteToLatest v1: %v", err)
	}
	if _, err := r.PromoteToLatest(ctx, v2.ID); err != nil {
		t.Fatalf("PromoteToLatest v2: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := r.PromoteToLatest(ctx, v2.ID); err != nil {
			t.Fatalf("repeat PromoteToLatest: %v", err)
		}
	}

	ids := latestIDs(t, r, "a-1")
	if len(ids) != 1 || ids[0] != v2.ID {
		t.Errorf("latest = %v, want only v2 (v3=%s)", ids, v3.ID)
	}
}

func TestPromoteRequiresDone(t *testing.T) {
	r, _ := setupRegistry(t, "a-1")
	ctx := context.Background()

	v1 := doneVersion(t, r, "a-1")
	failed := failedVersion(t, r, "a-1")
	pending, _ := r.CreatePending(ctx, "a-1", CreateOptions{})

	for _, id := range []string{failed.ID, pending.ID} {
		if _, err := r.PromoteToLatest(ctx, id); !errors.Is(err, ErrNotDone) {
			t.Errorf("PromoteToLatest(%s) err = %v, want ErrNotDone", id, err)
		}
	}
	if ids := latestIDs(t, r, "a-1"); len(ids) != 1 || ids[0] != v1.ID {
		t.Errorf("latest = %v, want v1", ids)
	}

	if _, err := r.PromoteToLatest(ctx, "missing"); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("missing: err = %v, want ErrVersionNotFound", err)
	}
}

func TestDeleteNonLatestLeavesRegistry(t *testing.T) {
	r, _ := setupRegistry(t, "a-1")
	ctx := context.Background()

	v1 := doneVersion(t, r, "a-1")
	v2 := doneVersion(t, r, "a-1")

	promoted, err := r.DeleteVersion(ctx, "a-1", v1.ID)
	if err != nil {
		t.Fatalf("DeleteVersion: %v", err)
	}
	if promoted != nil {
		t.Errorf("unexpected promotion: %+v", promoted)
	}
	if ids := latestIDs(t, r, "a-1"); len(ids) != 1 || ids[0] != v2.ID {
		t.Errorf("latest = %v, want v2", ids)
	}
	if _, err := r.Get(ctx, v1.ID); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("deleted v1 still present: %v", err)
	}
}

func TestDeleteLatestPromotesHighestDone(t *testing.T) {
	r, _ := setupRegistry(t, "a-1")
	ctx := context.Background()

	v1 := doneVersion(t, r, "a-1")
	v2 := doneVersion(t, r, "a-1")
	failedVersion(t, r, "a-1")
	v4 := doneVersion(t, r, "a-1")

	promoted, err := r.DeleteVersion(ctx, "a-1", v4.ID)
	if err != nil {
		t.Fatalf("DeleteVersion: %v", err)
	}
	if promoted == nil || promoted.ID != v2.ID {
		t.Fatalf("promoted = %+v, want v2 (skipping failed v3)", promoted)
	}

	if _, err := r.DeleteVersion(ctx, "a-1", v2.ID); err != nil {
		t.Fatalf("DeleteVersion v2: %v", err)
	}
	if ids := latestIDs(t, r, "a-1"); len(ids) != 1 || ids[0] != v1.ID {
		t.Errorf("latest = %v, want v1", ids)
	}

	if _, err := r.DeleteVersion(ctx, "a-1", v1.ID); err != nil {
		t.Fatalf("DeleteVersion v1: %v", err)
	}
	if ids := latestIDs(t, r, "a-1"); len(ids) != 0 {
		t.Errorf("latest = %v, want none", ids)
	}
	if _, err := r.Current(ctx, "a-1"); !errors.Is(err, ErrNoCurrent) {
		t.Errorf("Current err = %v, want ErrNoCurrent", err)
	}
}

func TestDeleteOnlyVersion(t *testing.T) {
	r, _ := setupRegistry(t, "a-1")
	ctx := context.Background()

	v1 := doneVersion(t, r, "a-1")
	promoted, err := r.DeleteVersion(ctx, "a-1", v1.ID)
	if err != nil || promoted != nil {
		t.Fatalf("DeleteVersion = %+v, %v", promoted, err)
	}
	versions, _ := r.ListVersions(ctx, "a-1")
	if len(versions) != 0 {
		t.Errorf("versions = %d, want 0", len(versions))
	}
}

func TestDeleteRejectsInFlightAndForeignVersion(t *testing.T) {
	r, _ := setupRegistry(t, "a-1", "a-2")
	ctx := context.Background()

	pending, _ := r.CreatePending(ctx, "a-1", CreateOptions{})
	if _, err := r.DeleteVersion(ctx, "a-1", pending.ID); !errors.Is(err, ErrVersionBusy) {
		t.Errorf("in-flight delete err = %v, want ErrVersionBusy", err)
	}

	r.Fail(ctx, pending.ID, "x")
	if _, err := r.DeleteVersion(ctx, "a-2", pending.ID); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("foreign delete err = %v, want ErrVersionNotFound", err)
	}
}

func TestCurrentRepairsMissingFlag(t *testing.T) {
	r, database := setupRegistry(t, "a-1")
	ctx := context.Background()

	doneVersion(t, r, "a-1")
	v2 := doneVersion(t, r, "a-1")
	if _, err := database.Exec(`UPDATE reports SET is_latest = 0 WHERE audit_id = 'a-1'`); err != nil {
		t.Fatalf("clear flags: %v", err)
	}

	cur, err := r.Current(ctx, "a-1")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.ID != v2.ID || !cur.IsLatest {
		t.Errorf("Current = %+v, want v2 flagged", cur)
	}
	if ids := latestIDs(t, r, "a-1"); len(ids) != 1 || ids[0] != v2.ID {
		t.Errorf("flag not repaired: %v", ids)
	}
}

func TestRepairLatest(t *testing.T) {
	r, database := setupRegistry(t, "a-1")
	ctx := context.Background()

	v1 := doneVersion(t, r, "a-1")
	changed, err := r.RepairLatest(ctx, "a-1")
	if err != nil || changed {
		t.Errorf("healthy audit: changed=%v err=%v", changed, err)
	}

	database.Exec(`UPDATE reports SET is_latest = 0 WHERE id = ?`, v1.ID)
	changed, err = r.RepairLatest(ctx, "a-1")
	if err != nil || !changed {
		t.Errorf("broken audit: changed=%v err=%v", changed, err)
	}
	if ids := latestIDs(t, r, "a-1"); len(ids) != 1 {
		t.Errorf("latest after repair = %v", ids)
	}

	ids, err := r.AuditIDs(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "a-1" {
		t.Errorf("AuditIDs = %v, %v", ids, err)
	}
}

func TestPromoteRacesDelete(t *testing.T) {
	r, _ := setupRegistry(t, "a-1")
	ctx := context.Background()

	v1 := doneVersion(t, r, "a-1")
	v2 := doneVersion(t, r, "a-1")

	var (
		wg         sync.WaitGroup
		promoteErr error
		deleteErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, promoteErr = r.PromoteToLatest(ctx, v1.ID)
	}()
	go func() {
		defer wg.Done()
		_, deleteErr = r.DeleteVersion(ctx, "a-1", v1.ID)
	}()
	wg.Wait()

	if deleteErr != nil {
		t.Fatalf("DeleteVersion: %v", deleteErr)
	}
	if promoteErr != nil && !errors.Is(promoteErr, ErrVersionNotFound) {
		t.Fatalf("PromoteToLatest err = %v, want nil or ErrVersionNotFound", promoteErr)
	}

	ids := latestIDs(t, r, "a-1")
	if len(ids) != 1 || ids[0] != v2.ID {
		t.Errorf("latest = %v, want exactly v2", ids)
	}
}
