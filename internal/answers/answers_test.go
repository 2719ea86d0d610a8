package answers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ziadkadry99/hygaudit/internal/db"
)

func setupStore(t *testing.T) (*Store, *db.DB) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	now := time.Now().UTC()
	if _, err := database.Exec(`INSERT INTO audits (id, premise_id, status, created_at, updated_at) VALUES ('a-1', 'p-1', 'in_progress', ?, ?)`, now, now); err != nil {
		t.Fatalf("insert audit: %v", err)
	}
	return NewStore(database), database
}

func TestConstructorsKeepInvariant(t *testing.T) {
	c := Compliant()
	if err := c.Validate(); err != nil {
		t.Errorf("Compliant().Validate() = %v", err)
	}
	if !c.Compliant || len(c.NonComplianceData) != 0 {
		t.Errorf("Compliant() = %+v", c)
	}

	nc, err := NonCompliant(NonComplianceRecord{Finding: "dirty floor"})
	if err != nil {
		t.Fatalf("NonCompliant: %v", err)
	}
	if nc.Compliant || len(nc.NonComplianceData) != 1 {
		t.Errorf("NonCompliant() = %+v", nc)
	}

	if _, err := NonCompliant(); !errors.Is(err, ErrInvalidAnswer) {
		t.Errorf("NonCompliant() with no records: err = %v, want ErrInvalidAnswer", err)
	}
}

func TestValidateRejectsInconsistentAnswers(t *testing.T) {
	tests := []struct {
		name   string
		answer AuditAnswer
	}{
		{"compliant with records", AuditAnswer{Compliant: true, NonComplianceData: []NonComplianceRecord{{}}}},
		{"non-compliant without records", AuditAnswer{Compliant: false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.answer.Validate(); !errors.Is(err, ErrInvalidAnswer) {
				t.Errorf("Validate() = %v, want ErrInvalidAnswer", err)
			}
		})
	}
}

func TestWithoutRecordRevertsToCompliant(t *testing.T) {
	a, _ := NonCompliant(NonComplianceRecord{Finding: "one"}, NonComplianceRecord{Finding: "two"})

	a, err := a.WithoutRecord(0)
	if err != nil {
		t.Fatalf("WithoutRecord: %v", err)
	}
	if a.Compliant || a.NonComplianceData[0].Finding != "two" {
		t.Errorf("after first removal: %+v", a)
	}

	a, err = a.WithoutRecord(0)
	if err != nil {
		t.Fatalf("WithoutRecord: %v", err)
	}
	if !a.Compliant {
		t.Error("expected compliant after removing the last record")
	}

	if _, err := a.WithoutRecord(0); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	a, _ := NonCompliant(NonComplianceRecord{Finding: "mould", Photos: []string{"p1"}})
	m := map[string]AuditAnswer{"item-1": a}

	cp := CloneAll(m)
	a.NonComplianceData[0].Photos[0] = "changed"
	a.NonComplianceData[0].Finding = "changed"

	got := cp["item-1"].NonComplianceData[0]
	if got.Photos[0] != "p1" || got.Finding != "mould" {
		t.Errorf("clone shares state with original: %+v", got)
	}
}

func TestSetAndGet(t *testing.T) {
	store, database := setupStore(t)
	ctx := context.Background()

	nc, _ := NonCompliant(NonComplianceRecord{Location: "kitchen", Finding: "no soap", Recommendation: "refill", Photos: []string{"ph-1"}})
	if err := store.SetAnswer(ctx, "a-1", "item-b", nc); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}

	got, err := store.Get(ctx, "a-1", "item-b")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Compliant {
		t.Error("expected non-compliant")
	}
	if len(got.NonComplianceData) != 1 || got.NonComplianceData[0].Location != "kitchen" {
		t.Errorf("records = %+v", got.NonComplianceData)
	}
	if got.NonComplianceData[0].Photos[0] != "ph-1" {
		t.Errorf("photos = %v", got.NonComplianceData[0].Photos)
	}

	var dirty int
	if err := database.QueryRow(`SELECT dirty FROM audits WHERE id = 'a-1'`).Scan(&dirty); err != nil {
		t.Fatalf("dirty: %v", err)
	}
	if dirty != 1 {
		t.Error("expected audit to be marked dirty")
	}
}

func TestSetAnswerRejectsInvalid(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	bad := AuditAnswer{Compliant: true, NonComplianceData: []NonComplianceRecord{{Finding: "x"}}}
	if err := store.SetAnswer(ctx, "a-1", "item-a", bad); !errors.Is(err, ErrInvalidAnswer) {
		t.Fatalf("SetAnswer err = %v, want ErrInvalidAnswer", err)
	}
	if _, err := store.Get(ctx, "a-1", "item-a"); !errors.Is(err, ErrAnswerNotFound) {
		t.Errorf("Get err = %v, want ErrAnswerNotFound", err)
	}
}

func TestSetAnswerUnknownAudit(t *testing.T) {
	store, _ := setupStore(t)
	err := store.SetAnswer(context.Background(), "missing", "item-a", Compliant())
	if !errors.Is(err, ErrUnknownAudit) {
		t.Errorf("err = %v, want ErrUnknownAudit", err)
	}
}

func TestAddAndRemoveNonCompliance(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	if err := store.SetAnswer(ctx, "a-1", "item-a", Compliant()); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}

	for want := 0; want < 2; want++ {
		idx, err := store.AddNonCompliance(ctx, "a-1", "item-a")
		if err != nil {
			t.Fatalf("AddNonCompliance: %v", err)
		}
		if idx != want {
			t.Errorf("index = %d, want %d", idx, want)
		}
	}

	got, _ := store.Get(ctx, "a-1", "item-a")
	if got.Compliant || len(got.NonComplianceData) != 2 {
		t.Fatalf("after adds: %+v", got)
	}

	if err := store.UpdateNonCompliance(ctx, "a-1", "item-a", 1, NonComplianceRecord{Finding: "grease"}); err != nil {
		t.Fatalf("UpdateNonCompliance: %v", err)
	}

	if err := store.RemoveNonCompliance(ctx, "a-1", "item-a", 0); err != nil {
		t.Fatalf("RemoveNonCompliance: %v", err)
	}
	got, _ = store.Get(ctx, "a-1", "item-a")
	if got.Compliant || got.NonComplianceData[0].Finding != "grease" {
		t.Fatalf("after first remove: %+v", got)
	}

	if err := store.RemoveNonCompliance(ctx, "a-1", "item-a", 0); err != nil {
		t.Fatalf("RemoveNonCompliance: %v", err)
	}
	got, _ = store.Get(ctx, "a-1", "item-a")
	if !got.Compliant || len(got.NonComplianceData) != 0 {
		t.Errorf("expected compliant with no records, got %+v", got)
	}
}

func TestAddNonComplianceCreatesAnswer(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	if _, err := store.AddNonCompliance(ctx, "a-1", "item-new"); err != nil {
		t.Fatalf("AddNonCompliance: %v", err)
	}
	got, err := store.Get(ctx, "a-1", "item-new")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Compliant || len(got.NonComplianceData) != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestRemoveNonComplianceOutOfRange(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	if err := store.RemoveNonCompliance(ctx, "a-1", "item-x", 0); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("unanswered item: err = %v, want ErrRecordNotFound", err)
	}

	store.SetAnswer(ctx, "a-1", "item-x", Compliant())
	if err := store.RemoveNonCompliance(ctx, "a-1", "item-x", 3); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("bad index: err = %v, want ErrRecordNotFound", err)
	}
}

func TestList(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	store.SetAnswer(ctx, "a-1", "item-a", Compliant())
	nc, _ := NonCompliant(NonComplianceRecord{}, NonComplianceRecord{})
	store.SetAnswer(ctx, "a-1", "item-b", nc)

	all, err := store.List(ctx, "a-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 answers, got %d", len(all))
	}
	for id, a := range all {
		if err := a.Validate(); err != nil {
			t.Errorf("answer %s violates invariant: %v", id, err)
		}
	}
	if len(all["item-b"].NonComplianceData) != 2 {
		t.Errorf("item-b records = %d, want 2", len(all["item-b"].NonComplianceData))
	}
}
