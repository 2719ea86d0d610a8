package mcp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/ziadkadry99/hygaudit/internal/answers"
	"github.com/ziadkadry99/hygaudit/internal/auditor"
	"github.com/ziadkadry99/hygaudit/internal/audits"
	"github.com/ziadkadry99/hygaudit/internal/checklist"
	"github.com/ziadkadry99/hygaudit/internal/db"
	"github.com/ziadkadry99/hygaudit/internal/generation"
	"github.com/ziadkadry99/hygaudit/internal/reports"
)

func setupServer(t *testing.T) (*Server, *audits.Service, *generation.Controller) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	checklists := checklist.NewStore(database)
	err = checklists.Save(context.Background(), checklist.Checklist{
		ID:    "cl-1",
		Name:  "Kitchen",
		Items: []checklist.Item{{ID: "hands", Text: "Hand wash basins stocked", Active: true}},
	})
	if err != nil {
		t.Fatalf("Save checklist: %v", err)
	}

	registry := reports.NewRegistry(database, zerolog.Nop())
	jobs := generation.NewController(registry, &generation.LocalService{}, generation.Options{Logger: zerolog.Nop()})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		jobs.Shutdown(ctx)
	})

	svc := audits.NewService(audits.Deps{
		Audits:     audits.NewStore(database),
		Answers:    answers.NewStore(database),
		Checklists: checklists,
		Auditors:   auditor.NewStore(database),
		Registry:   registry,
		Jobs:       jobs,
		Logger:     zerolog.Nop(),
	})
	return NewServer(svc), svc, jobs
}

// completedAudit creates an audit and waits for its first report.
func completedAudit(t *testing.T, svc *audits.Service, jobs *generation.Controller) *audits.Audit {
	t.Helper()
	ctx := context.Background()
	a, err := svc.Create(ctx, audits.Audit{PremiseID: "p-1", ChecklistID: "cl-1", HeaderValues: map[string]string{"premise_name": "Harbour Cafe"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	svc.StartAudit(ctx, a.ID)
	nc, _ := answers.NonCompliant(answers.NonComplianceRecord{Location: "sink", Finding: "no soap", Recommendation: "refill"})
	if err := svc.SetAnswer(ctx, a.ID, "hands", nc); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}
	_, rep, err := svc.CompleteAudit(ctx, a.ID, audits.CompleteOptions{})
	if err != nil {
		t.Fatalf("CompleteAudit: %v", err)
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := jobs.Wait(wctx, rep.ID); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return a
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return result
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		tool     mcp.Tool
		wantName string
	}{
		{listAuditsTool, "list_audits"},
		{getAuditTool, "get_audit"},
		{listReportVersionsTool, "list_report_versions"},
		{getCurrentReportTool, "get_current_report"},
	}

	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			if tt.tool.Name != tt.wantName {
				t.Errorf("tool name = %q, want %q", tt.tool.Name, tt.wantName)
			}
			if tt.tool.Description == "" {
				t.Error("tool description should not be empty")
			}
		})
	}
}

func TestNewServer(t *testing.T) {
	srv, svc, _ := setupServer(t)
	if srv.mcp == nil {
		t.Fatal("MCP server not initialized")
	}
	if srv.audits != svc {
		t.Error("audit service not set correctly")
	}
}

func TestHandleListAudits(t *testing.T) {
	srv, svc, jobs := setupServer(t)

	t.Run("empty", func(t *testing.T) {
		result := call(t, srv.handleListAudits, map[string]any{})
		if result.IsError || !strings.Contains(resultText(t, result), "No audits") {
			t.Errorf("result = %+v", result)
		}
	})

	a := completedAudit(t, svc, jobs)

	t.Run("status filter", func(t *testing.T) {
		result := call(t, srv.handleListAudits, map[string]any{"status": "completed"})
		if !strings.Contains(resultText(t, result), a.ID) {
			t.Errorf("completed audit missing: %s", resultText(t, result))
		}
		result = call(t, srv.handleListAudits, map[string]any{"status": "locked"})
		if strings.Contains(resultText(t, result), a.ID) {
			t.Error("status filter ignored")
		}
	})
}

func TestHandleGetAudit(t *testing.T) {
	srv, svc, jobs := setupServer(t)
	a := completedAudit(t, svc, jobs)

	result := call(t, srv.handleGetAudit, map[string]any{"audit_id": a.ID})
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}
	text := resultText(t, result)
	for _, want := range []string{"Status: completed", "premise_name: Harbour Cafe", "hands: non-compliant", "no soap [sink] -> refill"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}

	if result := call(t, srv.handleGetAudit, map[string]any{}); !result.IsError {
		t.Error("expected error for missing audit_id")
	}
	if result := call(t, srv.handleGetAudit, map[string]any{"audit_id": "nope"}); !result.IsError {
		t.Error("expected error for unknown audit")
	}
}

func TestHandleReports(t *testing.T) {
	srv, svc, jobs := setupServer(t)
	a := completedAudit(t, svc, jobs)

	result := call(t, srv.handleListReportVersions, map[string]any{"audit_id": a.ID})
	if text := resultText(t, result); !strings.Contains(text, "v1") || !strings.Contains(text, "latest") {
		t.Errorf("versions = %s", text)
	}

	result = call(t, srv.handleGetCurrentReport, map[string]any{"audit_id": a.ID})
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}
	if text := resultText(t, result); !strings.Contains(text, "# Hygiene audit report: Harbour Cafe") {
		t.Errorf("report = %s", text)
	}

	other, _ := svc.Create(context.Background(), audits.Audit{PremiseID: "p-2"})
	result = call(t, srv.handleGetCurrentReport, map[string]any{"audit_id": other.ID})
	if result.IsError || !strings.Contains(resultText(t, result), "no finished report") {
		t.Errorf("no-report result = %s", resultText(t, result))
	}
	result = call(t, srv.handleListReportVersions, map[string]any{"audit_id": other.ID})
	if !strings.Contains(resultText(t, result), "no report versions") {
		t.Errorf("no-versions result = %s", resultText(t, result))
	}
}
