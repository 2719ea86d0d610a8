package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/hygaudit/internal/audits"
	"github.com/ziadkadry99/hygaudit/internal/reports"
)

// handleListAudits lists audits matching the optional filters.
func (s *Server) handleListAudits(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 20)
	if limit <= 0 {
		limit = 20
	}
	list, err := s.audits.List(ctx, audits.ListFilter{
		Status:    audits.Status(request.GetString("status", "")),
		PremiseID: request.GetString("premise_id", ""),
		Limit:     limit,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing audits failed: %v", err)), nil
	}
	if len(list) == 0 {
		return mcp.NewToolResultText("No audits found."), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d audit(s):\n", len(list)))
	for _, a := range list {
		sb.WriteString(fmt.Sprintf("\n- %s (premise %s): %s, updated %s",
			a.ID, a.PremiseID, a.Status, a.UpdatedAt.Format("2006-01-02 15:04")))
		if a.CompletedAt != nil {
			sb.WriteString(fmt.Sprintf(", completed %s", a.CompletedAt.Format("2006-01-02 15:04")))
		}
	}
	sb.WriteString("\n")
	return mcp.NewToolResultText(sb.String()), nil
}

// handleGetAudit returns one audit with its answers.
func (s *Server) handleGetAudit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	auditID, err := request.RequireString("audit_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: audit_id"), nil
	}

	a, err := s.audits.Get(ctx, auditID)
	if errors.Is(err, audits.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("No audit with id %q.", auditID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load audit: %v", err)), nil
	}
	return mcp.NewToolResultText(formatAudit(a)), nil
}

// handleListReportVersions lists every report version of an audit.
func (s *Server) handleListReportVersions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	auditID, err := request.RequireString("audit_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: audit_id"), nil
	}

	versions, err := s.audits.ListVersions(ctx, auditID)
	if errors.Is(err, audits.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("No audit with id %q.", auditID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list report versions: %v", err)), nil
	}
	if len(versions) == 0 {
		return mcp.NewToolResultText("This audit has no report versions yet. Complete the audit to generate one."), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d report version(s):\n", len(versions)))
	for _, v := range versions {
		sb.WriteString(fmt.Sprintf("\n- v%d (%s): %s", v.VersionNumber, v.ID, v.Status))
		if v.IsLatest {
			sb.WriteString(", latest")
		}
		if v.Error != "" {
			sb.WriteString(fmt.Sprintf(", error: %s", v.Error))
		}
		sb.WriteString(fmt.Sprintf(", created %s", v.CreatedAt.Format("2006-01-02 15:04")))
		if v.CreatedByName != "" {
			sb.WriteString(" by " + v.CreatedByName)
		}
	}
	sb.WriteString("\n")
	return mcp.NewToolResultText(sb.String()), nil
}

// handleGetCurrentReport returns the markdown of the latest report.
func (s *Server) handleGetCurrentReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	auditID, err := request.RequireString("audit_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: audit_id"), nil
	}

	rep, err := s.audits.CurrentReport(ctx, auditID)
	switch {
	case errors.Is(err, audits.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("No audit with id %q.", auditID)), nil
	case errors.Is(err, reports.ErrNoCurrent):
		return mcp.NewToolResultText("This audit has no finished report."), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("failed to load current report: %v", err)), nil
	}

	header := fmt.Sprintf("Report v%d of audit %s\n\n", rep.VersionNumber, rep.AuditID)
	return mcp.NewToolResultText(header + rep.ReportData), nil
}

// formatAudit renders an audit for AI agent consumption.
func formatAudit(a *audits.Audit) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Audit %s\nPremise: %s\nChecklist: %s\nStatus: %s\n", a.ID, a.PremiseID, a.ChecklistID, a.Status))
	if a.CompletedAt != nil {
		sb.WriteString(fmt.Sprintf("Completed: %s\n", a.CompletedAt.Format("2006-01-02 15:04")))
	}

	if len(a.HeaderValues) > 0 {
		sb.WriteString("\nHeader:\n")
		for _, k := range sortedKeys(a.HeaderValues) {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", k, a.HeaderValues[k]))
		}
	}

	ids := make([]string, 0, len(a.Answers))
	for id := range a.Answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sb.WriteString(fmt.Sprintf("\nAnswers (%d):\n", len(ids)))
	for _, id := range ids {
		ans := a.Answers[id]
		if ans.Compliant {
			sb.WriteString(fmt.Sprintf("- %s: compliant\n", id))
			continue
		}
		sb.WriteString(fmt.Sprintf("- %s: non-compliant\n", id))
		for i, r := range ans.NonComplianceData {
			sb.WriteString(fmt.Sprintf("  %d. %s", i+1, r.Finding))
			if r.Location != "" {
				sb.WriteString(fmt.Sprintf(" [%s]", r.Location))
			}
			if r.Recommendation != "" {
				sb.WriteString(fmt.Sprintf(" -> %s", r.Recommendation))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
