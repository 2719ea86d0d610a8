package mcp

import "github.com/mark3labs/mcp-go/mcp"

// listAuditsTool defines the list_audits MCP tool.
var listAuditsTool = mcp.NewTool("list_audits",
	mcp.WithDescription("List hygiene audits, most recently updated first."),
	mcp.WithString("status",
		mcp.Description("Only return audits in this status"),
		mcp.Enum("draft", "not_started", "in_progress", "completed", "revised", "locked"),
	),
	mcp.WithString("premise_id",
		mcp.Description("Only return audits of this premise"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of audits to return (default 20)"),
	),
)

// getAuditTool defines the get_audit MCP tool.
var getAuditTool = mcp.NewTool("get_audit",
	mcp.WithDescription("Get one audit with its header fields and every recorded answer, including non-compliance findings."),
	mcp.WithString("audit_id",
		mcp.Required(),
		mcp.Description("ID of the audit"),
	),
)

// listReportVersionsTool defines the list_report_versions MCP tool.
var listReportVersionsTool = mcp.NewTool("list_report_versions",
	mcp.WithDescription("List every report version of an audit, newest first, with status and latest flag."),
	mcp.WithString("audit_id",
		mcp.Required(),
		mcp.Description("ID of the audit"),
	),
)

// getCurrentReportTool defines the get_current_report MCP tool.
var getCurrentReportTool = mcp.NewTool("get_current_report",
	mcp.WithDescription("Get the markdown of the latest finished report of an audit."),
	mcp.WithString("audit_id",
		mcp.Required(),
		mcp.Description("ID of the audit"),
	),
)
