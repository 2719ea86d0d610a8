// Package render turns a report artifact into a standalone HTML page.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Document is what the page template needs to know about one report version.
type Document struct {
	AuditID       string
	VersionNumber int
	IsLatest      bool
	AuditorName   string
	AuditorFirm   string
	CreatedAt     time.Time
	Markdown      string
}

// Renderer converts markdown report bodies to HTML. It is safe for
// concurrent use.
type Renderer struct {
	md   goldmark.Markdown
	page *template.Template
}

// New creates a Renderer.
func New() (*Renderer, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)

	tmpl, err := template.New("report").Parse(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing report template: %w", err)
	}
	return &Renderer{md: md, page: tmpl}, nil
}

// Fragment converts markdown to an HTML fragment. Raw HTML in the input is
// omitted.
func (r *Renderer) Fragment(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return buf.String(), nil
}

// Page renders a complete HTML document for one report version.
func (r *Renderer) Page(doc Document) ([]byte, error) {
	body, err := r.Fragment(doc.Markdown)
	if err != nil {
		return nil, err
	}

	data := pageData{
		Title:    extractTitle(doc.Markdown, doc.AuditID),
		Doc:      doc,
		Content:  template.HTML(body),
		Released: doc.CreatedAt.Format("2 Jan 2006 15:04 MST"),
	}

	var out bytes.Buffer
	if err := r.page.Execute(&out, data); err != nil {
		return nil, fmt.Errorf("executing report template: %w", err)
	}
	return out.Bytes(), nil
}

type pageData struct {
	Title    string
	Doc      Document
	Content  template.HTML
	Released string
}

// extractTitle pulls the first # heading, falling back to the audit id.
func extractTitle(markdown, auditID string) string {
	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimPrefix(line, "# ")
		}
	}
	return "Hygiene audit " + auditID
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; max-width: 860px; margin: 2rem auto; color: #1f2328; line-height: 1.5; }
header { border-bottom: 1px solid #d0d7de; margin-bottom: 1.5rem; padding-bottom: .75rem; }
.meta { color: #59636e; font-size: .9rem; }
.badge { display: inline-block; padding: 0 .5rem; border-radius: 1rem; background: #ddf4ff; color: #0969da; font-size: .8rem; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #d0d7de; padding: .4rem .6rem; text-align: left; }
</style>
</head>
<body>
<header>
<div class="meta">Version {{.Doc.VersionNumber}}{{if .Doc.IsLatest}} <span class="badge">latest</span>{{end}} &middot; {{.Released}}</div>
{{if .Doc.AuditorName}}<div class="meta">Auditor: {{.Doc.AuditorName}}{{if .Doc.AuditorFirm}}, {{.Doc.AuditorFirm}}{{end}}</div>{{end}}
</header>
<main>
{{.Content}}
</main>
</body>
</html>
`
