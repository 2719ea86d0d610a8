package generation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ziadkadry99/hygaudit/internal/answers"
	"github.com/ziadkadry99/hygaudit/internal/checklist"
)

// headerTitleKeys are the header fields tried, in order, for the report title.
var headerTitleKeys = []string{"premise_name", "operator_name", "premise"}

// Tally counts verdicts in a snapshot.
type Tally struct {
	Items        int
	Compliant    int
	NonCompliant int
	Findings     int
}

// Count tallies the answers to the items of s. Answers for items the
// snapshot does not list are not counted.
func Count(s Snapshot) Tally {
	var t Tally
	for _, it := range s.Items {
		a, ok := s.Answers[it.ID]
		if !ok {
			continue
		}
		t.Items++
		if a.Compliant {
			t.Compliant++
			continue
		}
		t.NonCompliant++
		t.Findings += len(a.NonComplianceData)
	}
	return t
}

// Compose renders the markdown artifact for req. A non-empty summary
// replaces the generated tally paragraph.
func Compose(req Request, summary string) string {
	s := req.Snapshot
	var b strings.Builder

	fmt.Fprintf(&b, "# Hygiene audit report: %s\n\n", title(s))
	fmt.Fprintf(&b, "Version %d, completed %s.\n\n", req.VersionNumber, s.CompletedAt.UTC().Format("2 January 2006 15:04 MST"))

	if len(s.HeaderValues) > 0 {
		b.WriteString("| Field | Value |\n|---|---|\n")
		for _, k := range sortedKeys(s.HeaderValues) {
			fmt.Fprintf(&b, "| %s | %s |\n", cell(humanize(k)), cell(s.HeaderValues[k]))
		}
		b.WriteString("\n")
	}
	if s.Auditor != nil && s.Auditor.Name != "" {
		fmt.Fprintf(&b, "Audited by **%s**", s.Auditor.Name)
		if s.Auditor.Company != "" {
			fmt.Fprintf(&b, " of %s", s.Auditor.Company)
		}
		if s.Auditor.Certification != "" {
			fmt.Fprintf(&b, " (%s)", s.Auditor.Certification)
		}
		b.WriteString(".\n\n")
	}

	b.WriteString("## Summary\n\n")
	if summary = strings.TrimSpace(summary); summary != "" {
		b.WriteString(summary)
	} else {
		t := Count(s)
		fmt.Fprintf(&b, "%d of %d items compliant; %d non-compliant item(s) with %d finding(s).",
			t.Compliant, t.Items, t.NonCompliant, t.Findings)
	}
	b.WriteString("\n\n")

	items := orderedItems(s)
	writeFindings(&b, items, s.Answers)

	b.WriteString("## Compliant items\n\n")
	listed := false
	for _, it := range items {
		if a, ok := s.Answers[it.ID]; ok && a.Compliant {
			fmt.Fprintf(&b, "- %s\n", label(it))
			listed = true
		}
	}
	if !listed {
		b.WriteString("None.\n")
	}
	return b.String()
}

func writeFindings(b *strings.Builder, items []checklist.Item, all map[string]answers.AuditAnswer) {
	b.WriteString("## Findings\n\n")
	section := "\x00"
	found := false
	for _, it := range items {
		a, ok := all[it.ID]
		if !ok || a.Compliant {
			continue
		}
		found = true
		if it.Section != section {
			section = it.Section
			if section != "" {
				fmt.Fprintf(b, "### %s\n\n", section)
			}
		}
		fmt.Fprintf(b, "#### %s\n\n", label(it))
		for i, r := range a.NonComplianceData {
			fmt.Fprintf(b, "%d. **Finding:** %s\n", i+1, orDash(r.Finding))
			fmt.Fprintf(b, "   - Location: %s\n", orDash(r.Location))
			fmt.Fprintf(b, "   - Recommendation: %s\n", orDash(r.Recommendation))
			if len(r.Photos) > 0 {
				fmt.Fprintf(b, "   - Photos: %s\n", strings.Join(r.Photos, ", "))
			}
		}
		b.WriteString("\n")
	}
	if !found {
		b.WriteString("No non-compliances recorded.\n\n")
	}
}

// orderedItems returns the checklist items in position order followed by
// any answered item the checklist no longer lists.
func orderedItems(s Snapshot) []checklist.Item {
	items := append([]checklist.Item(nil), s.Items...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Position < items[j].Position })

	known := make(map[string]bool, len(items))
	for _, it := range items {
		known[it.ID] = true
	}
	var extra []string
	for id := range s.Answers {
		if !known[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		items = append(items, checklist.Item{ID: id, Section: "Other items"})
	}
	return items
}

func title(s Snapshot) string {
	for _, k := range headerTitleKeys {
		if v := strings.TrimSpace(s.HeaderValues[k]); v != "" {
			return v
		}
	}
	return s.PremiseID
}

func label(it checklist.Item) string {
	if it.Text == "" {
		return it.ID
	}
	return fmt.Sprintf("%s (%s)", it.Text, it.ID)
}

func humanize(key string) string {
	key = strings.ReplaceAll(key, "_", " ")
	if key == "" {
		return key
	}
	return strings.ToUpper(key[:1]) + key[1:]
}

func cell(v string) string {
	return strings.ReplaceAll(strings.ReplaceAll(v, "|", `\|`), "\n", " ")
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
