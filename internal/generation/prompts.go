package generation

import (
	"encoding/json"
	"fmt"

	"github.com/ziadkadry99/hygaudit/internal/llm"
)

const systemPrompt = `You are an experienced food safety and hygiene inspector writing the executive summary of an audit report. Use only the facts provided. Do not invent findings, locations or recommendations. Write in plain professional English.`

const summaryPromptTemplate = `Write the summary section of the hygiene audit report below.

Requirements:
- 2 to 4 short paragraphs of markdown, no headings
- state the overall compliance level (%d of %d items compliant)
- name the most serious non-compliances and the recommended corrective actions
- end with one sentence on follow-up priority

Audit data (JSON):
%s

Compiled report:
%s`

// buildMessages constructs the LLM messages for one report summary.
func buildMessages(req Request) ([]llm.Message, error) {
	data, err := json.MarshalIndent(req.Snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling snapshot: %w", err)
	}
	t := Count(req.Snapshot)
	user := fmt.Sprintf(summaryPromptTemplate, t.Compliant, t.Items, data, Compose(req, ""))

	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: user},
	}, nil
}
