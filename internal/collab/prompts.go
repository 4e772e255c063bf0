package collab

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/ankittk/agentsync/internal/agents"
	"github.com/ankittk/agentsync/internal/inference"
)

// ResultSchema is the shape every collaboration result must have.
var ResultSchema = inference.Schema{
	Type: "object",
	Properties: map[string]inference.Property{
		"summary":    {Type: "string", Description: "One-paragraph outcome of the work"},
		"actions":    {Type: "array", Description: "Concrete follow-up actions", Items: &inference.Property{Type: "string"}},
		"confidence": {Type: "number", Description: "0 to 1"},
	},
	Required: []string{"summary"},
}

// PromptData is what a role template sees.
type PromptData struct {
	Source       string
	Target       string
	Reason       string
	Priority     string
	Context      string
	Recent       string
	Brief        string
	Instructions string
}

const commonTail = `
{{- if .Brief}}

Workspace brief:
{{.Brief}}
{{- end}}
{{- if .Recent}}

Your recent collaborations:
{{.Recent}}
{{- end}}
{{- if .Instructions}}

Additional instructions:
{{.Instructions}}
{{- end}}`

var templates = map[string]*template.Template{
	agents.StrategyDocGenerator: template.Must(template.New(agents.StrategyDocGenerator).Parse(
		`You are the Strategy Doc Generator. The {{.Source}} agent raised a {{.Priority}} priority request.

Reason: {{.Reason}}
Context:
{{.Context}}

Draft the strategy update this calls for: state the situation, the recommended position and the
risks. Summarize the document in "summary" and list the sections or decisions to follow up in "actions".` + commonTail)),

	agents.KnowledgeCurator: template.Must(template.New(agents.KnowledgeCurator).Parse(
		`You are the Knowledge Curator. The {{.Source}} agent produced material worth keeping ({{.Priority}} priority).

Reason: {{.Reason}}
Context:
{{.Context}}

Decide how to file it: which collection it belongs to, which existing entries it updates and what tags
apply. Put the filing decision in "summary" and the catalog changes in "actions".` + commonTail)),

	agents.MarketMonitor: template.Must(template.New(agents.MarketMonitor).Parse(
		`You are the Market Monitor. The {{.Source}} agent asked you to watch the market ({{.Priority}} priority).

Reason: {{.Reason}}
Context:
{{.Context}}

Describe which signals to track, the thresholds that matter and what you expect to see. Put the
assessment in "summary" and the indicators to add to the watchlist in "actions".` + commonTail)),
}

// HasTemplate reports whether target has a role template.
func HasTemplate(target string) bool {
	_, ok := templates[target]
	return ok
}

// RenderPrompt selects the template for d.Target and renders it.
func RenderPrompt(d PromptData) (string, error) {
	t, ok := templates[d.Target]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoTemplate, d.Target)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render prompt for %s: %w", d.Target, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// formatContext pretty-prints the collaboration context for a prompt.
func formatContext(raw json.RawMessage) string {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return "(none)"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
