// Package inference turns a prompt plus a result schema into structured JSON
// through a pluggable generative backend.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ankittk/agentsync/internal/config"
)

// ErrShape is returned when a backend result does not match the schema shape.
var ErrShape = errors.New("result does not match schema")

// Inferrer produces a JSON document for prompt that should satisfy schema.
type Inferrer interface {
	Infer(ctx context.Context, prompt string, schema Schema) (json.RawMessage, error)
}

// Func adapts a function to Inferrer.
type Func func(ctx context.Context, prompt string, schema Schema) (json.RawMessage, error)

func (f Func) Infer(ctx context.Context, prompt string, schema Schema) (json.RawMessage, error) {
	return f(ctx, prompt, schema)
}

// Property describes one field of a Schema.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// Schema is the minimal JSON-schema subset the engine sends to backends.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// String renders the schema as compact JSON for prompts.
func (s Schema) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Validate checks shape only: an object when the schema says so, required keys
// present and non-null, and declared top-level property types. Content is not judged.
func Validate(raw json.RawMessage, s Schema) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("%w: empty result", ErrShape)
	}
	if s.Type != "" && s.Type != "object" {
		if !matchesType(raw, s.Type) {
			return fmt.Errorf("%w: want %s", ErrShape, s.Type)
		}
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return fmt.Errorf("%w: want a JSON object", ErrShape)
	}
	for _, k := range s.Required {
		v, ok := obj[k]
		if !ok || string(bytes.TrimSpace(v)) == "null" {
			return fmt.Errorf("%w: missing required field %q", ErrShape, k)
		}
	}
	for name, p := range s.Properties {
		v, ok := obj[name]
		if !ok || string(bytes.TrimSpace(v)) == "null" {
			continue
		}
		if !matchesType(v, p.Type) {
			return fmt.Errorf("%w: field %q is not %s", ErrShape, name, p.Type)
		}
	}
	return nil
}

func matchesType(raw json.RawMessage, typ string) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch typ {
	case "", "any":
		return true
	case "string":
		_, ok := v.(string)
		return ok
	case "number", "integer":
		_, ok := v.(float64)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}

// ExtractJSON pulls the JSON document out of model text, tolerating markdown
// code fences and leading prose.
func ExtractJSON(text string) (json.RawMessage, error) {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```json")
		t = strings.TrimPrefix(t, "```")
		if i := strings.LastIndex(t, "```"); i >= 0 {
			t = t[:i]
		}
		t = strings.TrimSpace(t)
	}
	if json.Valid([]byte(t)) {
		return json.RawMessage(t), nil
	}
	start := strings.IndexAny(t, "{[")
	end := strings.LastIndexAny(t, "}]")
	if start >= 0 && end > start && json.Valid([]byte(t[start:end+1])) {
		return json.RawMessage(t[start : end+1]), nil
	}
	return nil, fmt.Errorf("%w: no JSON document in model output", ErrShape)
}

// instructions appends the schema contract to a prompt for text-only backends.
func instructions(prompt string, s Schema) string {
	return prompt + "\n\nRespond with a single JSON object only, no prose, matching this JSON schema:\n" + s.String()
}

// New builds the backend selected by cfg.Provider. Providers other than stub
// need an API key; without one the stub is used and a warning is the caller's call.
func New(cfg config.InferenceConfig) (Inferrer, error) {
	switch cfg.Provider {
	case "", "stub":
		return NewStub(), nil
	case "openai":
		return NewOpenAI(cfg)
	case "anthropic":
		return NewAnthropic(cfg)
	case "gemini":
		return NewGemini(context.Background(), cfg)
	case "exec":
		return NewExec(cfg)
	}
	return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
}
