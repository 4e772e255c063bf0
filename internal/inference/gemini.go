package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/ankittk/agentsync/internal/config"
)

// Gemini calls the Gemini API with a JSON response MIME type.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini builds a Gemini backend from cfg.
func NewGemini(ctx context.Context, cfg config.InferenceConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key required (inference.api_key or GEMINI_API_KEY)")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Infer(ctx context.Context, prompt string, schema Schema) (json.RawMessage, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(instructions(prompt, schema)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}
	return ExtractJSON(resp.Text())
}
