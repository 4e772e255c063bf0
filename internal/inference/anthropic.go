package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ankittk/agentsync/internal/config"
)

// Anthropic calls the Messages API and extracts JSON from the text reply.
type Anthropic struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropic builds an Anthropic backend from cfg.
func NewAnthropic(cfg config.InferenceConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: api key required (inference.api_key or ANTHROPIC_API_KEY)")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	model := anthropic.ModelClaude3_5Sonnet20241022
	if cfg.Model != "" {
		model = anthropic.Model(cfg.Model)
	}
	return &Anthropic{client: &client, model: model, maxTokens: 2048}, nil
}

func (a *Anthropic) Infer(ctx context.Context, prompt string, schema Schema) (json.RawMessage, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: "You are an agent in a multi-agent workspace. Reply with JSON only."},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(instructions(prompt, schema))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	return ExtractJSON(text.String())
}
