// Package llm wraps the language model API used by the tailoring pipeline.
// Only the JSON-in, JSON-out call shape is exposed; pipeline steps stay
// ignorant of the provider.
package llm

import (
	"context"
	"encoding/json"
	"errors"

	genai "google.golang.org/genai"
)

// ErrEmptyResponse is returned when the model produced no usable candidate.
var ErrEmptyResponse = errors.New("llm: empty response")

// Client generates a JSON document from a prompt and a JSON-encodable input.
type Client interface {
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
}

// GeminiClient is a thin wrapper around the official genai client. The API
// key is read from the environment (GEMINI_API_KEY / GOOGLE_API_KEY) by the
// underlying client.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

// NewGeminiClient creates a client bound to one model.
func NewGeminiClient(ctx context.Context, model string) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

// GenerateJSON concatenates prompt and input, asks for application/json and
// returns the model's JSON verbatim.
func (g *GeminiClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	in, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return nil, err
	}
	full := prompt + "\n\n[INPUT JSON]\n" + string(in)

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}
	return json.RawMessage(resp.Candidates[0].Content.Parts[0].Text), nil
}
