package ai

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"gpt-queue/internal/domain/ports/adapter"
)

var _ adapter.CompletionProvider = (*GeminiProvider)(nil)

type GeminiProvider struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiProvider creates a Gemini provider using the official SDK.
func NewGeminiProvider(ctx context.Context, apiKey, baseURL, model string, temperature float64) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiProvider{client: c, model: model, temperature: float32(temperature)}, nil
}

func (g *GeminiProvider) Name() string  { return "gemini" }
func (g *GeminiProvider) Model() string { return g.model }

func (g *GeminiProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &adapter.ProviderError{Message: apiErr.Message}
		}
		var apiErrPtr *genai.APIError
		if errors.As(err, &apiErrPtr) {
			return "", &adapter.ProviderError{Message: apiErrPtr.Message}
		}
		return "", err
	}
	return candidateText(resp), nil
}

// candidateText joins the text parts of the first candidate.
func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && p.Text != "" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
