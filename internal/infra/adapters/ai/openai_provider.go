package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"gpt-queue/internal/domain/ports/adapter"
)

// Compile-time assurance this provider satisfies the port
var _ adapter.CompletionProvider = (*OpenAIProvider)(nil)

// OpenAIProvider generates completions with the Chat Completions API.
// A custom base URL points it at any OpenAI-compatible gateway.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	temperature float64
}

func NewOpenAIProvider(apiKey, baseURL, model string, temperature float64, timeout time.Duration) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(0), // one attempt per job
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: temperature,
	}, nil
}

func (o *OpenAIProvider) Name() string  { return "openai" }
func (o *OpenAIProvider) Model() string { return o.model }

func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(o.temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			msg := strings.TrimSpace(apiErr.Message)
			if msg == "" {
				msg = apiErr.Error()
			}
			return "", &adapter.ProviderError{Message: msg}
		}
		return "", err
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", &adapter.ProviderError{Message: "no choice content"}
}
