package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gpt-queue/internal/domain"
)

// ProviderError is a failure reported by the completion provider itself
// (as opposed to a transport failure).
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string { return e.Message }

// Completion is either completion text or the error that prevented it.
type Completion struct {
	Text string
	Err  error
}

// Output is what gets delivered and stored: the text, or a description of the failure.
func (c Completion) Output() string {
	if c.Err != nil {
		var pe *ProviderError
		if errors.As(c.Err, &pe) {
			return fmt.Sprintf("GPT Error: %s", pe.Message)
		}
		return fmt.Sprintf("REST Error: %s", c.Err.Error())
	}
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Sprintf("GPT Error: %s", domain.ErrEmptyCompletion.Error())
	}
	return strings.TrimSpace(c.Text)
}

func (c Completion) OK() bool {
	return c.Err == nil && strings.TrimSpace(c.Text) != ""
}

// CompletionEngine turns a prompt into a Completion. It never returns a Go error.
type CompletionEngine interface {
	Complete(ctx context.Context, prompt string) Completion
}

// CompletionProvider is a single backend (OpenAI, Gemini, ...).
type CompletionProvider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// TokenCounter estimates prompt size in model tokens.
type TokenCounter interface {
	Count(text string) int
}
