package ai

import (
	"context"
	"time"

	"gpt-queue/internal/domain/ports/adapter"
)

var _ adapter.CompletionProvider = (*EchoProvider)(nil)

// EchoProvider answers with the prompt itself. Used in dev mode and tests;
// it never touches the network.
type EchoProvider struct {
	delay time.Duration
}

func NewEchoProvider(delay time.Duration) *EchoProvider {
	return &EchoProvider{delay: delay}
}

func (e *EchoProvider) Name() string  { return "echo" }
func (e *EchoProvider) Model() string { return "echo" }

func (e *EchoProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	// Simulate slight processing time and respect ctx
	select {
	case <-time.After(e.delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "echo: " + prompt, nil
}
