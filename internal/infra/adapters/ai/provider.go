package ai

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"gpt-queue/internal/config"
	"gpt-queue/internal/domain/ports/adapter"
)

// NewEngine builds the configured provider behind a SafeEngine.
func NewEngine(ctx context.Context, cfg config.AIConfig, logger *zerolog.Logger) (*SafeEngine, error) {
	var (
		p   adapter.CompletionProvider
		err error
	)
	switch cfg.Provider {
	case "openai":
		p, err = NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temp(), cfg.Timeout)
	case "gemini":
		p, err = NewGeminiProvider(ctx, cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temp())
	case "echo":
		p = NewEchoProvider(0)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s provider: %w", cfg.Provider, err)
	}

	var counter adapter.TokenCounter = EstimateCounter{}
	if cfg.Provider == "openai" {
		counter = NewTiktokenCounter(p.Model(), logger)
	}
	return NewSafeEngine(p, counter, EngineConfig{
		ContextWindow: cfg.ContextWindow,
		ReplyMargin:   cfg.ReplyMargin,
		Timeout:       cfg.Timeout,
	}, logger), nil
}
