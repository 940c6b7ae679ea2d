package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"gpt-queue/internal/domain"
	"gpt-queue/internal/domain/ports/adapter"
	"gpt-queue/internal/infra/metrics"
)

var _ adapter.CompletionEngine = (*SafeEngine)(nil)

type EngineConfig struct {
	ContextWindow int
	ReplyMargin   int
	Timeout       time.Duration
}

// SafeEngine turns any CompletionProvider into a CompletionEngine: it sizes
// the reply budget, bounds the call in time and converts every failure,
// panics included, into a Completion.
type SafeEngine struct {
	provider adapter.CompletionProvider
	counter  adapter.TokenCounter
	cfg      EngineConfig
	log      *zerolog.Logger
}

func NewSafeEngine(p adapter.CompletionProvider, counter adapter.TokenCounter, cfg EngineConfig, logger *zerolog.Logger) *SafeEngine {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 4097
	}
	if cfg.ReplyMargin <= 0 {
		cfg.ReplyMargin = 150
	}
	if counter == nil {
		counter = EstimateCounter{}
	}
	l := logger.With().Str("component", "SafeEngine").Str("provider", p.Name()).Logger()
	return &SafeEngine{provider: p, counter: counter, cfg: cfg, log: &l}
}

// Budget is the number of reply tokens left for prompt.
func (e *SafeEngine) Budget(prompt string) int {
	return e.cfg.ContextWindow - e.counter.Count(prompt) - e.cfg.ReplyMargin
}

func (e *SafeEngine) Complete(ctx context.Context, prompt string) (c adapter.Completion) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("provider panicked")
			c = adapter.Completion{Err: fmt.Errorf("provider panic: %v", r)}
		}
	}()

	tokens := e.counter.Count(prompt)
	budget := e.cfg.ContextWindow - tokens - e.cfg.ReplyMargin
	if budget <= 0 {
		metrics.BudgetBlocked(e.provider.Name(), e.provider.Model())
		e.log.Warn().Int("prompt_tokens", tokens).Msg("prompt leaves no reply budget")
		return adapter.Completion{Err: &adapter.ProviderError{
			Message: fmt.Sprintf("%s (%d prompt tokens, context window %d)", domain.ErrPromptTooLarge, tokens, e.cfg.ContextWindow),
		}}
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := e.provider.Generate(ctx, prompt, budget)
	latency := time.Since(start)
	c = adapter.Completion{Text: text, Err: err}
	metrics.ObserveCompletion(e.provider.Name(), e.provider.Model(), tokens, int(latency.Milliseconds()), c.OK())

	ev := e.log.Debug()
	if !c.OK() {
		ev = e.log.Warn().Err(err)
	}
	ev.Int("prompt_tokens", tokens).Int("max_tokens", budget).Dur("latency", latency).Msg("completion finished")
	return c
}
