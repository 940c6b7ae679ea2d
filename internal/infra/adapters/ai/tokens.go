package ai

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"

	"gpt-queue/internal/domain/ports/adapter"
)

var _ adapter.TokenCounter = (*TiktokenCounter)(nil)

const fallbackEncoding = "cl100k_base"

// TiktokenCounter counts BPE tokens for a model. The encoding is resolved
// lazily; when it cannot be loaded the counter degrades to EstimateTokens.
type TiktokenCounter struct {
	model string
	log   *zerolog.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewTiktokenCounter(model string, logger *zerolog.Logger) *TiktokenCounter {
	l := logger.With().Str("component", "TokenCounter").Str("model", model).Logger()
	return &TiktokenCounter{model: model, log: &l}
}

func (c *TiktokenCounter) Count(text string) int {
	c.once.Do(c.load)
	if c.enc == nil {
		return EstimateTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

func (c *TiktokenCounter) load() {
	enc, err := tiktoken.EncodingForModel(c.model)
	if err == nil {
		c.enc = enc
		return
	}
	enc, err2 := tiktoken.GetEncoding(fallbackEncoding)
	if err2 == nil {
		c.enc = enc
		return
	}
	c.log.Warn().Err(err2).Msg("tokenizer unavailable; using character estimate")
}

// EstimateTokens approximates one token per four characters, rounded up.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// EstimateCounter is a TokenCounter that never loads a vocabulary.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int { return EstimateTokens(text) }
