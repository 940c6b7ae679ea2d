package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gpt-queue/internal/config"
)

// New creates a zerolog logger configured from config.
// Supports "trace" | "debug" | "info" | "warn" | "error" levels
// and "json" | "console" formats. Sampling can be enabled to reduce noise in prod.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	return NewWithWriter(cfg, dev, os.Stdout)
}

func NewWithWriter(cfg config.LogConfig, dev bool, w io.Writer) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if strings.ToLower(cfg.Format) == "console" || dev {
		out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		base = zerolog.New(out).Level(level).With().Timestamp().Logger()
	} else {
		base = zerolog.New(w).Level(level).With().Timestamp().Logger()
	}

	if cfg.Sampling && !dev {
		// Simple sampling: keep first 100, then 1 every 100 thereafter.
		sampled := base.Sample(&zerolog.BasicSampler{N: 100})
		return &sampled
	}
	return &base
}

type ctxKey string

const (
	ctxTraceID     ctxKey = "trace_id"
	ctxRequesterID ctxKey = "requester_id"
	ctxJobID       ctxKey = "job_id"
)

// With attaches the trace_id, requester_id and job_id carried by ctx.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	l := base.With()
	if v, ok := ctx.Value(ctxTraceID).(string); ok {
		l = l.Str("trace_id", v)
	}
	if v, ok := ctx.Value(ctxRequesterID).(string); ok {
		l = l.Str("requester_id", v)
	}
	if v, ok := ctx.Value(ctxJobID).(int64); ok {
		l = l.Int64("job_id", v)
	}
	logger := l.Logger()
	return &logger
}

// TraceDuration logs start and end with elapsed duration at TRACE level.
// Usage: defer logging.TraceDuration(logger, "Poller.ProcessOne")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	start := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		logger.Trace().Str("method", name).Dur("duration", time.Since(start)).Msg("finish")
	}
}

// Redact hides prompt text when not in dev; keep short preview.
func Redact(s string, dev bool) string {
	if dev {
		return s
	}
	r := []rune(s)
	if len(r) <= 8 {
		return "***"
	}
	return string(r[:4]) + "..." + string(r[len(r)-2:])
}

// Helpers to put IDs into context.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxTraceID, id)
}
func WithRequesterID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequesterID, id)
}
func WithJobID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxJobID, id)
}

func TraceIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxTraceID).(string)
	return v
}
