package events

import (
	"context"

	"gpt-queue/internal/domain/ports/adapter"
)

var _ adapter.JobEventPublisher = NoopPublisher{}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, adapter.JobEvent) error { return nil }
func (NoopPublisher) Close() error                                    { return nil }
