package adapter

import (
	"context"

	"gpt-queue/internal/domain/model"
)

type JobEvent struct {
	ID     int64          `json:"id"`
	State  model.JobState `json:"state"`
	Result int            `json:"result"`
}

// JobEventPublisher announces terminal transitions to interested consumers.
type JobEventPublisher interface {
	Publish(ctx context.Context, ev JobEvent) error
	Close() error
}
