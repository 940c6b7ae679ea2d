package adapter

import (
	"context"

	"gpt-queue/internal/domain/model"
)

// Dispatcher delivers a payload to one destination. It never retries.
type Dispatcher interface {
	Deliver(ctx context.Context, dest model.Destination, p model.Payload) model.Outcome
}

// WebhookSender POSTs a rendered payload to a URI.
type WebhookSender interface {
	Post(ctx context.Context, url string, p model.Payload) model.Outcome
}

// ChatPlatform is the subset of the chat service the dispatcher needs.
type ChatPlatform interface {
	// IsMember reports whether the bot itself may post in the channel.
	IsMember(ctx context.Context, channelID string) (bool, error)
	PostToChannel(ctx context.Context, channelID string, p model.Payload) model.Outcome
	SendDirect(ctx context.Context, recipientID string, p model.Payload) model.Outcome
}
