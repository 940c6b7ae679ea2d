package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"gpt-queue/internal/domain"
	"gpt-queue/internal/domain/model"
	"gpt-queue/internal/domain/ports/adapter"
	"gpt-queue/internal/infra/metrics"
)

var _ adapter.Dispatcher = (*Dispatcher)(nil)

// Dispatcher routes a payload by destination kind. A channel the bot cannot
// post to falls back to the destination's Fallback with an explanatory note.
// Nothing is retried.
type Dispatcher struct {
	webhook adapter.WebhookSender
	chat    adapter.ChatPlatform // nil when no chat platform is configured
	timeout time.Duration
	log     *zerolog.Logger
}

func NewDispatcher(webhook adapter.WebhookSender, chat adapter.ChatPlatform, timeout time.Duration, logger *zerolog.Logger) *Dispatcher {
	l := logger.With().Str("component", "Dispatcher").Logger()
	return &Dispatcher{webhook: webhook, chat: chat, timeout: timeout, log: &l}
}

func (d *Dispatcher) Deliver(ctx context.Context, dest model.Destination, p model.Payload) model.Outcome {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	out := d.route(ctx, dest, p)
	metrics.IncDelivery(string(out.Via), out.Delivered)
	if !out.Delivered {
		d.log.Warn().
			Err(out.Err).
			Int64("job_id", p.JobID).
			Str("kind", string(out.Via)).
			Int("status_code", out.StatusCode).
			Str("body", truncate(out.Body, 200)).
			Msg("delivery failed")
	}
	return out
}

func (d *Dispatcher) route(ctx context.Context, dest model.Destination, p model.Payload) model.Outcome {
	switch dest.Kind {
	case model.DestWebhook:
		return d.webhook.Post(ctx, dest.Address, p)
	case model.DestDirect:
		if d.chat == nil {
			return model.Outcome{Via: model.DestDirect, Err: fmt.Errorf("%w: no chat platform for direct message", domain.ErrUnsupportedTarget)}
		}
		return d.chat.SendDirect(ctx, dest.Address, p)
	case model.DestChannel:
		return d.toChannel(ctx, dest, p)
	default:
		return model.Outcome{Via: dest.Kind, Err: fmt.Errorf("%w: %q", domain.ErrUnsupportedTarget, dest.Kind)}
	}
}

func (d *Dispatcher) toChannel(ctx context.Context, dest model.Destination, p model.Payload) model.Outcome {
	member := false
	if d.chat != nil {
		ok, err := d.chat.IsMember(ctx, dest.Address)
		if err != nil {
			d.log.Warn().Err(err).Str("channel_id", dest.Address).Msg("membership check failed")
		}
		member = ok && err == nil
	}
	if member {
		return d.chat.PostToChannel(ctx, dest.Address, p)
	}

	fb := model.TargetDestination(dest.Fallback)
	if fb.Address == "" {
		return model.Outcome{Via: model.DestChannel, Err: fmt.Errorf("%w: not a member of %s and no fallback", domain.ErrUnsupportedTarget, dest.Address)}
	}
	p.Note = joinNote(p.Note, fmt.Sprintf("I am not a member of %s, so I am sending this to you privately.", dest.Address))
	return d.route(ctx, fb, p)
}

func joinNote(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n" + b
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
