package redis

import (
	"context"
	"fmt"
	"time"

	"gpt-queue/internal/domain/ports/adapter"
)

var _ adapter.CommandLimiter = (*RateLimiter)(nil)

// RateLimiter is a fixed-window counter per requester and origin.
type RateLimiter struct {
	client RedisClient
	limit  int
	window time.Duration
}

func NewRateLimiter(client RedisClient, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{client: client, limit: limit, window: window}
}

// Allow counts one command. A non-positive limit disables limiting.
func (r *RateLimiter) Allow(ctx context.Context, origin, requesterID string) (bool, error) {
	if r.limit <= 0 {
		return true, nil
	}
	key := CommandKey(origin, requesterID)
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window); err != nil {
			return false, err
		}
	}

	return count <= int64(r.limit), nil
}

func CommandKey(origin, requesterID string) string {
	return fmt.Sprintf("gptq:rate:%s:%s", origin, requesterID)
}
