package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gpt-queue/internal/domain"
)

const pollerLeaseKey = "gptq:poller:lease"

// Lease is a single-holder Redis lock with a fencing token. The worker holds
// it for as long as it polls so that a second worker refuses to start.
type Lease struct {
	cli   *redis.Client
	key   string
	ttl   time.Duration
	token string
	log   *zerolog.Logger
}

func NewPollerLease(c *Client, ttl time.Duration, logger *zerolog.Logger) *Lease {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	l := logger.With().Str("component", "PollerLease").Logger()
	return &Lease{cli: c.cli, key: pollerLeaseKey, ttl: ttl, token: uuid.NewString(), log: &l}
}

// TryAcquire returns domain.ErrLeaseHeld when another holder owns the key.
func (l *Lease) TryAcquire(ctx context.Context) error {
	ok, err := l.cli.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrLeaseHeld
	}
	return nil
}

var luaRefresh = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// Refresh extends the lease; domain.ErrLeaseHeld means it was lost.
func (l *Lease) Refresh(ctx context.Context) error {
	n, err := luaRefresh.Run(ctx, l.cli, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrLeaseHeld
	}
	return nil
}

func (l *Lease) Release(ctx context.Context) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{l.key}, l.token).Result()
	return err
}

// Hold acquires the lease and keeps refreshing it. The returned context is
// cancelled when the lease is lost or parent ends; the lease is released then.
func (l *Lease) Hold(parent context.Context) (context.Context, error) {
	if err := l.TryAcquire(parent); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(parent)

	go func() {
		defer cancel()
		t := time.NewTicker(l.ttl / 3)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
				if err := l.Release(rctx); err != nil {
					l.log.Warn().Err(err).Msg("lease release failed")
				}
				rcancel()
				return
			case <-t.C:
				err := l.Refresh(ctx)
				if errors.Is(err, domain.ErrLeaseHeld) {
					l.log.Error().Msg("poller lease lost")
					return
				}
				if err != nil {
					// transient; the key survives until ttl
					l.log.Warn().Err(err).Msg("lease refresh failed")
				}
			}
		}
	}()
	return ctx, nil
}
