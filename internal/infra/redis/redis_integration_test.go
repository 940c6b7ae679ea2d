//go:build integration

package redis

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpt-queue/internal/config"
	"gpt-queue/internal/domain"
)

var testClient *Client

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("could not construct docker pool: %s", err)
	}
	pool.MaxWait = 30 * time.Second

	res, err := pool.RunWithOptions(&dockertest.RunOptions{Repository: "redis", Tag: "7-alpine"},
		func(config *docker.HostConfig) {
			config.AutoRemove = true
			config.RestartPolicy = docker.RestartPolicy{Name: "no"}
		})
	if err != nil {
		log.Fatalf("could not start redis container: %s", err)
	}

	cfg := &config.RedisConfig{URL: fmt.Sprintf("localhost:%s", res.GetPort("6379/tcp"))}
	if err := pool.Retry(func() error {
		var err error
		testClient, err = NewClient(context.Background(), cfg)
		return err
	}); err != nil {
		_ = pool.Purge(res)
		log.Fatalf("could not connect to redis: %s", err)
	}

	code := m.Run()
	_ = testClient.Close()
	_ = pool.Purge(res)
	os.Exit(code)
}

func TestDirectory_Integration(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory(testClient)

	require.NoError(t, d.Remember(ctx, "@Alice", "1001"))

	id, err := d.Resolve(ctx, "@alice")
	require.NoError(t, err)
	assert.Equal(t, "1001", id)

	id, err = d.Resolve(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "1001", id)

	_, err = d.Resolve(ctx, "@nobody")
	assert.ErrorIs(t, err, domain.ErrRecipientUnknown)

	id, err = d.Resolve(ctx, "<@U77|carol>")
	require.NoError(t, err)
	assert.Equal(t, "U77", id)
}

func TestLease_Integration(t *testing.T) {
	ctx := context.Background()
	nop := zerolog.Nop()

	first := NewPollerLease(testClient, time.Second, &nop)
	second := NewPollerLease(testClient, time.Second, &nop)

	require.NoError(t, first.TryAcquire(ctx))
	assert.ErrorIs(t, second.TryAcquire(ctx), domain.ErrLeaseHeld)

	require.NoError(t, first.Refresh(ctx))
	assert.ErrorIs(t, second.Refresh(ctx), domain.ErrLeaseHeld, "only the holder can refresh")

	require.NoError(t, second.Release(ctx), "foreign release is a no-op")
	assert.ErrorIs(t, second.TryAcquire(ctx), domain.ErrLeaseHeld)

	require.NoError(t, first.Release(ctx))
	require.NoError(t, second.TryAcquire(ctx))
	require.NoError(t, second.Release(ctx))
}

func TestLease_HoldReleasesOnCancel(t *testing.T) {
	nop := zerolog.Nop()
	parent, cancel := context.WithCancel(context.Background())

	holder := NewPollerLease(testClient, 600*time.Millisecond, &nop)
	held, err := holder.Hold(parent)
	require.NoError(t, err)

	// survives several refresh periods
	time.Sleep(time.Second)
	assert.NoError(t, held.Err())

	cancel()
	<-held.Done()

	other := NewPollerLease(testClient, time.Second, &nop)
	require.Eventually(t, func() bool {
		return other.TryAcquire(context.Background()) == nil
	}, 2*time.Second, 50*time.Millisecond)
	_ = other.Release(context.Background())
}

func TestRateLimiter_Integration(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testClient.Del(ctx, CommandKey("it", "U9")))

	rl := NewRateLimiter(testClient, 2, 2*time.Second)
	for _, want := range []bool{true, true, false} {
		ok, err := rl.Allow(ctx, "it", "U9")
		require.NoError(t, err)
		assert.Equal(t, want, ok)
	}
	ttl, err := testClient.cli.TTL(ctx, CommandKey("it", "U9")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
