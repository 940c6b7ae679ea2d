package adapter

import "context"

// CommandLimiter throttles inbound commands per requester.
type CommandLimiter interface {
	Allow(ctx context.Context, origin, requesterID string) (bool, error)
}
