package adapter

import "context"

// RecipientDirectory maps user-facing handles to platform identifiers.
type RecipientDirectory interface {
	Remember(ctx context.Context, handle, id string) error
	// Resolve returns domain.ErrRecipientUnknown for references it cannot map.
	Resolve(ctx context.Context, ref string) (string, error)
}
