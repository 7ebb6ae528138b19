// Package revocation records logged-out session token ids until the sealed
// cookie carrying them would have expired anyway.
package revocation

import (
	"context"
	"fmt"
	"time"

	"authgate/pkg/platform/sentinel"
)

// List is a revocation list keyed by sealed cookie id.
type List interface {
	Revoke(ctx context.Context, id string, ttl time.Duration) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// Clock returns the current time.
type Clock func() time.Time

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	return nil
}
