package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "authgate:revoked:"

// Redis is a Redis-backed revocation list, shared by every gateway instance.
type Redis struct {
	client redis.Cmdable
}

// NewRedis wraps an existing client. The client lifecycle is managed by the caller.
func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

// Revoke stores a marker that expires with the cookie.
func (r *Redis) Revoke(ctx context.Context, id string, ttl time.Duration) error {
	if id == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	return r.client.Set(ctx, revokedKeyPrefix+id, "1", ttl).Err()
}

// IsRevoked returns false if the key doesn't exist (not revoked or expired).
func (r *Redis) IsRevoked(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	_, err := r.client.Get(ctx, revokedKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
