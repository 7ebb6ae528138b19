package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/pkg/platform/sentinel"
)

func TestInMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	list := NewInMemory(func() time.Time { return now })

	t.Run("unknown id is not revoked", func(t *testing.T) {
		revoked, err := list.IsRevoked(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("revoked id reads revoked until ttl elapses", func(t *testing.T) {
		require.NoError(t, list.Revoke(ctx, "jti-1", time.Hour))

		revoked, err := list.IsRevoked(ctx, "jti-1")
		require.NoError(t, err)
		assert.True(t, revoked)

		now = now.Add(time.Hour)
		revoked, err = list.IsRevoked(ctx, "jti-1")
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("expired entries are pruned on write", func(t *testing.T) {
		require.NoError(t, list.Revoke(ctx, "jti-2", time.Minute))
		assert.Equal(t, 1, list.Len())
	})

	t.Run("non-positive ttl is rejected", func(t *testing.T) {
		err := list.Revoke(ctx, "jti-3", 0)
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})

	t.Run("empty id is ignored", func(t *testing.T) {
		require.NoError(t, list.Revoke(ctx, "", time.Hour))
		revoked, err := list.IsRevoked(ctx, "")
		require.NoError(t, err)
		assert.False(t, revoked)
	})
}
