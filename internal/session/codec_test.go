package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/pkg/platform/sentinel"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestNewCodec(t *testing.T) {
	_, err := NewCodec([]byte("short"), time.Hour)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)

	_, err = NewCodec(testSecret, 0)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestCodecSealOpen(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	codec, err := NewCodec(testSecret, 30*24*time.Hour, WithCodecClock(func() time.Time { return now }))
	require.NoError(t, err)

	sealed, err := codec.Seal(TokenCookie, "tok123")
	require.NoError(t, err)
	assert.NotEmpty(t, sealed.ID)
	assert.Equal(t, now.Add(30*24*time.Hour), sealed.ExpiresAt)

	t.Run("round trip", func(t *testing.T) {
		opened, err := codec.Open(TokenCookie, sealed.Raw)
		require.NoError(t, err)
		assert.Equal(t, "tok123", opened.Value)
		assert.Equal(t, sealed.ID, opened.ID)
		assert.True(t, sealed.ExpiresAt.Equal(opened.ExpiresAt))
	})

	t.Run("value sealed for one cookie does not open as another", func(t *testing.T) {
		_, err := codec.Open(UserCookie, sealed.Raw)
		assert.ErrorIs(t, err, sentinel.ErrTampered)
	})

	t.Run("modified value is tampered", func(t *testing.T) {
		parts := strings.Split(sealed.Raw, ".")
		require.Len(t, parts, 3)
		parts[2] = strings.Repeat("A", len(parts[2]))
		_, err := codec.Open(TokenCookie, strings.Join(parts, "."))
		assert.ErrorIs(t, err, sentinel.ErrTampered)
	})

	t.Run("different secret is tampered", func(t *testing.T) {
		other, err := NewCodec([]byte("another-secret-another-secret!!"), time.Hour)
		require.NoError(t, err)
		_, err = other.Open(TokenCookie, sealed.Raw)
		assert.ErrorIs(t, err, sentinel.ErrTampered)
	})

	t.Run("garbage is tampered", func(t *testing.T) {
		_, err := codec.Open(TokenCookie, "not-a-sealed-value")
		assert.ErrorIs(t, err, sentinel.ErrTampered)
	})

	t.Run("expired after max age", func(t *testing.T) {
		later, err := NewCodec(testSecret, 30*24*time.Hour,
			WithCodecClock(func() time.Time { return now.Add(30*24*time.Hour + time.Minute) }))
		require.NoError(t, err)
		_, err = later.Open(TokenCookie, sealed.Raw)
		assert.ErrorIs(t, err, sentinel.ErrExpired)
	})
}
