// Package session owns the two session cookies: it seals their values, writes
// and clears them together, and reads them back.
package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"authgate/pkg/platform/sentinel"
)

const (
	// MinSecretLength is the shortest accepted signing secret.
	MinSecretLength = 16

	keyInfoPrefix = "authgate cookie v1 "
	keyLength     = 32
)

// Sealed is the result of sealing a value.
type Sealed struct {
	Raw       string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Opened is a verified value with its metadata.
type Opened struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

type cookieClaims struct {
	Value string `json:"v"`
	jwt.RegisteredClaims
}

// Codec seals cookie values as HS256 tokens. Each cookie name gets its own key
// derived from the secret, so a value sealed for one cookie never opens as
// another.
type Codec struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithCodecClock overrides the time source.
func WithCodecClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec creates a codec whose sealed values expire maxAge after issuance.
func NewCodec(secret []byte, maxAge time.Duration, opts ...CodecOption) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes: %w", MinSecretLength, sentinel.ErrInvalidState)
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("session max age must be positive: %w", sentinel.ErrInvalidState)
	}
	c := &Codec{secret: secret, maxAge: maxAge, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// MaxAge is the lifetime of sealed values.
func (c *Codec) MaxAge() time.Duration {
	return c.maxAge
}

// Seal signs value for the named cookie.
func (c *Codec) Seal(name, value string) (Sealed, error) {
	key, err := c.key(name)
	if err != nil {
		return Sealed{}, err
	}
	now := c.now().Truncate(time.Second)
	exp := now.Add(c.maxAge)
	id := uuid.NewString()
	claims := cookieClaims{
		Value: value,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return Sealed{}, fmt.Errorf("sign %s: %w", name, err)
	}
	return Sealed{Raw: raw, ID: id, IssuedAt: now, ExpiresAt: exp}, nil
}

// Open verifies a sealed value for the named cookie. It returns
// sentinel.ErrExpired past the hard expiry and sentinel.ErrTampered for any
// other verification failure.
func (c *Codec) Open(name, raw string) (Opened, error) {
	key, err := c.key(name)
	if err != nil {
		return Opened{}, err
	}
	claims := &cookieClaims{}
	_, err = jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(name),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Opened{}, fmt.Errorf("open %s: %w", name, sentinel.ErrExpired)
		}
		return Opened{}, fmt.Errorf("open %s: %w: %v", name, sentinel.ErrTampered, err)
	}
	return Opened{
		Value:     claims.Value,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (c *Codec) key(name string) ([]byte, error) {
	key := make([]byte, keyLength)
	r := hkdf.New(sha256.New, c.secret, nil, []byte(keyInfoPrefix+name))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key for %s: %w", name, err)
	}
	return key, nil
}
