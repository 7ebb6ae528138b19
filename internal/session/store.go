package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"authgate/internal/platform/metrics"
	"authgate/internal/session/revocation"
	"authgate/pkg/domain"
	"authgate/pkg/platform/sentinel"
)

const (
	TokenCookie = "session_token"
	UserCookie  = "session_user"
)

// Credentials is what the session cookies carry after verification.
type Credentials struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
	// RawUser is the profile snapshot as stored; empty when the user cookie is
	// absent or failed verification.
	RawUser string
}

// HasUser reports whether a profile snapshot was stored alongside the token.
func (c Credentials) HasUser() bool {
	return c.RawUser != ""
}

// User decodes the stored profile snapshot. It returns nil without error when
// there is no snapshot.
func (c Credentials) User() (*domain.UserProfile, error) {
	if c.RawUser == "" {
		return nil, nil
	}
	var u domain.UserProfile
	if err := json.Unmarshal([]byte(c.RawUser), &u); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %v", UserCookie, sentinel.ErrInvalidState, err)
	}
	u = u.Normalize()
	return &u, nil
}

// Store reads and writes the session_token and session_user cookies.
type Store struct {
	codec       *Codec
	secure      bool
	revocations revocation.List
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSecureCookies marks cookies Secure. Enable in production.
func WithSecureCookies(secure bool) StoreOption {
	return func(s *Store) {
		s.secure = secure
	}
}

// WithRevocations consults list on every read and records ids on Revoke.
func WithRevocations(list revocation.List) StoreOption {
	return func(s *Store) {
		s.revocations = list
	}
}

func WithStoreMetrics(m *metrics.Metrics) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithStoreClock overrides the time source used for revocation TTLs.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a cookie store.
func NewStore(codec *Codec, logger *slog.Logger, opts ...StoreOption) *Store {
	s := &Store{codec: codec, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set seals token and user and writes both cookies. Both values are sealed
// before any header is written, so either both cookies are set or neither is.
// A nil user is stored as the degraded profile for token.
func (s *Store) Set(w http.ResponseWriter, token string, user *domain.UserProfile) error {
	if token == "" {
		return fmt.Errorf("set session: empty token: %w", sentinel.ErrInvalidState)
	}
	profile := domain.DegradedProfile(token)
	if user != nil {
		profile = user.Normalize()
	}
	rawUser, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("set session: encode user: %w", err)
	}

	sealedToken, err := s.codec.Seal(TokenCookie, token)
	if err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	sealedUser, err := s.codec.Seal(UserCookie, string(rawUser))
	if err != nil {
		return fmt.Errorf("set session: %w", err)
	}

	http.SetCookie(w, s.cookie(TokenCookie, sealedToken))
	http.SetCookie(w, s.cookie(UserCookie, sealedUser))
	return nil
}

// Get reads the session cookies. The token cookie decides presence: a missing,
// expired, tampered or revoked token reads as absent. A user cookie that fails
// verification is dropped and the token is returned alone.
func (s *Store) Get(r *http.Request) (Credentials, bool) {
	ctx := r.Context()
	tc, err := r.Cookie(TokenCookie)
	if err != nil || tc.Value == "" {
		return Credentials{}, false
	}
	token, err := s.codec.Open(TokenCookie, tc.Value)
	if err != nil {
		s.reject(ctx, TokenCookie, err)
		return Credentials{}, false
	}
	if token.Value == "" {
		s.reject(ctx, TokenCookie, sentinel.ErrInvalidState)
		return Credentials{}, false
	}
	if s.isRevoked(ctx, token.ID) {
		return Credentials{}, false
	}

	creds := Credentials{
		Token:     token.Value,
		TokenID:   token.ID,
		ExpiresAt: token.ExpiresAt,
	}
	if uc, err := r.Cookie(UserCookie); err == nil && uc.Value != "" {
		user, err := s.codec.Open(UserCookie, uc.Value)
		if err != nil {
			s.reject(ctx, UserCookie, err)
		} else {
			creds.RawUser = user.Value
		}
	}
	return creds, true
}

// Clear expires both cookies immediately.
func (s *Store) Clear(w http.ResponseWriter) {
	for _, name := range []string{TokenCookie, UserCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   s.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// Revoke records the token cookie id until it would have expired. It is a
// no-op without a revocation list or for already expired credentials.
func (s *Store) Revoke(ctx context.Context, creds Credentials) error {
	if s.revocations == nil || creds.TokenID == "" {
		return nil
	}
	ttl := creds.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.revocations.Revoke(ctx, creds.TokenID, ttl); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *Store) cookie(name string, sealed Sealed) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    sealed.Raw,
		Path:     "/",
		MaxAge:   int(s.codec.MaxAge().Seconds()),
		Expires:  sealed.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Store) isRevoked(ctx context.Context, id string) bool {
	if s.revocations == nil {
		return false
	}
	start := time.Now()
	revoked, err := s.revocations.IsRevoked(ctx, id)
	s.metrics.ObserveRevocationCheck(time.Since(start))
	if err != nil {
		s.logger.WarnContext(ctx, "revocation lookup failed, treating session as absent", "error", err)
		return true
	}
	if revoked {
		s.metrics.IncCookieRejection(TokenCookie, "revoked")
	}
	return revoked
}

func (s *Store) reject(ctx context.Context, name string, err error) {
	reason := "tampered"
	switch {
	case errors.Is(err, sentinel.ErrExpired):
		reason = "expired"
	case errors.Is(err, sentinel.ErrInvalidState):
		reason = "invalid"
	}
	s.metrics.IncCookieRejection(name, reason)
	s.logger.DebugContext(ctx, "session cookie rejected", "cookie", name, "reason", reason)
}
