package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"authgate/internal/session/revocation"
	"authgate/pkg/domain"
	"authgate/pkg/platform/sentinel"
)

type StoreSuite struct {
	suite.Suite
	now         time.Time
	codec       *Codec
	revocations *revocation.InMemory
	store       *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.now = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	codec, err := NewCodec(testSecret, 30*24*time.Hour, WithCodecClock(clock))
	s.Require().NoError(err)
	s.codec = codec
	s.revocations = revocation.NewInMemory(clock)
	s.store = NewStore(codec, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithRevocations(s.revocations),
		WithStoreClock(clock),
	)
}

// carry copies the cookies written to rec onto a fresh request.
func carry(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func (s *StoreSuite) TestSetGetRoundTrip() {
	user := &domain.UserProfile{ID: "u1", Name: "a@b.com", Email: "a@b.com", Provider: domain.ProviderLocal}

	rec := httptest.NewRecorder()
	s.Require().NoError(s.store.Set(rec, "tok123", user))

	creds, ok := s.store.Get(carry(rec))
	s.Require().True(ok)
	s.Equal("tok123", creds.Token)
	s.NotEmpty(creds.TokenID)
	s.True(creds.HasUser())

	got, err := creds.User()
	s.Require().NoError(err)
	s.Equal(user, got)
}

func (s *StoreSuite) TestCookieAttributes() {
	rec := httptest.NewRecorder()
	s.Require().NoError(s.store.Set(rec, "tok123", nil))

	cookies := rec.Result().Cookies()
	s.Require().Len(cookies, 2)
	names := map[string]bool{}
	for _, c := range cookies {
		names[c.Name] = true
		s.Equal("/", c.Path)
		s.True(c.HttpOnly)
		s.Equal(http.SameSiteLaxMode, c.SameSite)
		s.Equal(30*24*60*60, c.MaxAge)
		s.False(c.Secure)
	}
	s.True(names[TokenCookie])
	s.True(names[UserCookie])

	s.Run("secure in production", func() {
		secure := NewStore(s.codec, slog.New(slog.NewTextHandler(io.Discard, nil)), WithSecureCookies(true))
		rec := httptest.NewRecorder()
		s.Require().NoError(secure.Set(rec, "tok123", nil))
		for _, c := range rec.Result().Cookies() {
			s.True(c.Secure)
		}
	})
}

func (s *StoreSuite) TestSetWithoutUserStoresDegradedProfile() {
	rec := httptest.NewRecorder()
	s.Require().NoError(s.store.Set(rec, "tok123", nil))

	creds, ok := s.store.Get(carry(rec))
	s.Require().True(ok)
	user, err := creds.User()
	s.Require().NoError(err)
	s.Equal(domain.DegradedProfile("tok123"), *user)
}

func (s *StoreSuite) TestSetRejectsEmptyToken() {
	rec := httptest.NewRecorder()
	err := s.store.Set(rec, "", nil)
	s.ErrorIs(err, sentinel.ErrInvalidState)
	s.Empty(rec.Result().Cookies(), "no cookie written on failure")
}

func (s *StoreSuite) TestGet() {
	s.Run("no cookies", func() {
		_, ok := s.store.Get(httptest.NewRequest(http.MethodGet, "/", nil))
		s.False(ok)
	})

	s.Run("unsigned token cookie reads as absent", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookie, Value: "tok123"})
		_, ok := s.store.Get(req)
		s.False(ok)
	})

	s.Run("expired token reads as absent", func() {
		rec := httptest.NewRecorder()
		s.Require().NoError(s.store.Set(rec, "tok123", nil))
		req := carry(rec)

		s.now = s.now.Add(31 * 24 * time.Hour)
		_, ok := s.store.Get(req)
		s.False(ok)
	})

	s.Run("tampered user cookie keeps the token", func() {
		rec := httptest.NewRecorder()
		s.Require().NoError(s.store.Set(rec, "tok123", nil))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		for _, c := range rec.Result().Cookies() {
			if c.Name == UserCookie {
				c.Value = "forged"
			}
			req.AddCookie(c)
		}

		creds, ok := s.store.Get(req)
		s.Require().True(ok)
		s.Equal("tok123", creds.Token)
		s.False(creds.HasUser())
	})
}

func (s *StoreSuite) TestClear() {
	rec := httptest.NewRecorder()
	s.store.Clear(rec)

	cookies := rec.Result().Cookies()
	s.Require().Len(cookies, 2)
	for _, c := range cookies {
		s.Empty(c.Value)
		s.Less(c.MaxAge, 0)
	}
}

func (s *StoreSuite) TestRevoke() {
	rec := httptest.NewRecorder()
	s.Require().NoError(s.store.Set(rec, "tok123", nil))
	req := carry(rec)

	creds, ok := s.store.Get(req)
	s.Require().True(ok)
	s.Require().NoError(s.store.Revoke(context.Background(), creds))

	_, ok = s.store.Get(req)
	s.False(ok, "revoked cookie replayed after logout reads as absent")

	fresh := httptest.NewRecorder()
	s.Require().NoError(s.store.Set(fresh, "tok123", nil))
	_, ok = s.store.Get(carry(fresh))
	s.True(ok, "a new session for the same token is unaffected")
}

type failingList struct{}

func (failingList) Revoke(context.Context, string, time.Duration) error {
	return errors.New("down")
}

func (failingList) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("down")
}

func TestRevocationLookupFailureReadsAbsent(t *testing.T) {
	var logs bytes.Buffer
	codec, err := NewCodec(testSecret, time.Hour)
	require.NoError(t, err)
	store := NewStore(codec, slog.New(slog.NewTextHandler(&logs, nil)), WithRevocations(failingList{}))

	rec := httptest.NewRecorder()
	require.NoError(t, store.Set(rec, "tok123", nil))

	_, ok := store.Get(carry(rec))
	assert.False(t, ok)
	assert.Contains(t, logs.String(), "revocation lookup failed")
}

func TestCredentialsUserMalformed(t *testing.T) {
	creds := Credentials{Token: "tok123", RawUser: "{not json"}
	_, err := creds.User()
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}
