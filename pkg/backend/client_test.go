package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/pkg/domain"
	dErrors "authgate/pkg/domain-errors"
	"authgate/pkg/platform/sentinel"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)

	c, err := New("http://backend:8000/")
	require.NoError(t, err)
	assert.Equal(t, "http://backend:8000", c.baseURL.String())
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok","auth_provider":"hosted","version":"1.2.0"}`))
	})

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hosted", h.AuthProvider)
	assert.Equal(t, "1.2.0", h.Version)
}

func TestLogin(t *testing.T) {
	t.Run("returns token and normalized user", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/auth/login", r.URL.Path)
			var creds Credentials
			require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			assert.Equal(t, "a@b.com", creds.Email)
			assert.Equal(t, "secret", creds.Password)
			_, _ = w.Write([]byte(`{"token":"tok123","user":{"id":"u1","email":"a@b.com"}}`))
		})

		s, err := c.Login(context.Background(), Credentials{Email: "a@b.com", Password: "secret"})
		require.NoError(t, err)
		assert.Equal(t, "tok123", s.Token)
		require.NotNil(t, s.User)
		assert.Equal(t, domain.ID("u1"), s.User.ID)
		assert.Equal(t, "a@b.com", s.User.Name)
		assert.Equal(t, domain.ProviderLocal, s.User.Provider)
	})

	t.Run("rejected credentials are unauthorized", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Incorrect email or password"}`))
		})

		_, err := c.Login(context.Background(), Credentials{Email: "a@b.com", Password: "nope"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		assert.Contains(t, err.Error(), "Incorrect email or password")
	})

	t.Run("missing token is an error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"user":{"id":1}}`))
		})

		_, err := c.Login(context.Background(), Credentials{Email: "a@b.com", Password: "secret"})
		require.Error(t, err)
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})
}

func TestRegisterConflict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"detail":"Email already registered"}`))
	})

	_, err := c.Register(context.Background(), Credentials{Email: "a@b.com", Password: "longenough"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestMe(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":7,"name":"Ada","email":"ada@example.com"}`))
	})

	u, err := c.Me(context.Background(), "tok123")
	require.NoError(t, err)
	assert.Equal(t, domain.ID("7"), u.ID)
	assert.Equal(t, "Ada", u.Name)
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   dErrors.Code
		msg    string
	}{
		{"validation list", http.StatusUnprocessableEntity, `{"detail":[{"msg":"field required"},{"msg":"bad email"}]}`, dErrors.CodeInvalidInput, "field required; bad email"},
		{"bad request default", http.StatusBadRequest, `not json`, dErrors.CodeInvalidInput, "invalid request"},
		{"server error", http.StatusBadGateway, `{"detail":"down"}`, dErrors.CodeUnavailable, "backend returned 502"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := statusError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.code, dErrors.CodeOf(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Health(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel.ErrUnavailable))
	assert.Equal(t, dErrors.CodeUnavailable, dErrors.CodeOf(err))
}
