package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoAuth(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("Authorization")))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fetchAuth(t *testing.T, hc *http.Client, req *http.Request) string {
	t.Helper()
	resp, err := hc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestTransport(t *testing.T) {
	srv := echoAuth(t)
	static := func(tok string) TokenSource {
		return TokenSourceFunc(func(context.Context) string { return tok })
	}

	t.Run("attaches bearer token", func(t *testing.T) {
		hc := &http.Client{Transport: &Transport{Source: static("tok123")}}
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		assert.Equal(t, "Bearer tok123", fetchAuth(t, hc, req))
		assert.Empty(t, req.Header.Get("Authorization"), "caller request must not be modified")
	})

	t.Run("keeps explicit header", func(t *testing.T) {
		hc := &http.Client{Transport: &Transport{Source: static("tok123")}}
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		req.Header.Set("Authorization", "Bearer explicit")
		assert.Equal(t, "Bearer explicit", fetchAuth(t, hc, req))
	})

	t.Run("empty token proceeds unauthenticated", func(t *testing.T) {
		hc := &http.Client{Transport: &Transport{Source: static("")}}
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		assert.Empty(t, fetchAuth(t, hc, req))
	})

	t.Run("server-side placeholder is never sent", func(t *testing.T) {
		hc := &http.Client{Transport: &Transport{Source: static(ServerSidePlaceholder)}}
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		assert.Empty(t, fetchAuth(t, hc, req))
	})

	t.Run("bypassed requests are left alone", func(t *testing.T) {
		hc := &http.Client{Transport: &Transport{Source: static("tok123")}}
		req, _ := http.NewRequestWithContext(bypassInterceptor(context.Background()), http.MethodGet, srv.URL, nil)
		assert.Empty(t, fetchAuth(t, hc, req))
	})
}

func TestRegisterInterceptorOnce(t *testing.T) {
	interceptorRegistered.Store(false)
	t.Cleanup(func() { interceptorRegistered.Store(false) })

	srv := echoAuth(t)
	hc := &http.Client{}
	first := TokenSourceFunc(func(context.Context) string { return "first" })
	second := TokenSourceFunc(func(context.Context) string { return "second" })

	assert.True(t, RegisterInterceptor(hc, first))
	assert.False(t, RegisterInterceptor(hc, second))

	tr, ok := hc.Transport.(*Transport)
	require.True(t, ok)
	assert.Nil(t, tr.Base, "transport must wrap exactly once")

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	assert.Equal(t, "Bearer first", fetchAuth(t, hc, req))
}

func TestFileMirror(t *testing.T) {
	m := FileMirror{Path: t.TempDir() + "/nested/session.json"}

	sess, err := m.Load()
	require.NoError(t, err)
	assert.Nil(t, sess)

	require.NoError(t, m.Save("tok123", nil))
	sess, err = m.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok123", sess.Token)

	require.NoError(t, m.Clear())
	require.NoError(t, m.Clear())
}
