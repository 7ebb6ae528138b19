package client

import (
	"context"
	"net/http"
	"sync/atomic"
)

// TokenSource supplies the bearer token for an outbound request. An empty
// string means the request goes out unauthenticated.
type TokenSource interface {
	AccessToken(ctx context.Context) string
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) string

func (f TokenSourceFunc) AccessToken(ctx context.Context) string {
	return f(ctx)
}

// Transport attaches "Authorization: Bearer <token>" to requests that do not
// already carry an Authorization header.
type Transport struct {
	Base   http.RoundTripper
	Source TokenSource
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if req.Header.Get("Authorization") != "" || t.Source == nil || bypassed(req.Context()) {
		return base.RoundTrip(req)
	}
	token := t.Source.AccessToken(req.Context())
	if token == "" || token == ServerSidePlaceholder {
		return base.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request.
	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+token)
	return base.RoundTrip(authed)
}

type bypassKey struct{}

// bypassInterceptor marks the gateway's own session calls, which would
// otherwise recurse into hydration when the service shares its client with
// the interceptor.
func bypassInterceptor(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassKey{}, true)
}

func bypassed(ctx context.Context) bool {
	v, _ := ctx.Value(bypassKey{}).(bool)
	return v
}

var interceptorRegistered atomic.Bool

// RegisterInterceptor wraps hc's transport with a Transport backed by source.
// Only the first call in a process has any effect; it reports whether this
// call installed the interceptor.
func RegisterInterceptor(hc *http.Client, source TokenSource) bool {
	if !interceptorRegistered.CompareAndSwap(false, true) {
		return false
	}
	hc.Transport = &Transport{Base: hc.Transport, Source: source}
	return true
}
