package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"authgate/pkg/client"
	"authgate/pkg/domain"
	dErrors "authgate/pkg/domain-errors"
	jsonutil "authgate/pkg/platform/httputil"
	"authgate/pkg/platform/middleware/request"
)

// Identity headers forwarded to the web application. Incoming copies are
// always stripped so clients cannot spoof them.
const (
	identityHeaderPrefix = "X-Authgate-User-"
	HeaderUserID         = identityHeaderPrefix + "Id"
	HeaderUserName       = identityHeaderPrefix + "Name"
	HeaderUserEmail      = identityHeaderPrefix + "Email"
	HeaderUserProvider   = identityHeaderPrefix + "Provider"
	HeaderUserOrg        = identityHeaderPrefix + "Org"
)

type tokenKey struct{}

// requestToken is the token source for the API proxy: the bearer for each
// request is resolved from its cookies before it enters the proxy.
var requestToken = client.TokenSourceFunc(func(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
})

// newAPIProxy forwards /api/* to the backend with the caller's bearer token
// attached by the client interceptor.
func newAPIProxy(target *url.URL, identity IdentityResolver, base http.RoundTripper, logger *slog.Logger) http.Handler {
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, "/api")
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Header.Del("Cookie")
			pr.Out.Header.Set(request.HeaderRequestID, request.GetRequestID(pr.In.Context()))
		},
		Transport:    &client.Transport{Base: base, Source: requestToken},
		ErrorHandler: proxyError(logger, "backend"),
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := identity.AccessToken(r); ok {
			r = r.WithContext(context.WithValue(r.Context(), tokenKey{}, token))
		}
		proxy.ServeHTTP(w, r)
	})
}

// newPageProxy forwards gated navigation to the web application with the
// resolved identity in X-Authgate-User-* headers.
func newPageProxy(target *url.URL, identity IdentityResolver, base http.RoundTripper, logger *slog.Logger) http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			for name := range pr.Out.Header {
				if strings.HasPrefix(http.CanonicalHeaderKey(name), identityHeaderPrefix) {
					pr.Out.Header.Del(name)
				}
			}
			pr.Out.Header.Set(request.HeaderRequestID, request.GetRequestID(pr.In.Context()))

			id := identity.User(pr.In)
			if id == nil {
				return
			}
			pr.Out.Header.Set(HeaderUserProvider, id.Provider.String())
			if unverified(id, pr.In, identity) {
				return
			}
			pr.Out.Header.Set(HeaderUserID, id.SubjectID())
			setIfPresent(pr.Out.Header, HeaderUserName, id.DisplayName())
			setIfPresent(pr.Out.Header, HeaderUserEmail, id.Email())
			setIfPresent(pr.Out.Header, HeaderUserOrg, id.OrganizationID())
		},
		Transport:    base,
		ErrorHandler: proxyError(logger, "app"),
	}
}

// unverified reports a local profile rebuilt from the token alone. Its id is
// the token itself and was never confirmed by the backend, so it must not be
// forwarded as a user identity.
func unverified(id *domain.Identity, r *http.Request, identity IdentityResolver) bool {
	if id.Provider.IsHosted() {
		return false
	}
	token, ok := identity.AccessToken(r)
	return ok && id.SubjectID() == token
}

func setIfPresent(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}

func proxyError(logger *slog.Logger, upstream string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		ctx := r.Context()
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.WarnContext(ctx, "upstream request failed",
			"request_id", request.GetRequestID(ctx),
			"upstream", upstream,
			"path", r.URL.Path,
			"error", err,
		)
		jsonutil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, upstream+" unavailable"))
	}
}
