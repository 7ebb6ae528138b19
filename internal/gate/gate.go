// Package gate decides, per navigational request, whether the caller may reach
// the page or must sign in first.
package gate

import (
	"log/slog"
	"net/http"
	"strings"

	"authgate/internal/platform/metrics"
	"authgate/internal/provider"
	"authgate/internal/session"
	"authgate/pkg/platform/middleware/request"
	platformstrings "authgate/pkg/platform/strings"
)

const (
	DecisionHosted   = "hosted_passthrough"
	DecisionPublic   = "public_path"
	DecisionAllowed  = "authenticated"
	DecisionRedirect = "redirect_sign_in"
)

// DefaultPublicPaths are reachable without a session.
var DefaultPublicPaths = []string{"/sign-in", "/sign-up"}

// CredentialReader reads the local session cookies.
type CredentialReader interface {
	Get(r *http.Request) (session.Credentials, bool)
}

// Gate is the navigation gate middleware.
type Gate struct {
	providers   provider.Source
	creds       CredentialReader
	signInPath  string
	publicPaths []string
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures a Gate.
type Option func(*Gate)

// WithSignInPath sets the redirect target for anonymous callers.
func WithSignInPath(p string) Option {
	return func(g *Gate) {
		if p != "" {
			g.signInPath = p
		}
	}
}

// WithPublicPaths replaces the allow-listed path prefixes. Blank and
// repeated entries are dropped.
func WithPublicPaths(paths []string) Option {
	return func(g *Gate) {
		if paths != nil {
			g.publicPaths = platformstrings.DedupeAndTrim(paths)
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

// New creates a Gate.
func New(providers provider.Source, creds CredentialReader, logger *slog.Logger, opts ...Option) *Gate {
	g := &Gate{
		providers:   providers,
		creds:       creds,
		signInPath:  "/sign-in",
		publicPaths: DefaultPublicPaths,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Middleware resolves the provider once, fixes it on the request context and
// applies the gate. It never creates or refreshes credentials.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		p := provider.Current(ctx, g.providers)
		r = r.WithContext(provider.WithProvider(ctx, p))

		if p.IsHosted() {
			g.metrics.IncGateDecision(DecisionHosted)
			next.ServeHTTP(w, r)
			return
		}
		if g.isPublic(r.URL.Path) {
			g.metrics.IncGateDecision(DecisionPublic)
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := g.creds.Get(r); !ok {
			g.metrics.IncGateDecision(DecisionRedirect)
			g.logger.DebugContext(ctx, "no session, redirecting to sign-in",
				"request_id", request.GetRequestID(ctx),
				"path", r.URL.Path,
			)
			http.Redirect(w, r, g.signInPath, http.StatusTemporaryRedirect)
			return
		}
		g.metrics.IncGateDecision(DecisionAllowed)
		next.ServeHTTP(w, r)
	})
}

func (g *Gate) isPublic(path string) bool {
	for _, prefix := range g.publicPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
