// Package httptransport assembles the gateway's HTTP surface: the auth
// endpoints, the hosted sign-in routes, and the two reverse proxies.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"authgate/internal/platform/middleware"
	"authgate/internal/provider"
	"authgate/pkg/domain"
	"authgate/pkg/platform/httputil"
	"authgate/pkg/platform/middleware/metadata"
	"authgate/pkg/platform/middleware/request"
	"authgate/pkg/platform/middleware/requesttime"
)

const healthCheckTimeout = 2 * time.Second

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// IdentityResolver answers who the caller is for proxied requests.
type IdentityResolver interface {
	User(r *http.Request) *domain.Identity
	AccessToken(r *http.Request) (string, bool)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Dependencies is everything the router needs. Hosted may be nil when no
// hosted provider is configured.
type Dependencies struct {
	Logger     *slog.Logger
	Gatherer   prometheus.Gatherer
	Providers  provider.Source
	Gate       func(http.Handler) http.Handler
	Identity   IdentityResolver
	Auth       Registrar
	Hosted     Registrar
	AppURL     *url.URL
	BackendURL *url.URL
	Transport  http.RoundTripper
	Checks     map[string]HealthCheck
}

// NewRouter wires all public endpoints.
func NewRouter(d Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", healthHandler(d.Providers, d.Checks))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	d.Auth.Register(r)
	if d.Hosted != nil {
		d.Hosted.Register(r)
	}

	api := newAPIProxy(d.BackendURL, d.Identity, d.Transport, d.Logger)
	r.With(provider.Middleware(d.Providers)).Handle("/api/*", api)

	pages := newPageProxy(d.AppURL, d.Identity, d.Transport, d.Logger)
	r.Group(func(gated chi.Router) {
		gated.Use(d.Gate)
		gated.Handle("/*", pages)
	})
	return r
}

type healthResponse struct {
	Status   string            `json:"status"`
	Provider string            `json:"provider"`
	Checks   map[string]string `json:"checks,omitempty"`
}

func healthHandler(providers provider.Source, checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Provider: providers.Resolve(ctx).String()}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
