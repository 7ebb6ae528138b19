// Package provider decides which identity provider is active by probing the
// backend's health endpoint.
package provider

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"authgate/internal/platform/metrics"
	"authgate/pkg/backend"
	"authgate/pkg/domain"
)

const (
	DefaultTTL          = 300 * time.Second
	DefaultProbeTimeout = 5 * time.Second

	probeKey   = "provider"
	tracerName = "authgate/internal/provider"
)

// Source resolves the active provider. Implementations never fail: any error
// collapses to domain.ProviderLocal.
type Source interface {
	Resolve(ctx context.Context) domain.Provider
}

// HealthChecker is the backend capability probe.
type HealthChecker interface {
	Health(ctx context.Context) (*backend.Health, error)
}

// Resolver probes the backend once per TTL window and shares the in-flight
// probe between concurrent callers.
type Resolver struct {
	checker      HealthChecker
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	ttl          time.Duration
	probeTimeout time.Duration
	now          func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	cached    domain.Provider
	expiresAt time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithProbeTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.probeTimeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Resolver) {
		if tp != nil {
			r.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithClock overrides the time source used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Resolver backed by checker.
func New(checker HealthChecker, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		checker:      checker,
		logger:       logger,
		tracer:       otel.Tracer(tracerName),
		ttl:          DefaultTTL,
		probeTimeout: DefaultProbeTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the cached provider, probing the backend when the cache is
// empty or stale.
func (r *Resolver) Resolve(ctx context.Context) domain.Provider {
	if p, ok := r.fresh(); ok {
		return p
	}
	v, _, _ := r.group.Do(probeKey, func() (any, error) {
		if p, ok := r.fresh(); ok {
			return p, nil
		}
		// The probe outlives the first caller's cancellation: its result is
		// shared with every waiter and cached for the whole window.
		p := r.probe(context.WithoutCancel(ctx))
		r.mu.Lock()
		r.cached = p
		r.expiresAt = r.now().Add(r.ttl)
		r.mu.Unlock()
		return p, nil
	})
	return v.(domain.Provider)
}

// Invalidate drops the cached decision so the next Resolve probes again.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.cached = ""
	r.expiresAt = time.Time{}
	r.mu.Unlock()
}

// InvalidateOn drops the cached decision each time a value arrives on
// signals, until ctx is done. The server feeds it SIGHUP so operators can
// force a re-probe after switching the backend's provider.
func (r *Resolver) InvalidateOn(ctx context.Context, signals <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			r.Invalidate()
			r.logger.InfoContext(ctx, "provider decision invalidated", "signal", sig.String())
		}
	}
}

func (r *Resolver) fresh() (domain.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cached == "" || !r.now().Before(r.expiresAt) {
		return "", false
	}
	return r.cached, true
}

func (r *Resolver) probe(ctx context.Context) domain.Provider {
	ctx, span := r.tracer.Start(ctx, "provider.probe")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	start := time.Now()
	h, err := r.checker.Health(ctx)
	took := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe failed")
		r.logger.WarnContext(ctx, "provider probe failed, assuming local",
			"error", err,
			"duration_ms", took.Milliseconds(),
		)
		r.metrics.ObserveProviderProbe("fallback", took)
		return domain.ProviderLocal
	}

	p, err := domain.ParseProvider(h.AuthProvider)
	if err != nil {
		span.SetStatus(codes.Error, "unknown provider")
		r.logger.WarnContext(ctx, "backend reported unknown provider, assuming local",
			"auth_provider", h.AuthProvider,
		)
		r.metrics.ObserveProviderProbe("fallback", took)
		return domain.ProviderLocal
	}

	span.SetAttributes(attribute.String("authgate.provider", p.String()))
	r.logger.DebugContext(ctx, "provider resolved", "provider", p.String())
	r.metrics.ObserveProviderProbe(p.String(), took)
	return p
}

// Static is a Source that always returns the same provider.
type Static domain.Provider

func (s Static) Resolve(context.Context) domain.Provider {
	return domain.Provider(s)
}

type contextKey struct{}

// WithProvider fixes the provider for the remainder of a request.
func WithProvider(ctx context.Context, p domain.Provider) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the provider fixed on ctx, if any.
func FromContext(ctx context.Context) (domain.Provider, bool) {
	p, ok := ctx.Value(contextKey{}).(domain.Provider)
	return p, ok && p != ""
}

// Current returns the provider fixed on ctx, falling back to src.
func Current(ctx context.Context, src Source) domain.Provider {
	if p, ok := FromContext(ctx); ok {
		return p
	}
	return src.Resolve(ctx)
}

// Middleware fixes the provider on every request it wraps, so later stages
// agree on it even if the cached decision expires mid-request.
func Middleware(src Source) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			next.ServeHTTP(w, r.WithContext(WithProvider(ctx, Current(ctx, src))))
		})
	}
}
