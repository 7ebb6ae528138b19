package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway. All methods are safe
// on a nil receiver so components can run without instrumentation in tests.
type Metrics struct {
	ProviderProbes        *prometheus.CounterVec
	ProviderProbeDuration prometheus.Histogram
	GateDecisions         *prometheus.CounterVec
	Hydrations            *prometheus.CounterVec
	AuthAttempts          *prometheus.CounterVec
	CookieRejections      *prometheus.CounterVec
	RevocationCheckMs     prometheus.Histogram
	AuditDropped          prometheus.Counter
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProviderProbes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_provider_probes_total",
			Help: "Backend health probes by resolved provider; fallback means the probe failed and local was assumed",
		}, []string{"result"}),
		ProviderProbeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "authgate_provider_probe_duration_seconds",
			Help:    "Latency of backend health probes",
			Buckets: prometheus.DefBuckets,
		}),
		GateDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_gate_decisions_total",
			Help: "Navigation gate outcomes",
		}, []string{"decision"}),
		Hydrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_hydrations_total",
			Help: "Session hydration requests served by status",
		}, []string{"status"}),
		AuthAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_auth_attempts_total",
			Help: "Login and register attempts by outcome",
		}, []string{"action", "outcome"}),
		CookieRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_cookie_rejections_total",
			Help: "Session cookies that failed to open",
		}, []string{"cookie", "reason"}),
		RevocationCheckMs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "authgate_revocation_check_duration_ms",
			Help:    "Latency of logout revocation lookups in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}),
		AuditDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "authgate_audit_events_dropped_total",
			Help: "Audit events that could not be buffered or stored",
		}),
	}
}

func (m *Metrics) ObserveProviderProbe(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.ProviderProbes.WithLabelValues(result).Inc()
	m.ProviderProbeDuration.Observe(took.Seconds())
}

func (m *Metrics) IncGateDecision(decision string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncHydration(status string) {
	if m == nil {
		return
	}
	m.Hydrations.WithLabelValues(status).Inc()
}

func (m *Metrics) IncAuthAttempt(action, outcome string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) IncCookieRejection(cookie, reason string) {
	if m == nil {
		return
	}
	m.CookieRejections.WithLabelValues(cookie, reason).Inc()
}

func (m *Metrics) ObserveRevocationCheck(took time.Duration) {
	if m == nil {
		return
	}
	m.RevocationCheckMs.Observe(float64(took.Microseconds()) / 1000.0)
}

func (m *Metrics) IncAuditDropped() {
	if m == nil {
		return
	}
	m.AuditDropped.Inc()
}
