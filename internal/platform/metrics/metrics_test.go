package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordOnIsolatedRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncGateDecision("redirect")
	m.IncGateDecision("redirect")
	m.IncAuthAttempt("login", "success")
	m.ObserveProviderProbe("local", 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GateDecisions.WithLabelValues("redirect")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthAttempts.WithLabelValues("login", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderProbes.WithLabelValues("local")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncGateDecision("pass")
		m.IncHydration("ok")
		m.IncCookieRejection("session_token", "expired")
		m.ObserveRevocationCheck(time.Millisecond)
		m.IncAuditDropped()
	})
}
