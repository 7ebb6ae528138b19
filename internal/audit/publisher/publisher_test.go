package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/internal/audit"
	"authgate/internal/audit/store/memory"
	"authgate/internal/platform/metrics"
	"authgate/pkg/platform/sentinel"
	"authgate/pkg/requestcontext"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Subject: "u1",
		Action:  string(audit.EventUserRegistered),
	})
	require.NoError(t, err)

	events, err := store.ListBySubject(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventUserRegistered), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.NotEmpty(t, events[0].ID)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Subject: "u1",
		Action:  string(audit.EventLoginSucceeded),
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		events, _ := store.ListBySubject(context.Background(), "u1")
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			Subject: "u1",
			Action:  string(audit.EventLoginFailed),
		})
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListBySubject(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_EmitAfterClose(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	pub.Close()
	pub.Close()

	err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventLoggedOut)})
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

type blockingStore struct {
	release chan struct{}
	mu      sync.Mutex
	events  []audit.Event
}

func (s *blockingStore) Append(_ context.Context, e audit.Event) error {
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	store := &blockingStore{release: make(chan struct{})}
	pub := NewPublisher(store, WithAsyncBuffer(1), WithMetrics(m))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: string(audit.EventLoginFailed)}))
	}
	close(store.release)
	pub.Close()

	dropped := promtest.ToFloat64(m.AuditDropped)
	assert.Equal(t, 10.0, dropped+float64(len(store.events)), "every event is either stored or counted as dropped")
	assert.Greater(t, dropped, 0.0)
}

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("db down") }

func TestPublisher_SyncModeReturnsStoreError(t *testing.T) {
	pub := NewPublisher(failingStore{})
	err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventLoggedOut)})
	assert.Error(t, err)
}

func TestPublisher_Enrichment(t *testing.T) {
	store := memory.NewInMemoryStore()
	fixed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	pub := NewPublisher(store, WithClock(func() time.Time { return fixed }))

	ctx := requestcontext.WithRequestID(context.Background(), "req-1")
	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.7",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")

	require.NoError(t, pub.Emit(ctx, audit.Event{Subject: "u1", Action: string(audit.EventLoggedOut)}))

	events, err := store.ListRecent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, fixed, e.Timestamp)
	assert.Equal(t, audit.CategorySecurity, e.Category)
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, "203.0.113.7", e.ClientIP)
	assert.Contains(t, e.Device, "Firefox")
}
