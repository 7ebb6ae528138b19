package revocation

import (
	"context"
	"sync"
	"time"
)

// InMemory is a process-local revocation list. Expired entries are pruned
// lazily on write.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]time.Time
	clock   Clock
}

// NewInMemory creates an empty in-memory list.
func NewInMemory(clock Clock) *InMemory {
	if clock == nil {
		clock = time.Now
	}
	return &InMemory{entries: make(map[string]time.Time), clock: clock}
}

func (m *InMemory) Revoke(_ context.Context, id string, ttl time.Duration) error {
	if id == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	for k, exp := range m.entries {
		if !now.Before(exp) {
			delete(m.entries, k)
		}
	}
	m.entries[id] = now.Add(ttl)
	return nil
}

func (m *InMemory) IsRevoked(_ context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[id]
	if !ok {
		return false, nil
	}
	return m.clock().Before(exp), nil
}

// Len returns the number of tracked entries, expired or not.
func (m *InMemory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
