package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value    Session
	deadline time.Time
}

// MemoryStore keeps sessions in process memory. Stale entries are evicted on read.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore returns a store whose entries expire ttl after their last
// write. Zero ttl keeps entries until cleared.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, userID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.load(userID)), nil
}

func (m *MemoryStore) Set(_ context.Context, userID string, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(userID, s)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return nil
}

func (m *MemoryStore) Update(_ context.Context, userID string, fn UpdateFunc) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := fn(clone(m.load(userID)))
	if err != nil {
		return nil, err
	}
	m.store(userID, next)
	return clone(next), nil
}

// Len reports live entries. Used by tests and the debug log.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id := range m.entries {
		if m.load(id) != nil {
			n++
		}
	}
	return n
}

func (m *MemoryStore) load(userID string) Session {
	e, ok := m.entries[userID]
	if !ok {
		return nil
	}
	if !e.deadline.IsZero() && !m.now().Before(e.deadline) {
		delete(m.entries, userID)
		return nil
	}
	return e.value
}

func (m *MemoryStore) store(userID string, s Session) {
	if s == nil {
		delete(m.entries, userID)
		return
	}
	e := memoryEntry{value: clone(s)}
	if m.ttl > 0 {
		e.deadline = m.now().Add(m.ttl)
	}
	m.entries[userID] = e
}
