package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data      Session
	updatedAt time.Time
}

// MemoryStore keeps sessions in process memory. Values are cloned on the way in
// and out so callers never share maps with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.sessions[key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry.data.Clone(), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[key] = memoryEntry{data: s.Clone(), updatedAt: m.now()}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, key)
	return nil
}

func (m *MemoryStore) Prune(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.sessions {
		if entry.updatedAt.Before(olderThan) {
			delete(m.sessions, key)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Scan(ctx context.Context, fn func(key string, s Session) bool) error {
	m.mu.RLock()
	snapshot := make(map[string]Session, len(m.sessions))
	for key, entry := range m.sessions {
		snapshot[key] = entry.data.Clone()
	}
	m.mu.RUnlock()

	for key, s := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(key, s) {
			return nil
		}
	}
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
