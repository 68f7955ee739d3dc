package session

import (
	"context"
	"slices"
	"sync"
	"time"
)

type usageKey struct {
	day string
	key Key
}

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[Key]Session
	usage    map[usageKey]int
	scopes   map[string]time.Time
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[Key]Session),
		usage:    make(map[usageKey]int),
		scopes:   make(map[string]time.Time),
		now:      time.Now,
	}
}

func (m *MemoryStore) Load(_ context.Context, key Key) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s, nil
	}
	return fresh(key), nil
}

func (m *MemoryStore) Save(_ context.Context, s Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.Key]
	if (!ok && s.Version != 0) || (ok && cur.Version != s.Version) {
		return Session{}, ErrVersionConflict
	}
	if ok {
		s.ID = cur.ID
	}
	s.Version++
	s.UpdatedAt = m.now().UTC()
	m.sessions[s.Key] = s
	return s, nil
}

func (m *MemoryStore) IncrUsage(_ context.Context, day string, key Key, limit int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := oldestKept(day)
	for k := range m.usage {
		if k.day < cutoff {
			delete(m.usage, k)
		}
	}
	uk := usageKey{day: day, key: key}
	n := m.usage[uk]
	if limit > 0 && n >= limit {
		return n, false, nil
	}
	n++
	m.usage[uk] = n
	return n, true, nil
}

func (m *MemoryStore) TouchScope(_ context.Context, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scopes[scope] = m.now()
	return nil
}

func (m *MemoryStore) Scopes(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.scopes))
	for s := range m.scopes {
		out = append(out, s)
	}
	slices.Sort(out)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
