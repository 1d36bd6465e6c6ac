package registry

import (
	"context"
	"sync"
	"time"
)

// MemoryRegistry is an in-process Registry used by unit tests so the
// Router, Connection Manager, and Channel Service can be exercised without
// a live Redis.
//
// Grounded on the teacher's use of sqlmock to fake *db.Database in
// internal/websocket/agent_hub_test.go: a hand-rolled fake behind the same
// interface the production adapter satisfies, rather than a mocking
// framework, since the interface here is small and the fake's behavior
// (TTL expiry, list trim) is itself worth asserting on in tests.
type MemoryRegistry struct {
	mu      sync.Mutex
	strings map[string]memEntry
	sets    map[string]map[string]bool
	lists   map[string][]string
}

type memEntry struct {
	value   string
	expires time.Time
	hasTTL  bool
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		strings: make(map[string]memEntry),
		sets:    make(map[string]map[string]bool),
		lists:   make(map[string][]string),
	}
}

func (m *MemoryRegistry) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = memEntry{value: value, expires: time.Now().Add(ttl), hasTTL: ttl > 0}
	return nil
}

func (m *MemoryRegistry) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.strings[key]
	if !ok {
		return "", ErrNotFound
	}
	if e.hasTTL && time.Now().After(e.expires) {
		delete(m.strings, key)
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *MemoryRegistry) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.strings, key)
	delete(m.sets, key)
	delete(m.lists, key)
	return nil
}

func (m *MemoryRegistry) SetAdd(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sets[key] == nil {
		m.sets[key] = make(map[string]bool)
	}
	m.sets[key][member] = true
	return nil
}

func (m *MemoryRegistry) SetRemove(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets[key], member)
	return nil
}

func (m *MemoryRegistry) SetMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out, nil
}

func (m *MemoryRegistry) ListPush(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append(m.lists[key], value)
	return nil
}

// resolveRange converts Redis-style (possibly negative) start/stop indices
// into a clamped [start, stop] pair over a slice of length n, or ok=false if
// the resulting range is empty.
func resolveRange(start, stop, n int64) (s, e int64, ok bool) {
	if n == 0 {
		return 0, 0, false
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}

func (m *MemoryRegistry) ListTrim(_ context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lists[key]
	s, e, ok := resolveRange(start, stop, int64(len(list)))
	if !ok {
		m.lists[key] = nil
		return nil
	}
	m.lists[key] = append([]string{}, list[s:e+1]...)
	return nil
}

func (m *MemoryRegistry) ListRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lists[key]
	s, e, ok := resolveRange(start, stop, int64(len(list)))
	if !ok {
		return nil, nil
	}
	out := make([]string, e-s+1)
	copy(out, list[s:e+1])
	return out, nil
}
