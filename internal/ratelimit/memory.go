package ratelimit

import (
	"context"
	"sync"
	"time"
)

type windowKey struct {
	class    Class
	identity string
}

type window struct {
	mu   sync.Mutex
	hits []time.Time
	// dead is set once Sweep has removed the window from the map.
	dead bool
}

// Memory keeps every window in process memory. Each window has its own
// lock so unrelated identities never contend.
type Memory struct {
	rules   map[Class]Rule
	now     func() time.Time
	mu      sync.RWMutex
	windows map[windowKey]*window
}

func NewMemory(rules map[Class]Rule) *Memory {
	if rules == nil {
		rules = DefaultRules
	}

	return &Memory{
		rules:   rules,
		now:     time.Now,
		windows: make(map[windowKey]*window),
	}
}

// WithClock replaces the time source, for tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Allow(_ context.Context, identity string, class Class) bool {
	rule, ok := ruleFor(m.rules, class)
	if !ok {
		return true
	}

	key := windowKey{class: class, identity: identity}
	for {
		w := m.window(key)

		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}

		now := m.now()
		w.hits = prune(w.hits, now.Add(-rule.Window))
		if len(w.hits) >= rule.Limit {
			w.mu.Unlock()
			return false
		}

		w.hits = append(w.hits, now)
		w.mu.Unlock()
		return true
	}
}

func (m *Memory) window(key windowKey) *window {
	m.mu.RLock()
	w, ok := m.windows[key]
	m.mu.RUnlock()
	if ok {
		return w
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok = m.windows[key]; !ok {
		w = &window{}
		m.windows[key] = w
	}
	return w
}

// Sweep drops windows whose hits have all expired.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, w := range m.windows {
		rule, ok := ruleFor(m.rules, key.class)
		if !ok {
			continue
		}

		w.mu.Lock()
		w.hits = prune(w.hits, now.Add(-rule.Window))
		if len(w.hits) == 0 {
			w.dead = true
			delete(m.windows, key)
			removed++
		}
		w.mu.Unlock()
	}

	return removed
}

// prune removes hits at or before cutoff. hits is kept in ascending order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0], hits[i:]...)
}
