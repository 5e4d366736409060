package presence

import (
	"context"
	"sync"
	"time"
)

type roomPresence struct {
	mu      sync.Mutex
	entries map[string]Entry
	dead    bool
}

// Memory is the single-process tracker. Rooms are locked independently.
type Memory struct {
	now   func() time.Time
	mu    sync.RWMutex
	rooms map[string]*roomPresence
}

func NewMemory() *Memory {
	return &Memory{
		now:   func() time.Time { return time.Now().UTC() },
		rooms: make(map[string]*roomPresence),
	}
}

func (m *Memory) SetStatus(_ context.Context, room, identity string, status Status) (Status, bool) {
	var (
		prev    Entry
		existed bool
	)

	m.withRoom(room, true, func(rp *roomPresence) {
		prev, existed = rp.entries[identity]
		rp.entries[identity] = Entry{Status: status, LastSeen: m.now()}
	})

	return prev.Status, existed
}

func (m *Memory) Touch(_ context.Context, room, identity string) {
	m.withRoom(room, false, func(rp *roomPresence) {
		if e, ok := rp.entries[identity]; ok {
			e.LastSeen = m.now()
			rp.entries[identity] = e
		}
	})
}

func (m *Memory) Remove(_ context.Context, room, identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rp, ok := m.rooms[room]
	if !ok {
		return
	}

	rp.mu.Lock()
	delete(rp.entries, identity)
	if len(rp.entries) == 0 {
		rp.dead = true
		delete(m.rooms, room)
	}
	rp.mu.Unlock()
}

func (m *Memory) Snapshot(_ context.Context, room string) map[string]Entry {
	snapshot := make(map[string]Entry)
	m.withRoom(room, false, func(rp *roomPresence) {
		for identity, e := range rp.entries {
			snapshot[identity] = e
		}
	})

	return snapshot
}

// withRoom runs fn with the room locked. When create is false and the room
// has no entries fn is not called.
func (m *Memory) withRoom(room string, create bool, fn func(rp *roomPresence)) {
	for {
		m.mu.RLock()
		rp, ok := m.rooms[room]
		m.mu.RUnlock()

		if !ok {
			if !create {
				return
			}

			m.mu.Lock()
			if rp, ok = m.rooms[room]; !ok {
				rp = &roomPresence{entries: make(map[string]Entry)}
				m.rooms[room] = rp
			}
			m.mu.Unlock()
		}

		rp.mu.Lock()
		if rp.dead {
			rp.mu.Unlock()
			continue
		}
		fn(rp)
		rp.mu.Unlock()
		return
	}
}
