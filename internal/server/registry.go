package server

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Room is the broadcast group for one room name. It owns the set of live
// clients and counts sessions per identity so that a user with two tabs
// open is announced once.
type Room struct {
	id   int
	name string

	mu         sync.RWMutex
	clients    map[*Client]struct{}
	sessions   map[string]int
	lastActive time.Time
	// unloaded is set once the registry has dropped the room.
	unloaded bool
}

func newRoom(id int, name string, now time.Time) *Room {
	return &Room{
		id:         id,
		name:       name,
		clients:    make(map[*Client]struct{}),
		sessions:   make(map[string]int),
		lastActive: now,
	}
}

func (r *Room) Id() int {
	return r.id
}

func (r *Room) Name() string {
	return r.name
}

// add reports whether c is the first session of its identity. ok is false
// when the room was unloaded and the caller must load it again.
func (r *Room) add(c *Client, now time.Time) (first bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unloaded {
		return false, false
	}

	if _, exists := r.clients[c]; !exists {
		r.clients[c] = struct{}{}
		r.sessions[c.identity.Name]++
	}
	r.lastActive = now

	return r.sessions[c.identity.Name] == 1, true
}

// remove drops c and returns how many sessions its identity still has.
func (r *Room) remove(c *Client, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.identity.Name
	if _, ok := r.clients[c]; ok {
		delete(r.clients, c)
		r.sessions[name]--
		if r.sessions[name] <= 0 {
			delete(r.sessions, name)
		}
		r.lastActive = now
	}

	return r.sessions[name]
}

func (r *Room) has(c *Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.clients[c]
	return ok
}

func (r *Room) members() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		members = append(members, c)
	}
	return members
}

func (r *Room) touch(now time.Time) {
	r.mu.Lock()
	r.lastActive = now
	r.mu.Unlock()
}

// Registry maps room names to their broadcast groups. Rooms are loaded
// lazily on first join, backed by a persisted room row.
type Registry struct {
	store HistoryStore
	log   *log.Logger
	now   func() time.Time

	mu    sync.RWMutex
	rooms map[string]*Room
	loads singleflight.Group
}

func NewRegistry(store HistoryStore, logger *log.Logger) *Registry {
	return &Registry{
		store: store,
		log:   logger,
		now:   time.Now,
		rooms: make(map[string]*Room),
	}
}

// Join adds c to the named room, creating the room on first use. first is
// true when c is the only session of its identity in the room.
func (reg *Registry) Join(name string, c *Client) (room *Room, first bool, err error) {
	for {
		room, err = reg.load(name)
		if err != nil {
			return nil, false, err
		}

		var ok bool
		if first, ok = room.add(c, reg.now()); ok {
			return room, first, nil
		}
	}
}

// load returns the cached room or fetches it. Concurrent first joins share a
// single store call.
func (reg *Registry) load(name string) (*Room, error) {
	if room, ok := reg.cached(name); ok {
		return room, nil
	}

	v, err, _ := reg.loads.Do(name, func() (any, error) {
		if room, ok := reg.cached(name); ok {
			return room, nil
		}

		dbRoom, err := reg.store.GetOrCreateRoom(name)
		if err != nil {
			return nil, fmt.Errorf("get or create room %q: %w", name, err)
		}

		room := newRoom(dbRoom.Id, dbRoom.Name, reg.now())
		reg.mu.Lock()
		reg.rooms[name] = room
		reg.mu.Unlock()

		reg.log.Printf("loaded room %q", name)
		return room, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Room), nil
}

func (reg *Registry) cached(name string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[name]
	return room, ok
}

// Leave removes c from room and returns the number of sessions its identity
// still has there.
func (reg *Registry) Leave(room *Room, c *Client) int {
	return room.remove(c, reg.now())
}

// Broadcast queues ev for every member of room, the sender included. A
// member that cannot accept the event is evicted so it never stalls the
// others.
func (reg *Registry) Broadcast(room *Room, ev *Event) {
	for _, c := range room.members() {
		if !c.queueMessage(ev) {
			reg.evict(room, c)
		}
	}
}

func (reg *Registry) evict(room *Room, c *Client) {
	reg.log.Printf("evicting %q from room %q", c.identity.Name, room.name)
	room.remove(c, reg.now())
	c.stopClient()
}

// Sweep unloads rooms that have had no members for at least idle.
func (reg *Registry) Sweep(idle time.Duration) int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	now := reg.now()
	unloaded := 0
	for name, room := range reg.rooms {
		room.mu.Lock()
		if len(room.clients) == 0 && now.Sub(room.lastActive) >= idle {
			room.unloaded = true
			delete(reg.rooms, name)
			unloaded++
		}
		room.mu.Unlock()
	}

	return unloaded
}

// Active returns the names of loaded rooms that have members or saw
// activity within idle, sorted.
func (reg *Registry) Active(idle time.Duration) []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	now := reg.now()
	names := make([]string, 0, len(reg.rooms))
	for name, room := range reg.rooms {
		room.mu.RLock()
		if len(room.clients) > 0 || now.Sub(room.lastActive) < idle {
			names = append(names, name)
		}
		room.mu.RUnlock()
	}

	sort.Strings(names)
	return names
}
