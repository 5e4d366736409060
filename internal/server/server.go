package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kaydenvu/CPSC455-Project1/internal/blob"
	"github.com/kaydenvu/CPSC455-Project1/internal/presence"
	"github.com/kaydenvu/CPSC455-Project1/internal/ratelimit"
	"github.com/kaydenvu/CPSC455-Project1/internal/scanner"
	"github.com/kaydenvu/CPSC455-Project1/internal/stats"
	"github.com/kaydenvu/CPSC455-Project1/internal/types"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultTypingTimeout     = 5 * time.Second
	defaultRoomIdle          = time.Minute
	janitorInterval          = 30 * time.Second
)

var metrics = []string{"Connections", "MessagesRelayed", "RateLimited", "FilesStored"}

type Options struct {
	History  HistoryStore
	Limiter  ratelimit.Limiter
	Presence presence.Tracker
	Blobs    blob.Store
	// Scanner may be nil, which disables scanning.
	Scanner          scanner.Scanner
	ScanFailOpen     bool
	PersistEncrypted bool
	Transcript       *Transcript
	RoomIdle         time.Duration
}

type ChatServer struct {
	log        *log.Logger
	stats      stats.StatsProvider
	registry   *Registry
	history    HistoryStore
	limiter    ratelimit.Limiter
	presence   presence.Tracker
	blobs      blob.Store
	scanner    scanner.Scanner
	transcript *Transcript

	scanFailOpen      bool
	persistEncrypted  bool
	roomIdle          time.Duration
	heartbeatInterval time.Duration
	typingTimeout     time.Duration

	ctx         context.Context
	cancel      context.CancelFunc
	clients     map[*Client]struct{}
	clientsLock sync.Mutex
	sessions    sync.WaitGroup
	stop        chan struct{}
	stopOnce    sync.Once
}

func NewChatServer(logger *log.Logger, opts Options, su stats.StatsProvider) (*ChatServer, error) {
	if opts.History == nil {
		return nil, errors.New("history store is required")
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewMemory(nil)
	}
	if opts.Presence == nil {
		opts.Presence = presence.NewMemory()
	}
	if opts.Blobs == nil {
		opts.Blobs = blob.NewMemory()
	}
	if opts.RoomIdle <= 0 {
		opts.RoomIdle = defaultRoomIdle
	}

	for _, m := range metrics {
		su.RegisterMetric(m)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ChatServer{
		log:               logger,
		stats:             su,
		registry:          NewRegistry(opts.History, logger),
		history:           opts.History,
		limiter:           opts.Limiter,
		presence:          opts.Presence,
		blobs:             opts.Blobs,
		scanner:           opts.Scanner,
		transcript:        opts.Transcript,
		scanFailOpen:      opts.ScanFailOpen,
		persistEncrypted:  opts.PersistEncrypted,
		roomIdle:          opts.RoomIdle,
		heartbeatInterval: defaultHeartbeatInterval,
		typingTimeout:     defaultTypingTimeout,
		ctx:               ctx,
		cancel:            cancel,
		clients:           make(map[*Client]struct{}),
		stop:              make(chan struct{}),
	}, nil
}

// Connect starts a session for conn in the named room. The session owns
// conn from here on.
func (cs *ChatServer) Connect(identity types.Identity, roomName string, conn *websocket.Conn) *Client {
	c := NewClient(identity, roomName, conn, cs, cs.log)
	cs.addClient(c)
	cs.stats.Incr("Connections")

	select {
	case <-cs.stop:
		c.stopClient()
	default:
	}

	cs.sessions.Add(1)
	go c.writePump()
	go c.readPump()
	go func() {
		defer cs.sessions.Done()
		defer cs.stats.Decr("Connections")
		defer cs.removeClient(c)
		c.run()
	}()

	return c
}

// Run sweeps idle rooms and expired rate windows until Shutdown.
func (cs *ChatServer) Run() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cs.sweep()
		case <-cs.stop:
			return
		}
	}
}

type sweeper interface {
	Sweep() int
}

func (cs *ChatServer) sweep() {
	if n := cs.registry.Sweep(cs.roomIdle); n > 0 {
		cs.log.Printf("unloaded %d idle rooms", n)
	}

	if s, ok := cs.limiter.(sweeper); ok {
		s.Sweep()
	}
}

// ActiveRooms lists rooms with members or recent activity.
func (cs *ChatServer) ActiveRooms() []string {
	return cs.registry.Active(cs.roomIdle)
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	delete(cs.clients, c)
}

// Shutdown stops every session and waits for their teardown to finish.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	cs.stopOnce.Do(func() { close(cs.stop) })

	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	done := make(chan struct{})
	go func() {
		cs.sessions.Wait()
		close(done)
	}()

	defer cs.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
