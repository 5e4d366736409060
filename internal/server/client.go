package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kaydenvu/CPSC455-Project1/internal/presence"
	"github.com/kaydenvu/CPSC455-Project1/internal/types"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	// Frames carry base64 file bodies, so the limit is sized for uploads.
	maxMessageSize = 8 << 20
	sendBufferSize = 256
	teardownWait   = 5 * time.Second
)

// Client is one websocket connection in one room. readPump and writePump
// own the socket, and run owns every other piece of per-connection state.
type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	identity   types.Identity
	roomName   string
	room       *Room

	ctx    context.Context
	cancel context.CancelFunc

	send     chan *Event
	frames   chan []byte
	readDone chan struct{}
	stop     chan struct{}
	stopOnce sync.Once

	typing      bool
	typingTimer *time.Timer
	typingC     <-chan time.Time
}

func NewClient(identity types.Identity, roomName string, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	ctx, cancel := context.WithCancel(cs.ctx)
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l,
		identity:   identity,
		roomName:   roomName,
		ctx:        ctx,
		cancel:     cancel,
		send:       make(chan *Event, sendBufferSize),
		frames:     make(chan []byte),
		readDone:   make(chan struct{}),
		stop:       make(chan struct{}),
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				c.stopClient()
				return
			}
		case <-c.stop:
			c.flush()
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				c.stopClient()
				return
			}
		}
	}
}

// flush writes whatever is still queued and says goodbye. Errors are
// ignored because the connection is going away anyway.
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				continue
			}
			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		default:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		close(c.readDone)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			return
		}

		select {
		case c.frames <- raw:
		case <-c.stop:
			return
		}
	}
}

// run joins the room, processes frames until the connection ends and then
// tears everything down. Teardown runs however the loop exits.
func (c *Client) run() {
	defer c.cancel()
	defer c.stopClient()

	room, first, err := c.chatServer.registry.Join(c.roomName, c)
	if err != nil {
		c.log.Printf("join: %v", err)
		c.queueMessage(ErrorEvent("unable to join room"))
		return
	}
	c.room = room

	heartbeat := time.NewTicker(c.chatServer.heartbeatInterval)
	defer heartbeat.Stop()
	defer c.teardown()

	c.join(first)

	for {
		select {
		case raw := <-c.frames:
			c.handleFrame(raw)
		case <-heartbeat.C:
			c.chatServer.presence.Touch(c.ctx, c.room.name, c.identity.Name)
			c.queueMessage(HeartbeatEvent())
		case <-c.typingC:
			c.typingC = nil
			if c.typing {
				c.setTyping(false)
			}
		case <-c.readDone:
			return
		case <-c.stop:
			return
		}
	}
}

func (c *Client) join(first bool) {
	cs := c.chatServer
	name := c.identity.Name

	msgs, err := cs.history.LastMessages(c.room.id, backlogSize)
	if err != nil {
		c.log.Printf("load history for %q: %v", c.room.name, err)
		c.queueMessage(ErrorEvent("unable to load history"))
	}
	for _, msg := range msgs {
		c.queueMessage(HistoryEvent(msg))
	}

	c.queueMessage(PresenceSnapshotEvent(cs.presence.Snapshot(c.ctx, c.room.name)))
	cs.presence.SetStatus(c.ctx, c.room.name, name, presence.StatusOnline)

	if first {
		text := fmt.Sprintf("%s has joined the chat!", name)
		cs.registry.Broadcast(c.room, SystemEvent(text))
		cs.registry.Broadcast(c.room, PresenceEvent(name, presence.StatusOnline))
		cs.transcript.Record(c.room.name, systemUser, text)
	}
}

func (c *Client) teardown() {
	cs := c.chatServer
	name := c.identity.Name

	c.disarmTyping()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), teardownWait)
	defer cancel()

	remaining := cs.registry.Leave(c.room, c)
	if remaining > 0 {
		if c.typing {
			c.typing = false
			cs.presence.SetStatus(ctx, c.room.name, name, presence.StatusOnline)
			cs.registry.Broadcast(c.room, PresenceEvent(name, presence.StatusOnline))
		}
		return
	}

	cs.presence.Remove(ctx, c.room.name, name)

	text := fmt.Sprintf("%s has left the chat.", name)
	cs.registry.Broadcast(c.room, SystemEvent(text))
	cs.registry.Broadcast(c.room, PresenceEvent(name, presence.StatusOffline))
	cs.transcript.Record(c.room.name, systemUser, text)
}

// setTyping changes the local typing flag and announces the change. Setting
// typing again while already typing only restarts the timeout.
func (c *Client) setTyping(typing bool) {
	if typing {
		c.armTyping()
	} else {
		c.disarmTyping()
	}

	if typing == c.typing {
		return
	}
	c.typing = typing

	status := presence.StatusOnline
	if typing {
		status = presence.StatusTyping
	}

	c.chatServer.presence.SetStatus(c.ctx, c.room.name, c.identity.Name, status)
	c.chatServer.registry.Broadcast(c.room, PresenceEvent(c.identity.Name, status))
}

func (c *Client) armTyping() {
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingTimer = time.NewTimer(c.chatServer.typingTimeout)
	c.typingC = c.typingTimer.C
}

func (c *Client) disarmTyping() {
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	c.typingC = nil
}

func (c *Client) queueMessage(msg *Event) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *Event) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}
