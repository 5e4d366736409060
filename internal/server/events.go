package server

import (
	"time"

	"github.com/kaydenvu/CPSC455-Project1/internal/database"
	"github.com/kaydenvu/CPSC455-Project1/internal/presence"
)

const systemUser = "System"

const (
	EventChat             = "chat"
	EventHistory          = "history"
	EventPresence         = "presence"
	EventPresenceSnapshot = "presence_snapshot"
	EventHeartbeat        = "heartbeat"
	EventPong             = "pong"
	EventWarning          = "warning"
	EventError            = "error"
)

// ClientFrame is any frame a client may send. Control frames carry a type;
// payload frames are recognised by which fields are set.
type ClientFrame struct {
	Type     string     `json:"type,omitempty"`
	IsTyping *bool      `json:"is_typing,omitempty"`
	Message  *string    `json:"message,omitempty"`
	IV       *string    `json:"iv,omitempty"`
	CT       *string    `json:"ct,omitempty"`
	File     *FileFrame `json:"file,omitempty"`
}

// FileFrame is an encrypted upload. IV and CT are base64.
type FileFrame struct {
	Name string `json:"name"`
	Type string `json:"type"`
	IV   string `json:"iv"`
	CT   string `json:"ct"`
}

type FileDescriptor struct {
	Locator  string `json:"locator"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Size     int    `json:"size"`
	IVLength int    `json:"iv_length"`
}

// Event is everything the server sends. A chat or history event carries
// exactly one of Message, IV and CT, or File.
type Event struct {
	Type      string                    `json:"type"`
	User      string                    `json:"user,omitempty"`
	Timestamp time.Time                 `json:"timestamp"`
	Message   string                    `json:"message,omitempty"`
	IV        string                    `json:"iv,omitempty"`
	CT        string                    `json:"ct,omitempty"`
	File      *FileDescriptor           `json:"file,omitempty"`
	Status    presence.Status           `json:"status,omitempty"`
	Users     map[string]presence.Entry `json:"users,omitempty"`
}

func TextEvent(user, text string, ts time.Time) *Event {
	return &Event{Type: EventChat, User: user, Timestamp: ts, Message: text}
}

func SystemEvent(text string) *Event {
	return TextEvent(systemUser, text, Now())
}

func EncryptedEvent(user, iv, ct string, ts time.Time) *Event {
	return &Event{Type: EventChat, User: user, Timestamp: ts, IV: iv, CT: ct}
}

func FileEvent(user string, file *FileDescriptor, ts time.Time) *Event {
	return &Event{Type: EventChat, User: user, Timestamp: ts, File: file}
}

// HistoryEvent replays a stored message. Authorless rows belong to
// anonymous users.
func HistoryEvent(msg database.Message) *Event {
	user := msg.Username
	if user == "" {
		user = "Anonymous"
	}

	ev := &Event{Type: EventHistory, User: user, Timestamp: msg.CreatedAt.UTC()}
	if msg.Content == "" && msg.IV != "" && msg.CT != "" {
		ev.IV, ev.CT = msg.IV, msg.CT
	} else {
		ev.Message = msg.Content
	}

	return ev
}

func PresenceEvent(user string, status presence.Status) *Event {
	return &Event{Type: EventPresence, User: user, Timestamp: Now(), Status: status}
}

func PresenceSnapshotEvent(users map[string]presence.Entry) *Event {
	if users == nil {
		users = make(map[string]presence.Entry)
	}
	return &Event{Type: EventPresenceSnapshot, Timestamp: Now(), Users: users}
}

func HeartbeatEvent() *Event {
	return &Event{Type: EventHeartbeat, Timestamp: Now()}
}

func PongEvent() *Event {
	return &Event{Type: EventPong, Timestamp: Now()}
}

func WarningEvent(text string) *Event {
	return &Event{Type: EventWarning, Timestamp: Now(), Message: text}
}

func ErrorEvent(text string) *Event {
	return &Event{Type: EventError, Timestamp: Now(), Message: text}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
