package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kaydenvu/CPSC455-Project1/internal/database"
	"github.com/kaydenvu/CPSC455-Project1/internal/ratelimit"
)

const (
	frameTypePing            = "ping"
	frameTypeTyping          = "typing"
	frameTypePresenceRequest = "presence_request"

	maxFileSize         = 5 << 20
	maxDeclaredTypeSize = 127
	storeTimeout        = 30 * time.Second
)

// handleFrame classifies one inbound frame and acts on it. Frames that do
// not parse or match no known shape are dropped without a reply.
func (c *Client) handleFrame(raw []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}

	switch {
	case frame.Type == frameTypePing:
		c.chatServer.presence.Touch(c.ctx, c.room.name, c.identity.Name)
		c.queueMessage(PongEvent())
	case frame.Type == frameTypeTyping && frame.IsTyping != nil:
		c.setTyping(*frame.IsTyping)
	case frame.Type == frameTypePresenceRequest:
		c.queueMessage(PresenceSnapshotEvent(c.chatServer.presence.Snapshot(c.ctx, c.room.name)))
	case frame.File != nil:
		c.relayFile(frame.File)
	case frame.IV != nil && frame.CT != nil && frame.Message == nil:
		c.relayEncrypted(*frame.IV, *frame.CT)
	case frame.Message != nil:
		c.relayText(*frame.Message)
	}
}

// allow checks the rate limit and warns only the sender when it is hit.
func (c *Client) allow(class ratelimit.Class) bool {
	if c.chatServer.limiter.Allow(c.ctx, c.identity.Name, class) {
		return true
	}

	c.chatServer.stats.Incr("RateLimited")
	switch class {
	case ratelimit.ClassFile:
		c.queueMessage(WarningEvent("You are uploading files too quickly. Please wait a moment."))
	default:
		c.queueMessage(WarningEvent("You are sending messages too quickly. Please slow down."))
	}
	return false
}

func (c *Client) relayText(message string) {
	if !c.allow(ratelimit.ClassMessage) {
		return
	}

	text := strings.TrimSpace(message)
	if text == "" {
		return
	}

	if c.typing {
		c.setTyping(false)
	}

	cs := c.chatServer
	stored, err := cs.history.AppendMessage(database.AppendMessageParams{
		RoomId:    c.room.id,
		AccountId: c.identity.AccountId,
		Content:   text,
		CreatedAt: Now(),
	})
	if err != nil {
		c.log.Printf("append message to %q: %v", c.room.name, err)
		c.queueMessage(ErrorEvent("message could not be saved"))
		return
	}

	c.room.touch(cs.registry.now())
	cs.registry.Broadcast(c.room, TextEvent(c.identity.Name, stored.Content, stored.CreatedAt.UTC()))
	cs.stats.Incr("MessagesRelayed")
	cs.transcript.Record(c.room.name, c.identity.Name, stored.Content)
}

func (c *Client) relayEncrypted(iv, ct string) {
	if !c.allow(ratelimit.ClassMessage) {
		return
	}

	if !validBase64(iv) || !validBase64(ct) {
		return
	}

	cs := c.chatServer
	ts := Now()
	if cs.persistEncrypted {
		stored, err := cs.history.AppendMessage(database.AppendMessageParams{
			RoomId:    c.room.id,
			AccountId: c.identity.AccountId,
			IV:        iv,
			CT:        ct,
			CreatedAt: ts,
		})
		if err != nil {
			c.log.Printf("append encrypted message to %q: %v", c.room.name, err)
			c.queueMessage(ErrorEvent("message could not be saved"))
			return
		}
		ts = stored.CreatedAt.UTC()
	}

	c.room.touch(cs.registry.now())
	cs.registry.Broadcast(c.room, EncryptedEvent(c.identity.Name, iv, ct, ts))
	cs.stats.Incr("MessagesRelayed")
}

func (c *Client) relayFile(f *FileFrame) {
	if !c.allow(ratelimit.ClassFile) {
		return
	}

	iv, err := base64.StdEncoding.DecodeString(f.IV)
	if err != nil || len(iv) == 0 {
		return
	}
	ct, err := base64.StdEncoding.DecodeString(f.CT)
	if err != nil || len(ct) == 0 {
		return
	}

	if len(ct) > maxFileSize {
		c.queueMessage(WarningEvent("File is too large."))
		return
	}

	name := SanitizeFilename(f.Name)
	body := make([]byte, 0, len(iv)+len(ct))
	body = append(body, iv...)
	body = append(body, ct...)

	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	defer cancel()

	if !c.scan(ctx, body) {
		return
	}

	cs := c.chatServer
	key := uuid.NewString() + "/" + name
	locator, err := cs.blobs.Put(ctx, key, body, "application/octet-stream")
	if err != nil {
		c.log.Printf("store file %q: %v", key, err)
		c.queueMessage(ErrorEvent("file could not be stored"))
		return
	}

	c.room.touch(cs.registry.now())
	cs.registry.Broadcast(c.room, FileEvent(c.identity.Name, &FileDescriptor{
		Locator:  locator,
		Name:     name,
		Type:     declaredType(f.Type),
		Size:     len(ct),
		IVLength: len(iv),
	}, Now()))
	cs.stats.Incr("FilesStored")
	cs.transcript.Record(c.room.name, c.identity.Name, "[file] "+name)
}

// scan asks the malware scanner about body. When the scanner cannot give a
// verdict the upload is refused unless the server is configured to fail open.
func (c *Client) scan(ctx context.Context, body []byte) bool {
	cs := c.chatServer
	if cs.scanner == nil {
		return true
	}

	clean, err := cs.scanner.Scan(ctx, body)
	if err != nil {
		c.log.Printf("scan upload: %v", err)
		if cs.scanFailOpen {
			return true
		}
		c.queueMessage(ErrorEvent("file could not be scanned"))
		return false
	}

	if !clean {
		c.queueMessage(WarningEvent("File was rejected by the malware scanner."))
		return false
	}

	return true
}

func validBase64(s string) bool {
	b, err := base64.StdEncoding.DecodeString(s)
	return err == nil && len(b) > 0
}

func declaredType(t string) string {
	t = strings.TrimSpace(t)
	if len(t) > maxDeclaredTypeSize {
		t = t[:maxDeclaredTypeSize]
	}
	if t == "" {
		return "application/octet-stream"
	}
	return t
}
