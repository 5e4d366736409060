// Package presence tracks who is in each room and what they are doing.
// A user that is not in a room's map is offline.
package presence

import (
	"context"
	"time"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusTyping  Status = "typing"
	StatusOffline Status = "offline"
)

type Entry struct {
	Status   Status    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

type Tracker interface {
	// SetStatus records status for identity in room and returns the status it
	// replaced. existed is false when identity was not present before.
	SetStatus(ctx context.Context, room, identity string, status Status) (prev Status, existed bool)
	// Touch refreshes last-seen for a present identity.
	Touch(ctx context.Context, room, identity string)
	Remove(ctx context.Context, room, identity string)
	Snapshot(ctx context.Context, room string) map[string]Entry
}
