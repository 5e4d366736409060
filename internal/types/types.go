package types

import (
	"encoding/json"
	"time"
)

const anonymousPrefix = "Anonymous-"

type User struct {
	Id        int       `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Identity is the principal behind a connection. Name is the key used for
// presence, rate limiting and display.
type Identity struct {
	Name      string
	AccountId int
}

func AuthenticatedIdentity(u User) Identity {
	return Identity{Name: u.Username, AccountId: u.Id}
}

func AnonymousIdentity(sessionId string) Identity {
	return Identity{Name: anonymousPrefix + sessionId}
}

func (i Identity) IsAnonymous() bool {
	return i.AccountId == 0
}

type RoomKey struct {
	User      string          `json:"user"`
	PublicKey json.RawMessage `json:"public_key"`
}
