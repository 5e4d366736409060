package database

import (
	"errors"
	"time"
)

var ErrUsernameTaken = errors.New("username already taken")

type Room struct {
	Id        int
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	Id           int
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message is a persisted chat message. Username is empty for anonymous
// authors.
type Message struct {
	Id        int
	RoomId    int
	AccountId int
	Username  string
	Content   string
	IV        string
	CT        string
	CreatedAt time.Time
}

type RoomKey struct {
	AccountId int
	Username  string
	PublicKey string
}

type CreateAccountParams struct {
	Username     string
	PasswordHash string
}

type AppendMessageParams struct {
	RoomId int
	// AccountId is zero for anonymous authors.
	AccountId int
	Content   string
	IV        string
	CT        string
	CreatedAt time.Time
}

type UpsertRoomKeyParams struct {
	RoomId    int
	AccountId int
	PublicKey string
}
