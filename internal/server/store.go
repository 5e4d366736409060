package server

import "github.com/kaydenvu/CPSC455-Project1/internal/database"

const backlogSize = 50

// HistoryStore is the part of the repository the relay depends on.
// LastMessages returns messages oldest first.
type HistoryStore interface {
	GetOrCreateRoom(name string) (database.Room, error)
	LastMessages(roomId, limit int) ([]database.Message, error)
	AppendMessage(params database.AppendMessageParams) (database.Message, error)
}
