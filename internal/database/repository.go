package database

type RelayRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByUsername(username string) (User, error)
	GetOrCreateRoom(name string) (Room, error)
	GetRoomByName(name string) (Room, error)
	LastMessages(roomId, limit int) ([]Message, error)
	AppendMessage(params AppendMessageParams) (Message, error)
	ListRoomKeys(roomId int) ([]RoomKey, error)
	UpsertRoomKey(params UpsertRoomKeyParams) error
}
