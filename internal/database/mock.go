package database

import (
	"github.com/stretchr/testify/mock"
)

type MockRelayRepository struct {
	mock.Mock
}

func (m *MockRelayRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRelayRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRelayRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRelayRepository) GetAccountByUsername(username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRelayRepository) GetOrCreateRoom(name string) (Room, error) {
	args := m.Called(name)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRelayRepository) GetRoomByName(name string) (Room, error) {
	args := m.Called(name)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRelayRepository) LastMessages(roomId, limit int) ([]Message, error) {
	args := m.Called(roomId, limit)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRelayRepository) AppendMessage(params AppendMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRelayRepository) ListRoomKeys(roomId int) ([]RoomKey, error) {
	args := m.Called(roomId)
	if keys, ok := args.Get(0).([]RoomKey); ok {
		return keys, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRelayRepository) UpsertRoomKey(params UpsertRoomKeyParams) error {
	args := m.Called(params)
	return args.Error(0)
}
