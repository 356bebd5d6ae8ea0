package database

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/edulink/classchat/internal/types"
)

type MockTenantRepository struct {
	mock.Mock
}

func (m *MockTenantRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockTenantRepository) ListRooms() ([]RoomRecord, error) {
	args := m.Called()
	return args.Get(0).([]RoomRecord), args.Error(1)
}
func (m *MockTenantRepository) GetRoom(id string) (RoomRecord, error) {
	args := m.Called(id)
	return args.Get(0).(RoomRecord), args.Error(1)
}
func (m *MockTenantRepository) CreateRoom(params CreateRoomParams) (RoomRecord, error) {
	args := m.Called(params)
	return args.Get(0).(RoomRecord), args.Error(1)
}
func (m *MockTenantRepository) CreateMessage(msg types.Message) error {
	args := m.Called(msg)
	return args.Error(0)
}
func (m *MockTenantRepository) GetMessage(id string) (types.Message, error) {
	args := m.Called(id)
	return args.Get(0).(types.Message), args.Error(1)
}
func (m *MockTenantRepository) DeleteMessage(id string) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockTenantRepository) UpdateMessageContent(id, senderId, content string, editedAt time.Time) error {
	args := m.Called(id, senderId, content, editedAt)
	return args.Error(0)
}
func (m *MockTenantRepository) ToggleReaction(messageId, emoji string, actor types.Reactor) (map[string][]types.Reactor, error) {
	args := m.Called(messageId, emoji, actor)
	if reactions, ok := args.Get(0).(map[string][]types.Reactor); ok {
		return reactions, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockTenantRepository) MarkRead(roomId, userId string) error {
	args := m.Called(roomId, userId)
	return args.Error(0)
}
func (m *MockTenantRepository) UnreadCount(roomId, userId string) (int, error) {
	args := m.Called(roomId, userId)
	return args.Int(0), args.Error(1)
}
func (m *MockTenantRepository) UnreadCounts(userId string) (map[string]int, error) {
	args := m.Called(userId)
	if counts, ok := args.Get(0).(map[string]int); ok {
		return counts, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockTenantRepository) PinMessage(messageId, pinnedBy string, pinnedAt time.Time) error {
	args := m.Called(messageId, pinnedBy, pinnedAt)
	return args.Error(0)
}
func (m *MockTenantRepository) UnpinMessage(messageId string) error {
	args := m.Called(messageId)
	return args.Error(0)
}
func (m *MockTenantRepository) PinnedMessages(roomId string) ([]types.Message, error) {
	args := m.Called(roomId)
	if msgs, ok := args.Get(0).([]types.Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockTenantRepository) Messages(roomId string, before time.Time, limit int) ([]types.Message, error) {
	args := m.Called(roomId, before, limit)
	if msgs, ok := args.Get(0).([]types.Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockTenantRepository) SearchMessages(roomId, query string, limit int) ([]types.Message, error) {
	args := m.Called(roomId, query, limit)
	if msgs, ok := args.Get(0).([]types.Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockTenantRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
