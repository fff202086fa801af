package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) GetRoom(id uuid.UUID) (Room, error) {
	args := m.Called(id)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) CreateMembership(params CreateMembershipParams) (Membership, error) {
	args := m.Called(params)
	return args.Get(0).(Membership), args.Error(1)
}
func (m *MockChatRepository) GetActiveMembership(userId, roomId uuid.UUID) (Membership, error) {
	args := m.Called(userId, roomId)
	return args.Get(0).(Membership), args.Error(1)
}
func (m *MockChatRepository) CountActiveMembers(roomId uuid.UUID) (int, error) {
	args := m.Called(roomId)
	return args.Int(0), args.Error(1)
}
func (m *MockChatRepository) DeactivateMembership(id uuid.UUID, leftAt time.Time) error {
	args := m.Called(id, leftAt)
	return args.Error(0)
}
func (m *MockChatRepository) ListRoomsForUser(userId uuid.UUID, p Pagination) ([]Room, PageMeta, error) {
	args := m.Called(userId, p)
	return args.Get(0).([]Room), args.Get(1).(PageMeta), args.Error(2)
}
func (m *MockChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetMessage(id uuid.UUID) (Message, error) {
	args := m.Called(id)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) MarkMessageEdited(id uuid.UUID, content string, editedAt time.Time) (Message, error) {
	args := m.Called(id, content, editedAt)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) MarkMessageDeleted(id uuid.UUID, deletedAt time.Time) error {
	args := m.Called(id, deletedAt)
	return args.Error(0)
}
func (m *MockChatRepository) ListMessagesForRoom(roomId uuid.UUID, p Pagination) ([]Message, PageMeta, error) {
	args := m.Called(roomId, p)
	return args.Get(0).([]Message), args.Get(1).(PageMeta), args.Error(2)
}
func (m *MockChatRepository) GetUser(id uuid.UUID) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
