package app

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"festival_chat_service/internal/chat/domain"
	"festival_chat_service/internal/chat/repository"
)

// MockRoomRepository Mock RoomRepository
type MockRoomRepository struct {
	mock.Mock
}

// FindEvent moke find event
func (m *MockRoomRepository) FindEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Event), args.Error(1)
	}
	return nil, args.Error(1)
}

// CreateRoom moke create room
func (m *MockRoomRepository) CreateRoom(ctx context.Context, room *domain.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

// FindRoomByID moke find room by room id
func (m *MockRoomRepository) FindRoomByID(ctx context.Context, roomID string) (*domain.Room, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Room), args.Error(1)
	}
	return nil, args.Error(1)
}

// DeleteRooms moke delete rooms
func (m *MockRoomRepository) DeleteRooms(ctx context.Context, roomIDs []string) (int64, error) {
	args := m.Called(ctx, roomIDs)
	return args.Get(0).(int64), args.Error(1)
}

// FilterExistingRoomIDs moke filter existing room ids
func (m *MockRoomRepository) FilterExistingRoomIDs(ctx context.Context, roomIDs []string) ([]string, error) {
	args := m.Called(ctx, roomIDs)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// BulkUpsertCounters moke bulk upsert counters
func (m *MockRoomRepository) BulkUpsertCounters(ctx context.Context, deltas []domain.RoomCounterDelta) error {
	args := m.Called(ctx, deltas)
	return args.Error(0)
}

// AddMemberLocked moke add member under row lock
func (m *MockRoomRepository) AddMemberLocked(ctx context.Context, roomID, userID string, nickname repository.NicknameFunc) (*domain.RoomMembership, error) {
	args := m.Called(ctx, roomID, userID, nickname)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.RoomMembership), args.Error(1)
	}
	return nil, args.Error(1)
}

// RemoveMember moke remove member
func (m *MockRoomRepository) RemoveMember(ctx context.Context, roomID, userID string) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

// FindMembership moke find membership
func (m *MockRoomRepository) FindMembership(ctx context.Context, roomID, userID string) (*domain.RoomMembership, error) {
	args := m.Called(ctx, roomID, userID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.RoomMembership), args.Error(1)
	}
	return nil, args.Error(1)
}

// UpdateLastRead moke update last read
func (m *MockRoomRepository) UpdateLastRead(ctx context.Context, roomID, userID string, at time.Time) error {
	args := m.Called(ctx, roomID, userID, at)
	return args.Error(0)
}

// DeleteMembershipsByRoomIDs moke delete memberships
func (m *MockRoomRepository) DeleteMembershipsByRoomIDs(ctx context.Context, roomIDs []string) (int64, error) {
	args := m.Called(ctx, roomIDs)
	return args.Get(0).(int64), args.Error(1)
}

// FindEmptyRoomIDs moke find empty rooms
func (m *MockRoomRepository) FindEmptyRoomIDs(ctx context.Context, createdBefore time.Time) ([]string, error) {
	args := m.Called(ctx, createdBefore)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindInactiveRoomIDs moke find inactive rooms
func (m *MockRoomRepository) FindInactiveRoomIDs(ctx context.Context, lastMessageBefore time.Time) ([]string, error) {
	args := m.Called(ctx, lastMessageBefore)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindRoomIDsOfEndedEvents moke find rooms of ended events
func (m *MockRoomRepository) FindRoomIDsOfEndedEvents(ctx context.Context, now time.Time) ([]string, error) {
	args := m.Called(ctx, now)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// InsertMessage moke insert msg
func (m *MockMessageRepository) InsertMessage(ctx context.Context, msg *domain.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// FindByID moke find msg by id
func (m *MockMessageRepository) FindByID(ctx context.Context, messageID string) (*domain.ChatMessage, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.ChatMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByRoomID moke find msgs by room
func (m *MockMessageRepository) FindByRoomID(ctx context.Context, roomID string, limit int64) ([]domain.ChatMessage, error) {
	args := m.Called(ctx, roomID, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.ChatMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindIDsByRoomIDs moke find msg ids by rooms
func (m *MockMessageRepository) FindIDsByRoomIDs(ctx context.Context, roomIDs []string) ([]string, error) {
	args := m.Called(ctx, roomIDs)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// DeleteByRoomIDs moke delete msgs by rooms
func (m *MockMessageRepository) DeleteByRoomIDs(ctx context.Context, roomIDs []string) (int64, error) {
	args := m.Called(ctx, roomIDs)
	return args.Get(0).(int64), args.Error(1)
}

// BulkUpdateLikes moke bulk update likes
func (m *MockMessageRepository) BulkUpdateLikes(ctx context.Context, backups []domain.MessageLikeBackup) error {
	args := m.Called(ctx, backups)
	return args.Error(0)
}

// FilterIDsCreatedSince moke filter fresh msg ids
func (m *MockMessageRepository) FilterIDsCreatedSince(ctx context.Context, messageIDs []string, cutoff time.Time) ([]string, error) {
	args := m.Called(ctx, messageIDs, cutoff)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockPubSub Mock PubSub
type MockPubSub struct {
	mock.Mock
}

// Publish moke publisher
func (m *MockPubSub) Publish(ctx context.Context, channel string, message interface{}) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

// Subscribe moke subscriber
func (m *MockPubSub) Subscribe(ctx context.Context, channel string, handler func(resp domain.WSResponse)) error {
	args := m.Called(ctx, channel, handler)
	return args.Error(0)
}
