package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"festival_chat_service/internal/chat/domain"
	"festival_chat_service/internal/chat/repository"
	"festival_chat_service/pkg/database"
	errprocess "festival_chat_service/pkg/err"
)

func newMessageFixture() (*SendMessageUseCase, *MockRoomRepository, *MockMessageRepository, *database.MemoryKeyValueStore, *MockPubSub) {
	kv := database.NewMemoryKeyValueStore()
	cache := repository.NewRoomCounterCache(kv, 3355)
	roomRepo := new(MockRoomRepository)
	msgRepo := new(MockMessageRepository)
	pubsub := new(MockPubSub)
	return NewSendMessageUseCase(roomRepo, msgRepo, cache, pubsub), roomRepo, msgRepo, kv, pubsub
}

// 測試發訊息：落盤、更新房間最後訊息快取、廣播
func TestSendMessageUseCase_SendMessage(t *testing.T) {
	ctx := context.Background()
	uc, roomRepo, msgRepo, kv, pubsub := newMessageFixture()

	roomRepo.On("FindMembership", ctx, "room-1", "user-1").Return(&domain.RoomMembership{
		RoomID: "room-1", UserID: "user-1", Nickname: "#3355",
	}, nil)
	msgRepo.On("InsertMessage", ctx, mock.MatchedBy(func(m *domain.ChatMessage) bool {
		return m.RoomID == "room-1" && m.SenderID == "user-1" &&
			m.Nickname == "#3355" && m.Content == "hello" && m.ID != ""
	})).Return(nil)
	pubsub.On("Publish", ctx, repository.RoomChannel("room-1"), mock.Anything).Return(nil)

	msg, err := uc.SendMessage(ctx, "room-1", "user-1", "hello")
	assert.NoError(t, err)
	assert.Equal(t, "#3355", msg.Nickname)

	msgRepo.AssertExpectations(t)
	pubsub.AssertExpectations(t)

	// lastMsgAt / lastMsgContent 已寫入快取
	raw, err := kv.Get(ctx, domain.LastMsgAtKey("room-1").String())
	assert.NoError(t, err)
	ts, ok := parseEpochMillis(raw)
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)

	preview, err := kv.Get(ctx, domain.LastMsgContentKey("room-1").String())
	assert.NoError(t, err)
	assert.Equal(t, "#3355: hello", preview)
}

// 測試非房間成員發訊息被拒
func TestSendMessageUseCase_RequiresMembership(t *testing.T) {
	ctx := context.Background()
	uc, roomRepo, msgRepo, _, _ := newMessageFixture()

	roomRepo.On("FindMembership", ctx, "room-1", "stranger").
		Return(nil, errprocess.NotFound("membership not found"))

	_, err := uc.SendMessage(ctx, "room-1", "stranger", "hello")
	assert.True(t, errprocess.Is(err, errprocess.KindForbidden))
	msgRepo.AssertNotCalled(t, "InsertMessage", mock.Anything, mock.Anything)
}

// 測試按讚 toggle：兩次投遞回到原狀，計數不為負
func TestSendMessageUseCase_ToggleLike(t *testing.T) {
	ctx := context.Background()
	uc, _, msgRepo, _, pubsub := newMessageFixture()

	msgRepo.On("FindByID", ctx, "msg-1").Return(&domain.ChatMessage{
		ID: "msg-1", RoomID: "room-1",
	}, nil)
	pubsub.On("Publish", ctx, repository.RoomChannel("room-1"), mock.Anything).Return(nil)

	liked, count, err := uc.ToggleLike(ctx, "msg-1", "user-1")
	assert.NoError(t, err)
	assert.True(t, liked)
	assert.EqualValues(t, 1, count)

	liked, count, err = uc.ToggleLike(ctx, "msg-1", "user-1")
	assert.NoError(t, err)
	assert.False(t, liked)
	assert.EqualValues(t, 0, count)
}

// 測試對不存在的訊息按讚回 NotFound
func TestSendMessageUseCase_LikeUnknownMessage(t *testing.T) {
	ctx := context.Background()
	uc, _, msgRepo, _, _ := newMessageFixture()

	msgRepo.On("FindByID", ctx, "msg-ghost").
		Return(nil, errprocess.NotFound("message not found"))

	_, _, err := uc.ToggleLike(ctx, "msg-ghost", "user-1")
	assert.True(t, errprocess.Is(err, errprocess.KindNotFound))
}
