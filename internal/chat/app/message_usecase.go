package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"festival_chat_service/internal/chat/domain"
	"festival_chat_service/internal/chat/repository"
	errprocess "festival_chat_service/pkg/err"
	"festival_chat_service/pkg/logger"
)

// SendMessageUseCase 發訊息與按讚
type SendMessageUseCase struct {
	roomRepo repository.RoomRepository
	msgRepo  repository.MessageRepository
	cache    repository.RoomCounterCache
	pubsub   repository.PubSub
}

// NewSendMessageUseCase init message use case
func NewSendMessageUseCase(
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
	cache repository.RoomCounterCache,
	pubsub repository.PubSub,
) *SendMessageUseCase {
	return &SendMessageUseCase{
		roomRepo: roomRepo,
		msgRepo:  msgRepo,
		cache:    cache,
		pubsub:   pubsub,
	}
}

// SendMessage 寫入 document store 後更新房間的最後訊息快取並廣播
func (uc *SendMessageUseCase) SendMessage(ctx context.Context, roomID, userID, content string) (*domain.ChatMessage, error) {
	membership, err := uc.roomRepo.FindMembership(ctx, roomID, userID)
	if err != nil {
		if errprocess.Is(err, errprocess.KindNotFound) {
			return nil, errprocess.Forbidden("join the room before sending messages")
		}
		return nil, err
	}

	now := time.Now()
	msg := &domain.ChatMessage{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		SenderID:  userID,
		Nickname:  membership.Nickname,
		Content:   content,
		CreatedAt: now,
	}
	if err := uc.msgRepo.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	// 快取更新失敗不影響已落盤的訊息，下一輪 reconcile 自然補上
	if err := uc.cache.RecordMessage(ctx, roomID, membership.Nickname, content, now); err != nil {
		logger.Log.Errorf("record last-message cache failed :", err, zap.String("roomID", roomID))
	}

	uc.broadcast(ctx, roomID, domain.WSResponse{
		Action:  string(domain.NotifyMessage),
		RoomID:  roomID,
		Success: true,
		Payload: map[string]interface{}{
			"message_id": msg.ID,
			"sender_id":  msg.SenderID,
			"nickname":   msg.Nickname,
			"message":    msg.Content,
			"timestamp":  now.UnixMilli(),
		},
	})
	return msg, nil
}

// ToggleLike 按讚開關。重覆投遞效果冪等（toggle 語意）
func (uc *SendMessageUseCase) ToggleLike(ctx context.Context, messageID, userID string) (bool, int64, error) {
	msg, err := uc.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return false, 0, err
	}

	liked, count, err := uc.cache.ToggleLike(ctx, messageID, userID)
	if err != nil {
		return false, 0, err
	}

	uc.broadcast(ctx, msg.RoomID, domain.WSResponse{
		Action:  string(domain.NotifyLike),
		RoomID:  msg.RoomID,
		Success: true,
		Payload: map[string]interface{}{
			"message_id": messageID,
			"user_id":    userID,
			"liked":      liked,
			"like_count": count,
		},
	})
	return liked, count, nil
}

// History 房間訊息（新到舊）
func (uc *SendMessageUseCase) History(ctx context.Context, roomID string, limit int64) ([]domain.ChatMessage, error) {
	return uc.msgRepo.FindByRoomID(ctx, roomID, limit)
}

func (uc *SendMessageUseCase) broadcast(ctx context.Context, roomID string, resp domain.WSResponse) {
	if err := uc.pubsub.Publish(ctx, repository.RoomChannel(roomID), resp); err != nil {
		logger.Log.Errorf("room broadcast failed :",
			errprocess.Transient(err.Error()), zap.String("roomID", roomID))
	}
}
