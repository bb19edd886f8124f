package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"festival_chat_service/internal/chat/domain"
	"festival_chat_service/internal/chat/repository"
	errprocess "festival_chat_service/pkg/err"
	"festival_chat_service/pkg/geo"
	"festival_chat_service/pkg/logger"
)

// RoomUseCase 房間建立 / 加入 / 退出 / 斷線
type RoomUseCase struct {
	roomRepo  repository.RoomRepository
	cache     repository.RoomCounterCache
	admission *AdmissionUseCase
	pubsub    repository.PubSub
}

// NewRoomUseCase init room use case
func NewRoomUseCase(
	roomRepo repository.RoomRepository,
	cache repository.RoomCounterCache,
	admission *AdmissionUseCase,
	pubsub repository.PubSub,
) *RoomUseCase {
	return &RoomUseCase{
		roomRepo:  roomRepo,
		cache:     cache,
		admission: admission,
		pubsub:    pubsub,
	}
}

// CreateRoom 建房。geofence token 必須存活；房主自動加入
func (uc *RoomUseCase) CreateRoom(
	ctx context.Context,
	eventID, ownerID, title string,
	maxParticipants int,
	radiusKm float64,
	position geo.Point,
) (*domain.Room, error) {
	if err := uc.admission.RequireToken(ctx, ownerID, eventID); err != nil {
		return nil, err
	}

	room := &domain.Room{
		RoomID:          uuid.New().String(),
		EventID:         eventID,
		OwnerID:         ownerID,
		Title:           title,
		MaxParticipants: maxParticipants,
		RadiusKm:        radiusKm,
		Lat:             position.Lat,
		Lon:             position.Lon,
		CreatedAt:       time.Now(),
	}
	if err := uc.roomRepo.CreateRoom(ctx, room); err != nil {
		return nil, err
	}

	// 房主自己的 join 失敗不回滾建房
	if _, err := uc.join(ctx, room.RoomID, ownerID); err != nil {
		logger.Log.Errorf("owner join after create failed :", err,
			zap.String("roomID", room.RoomID), zap.String("ownerID", ownerID))
	}
	return room, nil
}

// JoinRoom 加入房間：token 檢查 → 列鎖容量檢查 → 暱稱取號 → membership
func (uc *RoomUseCase) JoinRoom(ctx context.Context, roomID, userID string) (*domain.RoomMembership, error) {
	room, err := uc.roomRepo.FindRoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := uc.admission.RequireToken(ctx, userID, room.EventID); err != nil {
		return nil, err
	}
	return uc.join(ctx, roomID, userID)
}

func (uc *RoomUseCase) join(ctx context.Context, roomID, userID string) (*domain.RoomMembership, error) {
	// 暱稱在交易內、容量檢查後取號，拒絕的 join 不耗序號
	membership, err := uc.roomRepo.AddMemberLocked(ctx, roomID, userID,
		func(ctx context.Context) (string, error) {
			return uc.cache.NextNickname(ctx, roomID)
		})
	if err != nil {
		return nil, err
	}

	// durable join 已提交，快取與廣播是 best-effort 副作用
	if err := uc.cache.JoinLive(ctx, roomID, userID); err != nil {
		logger.Log.Errorf("join live-set update failed :", err, zap.String("roomID", roomID))
	}
	uc.broadcastPresence(ctx, roomID, userID, membership.Nickname, "join")

	return membership, nil
}

// LeaveRoom 明確退出：刪 membership，之後重加入會拿到新暱稱。
// 重覆 leave 視為 no-op。
func (uc *RoomUseCase) LeaveRoom(ctx context.Context, roomID, userID string) error {
	removed, err := uc.roomRepo.RemoveMember(ctx, roomID, userID)
	if err != nil {
		return err
	}

	if err := uc.cache.LeaveLive(ctx, roomID, userID); err != nil {
		logger.Log.Errorf("leave live-set update failed :", err, zap.String("roomID", roomID))
	}
	if removed {
		uc.broadcastPresence(ctx, roomID, userID, "", "leave")
	}
	return nil
}

// Disconnect 傳輸層斷線：membership 保留（重連沿用同一暱稱），
// 只移出即時在線 set 並更新 last_read_at
func (uc *RoomUseCase) Disconnect(ctx context.Context, roomID, userID string) error {
	if err := uc.cache.LeaveLive(ctx, roomID, userID); err != nil {
		logger.Log.Errorf("disconnect live-set update failed :", err, zap.String("roomID", roomID))
	}
	return uc.roomRepo.UpdateLastRead(ctx, roomID, userID, time.Now())
}

// LiveCount 房間即時在線人數
func (uc *RoomUseCase) LiveCount(ctx context.Context, roomID string) (int64, error) {
	return uc.cache.LiveCount(ctx, roomID)
}

func (uc *RoomUseCase) broadcastPresence(ctx context.Context, roomID, userID, nickname, change string) {
	resp := domain.WSResponse{
		Action:  string(domain.NotifyPresence),
		RoomID:  roomID,
		Success: true,
		Payload: map[string]interface{}{
			"user_id":  userID,
			"nickname": nickname,
			"change":   change,
		},
	}
	if err := uc.pubsub.Publish(ctx, repository.RoomChannel(roomID), resp); err != nil {
		// 已提交的 durable 變更不因廣播失敗回滾
		logger.Log.Errorf("presence broadcast failed :",
			errprocess.Transient(err.Error()), zap.String("roomID", roomID))
	}
}
