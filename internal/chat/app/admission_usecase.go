package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"festival_chat_service/internal/chat/domain"
	"festival_chat_service/internal/chat/repository"
	errprocess "festival_chat_service/pkg/err"
	"festival_chat_service/pkg/geo"
	"festival_chat_service/pkg/logger"
)

// AdmissionUseCase geofence 准入閘門。距離只在首次發放 token 時計算，
// 之後的位置回報只覆寫座標並重設 TTL，gated 操作走純存在檢查。
type AdmissionUseCase struct {
	tokens   repository.LocationTokenRegistry
	roomRepo repository.RoomRepository
}

// NewAdmissionUseCase create AdmissionUseCase
func NewAdmissionUseCase(tokens repository.LocationTokenRegistry, roomRepo repository.RoomRepository) *AdmissionUseCase {
	return &AdmissionUseCase{tokens: tokens, roomRepo: roomRepo}
}

// ReportLocation 使用者回報位置。已有 token → refresh（不重算距離）；
// 沒有 → 對活動註冊位置做 haversine 檢查後發放。
func (uc *AdmissionUseCase) ReportLocation(ctx context.Context, userID, eventID string, loc geo.Point) error {
	token := domain.LocationToken{
		UserID:     userID,
		EventID:    eventID,
		Location:   loc,
		ReportedAt: time.Now().UnixMilli(),
	}

	exists, err := uc.tokens.Exists(ctx, userID, eventID)
	if err != nil {
		return err
	}
	if exists {
		return uc.tokens.Refresh(ctx, token)
	}

	event, err := uc.roomRepo.FindEvent(ctx, eventID)
	if err != nil {
		return err
	}

	distance := geo.HaversineKm(loc, geo.Point{Lat: event.Lat, Lon: event.Lon})
	if distance > event.RadiusKm {
		return errprocess.Forbidden(fmt.Sprintf(
			"too far from the event: %.2fkm away, must be within %.1fkm", distance, event.RadiusKm))
	}

	logger.Log.Info("geofence token issued",
		zap.String("userID", userID), zap.String("eventID", eventID),
		zap.Float64("distanceKm", distance))
	return uc.tokens.Issue(ctx, token)
}

// RequireToken gated 操作的 hot path：只查 token 是否存活，不重算距離
func (uc *AdmissionUseCase) RequireToken(ctx context.Context, userID, eventID string) error {
	exists, err := uc.tokens.Exists(ctx, userID, eventID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	// 拒絕訊息帶上半徑，前端才有可操作的提示
	if event, findErr := uc.roomRepo.FindEvent(ctx, eventID); findErr == nil {
		return errprocess.Forbidden(fmt.Sprintf(
			"location not verified: report a location within %.1fkm of the event", event.RadiusKm))
	}
	return errprocess.Forbidden("location not verified for this event")
}
