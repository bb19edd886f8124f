package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"festival_chat_service/internal/chat/domain"
	"festival_chat_service/internal/chat/repository"
	"festival_chat_service/pkg/database"
	errprocess "festival_chat_service/pkg/err"
	"festival_chat_service/pkg/geo"
)

// 台北101 為活動中心，半徑 1km
var testEvent = &domain.Event{
	EventID:  "event-1",
	Title:    "Summer Fest",
	Lat:      25.0340,
	Lon:      121.5645,
	RadiusKm: 1.0,
	EndsAt:   time.Now().Add(24 * time.Hour),
}

// 約 0.5km（經度偏移 0.005 度）
var nearPoint = geo.Point{Lat: 25.0340, Lon: 121.5695}

// 約 5km
var farPoint = geo.Point{Lat: 25.0340, Lon: 121.6145}

func newAdmissionFixture(ttl time.Duration) (*AdmissionUseCase, *database.MemoryKeyValueStore, *MockRoomRepository) {
	kv := database.NewMemoryKeyValueStore()
	tokens := repository.NewLocationTokenRegistry(kv, ttl)
	roomRepo := new(MockRoomRepository)
	return NewAdmissionUseCase(tokens, roomRepo), kv, roomRepo
}

// 測試半徑內回報位置發放 token，之後 gated 操作放行
func TestAdmissionUseCase_ReportWithinRadius(t *testing.T) {
	ctx := context.Background()
	uc, _, roomRepo := newAdmissionFixture(15 * time.Minute)

	roomRepo.On("FindEvent", ctx, "event-1").Return(testEvent, nil)

	err := uc.ReportLocation(ctx, "user-1", "event-1", nearPoint)
	assert.NoError(t, err)

	assert.NoError(t, uc.RequireToken(ctx, "user-1", "event-1"))
}

// 測試半徑外回報位置被拒，不發放 token
func TestAdmissionUseCase_ReportBeyondRadius(t *testing.T) {
	ctx := context.Background()
	uc, _, roomRepo := newAdmissionFixture(15 * time.Minute)

	roomRepo.On("FindEvent", ctx, "event-1").Return(testEvent, nil)

	err := uc.ReportLocation(ctx, "user-1", "event-1", farPoint)
	assert.True(t, errprocess.Is(err, errprocess.KindForbidden))

	err = uc.RequireToken(ctx, "user-1", "event-1")
	assert.True(t, errprocess.Is(err, errprocess.KindForbidden))
}

// 測試 token 存活期間的再回報走 refresh：不重算距離，
// 人已走出半徑也只是覆寫座標並續命
func TestAdmissionUseCase_RefreshSkipsDistanceCheck(t *testing.T) {
	ctx := context.Background()
	uc, _, roomRepo := newAdmissionFixture(15 * time.Minute)

	roomRepo.On("FindEvent", ctx, "event-1").Return(testEvent, nil).Once()

	assert.NoError(t, uc.ReportLocation(ctx, "user-1", "event-1", nearPoint))
	assert.NoError(t, uc.ReportLocation(ctx, "user-1", "event-1", farPoint))
	assert.NoError(t, uc.RequireToken(ctx, "user-1", "event-1"))

	// FindEvent 只在首次發放時查一次
	roomRepo.AssertExpectations(t)
}

// 測試 token 過期後 gated 操作被拒，需重新回報位置
func TestAdmissionUseCase_TokenExpiry(t *testing.T) {
	ctx := context.Background()
	kv := database.NewMemoryKeyValueStore()
	tokens := repository.NewLocationTokenRegistry(kv, 15*time.Minute)
	roomRepo := new(MockRoomRepository)
	uc := NewAdmissionUseCase(tokens, roomRepo)

	roomRepo.On("FindEvent", ctx, "event-1").Return(testEvent, nil)

	assert.NoError(t, uc.ReportLocation(ctx, "user-1", "event-1", nearPoint))
	assert.NoError(t, uc.RequireToken(ctx, "user-1", "event-1"))

	// 時間快轉超過 TTL
	kv.Now = func() time.Time { return time.Now().Add(16 * time.Minute) }

	err := uc.RequireToken(ctx, "user-1", "event-1")
	assert.True(t, errprocess.Is(err, errprocess.KindForbidden))

	// 重新回報（半徑內）後恢復
	assert.NoError(t, uc.ReportLocation(ctx, "user-1", "event-1", nearPoint))
	assert.NoError(t, uc.RequireToken(ctx, "user-1", "event-1"))
}
