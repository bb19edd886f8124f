package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"festival_chat_service/internal/chat/domain"
	"festival_chat_service/internal/chat/repository"
	"festival_chat_service/pkg/database"
)

func newReconcileFixture() (*ReconcileJob, *database.MemoryKeyValueStore, *MockRoomRepository, *MockMessageRepository) {
	kv := database.NewMemoryKeyValueStore()
	cache := repository.NewRoomCounterCache(kv, 3355)
	roomRepo := new(MockRoomRepository)
	msgRepo := new(MockMessageRepository)
	return NewReconcileJob(kv, cache, roomRepo, msgRepo), kv, roomRepo, msgRepo
}

func deltaFor(deltas []domain.RoomCounterDelta, roomID string) *domain.RoomCounterDelta {
	for i := range deltas {
		if deltas[i].RoomID == roomID {
			return &deltas[i]
		}
	}
	return nil
}

// 測試 participants 基數與 lastMsgAt 時間戳合併為單次 bulk upsert，
// 消化過的時間戳 key 在提交後刪除
func TestReconcileJob_MergesCountsAndTimestamps(t *testing.T) {
	ctx := context.Background()
	job, kv, roomRepo, _ := newReconcileFixture()

	kv.SAdd(ctx, domain.ParticipantsKey("room-1").String(), "user-a", "user-b")
	kv.Set(ctx, domain.LastMsgAtKey("room-1").String(), "1763691934350", 0)
	kv.Set(ctx, domain.LastMsgAtKey("room-2").String(), "1763691934999", 0)

	var captured []domain.RoomCounterDelta
	roomRepo.On("BulkUpsertCounters", ctx, mock.MatchedBy(func(deltas []domain.RoomCounterDelta) bool {
		captured = deltas
		return len(deltas) == 2
	})).Return(nil)

	err := job.Run(ctx)
	assert.NoError(t, err)
	roomRepo.AssertExpectations(t)

	d1 := deltaFor(captured, "room-1")
	assert.NotNil(t, d1)
	assert.EqualValues(t, 2, *d1.ParticipantCount)
	assert.Equal(t, time.UnixMilli(1763691934350), *d1.LastMessageAt)

	d2 := deltaFor(captured, "room-2")
	assert.NotNil(t, d2)
	assert.Nil(t, d2.ParticipantCount)
	assert.Equal(t, time.UnixMilli(1763691934999), *d2.LastMessageAt)

	// 時間戳 key 已刪，participants set 保留
	_, err = kv.Get(ctx, domain.LastMsgAtKey("room-1").String())
	assert.Equal(t, database.ErrKeyNotFound, err)
	exists, _ := kv.Exists(ctx, domain.ParticipantsKey("room-1").String())
	assert.True(t, exists)
}

// 測試引號包裹的時間戳可解析，前後夾雜雜訊的值整筆跳過
func TestReconcileJob_DefensiveTimestampParse(t *testing.T) {
	ctx := context.Background()
	job, kv, roomRepo, _ := newReconcileFixture()

	kv.Set(ctx, domain.LastMsgAtKey("room-ok").String(), `"1763691934350"`, 0)
	kv.Set(ctx, domain.LastMsgAtKey("room-bad").String(), `BAD"1763691934350"DATA`, 0)

	roomRepo.On("BulkUpsertCounters", ctx, mock.MatchedBy(func(deltas []domain.RoomCounterDelta) bool {
		return len(deltas) == 1 && deltas[0].RoomID == "room-ok" &&
			deltas[0].LastMessageAt.Equal(time.UnixMilli(1763691934350))
	})).Return(nil)

	err := job.Run(ctx)
	assert.NoError(t, err)
	roomRepo.AssertExpectations(t)

	// 壞值不消化也不刪，留給人工排查
	v, err := kv.Get(ctx, domain.LastMsgAtKey("room-bad").String())
	assert.NoError(t, err)
	assert.Equal(t, `BAD"1763691934350"DATA`, v)
	_, err = kv.Get(ctx, domain.LastMsgAtKey("room-ok").String())
	assert.Equal(t, database.ErrKeyNotFound, err)
}

// 測試 upsert 失敗：整輪放棄，key 原封不動等下一輪
func TestReconcileJob_UpsertFailureKeepsKeys(t *testing.T) {
	ctx := context.Background()
	job, kv, roomRepo, _ := newReconcileFixture()

	kv.Set(ctx, domain.LastMsgAtKey("room-1").String(), "1763691934350", 0)
	roomRepo.On("BulkUpsertCounters", ctx, mock.Anything).Return(errors.New("db down"))

	err := job.Run(ctx)
	assert.Error(t, err)

	v, err := kv.Get(ctx, domain.LastMsgAtKey("room-1").String())
	assert.NoError(t, err)
	assert.Equal(t, "1763691934350", v)
}

// 測試重跑冪等：第一輪消化後第二輪沒有殘留差額
func TestReconcileJob_Idempotent(t *testing.T) {
	ctx := context.Background()
	job, kv, roomRepo, _ := newReconcileFixture()

	kv.SAdd(ctx, domain.ParticipantsKey("room-1").String(), "user-a")
	kv.Set(ctx, domain.LastMsgAtKey("room-1").String(), "1763691934350", 0)

	roomRepo.On("BulkUpsertCounters", ctx, mock.Anything).Return(nil)

	assert.NoError(t, job.Run(ctx))
	assert.NoError(t, job.Run(ctx))

	// 第二輪只剩 participants 基數，沒有時間戳
	calls := roomRepo.Calls
	assert.Len(t, calls, 2)
	second := calls[1].Arguments.Get(1).([]domain.RoomCounterDelta)
	assert.Len(t, second, 1)
	assert.Nil(t, second[0].LastMessageAt)
	assert.EqualValues(t, 1, *second[0].ParticipantCount)
}

// 測試 like snapshot 備份：likedBy / likeCount 寫回 document store
func TestReconcileJob_LikeBackup(t *testing.T) {
	ctx := context.Background()
	job, kv, _, msgRepo := newReconcileFixture()
	cache := repository.NewRoomCounterCache(kv, 3355)

	liked, count, err := cache.ToggleLike(ctx, "msg-1", "user-a")
	assert.NoError(t, err)
	assert.True(t, liked)
	assert.EqualValues(t, 1, count)
	_, _, err = cache.ToggleLike(ctx, "msg-1", "user-b")
	assert.NoError(t, err)

	msgRepo.On("BulkUpdateLikes", ctx, mock.MatchedBy(func(backups []domain.MessageLikeBackup) bool {
		return len(backups) == 1 && backups[0].MessageID == "msg-1" &&
			backups[0].LikeCount == 2 && len(backups[0].LikedBy) == 2
	})).Return(nil)

	err = job.Run(ctx)
	assert.NoError(t, err)
	msgRepo.AssertExpectations(t)
}

// 測試時間戳解析規則
func TestParseEpochMillis(t *testing.T) {
	ts, ok := parseEpochMillis("1763691934350")
	assert.True(t, ok)
	assert.Equal(t, time.UnixMilli(1763691934350), ts)

	ts, ok = parseEpochMillis(`  "1763691934350"  `)
	assert.True(t, ok)
	assert.Equal(t, time.UnixMilli(1763691934350), ts)

	_, ok = parseEpochMillis(`BAD"1763691934350"DATA`)
	assert.False(t, ok)

	_, ok = parseEpochMillis("")
	assert.False(t, ok)
}
