package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"festival_chat_service/internal/chat/domain"
	"festival_chat_service/internal/chat/repository"
	"festival_chat_service/pkg/database"
	"festival_chat_service/pkg/logger"
)

// StaleKeyCleanupJob 清掉沒走 cache-aware 刪除路徑就消失的房間
// 遺留下來的快取 key，防止無上限增長。低頻（每日）。
type StaleKeyCleanupJob struct {
	kv       database.KeyValueStore
	cache    repository.RoomCounterCache
	roomRepo repository.RoomRepository
}

// NewStaleKeyCleanupJob create StaleKeyCleanupJob
func NewStaleKeyCleanupJob(
	kv database.KeyValueStore,
	cache repository.RoomCounterCache,
	roomRepo repository.RoomRepository,
) *StaleKeyCleanupJob {
	return &StaleKeyCleanupJob{kv: kv, cache: cache, roomRepo: roomRepo}
}

// Run scan participants:* → durable 存在檢查 → 差集批量刪除。
// 零命中是正常結果，安靜返回。
func (j *StaleKeyCleanupJob) Run(ctx context.Context) error {
	keys, err := j.kv.Scan(ctx, domain.ParticipantsPattern())
	if err != nil {
		return err
	}

	var candidates []string
	for _, key := range keys {
		if roomID, ok := domain.RoomIDFromParticipantsKey(key); ok {
			candidates = append(candidates, roomID)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	existing, err := j.roomRepo.FilterExistingRoomIDs(ctx, candidates)
	if err != nil {
		return err
	}
	existingSet := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		existingSet[id] = struct{}{}
	}

	var stale []string
	for _, id := range candidates {
		if _, ok := existingSet[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	if err := j.cache.DeleteRoomKeys(ctx, stale...); err != nil {
		return err
	}
	logger.Log.Info("stale room cache keys removed", zap.Int("rooms", len(stale)))
	return nil
}

// LikeKeyRetentionJob like 快取鍵的保留期清理。訊息很少被硬刪，
// 所以判準是訊息年齡而非存在與否。
type LikeKeyRetentionJob struct {
	kv        database.KeyValueStore
	cache     repository.RoomCounterCache
	msgRepo   repository.MessageRepository
	retention time.Duration
}

// NewLikeKeyRetentionJob create LikeKeyRetentionJob
func NewLikeKeyRetentionJob(
	kv database.KeyValueStore,
	cache repository.RoomCounterCache,
	msgRepo repository.MessageRepository,
	retention time.Duration,
) *LikeKeyRetentionJob {
	return &LikeKeyRetentionJob{kv: kv, cache: cache, msgRepo: msgRepo, retention: retention}
}

// Run scan likedBy:* → 保留期內的訊息留下，其餘（過老或已不存在）
// 連同 likeCount 配對鍵一起刪
func (j *LikeKeyRetentionJob) Run(ctx context.Context) error {
	keys, err := j.kv.Scan(ctx, domain.LikedByPattern())
	if err != nil {
		return err
	}

	var candidates []string
	for _, key := range keys {
		if messageID, ok := domain.MessageIDFromLikedByKey(key); ok {
			candidates = append(candidates, messageID)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	cutoff := time.Now().Add(-j.retention)
	fresh, err := j.msgRepo.FilterIDsCreatedSince(ctx, candidates, cutoff)
	if err != nil {
		return err
	}
	freshSet := make(map[string]struct{}, len(fresh))
	for _, id := range fresh {
		freshSet[id] = struct{}{}
	}

	var expired []string
	for _, id := range candidates {
		if _, ok := freshSet[id]; !ok {
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return nil
	}

	if err := j.cache.DeleteMessageKeys(ctx, expired...); err != nil {
		return err
	}
	logger.Log.Info("expired like cache keys removed", zap.Int("messages", len(expired)))
	return nil
}
