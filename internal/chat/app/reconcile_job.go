package app

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"festival_chat_service/internal/chat/domain"
	"festival_chat_service/internal/chat/repository"
	"festival_chat_service/pkg/database"
	"festival_chat_service/pkg/logger"
)

// ReconcileJob 定期把快取差額折入 durable store：
// participants:* 的基數、lastMsgAt:* 的時間戳，合併成單一 bulk upsert；
// 另把 like 快取 snapshot 備份回 document store。
// 不需要分散式鎖：upsert 的逐列條件覆寫本身冪等。
type ReconcileJob struct {
	kv       database.KeyValueStore
	cache    repository.RoomCounterCache
	roomRepo repository.RoomRepository
	msgRepo  repository.MessageRepository
}

// NewReconcileJob create ReconcileJob
func NewReconcileJob(
	kv database.KeyValueStore,
	cache repository.RoomCounterCache,
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
) *ReconcileJob {
	return &ReconcileJob{kv: kv, cache: cache, roomRepo: roomRepo, msgRepo: msgRepo}
}

// Run 執行一輪 reconcile。bulk upsert 失敗則整輪放棄，
// 等下一個排程 tick 重試；單筆壞值只跳過該筆。
func (j *ReconcileJob) Run(ctx context.Context) error {
	deltas := make(map[string]*domain.RoomCounterDelta)

	// 1. cursor scan 兩種 prefix，絕不做阻塞式全 keyspace 列舉
	partKeys, err := j.kv.Scan(ctx, domain.ParticipantsPattern())
	if err != nil {
		return err
	}
	tsKeys, err := j.kv.Scan(ctx, domain.LastMsgAtPattern())
	if err != nil {
		return err
	}

	// 2. pipeline 批量讀取
	cards, err := j.kv.SCardBatch(ctx, partKeys)
	if err != nil {
		return err
	}
	for key, card := range cards {
		roomID, ok := domain.RoomIDFromParticipantsKey(key)
		if !ok {
			continue
		}
		count := card
		j.delta(deltas, roomID).ParticipantCount = &count
	}

	vals, err := j.kv.MGet(ctx, tsKeys)
	if err != nil {
		return err
	}

	// 成功消化的 lastMsgAt key，upsert 提交後才刪
	var consumed []string
	for i, key := range tsKeys {
		if vals[i] == nil {
			continue
		}
		roomID, ok := domain.RoomIDFromLastMsgAtKey(key)
		if !ok {
			continue
		}

		// 3. 防禦性解析：壞掉的單筆不能擋住整批
		ts, ok := parseEpochMillis(*vals[i])
		if !ok {
			logger.Log.Warn("drop malformed lastMsgAt cache entry",
				zap.String("key", key), zap.String("value", *vals[i]))
			continue
		}
		j.delta(deltas, roomID).LastMessageAt = &ts
		consumed = append(consumed, key)
	}

	// 4-5. 合併後一條語句 bulk upsert
	if len(deltas) > 0 {
		list := make([]domain.RoomCounterDelta, 0, len(deltas))
		for _, d := range deltas {
			list = append(list, *d)
		}
		if err := j.roomRepo.BulkUpsertCounters(ctx, list); err != nil {
			return err
		}

		// 6. 提交成功才刪已消化的 key；刪失敗容忍，
		// 條件覆寫讓下一輪重複 reconcile 無害
		if len(consumed) > 0 {
			if _, err := j.kv.Del(ctx, consumed...); err != nil {
				logger.Log.Errorf("delete consumed lastMsgAt keys failed :", err)
			}
		}
		logger.Log.Info("room counters reconciled",
			zap.Int("rooms", len(list)), zap.Int("timestamps", len(consumed)))
	}

	j.backupLikes(ctx)
	return nil
}

// backupLikes 把 like 快取 snapshot 覆寫回 document store。
// 純備份，失敗記 log 不影響本輪結果。
func (j *ReconcileJob) backupLikes(ctx context.Context) {
	keys, err := j.kv.Scan(ctx, domain.LikedByPattern())
	if err != nil {
		logger.Log.Errorf("scan likedBy keys failed :", err)
		return
	}

	var backups []domain.MessageLikeBackup
	for _, key := range keys {
		messageID, ok := domain.MessageIDFromLikedByKey(key)
		if !ok {
			continue
		}
		count, members, err := j.cache.LikeState(ctx, messageID)
		if err != nil {
			logger.Log.Errorf("read like state failed :", err, zap.String("messageID", messageID))
			continue
		}
		backups = append(backups, domain.MessageLikeBackup{
			MessageID: messageID,
			LikeCount: count,
			LikedBy:   members,
		})
	}

	if len(backups) == 0 {
		return
	}
	if err := j.msgRepo.BulkUpdateLikes(ctx, backups); err != nil {
		logger.Log.Errorf("like snapshot backup failed :", err)
		return
	}
	logger.Log.Info("like snapshots backed up", zap.Int("messages", len(backups)))
}

func (j *ReconcileJob) delta(m map[string]*domain.RoomCounterDelta, roomID string) *domain.RoomCounterDelta {
	d, ok := m[roomID]
	if !ok {
		d = &domain.RoomCounterDelta{RoomID: roomID}
		m[roomID] = d
	}
	return d
}

// parseEpochMillis 去掉偶發的引號包裹後解析整數毫秒
func parseEpochMillis(raw string) (time.Time, bool) {
	v := strings.TrimSpace(raw)
	v = strings.Trim(v, `"`)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(n), true
}
