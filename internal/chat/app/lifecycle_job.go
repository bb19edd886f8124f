package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"festival_chat_service/internal/chat/repository"
	"festival_chat_service/pkg/logger"
)

// CascadeDeletionCoordinator 以固定順序刪除房間在三個 store 的資料：
// ephemeral 與 document 先於 relational，中途當機最多留下一個
// 孤兒 relational 列（可忽略、下一輪撿回），而不是一個指向已消失
// 資料的活房間。每一步天然冪等，失敗不自動重試。
type CascadeDeletionCoordinator struct {
	cache    repository.RoomCounterCache
	msgRepo  repository.MessageRepository
	roomRepo repository.RoomRepository
}

// NewCascadeDeletionCoordinator create CascadeDeletionCoordinator
func NewCascadeDeletionCoordinator(
	cache repository.RoomCounterCache,
	msgRepo repository.MessageRepository,
	roomRepo repository.RoomRepository,
) *CascadeDeletionCoordinator {
	return &CascadeDeletionCoordinator{cache: cache, msgRepo: msgRepo, roomRepo: roomRepo}
}

// DeleteRooms 對一批房間執行 cascade 刪除
func (c *CascadeDeletionCoordinator) DeleteRooms(ctx context.Context, roomIDs []string) error {
	if len(roomIDs) == 0 {
		return nil
	}

	// 1. 先讀出訊息 id（還不刪），後面要清對應的快取鍵
	messageIDs, err := c.msgRepo.FindIDsByRoomIDs(ctx, roomIDs)
	if err != nil {
		return err
	}

	// 2. 刪 ephemeral：先訊息範圍，再房間範圍
	if len(messageIDs) > 0 {
		if err := c.cache.DeleteMessageKeys(ctx, messageIDs...); err != nil {
			return err
		}
	}
	if err := c.cache.DeleteRoomKeys(ctx, roomIDs...); err != nil {
		return err
	}

	// 3. 刪 document store 的訊息
	deletedMsgs, err := c.msgRepo.DeleteByRoomIDs(ctx, roomIDs)
	if err != nil {
		return err
	}

	// 4. relational：先 membership 再 room，符合外鍵依賴
	deletedMembers, err := c.roomRepo.DeleteMembershipsByRoomIDs(ctx, roomIDs)
	if err != nil {
		return err
	}
	deletedRooms, err := c.roomRepo.DeleteRooms(ctx, roomIDs)
	if err != nil {
		return err
	}

	logger.Log.Info("room cascade deletion done",
		zap.Int("candidates", len(roomIDs)),
		zap.Int("messageKeys", len(messageIDs)),
		zap.Int64("messages", deletedMsgs),
		zap.Int64("memberships", deletedMembers),
		zap.Int64("rooms", deletedRooms))
	return nil
}

// RoomLifecycleJob 找出可刪房間並觸發 cascade：
// 空房（過寬限期）、長期無訊息、所屬活動已結束。
type RoomLifecycleJob struct {
	roomRepo    repository.RoomRepository
	cache       repository.RoomCounterCache
	coordinator *CascadeDeletionCoordinator

	emptyGrace       time.Duration
	inactivityWindow time.Duration
}

// NewRoomLifecycleJob create RoomLifecycleJob
func NewRoomLifecycleJob(
	roomRepo repository.RoomRepository,
	cache repository.RoomCounterCache,
	coordinator *CascadeDeletionCoordinator,
	emptyGrace, inactivityWindow time.Duration,
) *RoomLifecycleJob {
	return &RoomLifecycleJob{
		roomRepo:         roomRepo,
		cache:            cache,
		coordinator:      coordinator,
		emptyGrace:       emptyGrace,
		inactivityWindow: inactivityWindow,
	}
}

// Run 收集三條規則的候選，聯集後交給 coordinator
func (j *RoomLifecycleJob) Run(ctx context.Context) error {
	now := time.Now()
	candidates := make(map[string]struct{})

	// 空房規則：durable 計數為 0 且建立超過寬限期，
	// 再用即時在線 set 複驗，避免殺掉剛加入還沒 reconcile 的房
	empty, err := j.roomRepo.FindEmptyRoomIDs(ctx, now.Add(-j.emptyGrace))
	if err != nil {
		return err
	}
	for _, roomID := range empty {
		live, err := j.cache.LiveCount(ctx, roomID)
		if err != nil {
			logger.Log.Errorf("live count check failed :", err, zap.String("roomID", roomID))
			continue
		}
		if live == 0 {
			candidates[roomID] = struct{}{}
		}
	}

	// 不活躍規則
	inactive, err := j.roomRepo.FindInactiveRoomIDs(ctx, now.Add(-j.inactivityWindow))
	if err != nil {
		return err
	}
	for _, roomID := range inactive {
		candidates[roomID] = struct{}{}
	}

	// 活動結束規則
	ended, err := j.roomRepo.FindRoomIDsOfEndedEvents(ctx, now)
	if err != nil {
		return err
	}
	for _, roomID := range ended {
		candidates[roomID] = struct{}{}
	}

	if len(candidates) == 0 {
		return nil
	}

	roomIDs := make([]string, 0, len(candidates))
	for roomID := range candidates {
		roomIDs = append(roomIDs, roomID)
	}
	logger.Log.Info("room lifecycle sweep",
		zap.Int("empty", len(empty)), zap.Int("inactive", len(inactive)),
		zap.Int("eventEnded", len(ended)), zap.Int("toDelete", len(roomIDs)))

	return j.coordinator.DeleteRooms(ctx, roomIDs)
}
