package repository

import (
	"context"
	"strconv"
	"time"

	"festival_chat_service/internal/chat/domain"
	"festival_chat_service/pkg/database"
)

// RoomCounterCache 快取層的語意介面：即時在線 set、暱稱序號、
// 最後訊息、讚數。所有變更對後續讀取立即可見。
type RoomCounterCache interface {
	JoinLive(ctx context.Context, roomID, userID string) error
	LeaveLive(ctx context.Context, roomID, userID string) error
	LiveCount(ctx context.Context, roomID string) (int64, error)
	LiveMembers(ctx context.Context, roomID string) ([]string, error)

	// NextNickname 單次原子遞增取號，不做 read-then-write
	NextNickname(ctx context.Context, roomID string) (string, error)

	RecordMessage(ctx context.Context, roomID, nickname, content string, at time.Time) error

	// ToggleLike 回傳 (目前是否按讚, 觀察到的讚數)
	ToggleLike(ctx context.Context, messageID, userID string) (bool, int64, error)
	// LikeState reconcile 備份用：讀出讚數與按讚者
	LikeState(ctx context.Context, messageID string) (int64, []string, error)

	DeleteRoomKeys(ctx context.Context, roomIDs ...string) error
	DeleteMessageKeys(ctx context.Context, messageIDs ...string) error
}

type roomCounterCache struct {
	kv   database.KeyValueStore
	step int64
}

// NewRoomCounterCache create a RoomCounterCache. step 是暱稱序號的
// 起始值兼步進值。
func NewRoomCounterCache(kv database.KeyValueStore, step int64) RoomCounterCache {
	return &roomCounterCache{kv: kv, step: step}
}

func (c *roomCounterCache) JoinLive(ctx context.Context, roomID, userID string) error {
	return c.kv.SAdd(ctx, domain.ParticipantsKey(roomID).String(), userID)
}

func (c *roomCounterCache) LeaveLive(ctx context.Context, roomID, userID string) error {
	return c.kv.SRem(ctx, domain.ParticipantsKey(roomID).String(), userID)
}

func (c *roomCounterCache) LiveCount(ctx context.Context, roomID string) (int64, error) {
	return c.kv.SCard(ctx, domain.ParticipantsKey(roomID).String())
}

func (c *roomCounterCache) LiveMembers(ctx context.Context, roomID string) ([]string, error) {
	return c.kv.SMembers(ctx, domain.ParticipantsKey(roomID).String())
}

func (c *roomCounterCache) NextNickname(ctx context.Context, roomID string) (string, error) {
	// INCRBY 一次到位：缺 key 時從 0 起算，第一次即為 step，
	// 併發取號不會重複
	v, err := c.kv.IncrBy(ctx, domain.NicknameSeqKey(roomID).String(), c.step)
	if err != nil {
		return "", err
	}
	return "#" + strconv.FormatInt(v, 10), nil
}

func (c *roomCounterCache) RecordMessage(ctx context.Context, roomID, nickname, content string, at time.Time) error {
	millis := strconv.FormatInt(at.UnixMilli(), 10)
	if err := c.kv.Set(ctx, domain.LastMsgAtKey(roomID).String(), millis, 0); err != nil {
		return err
	}
	return c.kv.Set(ctx, domain.LastMsgContentKey(roomID).String(), nickname+": "+content, 0)
}

func (c *roomCounterCache) ToggleLike(ctx context.Context, messageID, userID string) (bool, int64, error) {
	likedByKey := domain.LikedByKey(messageID).String()
	countKey := domain.LikeCountKey(messageID).String()

	liked, err := c.kv.SIsMember(ctx, likedByKey, userID)
	if err != nil {
		return false, 0, err
	}

	if liked {
		if err := c.kv.SRem(ctx, likedByKey, userID); err != nil {
			return false, 0, err
		}
		n, err := c.kv.DecrBy(ctx, countKey, 1)
		if err != nil {
			return false, 0, err
		}
		// counter 可能在 member-check 與遞減之間被 reconcile 刪掉，
		// 負數一律鉗到 0 並覆寫
		if n < 0 {
			if err := c.kv.Set(ctx, countKey, "0", 0); err != nil {
				return false, 0, err
			}
			n = 0
		}
		return false, n, nil
	}

	if err := c.kv.SAdd(ctx, likedByKey, userID); err != nil {
		return false, 0, err
	}
	n, err := c.kv.IncrBy(ctx, countKey, 1)
	if err != nil {
		return false, 0, err
	}
	return true, n, nil
}

func (c *roomCounterCache) LikeState(ctx context.Context, messageID string) (int64, []string, error) {
	countKey := domain.LikeCountKey(messageID).String()

	var count int64
	raw, err := c.kv.Get(ctx, countKey)
	if err == nil {
		count, _ = strconv.ParseInt(raw, 10, 64)
	} else if err != database.ErrKeyNotFound {
		return 0, nil, err
	}
	if count < 0 {
		count = 0
	}

	members, err := c.kv.SMembers(ctx, domain.LikedByKey(messageID).String())
	if err != nil {
		return 0, nil, err
	}
	return count, members, nil
}

func (c *roomCounterCache) DeleteRoomKeys(ctx context.Context, roomIDs ...string) error {
	var keys []string
	for _, id := range roomIDs {
		keys = append(keys, domain.RoomCacheKeys(id)...)
	}
	_, err := c.kv.Del(ctx, keys...)
	return err
}

func (c *roomCounterCache) DeleteMessageKeys(ctx context.Context, messageIDs ...string) error {
	var keys []string
	for _, id := range messageIDs {
		keys = append(keys, domain.MessageCacheKeys(id)...)
	}
	_, err := c.kv.Del(ctx, keys...)
	return err
}
