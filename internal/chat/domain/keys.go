package domain

import "strings"

// 快取 key 一律經由這裡的建構函數產生，避免散落的字串拼接
// 在 scan / delete 時因 prefix 打錯而互相錯過。

// CacheKey 型別化的快取 key
type CacheKey string

func (k CacheKey) String() string { return string(k) }

const (
	participantsPrefix   = "participants:"
	nicknameSeqPrefix    = "nicknameSeq:"
	lastMsgAtPrefix      = "lastMsgAt:"
	lastMsgContentPrefix = "lastMsgContent:"
	likeCountPrefix      = "likeCount:"
	likedByPrefix        = "likedBy:"
	geofencePrefix       = "geofence:"
)

// ParticipantsKey 房間即時在線成員 set
func ParticipantsKey(roomID string) CacheKey { return CacheKey(participantsPrefix + roomID) }

// NicknameSeqKey 房間暱稱序號 counter
func NicknameSeqKey(roomID string) CacheKey { return CacheKey(nicknameSeqPrefix + roomID) }

// LastMsgAtKey 房間最後訊息時間 (epoch millis string)
func LastMsgAtKey(roomID string) CacheKey { return CacheKey(lastMsgAtPrefix + roomID) }

// LastMsgContentKey 房間最後訊息預覽 "nickname: content"
func LastMsgContentKey(roomID string) CacheKey { return CacheKey(lastMsgContentPrefix + roomID) }

// LikeCountKey 訊息讚數 counter
func LikeCountKey(messageID string) CacheKey { return CacheKey(likeCountPrefix + messageID) }

// LikedByKey 訊息按讚者 set
func LikedByKey(messageID string) CacheKey { return CacheKey(likedByPrefix + messageID) }

// GeofenceKey 使用者在活動範圍內的 location token
func GeofenceKey(userID, eventID string) CacheKey {
	return CacheKey(geofencePrefix + userID + ":" + eventID)
}

// ParticipantsPattern scan 用 pattern
func ParticipantsPattern() string { return participantsPrefix + "*" }

// LastMsgAtPattern scan 用 pattern
func LastMsgAtPattern() string { return lastMsgAtPrefix + "*" }

// LikedByPattern scan 用 pattern
func LikedByPattern() string { return likedByPrefix + "*" }

// RoomIDFromParticipantsKey 從 scan 回來的 key 取出 roomID
func RoomIDFromParticipantsKey(key string) (string, bool) {
	return idFromKey(key, participantsPrefix)
}

// RoomIDFromLastMsgAtKey 從 scan 回來的 key 取出 roomID
func RoomIDFromLastMsgAtKey(key string) (string, bool) {
	return idFromKey(key, lastMsgAtPrefix)
}

// MessageIDFromLikedByKey 從 scan 回來的 key 取出 messageID
func MessageIDFromLikedByKey(key string) (string, bool) {
	return idFromKey(key, likedByPrefix)
}

func idFromKey(key, prefix string) (string, bool) {
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	id := key[len(prefix):]
	return id, id != ""
}

// RoomCacheKeys 房間範圍的全部快取 key，cascade 刪除用
func RoomCacheKeys(roomID string) []string {
	return []string{
		string(ParticipantsKey(roomID)),
		string(NicknameSeqKey(roomID)),
		string(LastMsgAtKey(roomID)),
		string(LastMsgContentKey(roomID)),
	}
}

// MessageCacheKeys 訊息範圍的快取 key 對
func MessageCacheKeys(messageID string) []string {
	return []string{
		string(LikeCountKey(messageID)),
		string(LikedByKey(messageID)),
	}
}
