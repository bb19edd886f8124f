package domain

import "time"

// ChatMessage 表示一則聊天訊息 (document store)。
// LikeCount / LikedBy 是 reconcile job 定期從快取覆寫的 backup snapshot，
// 快取掉 key 時作為 durable fallback。
type ChatMessage struct {
	ID        string    `bson:"_id" json:"id"`
	RoomID    string    `bson:"room_id" json:"room_id"`
	SenderID  string    `bson:"sender_id" json:"sender_id"`
	Nickname  string    `bson:"nickname" json:"nickname"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`

	LikeCount int64    `bson:"like_count" json:"like_count"`
	LikedBy   []string `bson:"liked_by,omitempty" json:"liked_by,omitempty"`
}

// MessageLikeBackup reconcile 寫回 document store 的 like snapshot
type MessageLikeBackup struct {
	MessageID string
	LikeCount int64
	LikedBy   []string
}
