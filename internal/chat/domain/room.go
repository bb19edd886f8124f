package domain

import "time"

// Room 祭典場內的聊天房間 (durable, relational)。
// ParticipantCount 是 denormalized 快取值，真相來源是 RoomMembership
// 加上尚未 reconcile 的快取差額。
type Room struct {
	RoomID          string
	EventID         string
	OwnerID         string
	Title           string
	MaxParticipants int
	RadiusKm        float64
	Lat             float64
	Lon             float64

	ParticipantCount int
	LastMessageAt    *time.Time
	CreatedAt        time.Time
}

// RoomMembership (roomID, userID) 唯一。暱稱加入時分配一次，
// 明確退出才刪除；斷線不刪（見 Disconnect）。
type RoomMembership struct {
	RoomID     string
	UserID     string
	Nickname   string
	LastReadAt time.Time
}

// Event 房間所屬的祭典活動，geofence 以活動註冊位置為圓心
type Event struct {
	EventID  string
	Title    string
	Lat      float64
	Lon      float64
	RadiusKm float64
	EndsAt   time.Time
}

// RoomCounterDelta reconcile 時從快取折入 durable store 的差額，
// 兩個欄位都可能缺席
type RoomCounterDelta struct {
	RoomID           string
	ParticipantCount *int64
	LastMessageAt    *time.Time
}
