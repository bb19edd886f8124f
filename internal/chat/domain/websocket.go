package domain

// WSAction 前端送進 core 的動作
type WSAction string

const (
	// ActionJoin join a room
	ActionJoin WSAction = "join"
	// ActionLeave explicit leave, membership is removed
	ActionLeave WSAction = "leave"
	// ActionSend send a message
	ActionSend WSAction = "send"
	// ActionLike toggle a like on a message
	ActionLike WSAction = "like"
)

// NotifyEvent 廣播回前端的事件類型
type NotifyEvent string

const (
	// NotifyMessage a new message arrived in the room
	NotifyMessage NotifyEvent = "message"
	// NotifyLike like count of a message changed
	NotifyLike NotifyEvent = "like"
	// NotifyPresence someone joined / left
	NotifyPresence NotifyEvent = "presence"
)

// WSRequest client frame delivered into the core
type WSRequest struct {
	Action  WSAction          `json:"action"`
	RoomID  string            `json:"room_id"`
	Payload map[string]string `json:"payload,omitempty"`
}

// WSResponse broadcast frame pushed back to clients
type WSResponse struct {
	Action  string                 `json:"action"`
	RoomID  string                 `json:"room_id"`
	Success bool                   `json:"success"`
	Error   string                 `json:"error,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}
