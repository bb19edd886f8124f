package domain

import "festival_chat_service/pkg/geo"

// LocationToken geofence 證明。key 活著本身就是通過驗證的證據，
// 之後的操作不再重算距離，只有首次發放時檢查。
type LocationToken struct {
	UserID     string    `json:"user_id"`
	EventID    string    `json:"event_id"`
	Location   geo.Point `json:"location"`
	ReportedAt int64     `json:"reported_at"`
}
