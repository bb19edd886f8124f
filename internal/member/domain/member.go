package domain

import (
	"time"

	"festival_chat_service/pkg/encrypt"
)

// MemberStatus 用來表示使用者狀態
type MemberStatus int

// 状态: 0=offline, 1=online, 2=ban ,3=delete
const (
	// MemberStatusOffLine 用來表示使用者狀態為離線
	MemberStatusOffLine MemberStatus = iota
	// MemberStatusOnLine 用來表示使用者狀態為在線
	MemberStatusOnLine
	// MemberStatusBan 用來表示使用者狀態為封鎖
	MemberStatusBan
	// MemberStatusDelete 用來表示使用者狀態為刪除
	MemberStatusDelete
)

// Member 用來表示使用者
type Member struct {
	ID       int64
	MemberID string
	Email    string
	Password string
	Status   MemberStatus
}

// RefreshSession 單次性 refresh token 紀錄。
// Used 標記已兌換：再次出現同一 token 即視為重放。
type RefreshSession struct {
	TokenID   string    `json:"token_id"`
	MemberID  string    `json:"member_id"`
	Used      bool      `json:"used"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiredAt time.Time `json:"expired_at"`
}

// IsPasswordMatch 密碼驗證
func (m *Member) IsPasswordMatch(inputPwd string) error {
	return encrypt.CheckPassword(m.Password, inputPwd)
}

// IsExpired 檢查 refresh token 是否已過期
func (s *RefreshSession) IsExpired() bool {
	return time.Now().After(s.ExpiredAt)
}

// MemberQuery join conditions are used to query members
type MemberQuery struct {
	ID       *int64  `db:"id"`
	MemberID *string `db:"member_id"`
	Email    *string `db:"email"`
}

const (
	refreshTokenPrefix = "refresh:"
	userTokensPrefix   = "userTokens:"
)

// RefreshTokenKey 單一 refresh token 紀錄的快取 key
func RefreshTokenKey(tokenID string) string { return refreshTokenPrefix + tokenID }

// UserTokensKey 使用者持有的 refresh token 索引 set
func UserTokensKey(memberID string) string { return userTokensPrefix + memberID }
