package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"festival_chat_service/internal/member/domain"
	"festival_chat_service/pkg"
	"festival_chat_service/pkg/database"
	errprocess "festival_chat_service/pkg/err"
)

// 測試正常輪替：兌換後拿到新 token，舊 token 立即失效
func TestRefreshTokenRegistry_Rotation(t *testing.T) {
	ctx := context.Background()
	kv := database.NewMemoryKeyValueStore()
	reg := NewRefreshTokenRegistry(kv, time.Hour, 5*time.Second)

	old, err := reg.Issue(ctx, "member-1")
	assert.NoError(t, err)

	memberID, fresh, err := reg.Redeem(ctx, old)
	assert.NoError(t, err)
	assert.Equal(t, "member-1", memberID)
	assert.NotEqual(t, old, fresh)

	// 新 token 進了使用者索引
	ids, err := kv.SMembers(ctx, domain.UserTokensKey("member-1"))
	assert.NoError(t, err)
	assert.True(t, pkg.Contains(ids, fresh))
}

// 測試重放偵測：已兌換的 token 再次出現，
// 該使用者所有 refresh token 全部作廢
func TestRefreshTokenRegistry_ReplayRevokesAll(t *testing.T) {
	ctx := context.Background()
	kv := database.NewMemoryKeyValueStore()
	reg := NewRefreshTokenRegistry(kv, time.Hour, 5*time.Second)

	stolen, err := reg.Issue(ctx, "member-1")
	assert.NoError(t, err)

	// 正常使用者先兌換
	_, fresh, err := reg.Redeem(ctx, stolen)
	assert.NoError(t, err)

	// 攻擊者拿著同一個 token 再兌換
	_, _, err = reg.Redeem(ctx, stolen)
	assert.True(t, errprocess.Is(err, errprocess.KindConflict))

	// 連正常使用者手上的新 token 也一併失效
	_, _, err = reg.Redeem(ctx, fresh)
	assert.True(t, errprocess.Is(err, errprocess.KindForbidden))

	ids, _ := kv.SMembers(ctx, domain.UserTokensKey("member-1"))
	assert.Empty(t, ids)
}

// 測試殘留窗口過後的重放：key 已過期，回一般的 Forbidden，
// 不觸發（也無從觸發）全域撤銷
func TestRefreshTokenRegistry_ConsumedTokenExpires(t *testing.T) {
	ctx := context.Background()
	kv := database.NewMemoryKeyValueStore()
	reg := NewRefreshTokenRegistry(kv, time.Hour, 5*time.Second)

	old, err := reg.Issue(ctx, "member-1")
	assert.NoError(t, err)
	_, fresh, err := reg.Redeem(ctx, old)
	assert.NoError(t, err)

	// 快轉超過殘留窗口
	kv.Now = func() time.Time { return time.Now().Add(10 * time.Second) }

	_, _, err = reg.Redeem(ctx, old)
	assert.True(t, errprocess.Is(err, errprocess.KindForbidden))

	// 新 token 不受影響
	_, _, err = reg.Redeem(ctx, fresh)
	assert.NoError(t, err)
}

// 測試未知 token 與過期 session
func TestRefreshTokenRegistry_UnknownAndExpired(t *testing.T) {
	ctx := context.Background()
	kv := database.NewMemoryKeyValueStore()
	reg := NewRefreshTokenRegistry(kv, time.Hour, 5*time.Second)

	_, _, err := reg.Redeem(ctx, "never-issued")
	assert.True(t, errprocess.Is(err, errprocess.KindForbidden))

	old, err := reg.Issue(ctx, "member-1")
	assert.NoError(t, err)

	kv.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, _, err = reg.Redeem(ctx, old)
	assert.True(t, errprocess.Is(err, errprocess.KindForbidden))
}

// 測試單一 token 撤銷：只影響該 token
func TestRefreshTokenRegistry_Revoke(t *testing.T) {
	ctx := context.Background()
	kv := database.NewMemoryKeyValueStore()
	reg := NewRefreshTokenRegistry(kv, time.Hour, 5*time.Second)

	t1, _ := reg.Issue(ctx, "member-1")
	t2, _ := reg.Issue(ctx, "member-1")

	assert.NoError(t, reg.Revoke(ctx, t1))
	// 重覆撤銷是 no-op
	assert.NoError(t, reg.Revoke(ctx, t1))

	_, _, err := reg.Redeem(ctx, t1)
	assert.True(t, errprocess.Is(err, errprocess.KindForbidden))
	_, _, err = reg.Redeem(ctx, t2)
	assert.NoError(t, err)
}
