package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"festival_chat_service/internal/member/domain"
	"festival_chat_service/pkg/database"
	errprocess "festival_chat_service/pkg/err"
	"festival_chat_service/pkg/logger"
)

// RefreshTokenRegistry 單次性 refresh token 的發行與輪替。
// 每個 token 只能兌換一次；已兌換的 token 再次出現視為重放攻擊，
// 該使用者所有 token 全部作廢。
type RefreshTokenRegistry interface {
	Issue(ctx context.Context, memberID string) (string, error)
	// Redeem 兌換：成功時舊 token 標記已用並發出新 token
	Redeem(ctx context.Context, tokenID string) (memberID string, newTokenID string, err error)
	Revoke(ctx context.Context, tokenID string) error
	RevokeAll(ctx context.Context, memberID string) error
}

type refreshTokenRegistry struct {
	store *database.JSONStore[domain.RefreshSession]
	kv    database.KeyValueStore

	sessionTTL time.Duration
	// 已兌換 token 的殘留時間：留一小段窗口做重放偵測，
	// 不留整個 session 長度
	consumedTTL time.Duration
}

// NewRefreshTokenRegistry create RefreshTokenRegistry
func NewRefreshTokenRegistry(kv database.KeyValueStore, sessionTTL, consumedTTL time.Duration) RefreshTokenRegistry {
	return &refreshTokenRegistry{
		store:       database.NewJSONStore[domain.RefreshSession](kv),
		kv:          kv,
		sessionTTL:  sessionTTL,
		consumedTTL: consumedTTL,
	}
}

func (r *refreshTokenRegistry) Issue(ctx context.Context, memberID string) (string, error) {
	now := time.Now()
	session := domain.RefreshSession{
		TokenID:   uuid.New().String(),
		MemberID:  memberID,
		IssuedAt:  now,
		ExpiredAt: now.Add(r.sessionTTL),
	}
	if err := r.store.Set(ctx, domain.RefreshTokenKey(session.TokenID), session, r.sessionTTL); err != nil {
		return "", err
	}

	// 使用者持有 token 的索引，RevokeAll 靠它一次掃光
	if err := r.kv.SAdd(ctx, domain.UserTokensKey(memberID), session.TokenID); err != nil {
		return "", err
	}
	return session.TokenID, nil
}

func (r *refreshTokenRegistry) Redeem(ctx context.Context, tokenID string) (string, string, error) {
	session, err := r.store.Get(ctx, domain.RefreshTokenKey(tokenID))
	if err != nil {
		if err == database.ErrKeyNotFound {
			return "", "", errprocess.Forbidden("refresh token expired or unknown")
		}
		return "", "", err
	}

	// 重放：同一 token 第二次兌換，整個使用者的 token 全部作廢
	if session.Used {
		logger.Log.Warn("refresh token replay detected",
			zap.String("memberID", session.MemberID), zap.String("tokenID", tokenID))
		if err := r.RevokeAll(ctx, session.MemberID); err != nil {
			logger.Log.Errorf("revoke all after replay failed :", err, zap.String("memberID", session.MemberID))
		}
		return "", "", errprocess.Conflict("refresh token already used")
	}
	if session.IsExpired() {
		return "", "", errprocess.Forbidden("refresh token expired or unknown")
	}

	// 標記已用，只留短暫殘留窗口供重放偵測
	session.Used = true
	if err := r.store.Set(ctx, domain.RefreshTokenKey(tokenID), session, r.consumedTTL); err != nil {
		return "", "", err
	}

	newTokenID, err := r.Issue(ctx, session.MemberID)
	if err != nil {
		return "", "", err
	}
	return session.MemberID, newTokenID, nil
}

func (r *refreshTokenRegistry) Revoke(ctx context.Context, tokenID string) error {
	session, err := r.store.Get(ctx, domain.RefreshTokenKey(tokenID))
	if err != nil {
		if err == database.ErrKeyNotFound {
			return nil
		}
		return err
	}
	if err := r.store.Del(ctx, domain.RefreshTokenKey(tokenID)); err != nil {
		return err
	}
	return r.kv.SRem(ctx, domain.UserTokensKey(session.MemberID), tokenID)
}

func (r *refreshTokenRegistry) RevokeAll(ctx context.Context, memberID string) error {
	tokenIDs, err := r.kv.SMembers(ctx, domain.UserTokensKey(memberID))
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(tokenIDs)+1)
	for _, id := range tokenIDs {
		keys = append(keys, domain.RefreshTokenKey(id))
	}
	keys = append(keys, domain.UserTokensKey(memberID))
	_, err = r.kv.Del(ctx, keys...)
	return err
}
