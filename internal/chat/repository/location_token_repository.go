package repository

import (
	"context"
	"time"

	"festival_chat_service/internal/chat/domain"
	"festival_chat_service/pkg/database"
)

// LocationTokenRegistry 定場 token。key 存活即代表 geofence 通過；
// 距離只在首次發放時由 admission 層檢查。
type LocationTokenRegistry interface {
	// Issue 首次發放，帶固定 TTL
	Issue(ctx context.Context, token domain.LocationToken) error
	// Refresh 覆寫座標並重設 TTL，不重算距離
	Refresh(ctx context.Context, token domain.LocationToken) error
	// Exists hot path 的純存在檢查
	Exists(ctx context.Context, userID, eventID string) (bool, error)
	Find(ctx context.Context, userID, eventID string) (*domain.LocationToken, error)
	Revoke(ctx context.Context, userID, eventID string) error
}

type locationTokenRegistry struct {
	store *database.JSONStore[domain.LocationToken]
	kv    database.KeyValueStore
	ttl   time.Duration
}

// NewLocationTokenRegistry create a LocationTokenRegistry
func NewLocationTokenRegistry(kv database.KeyValueStore, ttl time.Duration) LocationTokenRegistry {
	return &locationTokenRegistry{
		store: database.NewJSONStore[domain.LocationToken](kv),
		kv:    kv,
		ttl:   ttl,
	}
}

func (r *locationTokenRegistry) Issue(ctx context.Context, token domain.LocationToken) error {
	key := domain.GeofenceKey(token.UserID, token.EventID).String()
	return r.store.Set(ctx, key, token, r.ttl)
}

func (r *locationTokenRegistry) Refresh(ctx context.Context, token domain.LocationToken) error {
	// 與 Issue 走同一條寫入路徑；語意差別（是否檢查距離）在 admission 層
	return r.Issue(ctx, token)
}

func (r *locationTokenRegistry) Exists(ctx context.Context, userID, eventID string) (bool, error) {
	return r.kv.Exists(ctx, domain.GeofenceKey(userID, eventID).String())
}

func (r *locationTokenRegistry) Find(ctx context.Context, userID, eventID string) (*domain.LocationToken, error) {
	token, err := r.store.Get(ctx, domain.GeofenceKey(userID, eventID).String())
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *locationTokenRegistry) Revoke(ctx context.Context, userID, eventID string) error {
	return r.store.Del(ctx, domain.GeofenceKey(userID, eventID).String())
}
