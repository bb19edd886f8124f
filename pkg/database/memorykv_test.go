package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryKeyValueStore_StringsAndTTL(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKeyValueStore()

	assert.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	v, err := kv.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Equal(t, "v", v)

	// 快轉超過 TTL 後惰性清除
	kv.Now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = kv.Get(ctx, "k")
	assert.Equal(t, ErrKeyNotFound, err)

	exists, _ := kv.Exists(ctx, "k")
	assert.False(t, exists)
}

func TestMemoryKeyValueStore_Counters(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKeyValueStore()

	// 缺 key 從 0 起算
	n, err := kv.IncrBy(ctx, "cnt", 3355)
	assert.NoError(t, err)
	assert.EqualValues(t, 3355, n)

	n, _ = kv.IncrBy(ctx, "cnt", 3355)
	assert.EqualValues(t, 6710, n)

	// 可以減到負數，鉗位是上層的責任
	n, _ = kv.DecrBy(ctx, "cnt", 10000)
	assert.EqualValues(t, -3290, n)
}

func TestMemoryKeyValueStore_ScanAndBatch(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKeyValueStore()

	kv.Set(ctx, "lastMsgAt:room-1", "1", 0)
	kv.Set(ctx, "lastMsgAt:room-2", "2", 0)
	kv.Set(ctx, "other:room-3", "3", 0)
	kv.SAdd(ctx, "participants:room-1", "a", "b")

	keys, err := kv.Scan(ctx, "lastMsgAt:*")
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"lastMsgAt:room-1", "lastMsgAt:room-2"}, keys)

	keys, _ = kv.Scan(ctx, "participants:*")
	assert.Equal(t, []string{"participants:room-1"}, keys)

	vals, err := kv.MGet(ctx, []string{"lastMsgAt:room-1", "missing", "lastMsgAt:room-2"})
	assert.NoError(t, err)
	assert.Equal(t, "1", *vals[0])
	assert.Nil(t, vals[1])
	assert.Equal(t, "2", *vals[2])

	cards, err := kv.SCardBatch(ctx, []string{"participants:room-1", "participants:none"})
	assert.NoError(t, err)
	assert.EqualValues(t, 2, cards["participants:room-1"])
	assert.EqualValues(t, 0, cards["participants:none"])
}

func TestJSONStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKeyValueStore()

	type payload struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}
	store := NewJSONStore[payload](kv)

	assert.NoError(t, store.Set(ctx, "p", payload{Name: "x", N: 7}, 0))
	got, err := store.Get(ctx, "p")
	assert.NoError(t, err)
	assert.Equal(t, payload{Name: "x", N: 7}, got)

	assert.NoError(t, store.Del(ctx, "p"))
	_, err = store.Get(ctx, "p")
	assert.Equal(t, ErrKeyNotFound, err)
}
