package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// JSONStore 在 KeyValueStore 之上做 JSON 序列化的泛型存取
type JSONStore[T any] struct {
	kv KeyValueStore
}

// NewJSONStore init JSON store (Set, Get, Del)
func NewJSONStore[T any](kv KeyValueStore) *JSONStore[T] {
	return &JSONStore[T]{kv: kv}
}

// Set 將 value 序列化為 JSON 後寫入
func (s *JSONStore[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return s.kv.Set(ctx, key, string(data), ttl)
}

// Get 讀取並解析 JSON；key 不存在回傳 ErrKeyNotFound
func (s *JSONStore[T]) Get(ctx context.Context, key string) (T, error) {
	var zeroValue T

	val, err := s.kv.Get(ctx, key)
	if err != nil {
		return zeroValue, err
	}

	var result T
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return zeroValue, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return result, nil
}

// Del 刪除 key
func (s *JSONStore[T]) Del(ctx context.Context, key string) error {
	_, err := s.kv.Del(ctx, key)
	return err
}
