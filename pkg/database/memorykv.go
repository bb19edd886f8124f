package database

import (
	"context"
	"path"
	"strconv"
	"sync"
	"time"
)

// MemoryKeyValueStore 是 KeyValueStore 的 in-memory 實作，測試用。
// Now 可被覆蓋以模擬 TTL 過期。
type MemoryKeyValueStore struct {
	mu      sync.Mutex
	strings map[string]string
	sets    map[string]map[string]struct{}
	expires map[string]time.Time

	Now func() time.Time
}

// NewMemoryKeyValueStore create an empty in-memory store
func NewMemoryKeyValueStore() *MemoryKeyValueStore {
	return &MemoryKeyValueStore{
		strings: make(map[string]string),
		sets:    make(map[string]map[string]struct{}),
		expires: make(map[string]time.Time),
		Now:     time.Now,
	}
}

// expireLocked 惰性清除已過期的 key；caller 需持有鎖
func (m *MemoryKeyValueStore) expireLocked(key string) {
	if deadline, ok := m.expires[key]; ok && m.Now().After(deadline) {
		delete(m.strings, key)
		delete(m.sets, key)
		delete(m.expires, key)
	}
}

// Set set string value with optional ttl
func (m *MemoryKeyValueStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = value
	if ttl > 0 {
		m.expires[key] = m.Now().Add(ttl)
	} else {
		delete(m.expires, key)
	}
	return nil
}

// Get get string value
func (m *MemoryKeyValueStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(key)
	v, ok := m.strings[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

// Del delete keys, return the number removed
func (m *MemoryKeyValueStore) Del(ctx context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, key := range keys {
		m.expireLocked(key)
		if _, ok := m.strings[key]; ok {
			delete(m.strings, key)
			n++
		}
		if _, ok := m.sets[key]; ok {
			delete(m.sets, key)
			n++
		}
		delete(m.expires, key)
	}
	return n, nil
}

// Expire reset ttl of key
func (m *MemoryKeyValueStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(key)
	_, inStrings := m.strings[key]
	_, inSets := m.sets[key]
	if inStrings || inSets {
		m.expires[key] = m.Now().Add(ttl)
	}
	return nil
}

// Exists check key is present
func (m *MemoryKeyValueStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(key)
	if _, ok := m.strings[key]; ok {
		return true, nil
	}
	_, ok := m.sets[key]
	return ok, nil
}

// SAdd add members to set
func (m *MemoryKeyValueStore) SAdd(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(key)
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

// SRem remove members from set
func (m *MemoryKeyValueStore) SRem(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(key)
	set, ok := m.sets[key]
	if !ok {
		return nil
	}
	for _, member := range members {
		delete(set, member)
	}
	if len(set) == 0 {
		delete(m.sets, key)
	}
	return nil
}

// SCard set cardinality, 0 when absent
func (m *MemoryKeyValueStore) SCard(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(key)
	return int64(len(m.sets[key])), nil
}

// SMembers list set members
func (m *MemoryKeyValueStore) SMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(key)
	set := m.sets[key]
	out := make([]string, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	return out, nil
}

// SIsMember check member in set
func (m *MemoryKeyValueStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(key)
	_, ok := m.sets[key][member]
	return ok, nil
}

// IncrBy atomic add, missing key starts from 0 (redis semantics)
func (m *MemoryKeyValueStore) IncrBy(ctx context.Context, key string, step int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(key)
	cur, _ := strconv.ParseInt(m.strings[key], 10, 64)
	cur += step
	m.strings[key] = strconv.FormatInt(cur, 10)
	return cur, nil
}

// DecrBy atomic subtract
func (m *MemoryKeyValueStore) DecrBy(ctx context.Context, key string, step int64) (int64, error) {
	return m.IncrBy(ctx, key, -step)
}

// Scan list keys matching a glob pattern
func (m *MemoryKeyValueStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.strings {
		m.expireLocked(key)
		if _, ok := m.strings[key]; !ok {
			continue
		}
		if matched, _ := path.Match(pattern, key); matched {
			keys = append(keys, key)
		}
	}
	for key := range m.sets {
		m.expireLocked(key)
		if _, ok := m.sets[key]; !ok {
			continue
		}
		if matched, _ := path.Match(pattern, key); matched {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// MGet bulk read, nil for missing keys
func (m *MemoryKeyValueStore) MGet(ctx context.Context, keys []string) ([]*string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*string, len(keys))
	for i, key := range keys {
		m.expireLocked(key)
		if v, ok := m.strings[key]; ok {
			val := v
			out[i] = &val
		}
	}
	return out, nil
}

// SCardBatch bulk set cardinality
func (m *MemoryKeyValueStore) SCardBatch(ctx context.Context, keys []string) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(keys))
	for _, key := range keys {
		m.expireLocked(key)
		out[key] = int64(len(m.sets[key]))
	}
	return out, nil
}
