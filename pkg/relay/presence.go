package relay

import (
	"context"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// PresenceRepo stores which users are currently online.
type PresenceRepo interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	List(ctx context.Context) ([]string, error)
}

// MemoryPresence is the single-instance default.
type MemoryPresence struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{users: make(map[string]struct{})}
}

func (m *MemoryPresence) SetOnline(_ context.Context, userID string) error {
	m.mu.Lock()
	m.users[userID] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *MemoryPresence) SetOffline(_ context.Context, userID string) error {
	m.mu.Lock()
	delete(m.users, userID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryPresence) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]string, 0, len(m.users))
	for id := range m.users {
		users = append(users, id)
	}
	sort.Strings(users)
	return users, nil
}

const redisOnlineKey = "lingbridge:online_users"

// RedisPresence shares presence across relay instances.
type RedisPresence struct {
	rdb *redis.Client
}

func NewRedisPresence(rdb *redis.Client) *RedisPresence {
	return &RedisPresence{rdb: rdb}
}

func (r *RedisPresence) SetOnline(ctx context.Context, userID string) error {
	return r.rdb.SAdd(ctx, redisOnlineKey, userID).Err()
}

func (r *RedisPresence) SetOffline(ctx context.Context, userID string) error {
	return r.rdb.SRem(ctx, redisOnlineKey, userID).Err()
}

func (r *RedisPresence) List(ctx context.Context) ([]string, error) {
	users, err := r.rdb.SMembers(ctx, redisOnlineKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(users)
	return users, nil
}
