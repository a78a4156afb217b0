package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// TokenStore 保存注销令牌和密码重置令牌
type TokenStore interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	SaveResetToken(ctx context.Context, token string, userID uint, ttl time.Duration) error
	// ConsumeResetToken 令牌不存在或已使用时返回 0
	ConsumeResetToken(ctx context.Context, token string) (uint, error)
}

const (
	revokedKeyPrefix = "auth:revoked:"
	resetKeyPrefix   = "auth:reset:"
)

type RedisTokenStore struct {
	Client *redis.Client
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{Client: client}
}

func (s *RedisTokenStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.Client.Set(ctx, revokedKeyPrefix+tokenID, 1, ttl).Err()
}

func (s *RedisTokenStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.Client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisTokenStore) SaveResetToken(ctx context.Context, token string, userID uint, ttl time.Duration) error {
	return s.Client.Set(ctx, resetKeyPrefix+token, userID, ttl).Err()
}

func (s *RedisTokenStore) ConsumeResetToken(ctx context.Context, token string) (uint, error) {
	val, err := s.Client.GetDel(ctx, resetKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, nil
	}
	return uint(id), nil
}

// MemoryTokenStore 单进程内存实现，Redis 不可用的开发环境和测试使用
type MemoryTokenStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	resets  map[string]memoryReset
}

type memoryReset struct {
	userID    uint
	expiresAt time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		revoked: make(map[string]time.Time),
		resets:  make(map[string]memoryReset),
	}
}

func (s *MemoryTokenStore) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenID] = time.Now().Add(ttl)
	return nil
}

func (s *MemoryTokenStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if time.Now().After(exp) {
		delete(s.revoked, tokenID)
		return false, nil
	}
	return true, nil
}

func (s *MemoryTokenStore) SaveResetToken(_ context.Context, token string, userID uint, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets[token] = memoryReset{userID: userID, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryTokenStore) ConsumeResetToken(_ context.Context, token string) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resets[token]
	if !ok {
		return 0, nil
	}
	delete(s.resets, token)
	if time.Now().After(r.expiresAt) {
		return 0, nil
	}
	return r.userID, nil
}
