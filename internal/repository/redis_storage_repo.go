package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix はRedis上のキーの接頭辞。
const redisKeyPrefix = "loandesk:storage:"

// RedisStorageRepo はRedisを使用したクライアントストレージリポジトリ。
// 各値は書き込みのたびにTTLが設定され、クライアントセッションの有効期限とともに消える。
type RedisStorageRepo struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStorageRepo はRedisStorageRepoを生成する。
func NewRedisStorageRepo(client *redis.Client, ttl time.Duration) *RedisStorageRepo {
	return &RedisStorageRepo{client: client, ttl: ttl}
}

// redisKey は loandesk:storage:<sessionID>:<key> 形式のキーを返す。
func redisKey(sessionID, key string) string {
	return redisKeyPrefix + sessionID + ":" + key
}

// GetValue は値を取得する。
func (r *RedisStorageRepo) GetValue(ctx context.Context, sessionID, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, redisKey(sessionID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get storage value: %w", err)
	}
	return value, true, nil
}

// SetValue は値を保存し、TTLを更新する。
func (r *RedisStorageRepo) SetValue(ctx context.Context, sessionID, key, value string) error {
	if err := r.client.Set(ctx, redisKey(sessionID, key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set storage value: %w", err)
	}
	return nil
}

// DeleteValue は値を削除する。
func (r *RedisStorageRepo) DeleteValue(ctx context.Context, sessionID, key string) error {
	if err := r.client.Del(ctx, redisKey(sessionID, key)).Err(); err != nil {
		return fmt.Errorf("failed to delete storage value: %w", err)
	}
	return nil
}

// compile-time interface check
var _ StorageRepository = (*RedisStorageRepo)(nil)
