package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements redis-backed storage, letting several processes
// share one credential state. The in-memory view is reconciled with redis
// on Sync.
type RedisStore struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	values map[string]string
}

// NewRedisStore creates a new redis-backed store.
func NewRedisStore(config *Config) (*RedisStore, error) {
	if config.Redis == nil || config.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address is required for redis storage")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	return &RedisStore{
		client: client,
		prefix: config.Redis.KeyPrefix,
		values: make(map[string]string),
	}, nil
}

// NewRedisStoreWithClient creates a redis-backed store on an existing client.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: keyPrefix,
		values: make(map[string]string),
	}
}

// Get returns the in-memory value for key.
func (r *RedisStore) Get(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	value, ok := r.values[key]
	return value, ok
}

// Set writes the value to memory and to redis.
func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to store value in redis: %w", err)
	}

	r.values[key] = value
	return nil
}

// Delete removes the key from memory and from redis.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete value from redis: %w", err)
	}

	delete(r.values, key)
	return nil
}

// Sync re-reads the redis value and reconciles the in-memory one.
func (r *RedisStore) Sync(ctx context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		delete(r.values, key)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to retrieve value from redis: %w", err)
	}

	r.values[key] = value
	return value, true, nil
}

// Close releases the underlying redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
