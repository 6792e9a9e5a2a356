package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV stores values in Redis.
type RedisKV struct {
	client *redis.Client
}

var _ KV = (*RedisKV)(nil)

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(addr, password string, db int) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisKV{client: client}, nil
}

// Close closes the Redis client.
func (r *RedisKV) Close() error {
	return r.client.Close()
}

// Backend returns the storage backend name.
func (r *RedisKV) Backend() string {
	return "Redis"
}

// Get retrieves the value stored under key.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set saves a value with no expiry.
func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, 0).Err()
}
