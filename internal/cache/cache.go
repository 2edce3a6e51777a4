// Package cache holds the generated outline text between syncs.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a cached outline survives without an
// invalidation.
const DefaultTTL = 10 * time.Minute

// Cache stores the last generated outline text.
type Cache interface {
	// GetOutline returns the cached text and whether it was present.
	GetOutline(ctx context.Context) (string, bool, error)
	SetOutline(ctx context.Context, text string) error
	Invalidate(ctx context.Context) error
	Close() error
}

// Nop is a Cache that never holds anything.
type Nop struct{}

func (Nop) GetOutline(context.Context) (string, bool, error) { return "", false, nil }
func (Nop) SetOutline(context.Context, string) error         { return nil }
func (Nop) Invalidate(context.Context) error                 { return nil }
func (Nop) Close() error                                     { return nil }

// Redis is a Cache backed by a Redis server.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedis connects to redisURL and verifies the connection.
func NewRedis(redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: connect to redis: %w", err)
	}
	return NewRedisWithClient(client, ttl), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, key: "craftwiki:outline", ttl: ttl}
}

func (r *Redis) GetOutline(ctx context.Context) (string, bool, error) {
	text, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: get outline: %w", err)
	}
	return text, true, nil
}

func (r *Redis) SetOutline(ctx context.Context, text string) error {
	if err := r.client.Set(ctx, r.key, text, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set outline: %w", err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("cache: invalidate outline: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

var (
	_ Cache = Nop{}
	_ Cache = (*Redis)(nil)
)
