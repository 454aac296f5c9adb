package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/sma-attendance-api/pkg/config"
)

// NewRedis returns a configured Redis client.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// WindowLimiter counts hits per key in fixed windows stored in Redis.
type WindowLimiter struct {
	client *redis.Client
	prefix string
}

// NewWindowLimiter builds a limiter namespacing its keys with prefix.
func NewWindowLimiter(client *redis.Client, prefix string) *WindowLimiter {
	return &WindowLimiter{client: client, prefix: prefix}
}

// Allow records a hit for key and reports whether it is still within limit for the current window.
func (l *WindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if l == nil || l.client == nil || limit <= 0 {
		return true, nil
	}

	bucket := time.Now().UTC().Truncate(window).Unix()
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, window)
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("redis rate limit %s: %w", key, err)
	}

	return incr.Val() <= int64(limit), nil
}
