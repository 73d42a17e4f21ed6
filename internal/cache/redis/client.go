package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shop-agent/backend/pkg/logger"
)

// Client backs the rate limiter and lightweight service counters.
// Pipeline artifacts (answers, intents, queries, credentials) are never
// written here; those stay request-scoped.
type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Allow implements a fixed-window counter shared across replicas. The
// first request in a window sets the expiry; the caller passes an
// already-hashed key so credentials never reach redis.
func (c *Client) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := c.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	if count == 1 {
		if err := c.client.Expire(ctx, redisKey, window).Err(); err != nil {
			logger.Warn("Failed to set rate limit window expiry", zap.Error(err))
		}
	}

	return count <= int64(limit), nil
}

func (c *Client) IncrementCounter(ctx context.Context, name string) error {
	return c.client.Incr(ctx, fmt.Sprintf("counter:%s", name)).Err()
}

func (c *Client) GetCounter(ctx context.Context, name string) (int64, error) {
	val, err := c.client.Get(ctx, fmt.Sprintf("counter:%s", name)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}
