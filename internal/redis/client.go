package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// UserChannel is the pub/sub channel carrying one user's events.
func UserChannel(userID string) string {
	return fmt.Sprintf("connect:events:%s", userID)
}

// RateLimitKey is the sorted-set key of a user's request window.
func RateLimitKey(userID string) string {
	return fmt.Sprintf("connect:ratelimit:%s", userID)
}
