package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter hands out strictly increasing numbers per key through Redis INCR.
type Counter struct {
	rdb *redis.Client
}

// NewCounter parses a redis:// URL and pings the server so a bad address fails at startup.
func NewCounter(ctx context.Context, redisURL string) (*Counter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return &Counter{rdb: rdb}, nil
}

func chatCounterKey(applicationID string) string {
	return fmt.Sprintf("chat:%s:chat_counter", applicationID)
}

func messageCounterKey(chatID string) string {
	return fmt.Sprintf("chat:%s:message_counter", chatID)
}

// NextChatNumber returns the next chat number within an application.
func (c *Counter) NextChatNumber(ctx context.Context, applicationID string) (int64, error) {
	return c.rdb.Incr(ctx, chatCounterKey(applicationID)).Result()
}

// NextMessageNumber returns the next message number within a chat.
func (c *Counter) NextMessageNumber(ctx context.Context, chatID string) (int64, error) {
	return c.rdb.Incr(ctx, messageCounterKey(chatID)).Result()
}

func (c *Counter) Close() error {
	return c.rdb.Close()
}
