package output

import (
	"context"
	"fmt"

	"github.com/bryanchriswhite/CamWatch/internal/config"
	"github.com/go-redis/redis/v8"
)

// RedisSink publishes a DetectionEvent per frame on a channel and keeps the
// latest one under a key for pollers
type RedisSink struct {
	client  *redis.Client
	channel string
	key     string
}

// NewRedisSink creates a redis publisher
func NewRedisSink(cfg config.RedisConfig) *RedisSink {
	return &RedisSink{
		client:  redis.NewClient(&redis.Options{Addr: cfg.Addr}),
		channel: cfg.Channel,
		key:     cfg.Key,
	}
}

// Name returns the sink name
func (s *RedisSink) Name() string {
	return "redis"
}

// Ping checks the server is reachable
func (s *RedisSink) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Publish sends one event
func (s *RedisSink) Publish(ctx context.Context, msg Message) error {
	payload, err := NewDetectionEvent(msg).JSON()
	if err != nil {
		return fmt.Errorf("failed to marshal detection event: %w", err)
	}

	pipe := s.client.TxPipeline()
	if s.channel != "" {
		pipe.Publish(ctx, s.channel, payload)
	}
	if s.key != "" {
		pipe.Set(ctx, s.key, payload, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// Latest returns the most recent event stored under the key
func (s *RedisSink) Latest(ctx context.Context) (string, error) {
	return s.client.Get(ctx, s.key).Result()
}

// Close releases the connection pool
func (s *RedisSink) Close() error {
	return s.client.Close()
}
