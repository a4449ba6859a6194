package window

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
)

const keyPrefix = "chat_history:"

// RedisStore keeps histories in Redis lists so they survive restarts
type RedisStore struct {
	client   *redis.Client
	capacity int
	ttl      time.Duration
	logger   zerolog.Logger
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, redisURL string, capacity int, logger zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &RedisStore{
		client:   client,
		capacity: capacity,
		ttl:      30 * 24 * time.Hour,
		logger:   logger.With().Str("component", "window").Str("backend", "redis").Logger(),
	}, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func historyKey(chatID int64) string {
	return keyPrefix + strconv.FormatInt(chatID, 10)
}

// Append pushes a message and trims the list to capacity
func (s *RedisStore) Append(ctx context.Context, chatID int64, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	key := historyKey(chatID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.capacity), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// Snapshot reads the latest messages of a chat
func (s *RedisStore) Snapshot(ctx context.Context, chatID int64, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > s.capacity {
		limit = s.capacity
	}

	raw, err := s.client.LRange(ctx, historyKey(chatID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	messages := make([]models.Message, 0, len(raw))
	for _, item := range raw {
		var msg models.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			s.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Skipping malformed history entry")
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Capacity returns the per-chat limit
func (s *RedisStore) Capacity() int {
	return s.capacity
}
