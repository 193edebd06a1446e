package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultKey = "genflow:deadletter"

// RedisStore persists dead-letter entries as JSON on a Redis list so they
// survive process restarts and are visible to every worker.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	logger *slog.Logger
}

func NewRedisStore(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis dead-letter store", "addr", addr, "db", db)

	return &RedisStore{
		client: client,
		key:    defaultKey,
		logger: logger.With("module", "deadletter"),
	}, nil
}

func (s *RedisStore) Add(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal dead-letter entry: %w", err)
	}

	if err := s.client.LPush(ctx, s.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to push dead-letter entry: %w", err)
	}

	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]Entry, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead-letter entries: %w", err)
	}

	entries := make([]Entry, 0, len(raw))

	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			s.logger.Warn("Skipping malformed dead-letter entry", "error", err)

			continue
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
