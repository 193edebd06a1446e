package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/genflow/genflow/pkg/jobqueue/deadletter"
)

// NewDeadLetter creates the dead-letter store from a URL. "redis://host:port"
// gets the Redis list store; empty or anything else falls back to the
// in-memory store.
func NewDeadLetter(ctx context.Context, logger *slog.Logger, url string) deadletter.Store {
	addr, ok := strings.CutPrefix(url, "redis://")
	if !ok {
		return deadletter.NewMemoryStore()
	}

	store, err := deadletter.NewRedisStore(ctx, addr, "", 0, logger)
	if err != nil {
		panic(fmt.Errorf("failed to connect to redis: %w", err))
	}

	return store
}
