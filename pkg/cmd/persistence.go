package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/genflow/genflow/pkg/persistence"
	"github.com/genflow/genflow/pkg/persistence/file"
	"github.com/genflow/genflow/pkg/persistence/postgresql"
)

// NewPersistence creates the store for a binary from a database URL.
// "postgres://" URLs get the PostgreSQL store; anything else is treated as
// a filesystem path for the JSON file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to connect to postgres: %w", err))
		}

		return store
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	if scheme == "postgres" || scheme == "postgresql" {
		return "postgres"
	}

	return "file"
}
