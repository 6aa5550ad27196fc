// Package cmd holds the backend factories shared by the binaries under cmd/.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/persistence/badger"
	"github.com/dukex/journey/pkg/persistence/file"
	"github.com/dukex/journey/pkg/persistence/memory"
	"github.com/dukex/journey/pkg/persistence/postgresql"
	"github.com/dukex/journey/pkg/persistence/redis"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql", "redis", "rediss", "badger", "memory"}

// NewPersistence opens the store selected by the scheme of databaseURL.
// A URL without a scheme is a directory for the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider := parsePersistenceProvider(databaseURL)

	logger.InfoContext(ctx, "opening persistence", "provider", provider)

	switch provider {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger.With("module", "postgresql"), databaseURL)
	case "redis", "rediss":
		return redis.NewPersistence(ctx, databaseURL)
	case "badger":
		return badger.NewPersistence(databaseURL, logger.With("module", "badger"))
	case "memory":
		return memory.NewPersistence(), nil
	case "file":
		return file.NewPersistence(databaseURL)
	default:
		return nil, fmt.Errorf("unsupported persistence provider %q, supported: %s",
			provider, strings.Join(supportedPersistenceProviders, ", "))
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
