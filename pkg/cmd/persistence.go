package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/jobflow/pkg/persistence/postgresql"
	"github.com/dukex/jobflow/pkg/persistence/sqlbase"
	"github.com/dukex/jobflow/pkg/persistence/sqlite"
)

// NewStore opens the store named by databaseURL. postgres:// and postgresql:// URLs select
// PostgreSQL; sqlite://<path> or a bare path selects SQLite.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*sqlbase.Store, error) {
	provider, rest := parseProvider(databaseURL)

	switch provider {
	case "postgres", "postgresql":
		return postgresql.NewStore(ctx, logger, databaseURL)
	case "sqlite":
		return sqlite.NewStore(ctx, logger, rest)
	default:
		return nil, fmt.Errorf("unsupported database provider: %s", provider)
	}
}

func parseProvider(databaseURL string) (string, string) {
	provider, rest, found := strings.Cut(databaseURL, "://")
	if !found {
		return "sqlite", databaseURL
	}

	return provider, rest
}
