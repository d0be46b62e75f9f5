// Package cmd provides common initialization functions for the command-line
// binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/promptline/promptline/pkg/persistence"
	"github.com/promptline/promptline/pkg/persistence/file"
	"github.com/promptline/promptline/pkg/persistence/postgresql"
	"github.com/promptline/promptline/pkg/persistence/resilient"
)

// NewPersistence builds the store for the given database URL and wraps it in
// the retry and circuit-breaker layer. "postgres://" URLs get the SQL store;
// anything else is treated as a directory path for the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	var (
		store persistence.Persistence
		err   error
	)

	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		store, err = postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		store, err = file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}

	if err != nil {
		panic(err)
	}

	return resilient.New(store, logger)
}
