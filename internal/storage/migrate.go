package storage

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// RunMigrations executes every embedded .sql file in migrationsFS in
// lexical order. Forward-only, no tracking table: each file is expected to
// be idempotent (CREATE TABLE IF NOT EXISTS, etc.) so re-running a fresh
// deployment against an already-migrated database is a no-op.
func (db *DB) RunMigrations(ctx context.Context, migrationsFS fs.FS) error {
	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("storage: read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := fs.ReadFile(migrationsFS, entry.Name())
		if err != nil {
			return fmt.Errorf("storage: read migration %s: %w", entry.Name(), err)
		}

		db.logger.Info().Str("file", entry.Name()).Msg("storage: running migration")
		if _, err := db.pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("storage: execute migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}
