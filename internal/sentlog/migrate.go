package sentlog

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate applies every *.sql file in migrations that is not yet recorded in
// schema_migrations, in file name order. Each file runs in its own
// transaction. It returns the versions it applied.
func Migrate(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS, logger *slog.Logger) ([]string, error) {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("sentlog: create migrations table: %w", err)
	}

	files, err := fs.Glob(migrations, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("sentlog: read migrations: %w", err)
	}

	rows, err := pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("sentlog: list applied migrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("sentlog: list applied migrations: %w", err)
	}

	var done []string
	for _, f := range pending(files, applied) {
		version := versionOf(f)

		sql, err := fs.ReadFile(migrations, f)
		if err != nil {
			return done, fmt.Errorf("sentlog: read migration %s: %w", f, err)
		}

		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sql)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			return err
		})
		if err != nil {
			return done, fmt.Errorf("sentlog: migration %s: %w", version, err)
		}

		logger.Info("sentlog: applied migration", "version", version)
		done = append(done, version)
	}
	return done, nil
}

// pending returns the files whose version is not in applied, sorted.
func pending(files, applied []string) []string {
	seen := make(map[string]bool, len(applied))
	for _, v := range applied {
		seen[v] = true
	}

	var out []string
	for _, f := range files {
		if !seen[versionOf(f)] {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

func versionOf(file string) string {
	return strings.TrimSuffix(path.Base(file), ".sql")
}
