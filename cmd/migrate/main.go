package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/ganttmailer/internal/db/migrations"
	"github.com/ganttmailer/internal/sentlog"
)

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		slog.Error("failed to connect", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	applied, err := sentlog.Migrate(ctx, pool, migrations.FS, slog.Default())
	if err != nil {
		slog.Error("migration failed", "err", err)
		pool.Close()
		os.Exit(1)
	}

	slog.Info("migrations complete", "applied", len(applied))
}
