package sentlog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ganttmailer/internal/db/migrations"
	"github.com/ganttmailer/internal/model"
)

// Runs against a real database when SENTLOG_TEST_DATABASE_URL is set.
func TestPostgresLogAppendIsIdempotent(t *testing.T) {
	dsn := os.Getenv("SENTLOG_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SENTLOG_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	if _, err := Migrate(ctx, pool, migrations.FS, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM sent_log WHERE project = 'test-4251746'`); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	l := NewPostgresLog(pool)
	rec := model.SentRecord{Project: "test-4251746", Email: "customer@example.com", Date: "2023-10-01"}
	for i := 0; i < 2; i++ {
		if err := l.Append(ctx, rec); err != nil {
			t.Fatalf("Append returned an error: %v", err)
		}
	}

	records, err := l.List(ctx)
	if err != nil {
		t.Fatalf("List returned an error: %v", err)
	}
	count := 0
	for _, r := range records {
		if r == rec {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one row for the triple, got %d", count)
	}
}
