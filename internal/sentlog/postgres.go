package sentlog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ganttmailer/internal/model"
)

// PostgresLog keeps the sent log in the sent_log table created by
// cmd/migrate.
type PostgresLog struct {
	pool *pgxpool.Pool
}

func NewPostgresLog(pool *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{pool: pool}
}

func (l *PostgresLog) List(ctx context.Context) (model.SentRecords, error) {
	rows, err := l.pool.Query(ctx, `SELECT project, email, sent_on FROM sent_log ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sentlog: query: %w", err)
	}
	defer rows.Close()

	records := model.SentRecords{}
	for rows.Next() {
		var rec model.SentRecord
		if err := rows.Scan(&rec.Project, &rec.Email, &rec.Date); err != nil {
			return nil, fmt.Errorf("sentlog: scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sentlog: rows: %w", err)
	}
	return records, nil
}

func (l *PostgresLog) Append(ctx context.Context, rec model.SentRecord) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO sent_log (project, email, sent_on) VALUES ($1, $2, $3)
		 ON CONFLICT (project, email, sent_on) DO NOTHING`,
		rec.Project, rec.Email, rec.Date,
	)
	if err != nil {
		return fmt.Errorf("sentlog: insert: %w", err)
	}
	return nil
}

func (l *PostgresLog) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}
