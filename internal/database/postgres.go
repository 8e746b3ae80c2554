package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ErrSchemaMissing means the report table has not been migrated yet.
var ErrSchemaMissing = errors.New("exam_reports table missing, run cmd/migrate up")

const connectTimeout = 10 * time.Second

// NewPostgresPool opens the report store pool and checks that the
// migrations have been applied. The portal writes one row per submission,
// so the pool is kept small and idle connections are reaped quickly.
func NewPostgresPool(ctx context.Context, databaseURL string, maxConns int32, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	poolCfg.MinConns = 0
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "exstem-portal"

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	var table *string
	if err := pool.QueryRow(ctx, `SELECT to_regclass('exam_reports')::text`).Scan(&table); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if table == nil {
		pool.Close()
		return nil, ErrSchemaMissing
	}

	log.Info().
		Str("host", poolCfg.ConnConfig.Host).
		Str("database", poolCfg.ConnConfig.Database).
		Int32("max_conns", poolCfg.MaxConns).
		Msg("Report database connected")
	return pool, nil
}
