package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"gpt-queue/internal/config"
	"gpt-queue/internal/domain/ports/repository"
	"gpt-queue/internal/infra/db/migrations"
	"gpt-queue/internal/infra/db/postgres"
	"gpt-queue/internal/infra/db/sqlite"
)

// Store bundles the job repository of the configured driver with the
// handles needed to migrate and close it.
type Store struct {
	Jobs    repository.JobRepository
	Tx      repository.TransactionManager
	Dialect string

	sql  *sql.DB
	pool *pgxpool.Pool
}

func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return &Store{
			Jobs:    sqlite.NewJobRepo(db),
			Tx:      sqlite.NewTxManager(db),
			Dialect: migrations.DialectSQLite,
			sql:     db,
		}, nil
	case "postgres", "":
		pool, err := postgres.NewPgxPool(ctx, cfg.URL, cfg.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		sqlDB, err := postgres.OpenSQL(cfg.URL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres sql: %w", err)
		}
		tm := postgres.NewTxManager(pool)
		return &Store{
			Jobs:    postgres.NewJobRepo(pool, tm),
			Tx:      tm,
			Dialect: migrations.DialectPostgres,
			sql:     sqlDB,
			pool:    pool,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func (s *Store) Migrate(ctx context.Context, logger *zerolog.Logger) (int, error) {
	return migrations.Up(ctx, s.sql, s.Dialect, logger)
}

func (s *Store) Rollback(ctx context.Context) error {
	return migrations.Down(ctx, s.sql, s.Dialect)
}

func (s *Store) Version(ctx context.Context) (int64, error) {
	return migrations.Version(ctx, s.sql, s.Dialect)
}

// ReportStats publishes connection pool gauges. SQLite has no pool to report.
func (s *Store) ReportStats() {
	if s.pool != nil {
		postgres.ReportPoolStats(s.pool)
	}
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.sql != nil {
		_ = s.sql.Close()
	}
}
