package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Up applies every pending migration for dialect and returns how many ran.
func Up(ctx context.Context, db *sql.DB, dialect string, logger *zerolog.Logger) (int, error) {
	p, err := provider(db, dialect)
	if err != nil {
		return 0, err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("migrate up: %w", err)
	}
	for _, r := range results {
		logger.Info().
			Str("dialect", dialect).
			Int64("version", r.Source.Version).
			Dur("took", r.Duration).
			Msg("migration applied")
	}
	return len(results), nil
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, db *sql.DB, dialect string) error {
	p, err := provider(db, dialect)
	if err != nil {
		return err
	}
	if _, err := p.Down(ctx); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Version reports the highest applied migration.
func Version(ctx context.Context, db *sql.DB, dialect string) (int64, error) {
	p, err := provider(db, dialect)
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(ctx)
}

func provider(db *sql.DB, dialect string) (*goose.Provider, error) {
	var d goose.Dialect
	switch dialect {
	case DialectPostgres:
		d = goose.DialectPostgres
	case DialectSQLite:
		d = goose.DialectSQLite3
	default:
		return nil, fmt.Errorf("unsupported migration dialect %q", dialect)
	}
	sub, err := fs.Sub(files, dialect)
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(d, db, sub)
}
