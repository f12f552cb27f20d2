// Package db opens the SQL backends and applies the embedded schema.
//
// Migrations are plain goose SQL files, one directory per dialect.
// The pgx pool (or sql.DB) is owned by the caller; nothing here closes it
// except on a failed open.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Dialect names a supported SQL backend.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func (d Dialect) goose() (goose.Dialect, string, error) {
	switch d {
	case DialectPostgres:
		return goose.DialectPostgres, "migrations/postgres", nil
	case DialectSQLite:
		return goose.DialectSQLite3, "migrations/sqlite", nil
	default:
		return "", "", fmt.Errorf("db: unsupported dialect %q", string(d))
	}
}

// Migrate applies every pending migration for dialect and returns how many ran.
func Migrate(ctx context.Context, sqlDB *sql.DB, dialect Dialect) (int, error) {
	if sqlDB == nil {
		return 0, fmt.Errorf("db: nil database")
	}

	gd, dir, err := dialect.goose()
	if err != nil {
		return 0, err
	}

	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return 0, fmt.Errorf("db: migrations fs: %w", err)
	}

	p, err := goose.NewProvider(gd, sqlDB, sub)
	if err != nil {
		return 0, fmt.Errorf("db: goose provider: %w", err)
	}

	results, err := p.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("db: migrate %s: %w", dialect, err)
	}
	return len(results), nil
}

// MigratePostgres runs the Postgres migrations over a short-lived
// database/sql handle built from pool's connection config.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	if pool == nil {
		return 0, fmt.Errorf("db: nil pool")
	}
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer func() { _ = sqlDB.Close() }()

	return Migrate(ctx, sqlDB, DialectPostgres)
}
