package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Azuko9/forum-app/cmd/identity"
	"github.com/Azuko9/forum-app/cmd/internal/db"
	"github.com/Azuko9/forum-app/cmd/internal/forum"

	"github.com/jackc/pgx/v5/pgxpool"
)

// backend is the persistence selected by FORUM_DB_DRIVER. The app owns the
// underlying handle; the stores never close it.
type backend struct {
	driver string
	users  identity.Store
	topics forum.Store

	pool  *pgxpool.Pool
	sqlDB *sql.DB
}

func openBackend(ctx context.Context, cfg Config, log Logger) (*backend, error) {
	switch cfg.DBDriver {
	case DriverPostgres:
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect postgres: %w", err)
		}
		if cfg.DBAutoMigrate {
			n, err := db.MigratePostgres(ctx, pool)
			if err != nil {
				pool.Close()
				return nil, err
			}
			log.Info("db.migrate.done", "driver", DriverPostgres, "applied", n)
		}

		users, err := identity.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		topics, err := forum.NewPostgresStore(pool, "")
		if err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("db.enabled.postgres_store")
		return &backend{driver: DriverPostgres, users: users, topics: topics, pool: pool}, nil

	case DriverSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("db: open sqlite: %w", err)
		}
		users, err := identity.NewSQLiteStore(sqlDB)
		if err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		topics, err := forum.NewSQLiteStore(sqlDB)
		if err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		log.Info("db.enabled.sqlite_store", "path", cfg.SQLitePath)
		return &backend{driver: DriverSQLite, users: users, topics: topics, sqlDB: sqlDB}, nil

	case DriverMemory, "":
		log.Info("db.disabled.inmemory_store")
		return &backend{driver: DriverMemory, users: identity.NewMemoryStore(), topics: forum.NewMemoryStore()}, nil

	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.DBDriver)
	}
}

// persistent reports whether a real database backs the stores.
func (b *backend) persistent() bool { return b.pool != nil || b.sqlDB != nil }

func (b *backend) Ping(ctx context.Context, timeout time.Duration) error {
	switch {
	case b.pool != nil:
		return PingDB(ctx, b.pool, timeout)
	case b.sqlDB != nil:
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return b.sqlDB.PingContext(ctx)
	default:
		return nil
	}
}

func (b *backend) Close(_ context.Context) error {
	var errs []error
	if b.pool != nil {
		b.pool.Close()
	}
	if b.sqlDB != nil {
		errs = append(errs, b.sqlDB.Close())
	}
	return errors.Join(errs...)
}

// NewDBPool builds a pgxpool with sane defaults and validates connectivity.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}
