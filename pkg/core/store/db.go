// Package store persists extraction runs in Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotInitialized is returned by repositories used before InitDB.
var ErrNotInitialized = errors.New("database pool not initialized")

var (
	pool *pgxpool.Pool
	once sync.Once
)

// InitDB initializes the connection pool from dsn, or from the DATABASE_URL
// environment variable when dsn is empty. Only the first call connects.
func InitDB(ctx context.Context, dsn string) error {
	var err error
	once.Do(func() {
		if dsn == "" {
			dsn = os.Getenv("DATABASE_URL")
		}
		if dsn == "" {
			err = fmt.Errorf("DATABASE_URL environment variable not set")
			return
		}

		config, parseErr := pgxpool.ParseConfig(dsn)
		if parseErr != nil {
			err = fmt.Errorf("failed to parse database config: %w", parseErr)
			return
		}

		pool, err = pgxpool.NewWithConfig(ctx, config)
	})
	return err
}

// GetPool returns the database connection pool
func GetPool() *pgxpool.Pool {
	return pool
}

// Close closes the database connection pool
func Close() {
	if pool != nil {
		pool.Close()
	}
}
