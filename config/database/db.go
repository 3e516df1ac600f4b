package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"voicethoughts/pkg/logger"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

const (
	connectAttempts = 5
	retryDelay      = 2 * time.Second
)

// Connect opens the pool and pings it, retrying a few times in case of
// temporary DNS/network blips.
func Connect(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := pingWithRetry(ctx, db, connectAttempts, retryDelay); err != nil {
		db.Close()
		return nil, err
	}
	logger.Sugar.Info("Successfully connected to the database")
	return db, nil
}

func pingWithRetry(ctx context.Context, db *sql.DB, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		logger.Sugar.Infof("Database connection failed, retrying in %s... (%v)", delay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("could not connect to database after %d attempts: %w", attempts, err)
}

// EnsureSchema creates the thoughts table and its row-level policies if they
// do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	logger.Sugar.Info("Database schema is up to date")
	return nil
}
