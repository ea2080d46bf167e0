package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// DB is a Postgres-backed session store. Sessions and batches are kept as
// JSONB documents with an expiry, mirroring the Redis store's TTL.
type DB struct {
	*sql.DB
	ttl time.Duration
}

const schema = `
	CREATE TABLE IF NOT EXISTS clipmix_sessions (
		id          UUID PRIMARY KEY,
		data        JSONB NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at  TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS clipmix_batches (
		id          UUID PRIMARY KEY,
		session_id  UUID NOT NULL,
		status      TEXT NOT NULL,
		data        JSONB NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at  TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS clipmix_batches_session_idx ON clipmix_batches (session_id);
`

func New(databaseURL string, ttl time.Duration) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: conn, ttl: ttl}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// PurgeExpired deletes sessions and batches whose TTL has passed. Reads already
// ignore expired rows; this only reclaims space.
func (db *DB) PurgeExpired(ctx context.Context) (int64, error) {
	var total int64
	for _, table := range []string{"clipmix_sessions", "clipmix_batches"} {
		res, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE expires_at <= now()`)
		if err != nil {
			return total, fmt.Errorf("failed to purge %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// StartPurger runs PurgeExpired every interval until ctx is cancelled.
func (db *DB) StartPurger(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.PurgeExpired(ctx)
			if err != nil {
				log.Printf("[DB] Purge failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[DB] Purged %d expired rows", n)
			}
		}
	}
}

func (db *DB) expiry() time.Time {
	return time.Now().Add(db.ttl)
}

// inTx runs fn inside a transaction, rolling back on any error.
func (db *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
