package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bobarin/clipmix/internal/models"
	"github.com/bobarin/clipmix/internal/session"
	"github.com/google/uuid"
)

var _ session.Store = (*DB)(nil)

func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `
		SELECT data
		FROM clipmix_sessions
		WHERE id = $1 AND expires_at > now()
	`

	var data []byte
	err := db.QueryRowContext(ctx, query, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

func (db *DB) SaveSession(ctx context.Context, sess *models.Session) error {
	sess.UpdatedAt = time.Now()
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	query := `
		INSERT INTO clipmix_sessions (id, data, updated_at, expires_at)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT (id) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now(), expires_at = EXCLUDED.expires_at
	`

	if _, err := db.ExecContext(ctx, query, sess.ID, data, db.expiry()); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// UpdateSession locks the row for the duration of fn so concurrent uploads and
// selection commands on one session are applied one at a time.
func (db *DB) UpdateSession(ctx context.Context, id uuid.UUID, fn func(*models.Session) error) (*models.Session, error) {
	var sess models.Session
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var data []byte
		err := tx.QueryRowContext(ctx, `
			SELECT data
			FROM clipmix_sessions
			WHERE id = $1 AND expires_at > now()
			FOR UPDATE
		`, id).Scan(&data)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock session: %w", err)
		}

		sess = models.Session{}
		if err := json.Unmarshal(data, &sess); err != nil {
			return fmt.Errorf("failed to decode session: %w", err)
		}
		if err := fn(&sess); err != nil {
			return err
		}

		sess.UpdatedAt = time.Now()
		if data, err = json.Marshal(&sess); err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE clipmix_sessions
			SET data = $2, updated_at = now(), expires_at = $3
			WHERE id = $1
		`, id, data, db.expiry())
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
