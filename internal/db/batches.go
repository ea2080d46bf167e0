package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/bobarin/clipmix/internal/models"
	"github.com/bobarin/clipmix/internal/session"
	"github.com/google/uuid"
)

func (db *DB) GetBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	query := `
		SELECT data
		FROM clipmix_batches
		WHERE id = $1 AND expires_at > now()
	`

	var data []byte
	err := db.QueryRowContext(ctx, query, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", session.ErrBatchNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	var b models.Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}
	return &b, nil
}

func (db *DB) SaveBatch(ctx context.Context, b *models.Batch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	query := `
		INSERT INTO clipmix_batches (id, session_id, status, data, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, now(), $5)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, data = EXCLUDED.data,
			updated_at = now(), expires_at = EXCLUDED.expires_at
	`

	_, err = db.ExecContext(ctx, query, b.ID, b.SessionID, b.Status, data, db.expiry())
	if err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

func (db *DB) UpdateBatch(ctx context.Context, id uuid.UUID, fn func(*models.Batch) error) (*models.Batch, error) {
	var b models.Batch
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var data []byte
		err := tx.QueryRowContext(ctx, `
			SELECT data
			FROM clipmix_batches
			WHERE id = $1 AND expires_at > now()
			FOR UPDATE
		`, id).Scan(&data)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", session.ErrBatchNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock batch: %w", err)
		}

		b = models.Batch{}
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("failed to decode batch: %w", err)
		}
		if err := fn(&b); err != nil {
			return err
		}

		if data, err = json.Marshal(&b); err != nil {
			return fmt.Errorf("failed to encode batch: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE clipmix_batches
			SET status = $2, data = $3, updated_at = now(), expires_at = $4
			WHERE id = $1
		`, id, b.Status, data, db.expiry())
		if err != nil {
			return fmt.Errorf("failed to update batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}
