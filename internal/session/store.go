package session

import (
	"context"
	"errors"

	"github.com/bobarin/clipmix/internal/models"
	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrBatchNotFound   = errors.New("batch not found")
)

// Store holds caller-owned job state between requests: the uploaded pools,
// the product selection and batch progress.
type Store interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	SaveSession(ctx context.Context, s *models.Session) error
	// UpdateSession applies fn to the stored session atomically. If fn returns
	// an error nothing is written and the error is returned as-is.
	UpdateSession(ctx context.Context, id uuid.UUID, fn func(*models.Session) error) (*models.Session, error)

	GetBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error)
	SaveBatch(ctx context.Context, b *models.Batch) error
	UpdateBatch(ctx context.Context, id uuid.UUID, fn func(*models.Batch) error) (*models.Batch, error)
}
