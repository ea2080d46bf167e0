package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SignedURLTTL is how long a delivered archive link stays valid.
const SignedURLTTL = 24 * time.Hour

// Deliverer publishes a finished batch archive and returns a download URL.
// An empty URL means the archive is served from the local job directory.
type Deliverer interface {
	Deliver(ctx context.Context, sessionID, batchID uuid.UUID, localPath string) (string, error)
}

// Local leaves archives in place; the API streams them from disk.
type Local struct{}

func (Local) Deliver(ctx context.Context, sessionID, batchID uuid.UUID, localPath string) (string, error) {
	return "", nil
}

// Backend names accepted by DELIVERY_BACKEND.
const (
	BackendLocal    = "local"
	BackendSupabase = "supabase"
	BackendS3       = "s3"
)

// DeliveryConfig carries the settings for every backend; only the selected one is read.
type DeliveryConfig struct {
	Backend string

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	S3 S3Config
}

// NewDeliverer builds the Deliverer for cfg.Backend.
func NewDeliverer(ctx context.Context, cfg DeliveryConfig) (Deliverer, error) {
	switch cfg.Backend {
	case BackendLocal, "":
		return Local{}, nil
	case BackendSupabase:
		return NewSupabase(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket), nil
	case BackendS3:
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown delivery backend %q", cfg.Backend)
	}
}
