package registry

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobarin/clipmix/internal/models"
	"github.com/google/uuid"
)

const (
	DefaultMaxUploadBytes  = 500 << 20
	DefaultMaxClipsPerRole = 20
)

// Accepted extensions per role. Video roles take the two container formats
// the upload form offers; music accepts the usual audio containers.
var (
	videoExtensions = map[string]bool{".mp4": true, ".mov": true}
	audioExtensions = map[string]bool{".mp3": true, ".wav": true, ".m4a": true, ".aac": true}
)

// Prober measures clip durations. Implemented by services.FFmpegService.
type Prober interface {
	GetVideoDuration(ctx context.Context, path string) (int, error)
}

// Registry stores uploaded clips in a job-scoped directory.
type Registry struct {
	dir             string
	maxUploadBytes  int64
	maxClipsPerRole int
	prober          Prober // Optional: nil skips duration measurement
}

type Options struct {
	MaxUploadBytes  int64
	MaxClipsPerRole int
	Prober          Prober
}

// New creates a registry rooted at dir, creating the directory if needed.
func New(dir string, opts Options) (*Registry, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create job dir: %v", ErrStorage, err)
	}

	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.MaxClipsPerRole <= 0 {
		opts.MaxClipsPerRole = DefaultMaxClipsPerRole
	}

	return &Registry{
		dir:             dir,
		maxUploadBytes:  opts.MaxUploadBytes,
		maxClipsPerRole: opts.MaxClipsPerRole,
		prober:          opts.Prober,
	}, nil
}

// Admit reports whether a pool currently holding count clips can take one more.
// Music is a single bed that is replaced on re-upload, so it is always admitted.
func (r *Registry) Admit(role models.Role, count int) error {
	if role == models.RoleMusic {
		return nil
	}
	if count >= r.maxClipsPerRole {
		return fmt.Errorf("%w: %s pool holds %d clips", ErrPoolFull, role, count)
	}
	return nil
}

// Ingest writes the uploaded bytes into the job directory and returns a handle.
// The write goes through a temp file that is renamed into place, so a failed
// upload never leaves a partial file behind a ClipRef.
func (r *Registry) Ingest(ctx context.Context, src io.Reader, filename string, role models.Role) (models.ClipRef, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !acceptsExtension(role, ext) {
		return models.ClipRef{}, fmt.Errorf("%w: %q for role %s", ErrUnsupportedFormat, filename, role)
	}

	roleDir := filepath.Join(r.dir, string(role))
	if err := os.MkdirAll(roleDir, 0755); err != nil {
		return models.ClipRef{}, fmt.Errorf("%w: failed to create %s dir: %v", ErrStorage, role, err)
	}

	tmp, err := os.CreateTemp(roleDir, ".upload-*"+ext)
	if err != nil {
		return models.ClipRef{}, fmt.Errorf("%w: failed to create temp file: %v", ErrStorage, err)
	}
	tmpPath := tmp.Name()

	// Read one byte past the limit to detect oversize uploads
	written, copyErr := io.Copy(tmp, io.LimitReader(src, r.maxUploadBytes+1))
	closeErr := tmp.Close()

	if copyErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		if copyErr == nil {
			copyErr = closeErr
		}
		return models.ClipRef{}, fmt.Errorf("%w: failed to write %s: %v", ErrStorage, filename, copyErr)
	}
	if written > r.maxUploadBytes {
		os.Remove(tmpPath)
		return models.ClipRef{}, fmt.Errorf("%w: %s is larger than %d bytes", ErrTooLarge, filename, r.maxUploadBytes)
	}

	ref := models.ClipRef{
		ID:        uuid.New(),
		Role:      role,
		Filename:  filepath.Base(filename),
		ByteSize:  written,
		CreatedAt: time.Now(),
	}
	ref.Path = filepath.Join(roleDir, fmt.Sprintf("%s_%s%s", role, ref.ID.String(), ext))

	if err := os.Rename(tmpPath, ref.Path); err != nil {
		os.Remove(tmpPath)
		return models.ClipRef{}, fmt.Errorf("%w: failed to store %s: %v", ErrStorage, filename, err)
	}

	// Duration is informational only; the assembler never depends on it
	if r.prober != nil {
		if ms, err := r.prober.GetVideoDuration(ctx, ref.Path); err != nil {
			log.Printf("[Registry] Could not measure duration of %s: %v", ref.Filename, err)
		} else {
			sec := float64(ms) / 1000.0
			ref.DurationSec = &sec
		}
	}

	log.Printf("[Registry] Ingested %s clip %s (%d bytes) as %s", role, ref.Filename, written, ref.ID)
	return ref, nil
}

// Remove deletes the job directory and everything in it.
func (r *Registry) Remove() error {
	return os.RemoveAll(r.dir)
}

func acceptsExtension(role models.Role, ext string) bool {
	switch role {
	case models.RoleIntro, models.RoleProduct, models.RoleOutro:
		return videoExtensions[ext]
	case models.RoleMusic:
		return audioExtensions[ext]
	}
	return false
}
