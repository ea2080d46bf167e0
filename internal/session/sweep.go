package session

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// SweepWorkDir removes the job directories under workDir whose session is no
// longer in store. Only directories named by a session ID are considered, and
// those modified within grace are left alone so a session whose directory was
// created just before it was saved is not swept.
func SweepWorkDir(ctx context.Context, store Store, workDir string, grace time.Duration) (int, error) {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	cutoff := time.Now().Add(-grace)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := uuid.Parse(e.Name())
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		if _, err := store.GetSession(ctx, id); !errors.Is(err, ErrSessionNotFound) {
			if err != nil {
				return removed, err
			}
			continue
		}

		dir := filepath.Join(workDir, e.Name())
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("[Sweep] Failed to remove %s: %v", dir, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// StartSweeper runs SweepWorkDir every interval until ctx is cancelled.
func StartSweeper(ctx context.Context, store Store, workDir string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := SweepWorkDir(ctx, store, workDir, interval)
			if err != nil {
				log.Printf("[Sweep] Work dir sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[Sweep] Removed %d expired job directories", n)
			}
		}
	}
}
