package session

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bobarin/clipmix/internal/models"
	"github.com/google/uuid"
)

// stores returns the implementations under test. The Redis store is only
// exercised when REDIS_URL points at a reachable server.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	out := map[string]Store{"memory": NewMemoryStore()}

	if url := os.Getenv("REDIS_URL"); url != "" {
		rs, err := NewRedisStore(url, time.Minute)
		if err != nil {
			t.Logf("skipping redis store: %v", err)
		} else {
			t.Cleanup(func() { rs.Close() })
			out["redis"] = rs
		}
	}
	return out
}

func TestSessionRoundTrip(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := &models.Session{
				ID:      uuid.New(),
				WorkDir: "/tmp/work",
				Intros:  models.AssetPool{{ID: uuid.New(), Role: models.RoleIntro, Path: "a.mp4"}},
			}
			if err := st.SaveSession(ctx, sess); err != nil {
				t.Fatalf("SaveSession: %v", err)
			}

			got, err := st.GetSession(ctx, sess.ID)
			if err != nil {
				t.Fatalf("GetSession: %v", err)
			}
			if got.WorkDir != sess.WorkDir || len(got.Intros) != 1 || got.Intros[0].Path != "a.mp4" {
				t.Errorf("unexpected session %+v", got)
			}

			// Callers must not be able to mutate stored state through the returned value
			got.Intros = nil
			again, _ := st.GetSession(ctx, sess.ID)
			if len(again.Intros) != 1 {
				t.Error("stored session was mutated through a returned value")
			}
		})
	}
}

func TestMissingEntries(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := st.GetSession(ctx, uuid.New()); !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("expected ErrSessionNotFound, got %v", err)
			}
			if _, err := st.GetBatch(ctx, uuid.New()); !errors.Is(err, ErrBatchNotFound) {
				t.Errorf("expected ErrBatchNotFound, got %v", err)
			}
			_, err := st.UpdateSession(ctx, uuid.New(), func(*models.Session) error { return nil })
			if !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("expected ErrSessionNotFound from update, got %v", err)
			}
		})
	}
}

func TestUpdateSessionAbortsOnError(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := &models.Session{ID: uuid.New(), WorkDir: "before"}
			st.SaveSession(ctx, sess)

			boom := errors.New("capacity exceeded")
			_, err := st.UpdateSession(ctx, sess.ID, func(s *models.Session) error {
				s.WorkDir = "after"
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("expected fn error to pass through, got %v", err)
			}

			got, _ := st.GetSession(ctx, sess.ID)
			if got.WorkDir != "before" {
				t.Errorf("failed update was written: %q", got.WorkDir)
			}
		})
	}
}

func TestUpdateBatchConcurrent(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := &models.Batch{ID: uuid.New(), Status: models.BatchStatusRendering, Total: 8}
			if err := st.SaveBatch(ctx, b); err != nil {
				t.Fatalf("SaveBatch: %v", err)
			}

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := st.UpdateBatch(ctx, b.ID, func(b *models.Batch) error {
						b.Done++
						return nil
					})
					if err != nil {
						t.Errorf("UpdateBatch: %v", err)
					}
				}()
			}
			wg.Wait()

			got, err := st.GetBatch(ctx, b.ID)
			if err != nil {
				t.Fatalf("GetBatch: %v", err)
			}
			if got.Done != 8 {
				t.Errorf("expected 8 increments, got %d", got.Done)
			}
		})
	}
}
