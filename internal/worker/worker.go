package worker

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/bobarin/clipmix/internal/batch"
	"github.com/bobarin/clipmix/internal/models"
	"github.com/bobarin/clipmix/internal/queue"
	"github.com/bobarin/clipmix/internal/session"
	"github.com/bobarin/clipmix/internal/storage"
	"github.com/google/uuid"
)

// JobSource is the part of the queue the worker consumes.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Ack(ctx context.Context, job *queue.Job) error
	Recover(ctx context.Context) (int, error)
}

type Worker struct {
	jobs       JobSource
	store      session.Store
	pipeline   *batch.Pipeline
	deliverer  storage.Deliverer
	deliverSem chan struct{} // limits concurrent archive uploads
}

func New(jobs JobSource, store session.Store, pipeline *batch.Pipeline, deliverer storage.Deliverer) *Worker {
	return &Worker{
		jobs:       jobs,
		store:      store,
		pipeline:   pipeline,
		deliverer:  deliverer,
		deliverSem: make(chan struct{}, 2),
	}
}

// BatchDir is where a batch's outputs and archive are written inside a session.
func BatchDir(sess *models.Session, batchID uuid.UUID) string {
	return filepath.Join(sess.WorkDir, "batches", batchID.String())
}

// deliverWithLimit wraps an upload with a semaphore so parallel batches don't
// saturate the delivery backend.
func (w *Worker) deliverWithLimit(ctx context.Context, label string, fn func() error) error {
	log.Printf("[Upload] %s waiting for upload slot...", label)
	select {
	case w.deliverSem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("upload cancelled while waiting for slot: %w", ctx.Err())
	}
	defer func() { <-w.deliverSem }()

	log.Printf("[Upload] %s uploading...", label)
	return fn()
}

// Start begins processing render jobs and blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("[Worker] Started with concurrency: %d", concurrency)

	// Jobs left unacknowledged by a previous process go back on the queue.
	// Batches that had already started rendering are skipped by the handler.
	if n, err := w.jobs.Recover(ctx); err != nil {
		log.Printf("[Worker] Could not recover unfinished jobs: %v", err)
	} else if n > 0 {
		log.Printf("[Worker] Requeued %d unfinished jobs", n)
	}

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, w.handleRenderBatch)
	}

	<-ctx.Done()
	log.Println("[Worker] Shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, handler func(context.Context, *queue.Job) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.jobs.Dequeue(ctx, 5*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[Worker] Error dequeuing: %v", err)
				time.Sleep(time.Second)
				continue
			}

			if job == nil {
				continue // No job available, retry
			}

			log.Printf("[Worker] Processing job %s (type: %s, batch: %s)", job.ID, job.Type, job.BatchID)

			if err := handler(ctx, job); err != nil {
				log.Printf("[Worker] Job %s failed: %v", job.ID, err)
				w.failBatch(ctx, job.BatchID, err)
			} else {
				log.Printf("[Worker] Job %s completed successfully", job.ID)
			}

			if err := w.jobs.Ack(ctx, job); err != nil {
				log.Printf("[Worker] Failed to ack job %s: %v", job.ID, err)
			}
		}
	}
}

// handleRenderBatch renders every variation of a queued batch, packages the
// successful ones and delivers the archive.
func (w *Worker) handleRenderBatch(ctx context.Context, job *queue.Job) error {
	b, err := w.store.GetBatch(ctx, job.BatchID)
	if err != nil {
		return fmt.Errorf("failed to get batch: %w", err)
	}
	if b.Status != models.BatchStatusQueued {
		log.Printf("[Worker] Batch %s already %s, skipping", b.ID, b.Status)
		return nil
	}
	if b.Source == nil {
		return fmt.Errorf("batch %s has no source snapshot", b.ID)
	}

	sess, err := w.store.GetSession(ctx, job.SessionID)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	if _, err := w.store.UpdateBatch(ctx, b.ID, func(b *models.Batch) error {
		b.Status = models.BatchStatusRendering
		return nil
	}); err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}

	in := batch.FromSource(b.Source, b.Options)

	progress := func(done, total int, r models.RenderResult) {
		_, err := w.store.UpdateBatch(ctx, b.ID, func(b *models.Batch) error {
			b.Done = done
			b.Total = total
			if r.Succeeded() {
				b.Succeeded++
			}
			if done == total {
				b.Status = models.BatchStatusPackaging
			}
			return nil
		})
		if err != nil {
			log.Printf("[Worker] Failed to record progress for batch %s: %v", b.ID, err)
		}
	}

	summary, err := w.pipeline.Run(ctx, in, BatchDir(sess, b.ID), progress)
	if err != nil {
		return fmt.Errorf("failed to render batch: %w", err)
	}

	// Delivery failure leaves the archive downloadable from the job directory
	var downloadURL *string
	if err := w.deliverWithLimit(ctx, "archive "+b.ID.String(), func() error {
		url, err := w.deliverer.Deliver(ctx, sess.ID, b.ID, summary.Archive.Path)
		if err != nil {
			return err
		}
		if url != "" {
			downloadURL = &url
		}
		return nil
	}); err != nil {
		log.Printf("[Worker] Warning: archive delivery failed for batch %s, serving locally: %v", b.ID, err)
	}

	_, err = w.store.UpdateBatch(ctx, b.ID, func(b *models.Batch) error {
		now := time.Now()
		b.Status = models.BatchStatusCompleted
		b.Total = len(summary.Results)
		b.Done = len(summary.Results)
		b.Succeeded = summary.Succeeded
		b.Results = summary.Results
		b.Archive = summary.Archive
		b.DownloadURL = downloadURL
		b.FinishedAt = &now
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save batch results: %w", err)
	}

	log.Printf("[Worker] Batch %s completed: %d/%d variations, %d failed",
		b.ID, summary.Succeeded, len(summary.Results), len(summary.Failures))
	return nil
}

func (w *Worker) failBatch(ctx context.Context, batchID uuid.UUID, cause error) {
	_, err := w.store.UpdateBatch(ctx, batchID, func(b *models.Batch) error {
		now := time.Now()
		b.Status = models.BatchStatusFailed
		b.Error = strPtr(cause.Error())
		b.FinishedAt = &now
		return nil
	})
	if err != nil {
		log.Printf("[Worker] Failed to mark batch %s failed: %v", batchID, err)
	}
}

// Helper functions
func strPtr(s string) *string {
	return &s
}
