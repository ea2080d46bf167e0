package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	RenderQueue = "clipmix:queue:render_batch"

	// Jobs sit here between Dequeue and Ack
	renderProcessing = RenderQueue + ":processing"

	JobTypeRenderBatch = "render_batch"
)

// Queue is a FIFO of render jobs in a Redis list. Dequeued jobs move to a
// processing list until acknowledged, so a worker that dies mid-job leaves
// the job recoverable.
type Queue struct {
	client *redis.Client
}

type Job struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	SessionID uuid.UUID `json:"session_id"`
	BatchID   uuid.UUID `json:"batch_id"`
	CreatedAt time.Time `json:"created_at"`

	raw string // payload as stored, needed to Ack
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}

	return &Queue{client: client}, nil
}

// Client exposes the connection so the session store can share it.
func (q *Queue) Client() *redis.Client {
	return q.client
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Push appends a job to the render queue.
func (q *Queue) Push(ctx context.Context, job *Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("cannot encode job %s: %w", job.ID, err)
	}
	return q.client.LPush(ctx, RenderQueue, payload).Err()
}

// EnqueueRenderBatch queues rendering of an already-created batch.
func (q *Queue) EnqueueRenderBatch(ctx context.Context, sessionID, batchID uuid.UUID) error {
	return q.Push(ctx, &Job{
		ID:        uuid.New(),
		Type:      JobTypeRenderBatch,
		SessionID: sessionID,
		BatchID:   batchID,
	})
}

// Dequeue waits up to timeout for the oldest job. (nil, nil) means the wait
// timed out. The job stays in the processing list until Ack.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	raw, err := q.client.BRPopLPush(ctx, RenderQueue, renderProcessing, timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue failed: %w", err)
	}

	job := Job{raw: raw}
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// Unparseable payloads would be recovered forever; drop them here
		q.client.LRem(ctx, renderProcessing, 1, raw)
		return nil, fmt.Errorf("dropped malformed job: %w", err)
	}
	return &job, nil
}

// Ack removes a finished job from the processing list.
func (q *Queue) Ack(ctx context.Context, job *Job) error {
	if job.raw == "" {
		return fmt.Errorf("job %s was not dequeued from redis", job.ID)
	}
	return q.client.LRem(ctx, renderProcessing, 1, job.raw).Err()
}

// Recover moves every unacknowledged job back onto the queue and returns how
// many were moved. Call before starting workers.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.RPopLPush(ctx, renderProcessing, RenderQueue).Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover failed after %d jobs: %w", n, err)
		}
		n++
	}
}

// PendingRenderBatches returns the number of batches waiting for a worker.
func (q *Queue) PendingRenderBatches(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, RenderQueue).Result()
}
