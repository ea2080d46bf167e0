package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// testQueue connects to REDIS_URL and empties the render lists, or skips.
func testQueue(t *testing.T) *Queue {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	q, err := New(url)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clear := func() { q.client.Del(context.Background(), RenderQueue, renderProcessing) }
	clear()
	t.Cleanup(func() {
		clear()
		q.Close()
	})
	return q
}

func TestQueueFIFOAndAck(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	first, second := uuid.New(), uuid.New()
	if err := q.EnqueueRenderBatch(ctx, uuid.New(), first); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.EnqueueRenderBatch(ctx, uuid.New(), second); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if n, _ := q.PendingRenderBatches(ctx); n != 2 {
		t.Fatalf("pending = %d, want 2", n)
	}

	job, err := q.Dequeue(ctx, time.Second)
	if err != nil || job == nil {
		t.Fatalf("dequeue: %v %v", job, err)
	}
	if job.BatchID != first || job.Type != JobTypeRenderBatch {
		t.Errorf("got batch %s (%s), want oldest %s", job.BatchID, job.Type, first)
	}

	if err := q.Ack(ctx, job); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if n, _ := q.client.LLen(ctx, renderProcessing).Result(); n != 0 {
		t.Errorf("processing list holds %d after ack", n)
	}
}

func TestQueueRecoverRequeuesUnacked(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	batchID := uuid.New()
	q.EnqueueRenderBatch(ctx, uuid.New(), batchID)
	if _, err := q.Dequeue(ctx, time.Second); err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	n, err := q.Recover(ctx)
	if err != nil || n != 1 {
		t.Fatalf("recover = %d, %v; want 1", n, err)
	}

	job, err := q.Dequeue(ctx, time.Second)
	if err != nil || job == nil || job.BatchID != batchID {
		t.Fatalf("recovered job not redelivered: %+v %v", job, err)
	}
}

func TestDequeueTimeout(t *testing.T) {
	q := testQueue(t)
	job, err := q.Dequeue(context.Background(), 100*time.Millisecond)
	if err != nil || job != nil {
		t.Fatalf("expected empty timeout, got %+v %v", job, err)
	}
}

func TestAckRequiresDequeuedJob(t *testing.T) {
	q := &Queue{}
	if err := q.Ack(context.Background(), &Job{ID: uuid.New()}); err == nil {
		t.Fatal("expected error acking a job that was never dequeued")
	}
}
