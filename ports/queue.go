package ports

import (
	"context"
	"time"

	"github.com/ssotoa70/mediasearch/engine/domain"
)

// Queue is a delayed-delivery FIFO with at-least-once ack/nack semantics
// (§4.6). Delivery ordering is not guaranteed; uniqueness is enforced by
// the job's idempotency key, not by the queue.
type Queue interface {
	Enqueue(ctx context.Context, job domain.TranscriptionJob) error
	EnqueueDelayed(ctx context.Context, job domain.TranscriptionJob, delay time.Duration) error
	// Consume delivers jobs to handler with the given concurrency, enforcing
	// perJobTimeout as a wall-clock cancellation on each handler invocation.
	// It blocks until ctx is cancelled.
	Consume(ctx context.Context, concurrency int, perJobTimeout time.Duration, handler func(context.Context, domain.TranscriptionJob) error) error
	Ack(ctx context.Context, jobID domain.JobID) error
	Nack(ctx context.Context, jobID domain.JobID) error
	MoveToDLQ(ctx context.Context, job domain.TranscriptionJob, item domain.DLQItem) error
}
