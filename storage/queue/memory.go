// Package queue provides ports.Queue implementations: an in-memory queue
// for tests and local development, and a NATS JetStream-backed queue for
// production (see nats.go).
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ssotoa70/mediasearch/engine/domain"
	"github.com/ssotoa70/mediasearch/pkg/logging"
	"github.com/ssotoa70/mediasearch/ports"
)

// Memory is an in-process ports.Queue backed by a channel, matching the
// at-least-once/no-ordering-guarantee contract of §4.6 well enough for
// tests and single-process deployments. It does not persist across
// restarts.
type Memory struct {
	mu      sync.Mutex
	ch      chan domain.TranscriptionJob
	dlq     []domain.DLQItem
	log     zerolog.Logger
	timers  []*time.Timer
}

// NewMemory constructs a Memory queue with the given channel capacity.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 256
	}
	return &Memory{ch: make(chan domain.TranscriptionJob, capacity), log: logging.For("queue.memory")}
}

func (m *Memory) Enqueue(ctx context.Context, job domain.TranscriptionJob) error {
	select {
	case m.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) EnqueueDelayed(ctx context.Context, job domain.TranscriptionJob, delay time.Duration) error {
	if delay <= 0 {
		return m.Enqueue(ctx, job)
	}
	timer := time.AfterFunc(delay, func() {
		_ = m.Enqueue(context.Background(), job)
	})
	m.mu.Lock()
	m.timers = append(m.timers, timer)
	m.mu.Unlock()
	return nil
}

// Consume delivers jobs to handler with up to concurrency workers, each
// handler invocation bounded by perJobTimeout. It blocks until ctx is
// cancelled.
func (m *Memory) Consume(ctx context.Context, concurrency int, perJobTimeout time.Duration, handler func(context.Context, domain.TranscriptionJob) error) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case job := <-m.ch:
			sem <- struct{}{}
			wg.Add(1)
			go func(j domain.TranscriptionJob) {
				defer wg.Done()
				defer func() { <-sem }()
				jobCtx := ctx
				var cancel context.CancelFunc
				if perJobTimeout > 0 {
					jobCtx, cancel = context.WithTimeout(ctx, perJobTimeout)
					defer cancel()
				}
				if err := handler(jobCtx, j); err != nil {
					m.log.Warn().Err(err).Str("job_id", string(j.JobID)).Msg("queue.memory: handler returned error, job dropped")
				}
			}(job)
		}
	}
}

func (m *Memory) Ack(_ context.Context, _ domain.JobID) error  { return nil }
func (m *Memory) Nack(ctx context.Context, jobID domain.JobID) error {
	return nil
}

func (m *Memory) MoveToDLQ(_ context.Context, _ domain.TranscriptionJob, item domain.DLQItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlq = append(m.dlq, item)
	return nil
}

// DLQItems returns a snapshot of items moved to the DLQ, for tests.
func (m *Memory) DLQItems() []domain.DLQItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.DLQItem, len(m.dlq))
	copy(out, m.dlq)
	return out
}
