package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/ssotoa70/mediasearch/engine/domain"
	"github.com/ssotoa70/mediasearch/pkg/logging"
	"github.com/ssotoa70/mediasearch/pkg/natsutil"
)

// NATS is a JetStream-backed ports.Queue. Uniqueness is enforced by the
// job's idempotency key (§4.6), not by JetStream sequence numbers, so
// duplicate delivery across restarts is safe.
type NATS struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	subject string
	durable string
	log     zerolog.Logger

	mu     sync.Mutex
	timers []*time.Timer
}

// NATSOpts configures the JetStream-backed queue.
type NATSOpts struct {
	StreamName string
	Subject    string
	Durable    string
}

// NewNATS connects to a NATS server and ensures the configured stream
// exists, creating it if absent.
func NewNATS(url string, opts NATSOpts) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("mediasearch"))
	if err != nil {
		return nil, fmt.Errorf("queue.nats: connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("queue.nats: jetstream context: %w", err)
	}

	if _, err := js.StreamInfo(opts.StreamName); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     opts.StreamName,
			Subjects: []string{opts.Subject},
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("queue.nats: create stream %s: %w", opts.StreamName, err)
		}
	}

	return &NATS{conn: nc, js: js, subject: opts.Subject, durable: opts.Durable, log: logging.For("queue.nats")}, nil
}

// Close drains and closes the underlying connection.
func (q *NATS) Close() error {
	return q.conn.Drain()
}

func (q *NATS) Enqueue(ctx context.Context, job domain.TranscriptionJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue.nats: marshal job: %w", err)
	}
	msg := &nats.Msg{Subject: q.subject, Data: data}
	msg.Header = nats.Header{"Nats-Msg-Id": []string{job.IdempotencyKey}}
	natsutil.InjectTraceContext(ctx, msg)
	_, err = q.js.PublishMsg(msg)
	if err != nil {
		return fmt.Errorf("queue.nats: publish: %w", err)
	}
	return nil
}

// EnqueueDelayed has no native JetStream at-time-delivery primitive usable
// across every deployment target, so the delay is implemented with an
// in-process timer that calls Enqueue when it fires. The retry/quarantine
// manager already tolerates redelivery via the job's idempotency key, so
// losing the timer on process restart only means the retry is late, not
// duplicated or dropped silently — the asset remains in PENDING_RETRY
// until an operator or the next deploy re-processes it.
func (q *NATS) EnqueueDelayed(ctx context.Context, job domain.TranscriptionJob, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, job)
	}
	timer := time.AfterFunc(delay, func() {
		if err := q.Enqueue(context.Background(), job); err != nil {
			q.log.Error().Err(err).Str("job_id", string(job.JobID)).Msg("queue.nats: delayed enqueue failed")
		}
	})
	q.mu.Lock()
	q.timers = append(q.timers, timer)
	q.mu.Unlock()
	return nil
}

// Consume subscribes a durable JetStream pull consumer and delivers jobs
// to handler with the given concurrency, enforcing perJobTimeout as a
// wall-clock cancellation per delivery. It blocks until ctx is cancelled.
func (q *NATS) Consume(ctx context.Context, concurrency int, perJobTimeout time.Duration, handler func(context.Context, domain.TranscriptionJob) error) error {
	sub, err := q.js.PullSubscribe(q.subject, q.durable)
	if err != nil {
		return fmt.Errorf("queue.nats: pull subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := sub.Fetch(concurrency, nats.MaxWait(time.Second))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			return fmt.Errorf("queue.nats: fetch: %w", err)
		}

		for _, msg := range msgs {
			sem <- struct{}{}
			wg.Add(1)
			go func(m *nats.Msg) {
				defer wg.Done()
				defer func() { <-sem }()
				q.deliver(ctx, m, perJobTimeout, handler)
			}(msg)
		}
	}
}

func (q *NATS) deliver(ctx context.Context, msg *nats.Msg, perJobTimeout time.Duration, handler func(context.Context, domain.TranscriptionJob) error) {
	var job domain.TranscriptionJob
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		q.log.Error().Err(err).Msg("queue.nats: malformed job payload, terminating message")
		_ = msg.Term()
		return
	}

	jobCtx := natsutil.ExtractTraceContext(ctx, msg)
	var cancel context.CancelFunc
	if perJobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(jobCtx, perJobTimeout)
		defer cancel()
	}

	if err := handler(jobCtx, job); err != nil {
		q.log.Warn().Err(err).Str("job_id", string(job.JobID)).Msg("queue.nats: handler error, nacking for redelivery")
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

// Ack and Nack are no-ops for the pull-consumer model above, where
// acknowledgement happens inline in deliver; they satisfy ports.Queue for
// callers (the retry manager) that reference a job by ID after the fact.
func (q *NATS) Ack(_ context.Context, _ domain.JobID) error  { return nil }
func (q *NATS) Nack(_ context.Context, _ domain.JobID) error { return nil }

func (q *NATS) MoveToDLQ(ctx context.Context, job domain.TranscriptionJob, item domain.DLQItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("queue.nats: marshal dlq item: %w", err)
	}
	_, err = q.js.Publish(q.subject+".dlq", data)
	if err != nil {
		return fmt.Errorf("queue.nats: publish dlq item: %w", err)
	}
	return nil
}
