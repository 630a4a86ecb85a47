package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ssotoa70/mediasearch/engine/domain"
	"github.com/ssotoa70/mediasearch/pkg/logging"
	"github.com/ssotoa70/mediasearch/pkg/metrics"
	"github.com/ssotoa70/mediasearch/ports"
)

const phaseLabel = "retry"

// Manager runs the failure-handling decision of §4.4: retry with backoff,
// or route to the dead-letter queue with a triage classification.
type Manager struct {
	Store ports.Database
	Queue ports.Queue
	Opts  Opts
	log   zerolog.Logger
}

// NewManager constructs a Manager with the given options, falling back to
// DefaultOpts for any zero field.
func NewManager(store ports.Database, queue ports.Queue, opts Opts) *Manager {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultOpts.MaxAttempts
	}
	if opts.BaseDelay == 0 {
		opts.BaseDelay = DefaultOpts.BaseDelay
	}
	if opts.MaxDelay == 0 {
		opts.MaxDelay = DefaultOpts.MaxDelay
	}
	return &Manager{Store: store, Queue: queue, Opts: opts, log: logging.For("retry")}
}

// HandleFailure decides the fate of a job that failed with err: a delayed
// retry re-enqueue, or a DLQ entry with triage classification.
func (m *Manager) HandleFailure(ctx context.Context, job domain.TranscriptionJob, failure error) error {
	kind := Classify(failure)
	msg := failure.Error()

	if kind.Retryable() && job.Attempt+1 < m.Opts.MaxAttempts {
		return m.scheduleRetry(ctx, job, kind, msg)
	}
	return m.quarantine(ctx, job, kind, msg)
}

func (m *Manager) scheduleRetry(ctx context.Context, job domain.TranscriptionJob, kind domain.ErrorKind, msg string) error {
	delay := Delay(job.Attempt, m.Opts)
	next := job
	next.Attempt = job.Attempt + 1
	next.IdempotencyKey = fmt.Sprintf("%s:%s:%d", job.AssetID, job.VersionID, next.Attempt)
	next.ScheduledAt = time.Now().Add(delay)

	err := m.Store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		return tx.SetAssetStatus(ctx, job.AssetID, domain.StatusPendingRetry, &msg)
	})
	if err != nil {
		return fmt.Errorf("retry: mark pending_retry: %w", err)
	}

	if err := m.Queue.EnqueueDelayed(ctx, next, delay); err != nil {
		return fmt.Errorf("retry: enqueue delayed job: %w", err)
	}

	metrics.JobsRetriedTotal.WithLabelValues(phaseLabel).Inc()
	m.log.Info().
		Str("asset_id", string(job.AssetID)).
		Str("error_kind", string(kind)).
		Int("attempt", next.Attempt).
		Dur("delay", delay).
		Msg("retry: scheduled")
	return nil
}

func (m *Manager) quarantine(ctx context.Context, job domain.TranscriptionJob, kind domain.ErrorKind, msg string) error {
	exhausted := kind.Retryable()
	triage := TriageFor(kind, exhausted)

	item := domain.DLQItem{
		DLQID:     fmt.Sprintf("%s:%s:%d", job.AssetID, job.VersionID, job.Attempt),
		Job:       job,
		AssetID:   job.AssetID,
		VersionID: job.VersionID,
		ErrorKind: kind,
		ErrorMsg:  msg,
		Retryable: kind.Retryable(),
		CreatedAt: time.Now(),
	}

	err := m.Store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if err := tx.InsertDLQItem(ctx, item); err != nil {
			return err
		}
		asset, err := tx.GetAssetByID(ctx, job.AssetID)
		if err != nil {
			return err
		}
		asset.AttemptCount++
		if err := tx.UpdateAsset(ctx, *asset); err != nil {
			return err
		}
		if err := tx.SetAssetStatus(ctx, job.AssetID, domain.StatusQuarantined, &msg); err != nil {
			return err
		}
		return tx.SetAssetTriage(ctx, job.AssetID, &triage.State, &triage.Action)
	})
	if err != nil {
		return fmt.Errorf("retry: quarantine: %w", err)
	}

	metrics.JobsQuarantinedTotal.WithLabelValues(phaseLabel).Inc()
	metrics.DLQSize.Inc()
	m.log.Warn().
		Str("asset_id", string(job.AssetID)).
		Str("error_kind", string(kind)).
		Str("triage_state", string(triage.State)).
		Msg("retry: quarantined")
	return nil
}

// Retry is the operator-facing triage action: it creates a fresh job with
// attempt=0, clears triage-state and last-error, and returns the asset to
// PENDING_RETRY.
func (m *Manager) Retry(ctx context.Context, assetID domain.AssetID) error {
	item, err := m.Store.GetDLQItem(ctx, assetID)
	if err != nil {
		return fmt.Errorf("triage retry: %w", err)
	}

	fresh := item.Job
	fresh.Attempt = 0
	fresh.IdempotencyKey = fmt.Sprintf("%s:%s:retry-%d", item.AssetID, item.VersionID, time.Now().UnixNano())
	fresh.EnqueuedAt = time.Now()
	fresh.ScheduledAt = fresh.EnqueuedAt

	err = m.Store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if err := tx.SetAssetStatus(ctx, assetID, domain.StatusPendingRetry, nil); err != nil {
			return err
		}
		if err := tx.SetAssetTriage(ctx, assetID, nil, nil); err != nil {
			return err
		}
		return tx.RemoveDLQItem(ctx, item.DLQID)
	})
	if err != nil {
		return fmt.Errorf("triage retry: %w", err)
	}
	metrics.DLQSize.Dec()
	return m.Queue.Enqueue(ctx, fresh)
}

// Skip is the operator-facing triage action: it marks the asset FAILED
// (terminal), retains the last error, and removes the DLQ entry.
func (m *Manager) Skip(ctx context.Context, assetID domain.AssetID) error {
	item, err := m.Store.GetDLQItem(ctx, assetID)
	if err != nil {
		return fmt.Errorf("triage skip: %w", err)
	}
	err = m.Store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		msg := item.ErrorMsg
		if err := tx.SetAssetStatus(ctx, assetID, domain.StatusFailed, &msg); err != nil {
			return err
		}
		return tx.RemoveDLQItem(ctx, item.DLQID)
	})
	if err != nil {
		return err
	}
	metrics.DLQSize.Dec()
	return nil
}
