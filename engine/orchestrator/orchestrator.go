// Package orchestrator implements §4.2: the five-phase job pipeline that
// turns a queued transcription job into published, searchable segments and
// embeddings. It is the only component that calls the ASR engine, and the
// only ingest-side caller of the embedder (cmd/searchapi also calls the
// embedder, to embed query text).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/ssotoa70/mediasearch/engine/chunking"
	"github.com/ssotoa70/mediasearch/engine/domain"
	"github.com/ssotoa70/mediasearch/engine/publisher"
	"github.com/ssotoa70/mediasearch/engine/retry"
	"github.com/ssotoa70/mediasearch/pkg/logging"
	"github.com/ssotoa70/mediasearch/pkg/metrics"
	"github.com/ssotoa70/mediasearch/pkg/resilience"
	"github.com/ssotoa70/mediasearch/ports"
	"github.com/ssotoa70/mediasearch/storage/vectorindex"
)

const phaseLabel = "orchestrator"

// DefaultJobTimeout is the per-job wall-clock budget of §5.
const DefaultJobTimeout = 10 * time.Minute

// DefaultConcurrency is the orchestrator's default consumer concurrency C.
const DefaultConcurrency = 4

// Deps holds the orchestrator's external dependencies.
type Deps struct {
	Store       ports.Database
	ObjectStore ports.ObjectStore
	ASR         ports.ASREngine
	Embedder    ports.Embedder
	Queue       ports.Queue
	Publisher   *publisher.Publisher
	RetryMgr    *retry.Manager

	ASRBreaker      *resilience.Breaker
	EmbedderBreaker *resilience.Breaker

	// SemanticEnabled gates phase 4; when false, segments are written but
	// no embedder call is made and the version publishes keyword-only.
	SemanticEnabled bool

	// VectorIndex, when set, mirrors newly-written embeddings into a
	// secondary ANN accelerator (see storage/vectorindex). Pgvector
	// remains the system of record; a mirror failure is logged and does
	// not fail the job.
	VectorIndex vectorindex.Index

	Concurrency   int
	JobTimeout    time.Duration
	Logger        zerolog.Logger
}

// Orchestrator runs Deps.Queue.Consume and drives each job through the
// five phases of §4.2.
type Orchestrator struct {
	deps Deps
	log  zerolog.Logger
}

// New constructs an Orchestrator, filling in defaults for zero-valued Deps.
func New(deps Deps) *Orchestrator {
	if deps.Concurrency <= 0 {
		deps.Concurrency = DefaultConcurrency
	}
	if deps.JobTimeout <= 0 {
		deps.JobTimeout = DefaultJobTimeout
	}
	if deps.ASRBreaker == nil {
		deps.ASRBreaker = resilience.NewBreaker(resilience.DefaultBreakerOpts)
	}
	if deps.EmbedderBreaker == nil {
		deps.EmbedderBreaker = resilience.NewBreaker(resilience.DefaultBreakerOpts)
	}
	log := deps.Logger
	if log.GetLevel() == zerolog.Disabled {
		log = logging.For("orchestrator")
	}
	return &Orchestrator{deps: deps, log: log}
}

// Run blocks consuming jobs until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	return o.deps.Queue.Consume(ctx, o.deps.Concurrency, o.deps.JobTimeout, o.handleJob)
}

// handleJob drives one job through all five phases. A nil return acks the
// original delivery — including the case where the job failed and §4.4
// has already scheduled a retry or quarantined the asset, per the "Ack
// occurs after the publish phase completes... in both cases the original
// job is acknowledged" rule of §4.2. A non-nil return signals an
// infrastructural failure (e.g. the retry manager itself couldn't reach
// the database) and leaves the original delivery for the queue to nack.
func (o *Orchestrator) handleJob(ctx context.Context, job domain.TranscriptionJob) error {
	log := o.log.With().Str("asset_id", string(job.AssetID)).Str("version_id", string(job.VersionID)).Int("attempt", job.Attempt).Logger()

	version, err := o.deps.Store.GetAssetVersion(ctx, job.VersionID)
	if err != nil && domain.KindOf(err) != domain.KindNotFound {
		return fmt.Errorf("orchestrator: load version: %w", err)
	}
	if version != nil && domain.IsVersionProcessed(*version) {
		log.Debug().Msg("orchestrator: version already processed, acking")
		return nil
	}

	start := time.Now()
	failErr := o.process(ctx, job, log)
	metrics.PhaseDuration.WithLabelValues(phaseLabel).Observe(time.Since(start).Seconds())

	if failErr != nil {
		return o.fail(ctx, job, failErr, log)
	}
	metrics.JobsProcessedTotal.WithLabelValues(phaseLabel).Inc()
	return nil
}

// process runs phases 2 through 5. Any returned error is routed through
// §4.4 by the caller.
func (o *Orchestrator) process(ctx context.Context, job domain.TranscriptionJob, log zerolog.Logger) error {
	asset, err := o.deps.Store.GetAsset(ctx, job.AssetID)
	if err != nil {
		return fmt.Errorf("load asset: %w", err)
	}

	if err := o.deps.Store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		return tx.SetVersionState(ctx, job.VersionID, domain.StatusTranscribing, domain.StagingState)
	}); err != nil {
		return fmt.Errorf("mark transcribing: %w", err)
	}
	if err := o.setAssetStatus(ctx, job.AssetID, domain.StatusTranscribing, nil); err != nil {
		return fmt.Errorf("mark transcribing: %w", err)
	}

	audio, err := o.fetchObject(ctx, asset)
	if err != nil {
		return fmt.Errorf("fetch object: %w", err)
	}

	result, err := o.transcribe(ctx, audio, job, asset)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}

	segments := o.segment(job, result)
	for i := range segments {
		segments[i].AssetID = job.AssetID
	}

	var embeddings []domain.Embedding
	if o.deps.SemanticEnabled && len(segments) > 0 {
		embeddings, err = o.embed(ctx, job, segments)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
	}

	if err := o.deps.Store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if err := tx.UpsertSegments(ctx, segments); err != nil {
			return fmt.Errorf("upsert segments: %w", err)
		}
		if len(embeddings) > 0 {
			if err := tx.UpsertEmbeddings(ctx, embeddings); err != nil {
				return fmt.Errorf("upsert embeddings: %w", err)
			}
		}
		return tx.SetVersionState(ctx, job.VersionID, domain.StatusTranscribed, domain.StagingState)
	}); err != nil {
		return fmt.Errorf("persist segments: %w", err)
	}
	if err := o.setAssetStatus(ctx, job.AssetID, domain.StatusTranscribed, nil); err != nil {
		return fmt.Errorf("mark transcribed: %w", err)
	}

	if o.deps.VectorIndex != nil && len(embeddings) > 0 {
		if err := o.deps.VectorIndex.Upsert(ctx, embeddings); err != nil {
			log.Warn().Err(err).Msg("orchestrator: vector index mirror failed, pgvector remains authoritative")
		}
	}

	log.Info().Int("segment_count", len(segments)).Int("embedding_count", len(embeddings)).Msg("orchestrator: transcribed, publishing")

	if err := o.deps.Publisher.Publish(ctx, job.AssetID, job.VersionID); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	log.Info().Msg("orchestrator: job complete")
	return nil
}

func (o *Orchestrator) setAssetStatus(ctx context.Context, assetID domain.AssetID, status domain.AssetStatus, lastErr *string) error {
	return o.deps.Store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		return tx.SetAssetStatus(ctx, assetID, status, lastErr)
	})
}

func (o *Orchestrator) fetchObject(ctx context.Context, asset *domain.Asset) ([]byte, error) {
	rc, _, err := o.deps.ObjectStore.Get(ctx, asset.Bucket, asset.ObjectKey)
	if err != nil {
		return nil, domain.NewError("orchestrator.fetch", domain.KindTransientNetwork, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (o *Orchestrator) transcribe(ctx context.Context, audio []byte, job domain.TranscriptionJob, asset *domain.Asset) (ports.TranscribeResult, error) {
	opts := ports.TranscribeOptions{
		Engine:             job.EnginePolicy.Engine,
		DiarizationEnabled: job.EnginePolicy.DiarizationEnabled,
		ExecutionMode:      job.EnginePolicy.ExecutionMode,
		LanguageHint:       job.EnginePolicy.LanguageHint,
		ContentType:        asset.ContentType,
	}
	if asset.DurationMs != nil {
		opts.DurationHint = time.Duration(*asset.DurationMs) * time.Millisecond
	}

	var result ports.TranscribeResult
	err := o.deps.ASRBreaker.Call(ctx, func(ctx context.Context) error {
		r, err := o.deps.ASR.Transcribe(ctx, audio, opts)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return ports.TranscribeResult{}, domain.NewError("orchestrator.transcribe", domain.KindTransientNetwork, err)
	}
	return result, err
}

func (o *Orchestrator) segment(job domain.TranscriptionJob, result ports.TranscribeResult) []domain.Segment {
	durationSec := result.Duration.Seconds()
	strategy := chunking.Select(durationSec, job.EnginePolicy.ComputeThresholdSeconds, job.EnginePolicy.ForceChunkingStrategy)
	return chunking.Segment(job.VersionID, result.Segments, strategy)
}

func (o *Orchestrator) embed(ctx context.Context, job domain.TranscriptionJob, segments []domain.Segment) ([]domain.Embedding, error) {
	batchSize := o.deps.Embedder.BatchLimit()
	if batchSize <= 0 {
		batchSize = len(segments)
	}

	embeddings := make([]domain.Embedding, 0, len(segments))
	for start := 0; start < len(segments); start += batchSize {
		end := start + batchSize
		if end > len(segments) {
			end = len(segments)
		}
		batch := segments[start:end]

		texts := make([]string, len(batch))
		for i, s := range batch {
			texts[i] = s.Text
		}

		var vectors [][]float32
		err := o.deps.EmbedderBreaker.Call(ctx, func(ctx context.Context) error {
			v, err := o.deps.Embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return err
			}
			vectors = v
			return nil
		})
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, domain.NewError("orchestrator.embed", domain.KindTransientNetwork, err)
		}
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, domain.NewError("orchestrator.embed", domain.KindEngineConfig, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch)))
		}

		dim := o.deps.Embedder.Dimension()
		for i, v := range vectors {
			if dim > 0 && len(v) != dim {
				return nil, domain.NewError("orchestrator.embed", domain.KindEngineConfig, fmt.Errorf("%w: got %d want %d", domain.ErrVectorDimension, len(v), dim))
			}
			embeddings = append(embeddings, domain.Embedding{
				EmbeddingID: fmt.Sprintf("%s_emb_%d", job.VersionID, start+i),
				AssetID:     job.AssetID,
				VersionID:   job.VersionID,
				SegmentID:   batch[i].SegmentID,
				Vector:      v,
				ModelName:   o.deps.Embedder.ModelName(),
				Dimension:   len(v),
				Visibility:  domain.VisibilityStaging,
			})
		}
	}
	return embeddings, nil
}

// fail routes a phase failure through §4.4. Bookkeeping writes use a
// detached context (cancellation stripped, values kept) so that a job
// that failed because its wall-clock timeout expired can still be
// recorded — the expired deadline must not also block the failure path.
func (o *Orchestrator) fail(ctx context.Context, job domain.TranscriptionJob, cause error, log zerolog.Logger) error {
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	metrics.JobsFailedTotal.WithLabelValues(phaseLabel, string(domain.KindOf(cause))).Inc()

	log.Warn().Err(cause).Msg("orchestrator: job failed, routing to retry manager")
	if err := o.deps.RetryMgr.HandleFailure(detached, job, cause); err != nil {
		return fmt.Errorf("orchestrator: handle failure: %w", err)
	}
	return nil
}
