// Package ingest implements the ingest controller of §4.1: it reacts to
// object-store events, derives stable content versions, and enqueues
// transcription work. It is the only writer of STAGING assets/versions.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ssotoa70/mediasearch/engine/domain"
	"github.com/ssotoa70/mediasearch/pkg/fn"
	"github.com/ssotoa70/mediasearch/pkg/logging"
	"github.com/ssotoa70/mediasearch/ports"
)

// Deps holds the controller's external dependencies.
type Deps struct {
	Store         ports.Database
	ObjectStore   ports.ObjectStore
	Queue         ports.Queue
	DefaultEngine string
	DefaultPolicy domain.EnginePolicy
	Logger        zerolog.Logger
}

// Controller runs the ObjectCreated/ObjectRemoved contracts.
type Controller struct {
	deps Deps
	log  zerolog.Logger
}

// New constructs an ingest Controller. It rejects a malformed
// DefaultPolicy (unrecognized ExecutionMode/ChunkingStrategy, missing
// Engine) via domain.ValidateEnginePolicy rather than accepting it and
// failing later on every enqueued job.
func New(deps Deps) (*Controller, error) {
	log := deps.Logger
	if log.GetLevel() == zerolog.Disabled {
		log = logging.For("ingest")
	}
	if deps.DefaultPolicy.ExecutionMode == "" {
		deps.DefaultPolicy = domain.EnginePolicy{
			Engine:                  deps.DefaultEngine,
			ExecutionMode:           domain.ExecutionModeStandard,
			ComputeThresholdSeconds: 900,
		}
	}
	if err := domain.ValidateEnginePolicy(deps.DefaultPolicy); err != nil {
		return nil, fmt.Errorf("ingest: default engine policy: %w", err)
	}
	return &Controller{deps: deps, log: log}, nil
}

// validateExtension is the first stage of the ObjectCreated pipeline:
// silently reject unsupported media extensions (§4.1 step 1).
var validateExtension fn.Stage[ports.ObjectEvent, ports.ObjectEvent] = func(_ context.Context, ev ports.ObjectEvent) fn.Result[ports.ObjectEvent] {
	if !domain.IsSupportedMediaKey(ev.ObjectKey) {
		return fn.Err[ports.ObjectEvent](domain.NewError("ingest.ObjectCreated", domain.KindInvalidInput, fmt.Errorf("%w: %s", domain.ErrUnsupportedExtension, ev.ObjectKey)))
	}
	return fn.Ok(ev)
}

// ObjectCreated implements §4.1's ObjectCreated contract.
func (c *Controller) ObjectCreated(ctx context.Context, ev ports.ObjectEvent) error {
	validated := validateExtension(ctx, ev)
	if validated.IsErr() {
		_, err := validated.Unwrap()
		if domain.KindOf(err) == domain.KindInvalidInput {
			c.log.Debug().Str("object_key", ev.ObjectKey).Msg("ingest: skipping unsupported extension")
			return nil
		}
		return err
	}

	meta, err := c.resolveMetadata(ctx, ev)
	if err != nil {
		return domain.NewError("ingest.ObjectCreated", domain.KindTransientNetwork, fmt.Errorf("fetch object metadata: %w", err))
	}

	versionID := domain.VersionID(DeriveVersionID(meta.ETag, meta.Size, meta.ModTime.UnixMilli()))

	return c.deps.Store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		asset, err := tx.GetAssetByBucketKey(ctx, ev.Bucket, ev.ObjectKey)
		if err != nil && domain.KindOf(err) != domain.KindNotFound {
			return fmt.Errorf("lookup asset: %w", err)
		}

		now := domain.TruncateMillis(time.Now())

		if asset == nil {
			lineageID := uuid.New().String()
			if prior, err := tx.GetTombstonedAssetByBucketKey(ctx, ev.Bucket, ev.ObjectKey); err != nil && domain.KindOf(err) != domain.KindNotFound {
				return fmt.Errorf("lookup tombstoned asset: %w", err)
			} else if prior != nil {
				lineageID = prior.LineageID
			}
			assetID := domain.AssetID(uuid.New().String())
			asset = &domain.Asset{
				AssetID:      assetID,
				LineageID:    lineageID,
				Bucket:       ev.Bucket,
				ObjectKey:    ev.ObjectKey,
				Status:       domain.StatusIngested,
				Engine:       c.deps.DefaultPolicy.Engine,
				AttemptCount: 0,
				ByteSize:     meta.Size,
				ContentType:  meta.ContentType,
				ETag:         meta.ETag,
				Tombstone:    false,
				IngestedAt:   now,
				UpdatedAt:    now,
			}
			if err := tx.CreateAsset(ctx, *asset); err != nil {
				return fmt.Errorf("create asset: %w", err)
			}
		}

		existing, err := tx.GetAssetVersionByContentKey(ctx, asset.AssetID, versionID)
		if err != nil && domain.KindOf(err) != domain.KindNotFound {
			return fmt.Errorf("lookup version: %w", err)
		}
		if existing != nil {
			// Idempotent: this exact content has already been ingested.
			c.log.Info().Str("asset_id", string(asset.AssetID)).Str("version_id", string(versionID)).Msg("ingest: duplicate version, no-op")
			return nil
		}

		version := domain.AssetVersion{
			VersionID:        versionID,
			AssetID:          asset.AssetID,
			ProcessingStatus: domain.StatusIngested,
			PublishState:     domain.StagingState,
			ETag:             meta.ETag,
			ByteSize:         meta.Size,
			CreatedAt:        now,
		}
		if err := tx.CreateAssetVersion(ctx, version); err != nil {
			return fmt.Errorf("create version: %w", err)
		}

		job := domain.TranscriptionJob{
			JobID:          domain.JobID(uuid.New().String()),
			AssetID:        asset.AssetID,
			VersionID:      versionID,
			EnginePolicy:   c.deps.DefaultPolicy,
			Attempt:        0,
			IdempotencyKey: fmt.Sprintf("%s:%s:0", asset.AssetID, versionID),
			EnqueuedAt:     now,
			ScheduledAt:    now,
		}
		created, err := tx.EnqueueJobIdempotent(ctx, job)
		if err != nil {
			return fmt.Errorf("enqueue job: %w", err)
		}
		if created {
			if err := c.deps.Queue.Enqueue(ctx, job); err != nil {
				return fmt.Errorf("publish job: %w", err)
			}
		}
		return nil
	})
}

// ObjectRemoved implements §4.1's ObjectRemoved contract.
func (c *Controller) ObjectRemoved(ctx context.Context, ev ports.ObjectEvent) error {
	return c.deps.Store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		asset, err := tx.GetAssetByBucketKey(ctx, ev.Bucket, ev.ObjectKey)
		if err != nil {
			if domain.KindOf(err) == domain.KindNotFound {
				c.log.Info().Str("bucket", ev.Bucket).Str("object_key", ev.ObjectKey).Msg("ingest: remove of unknown asset, skipping")
				return nil
			}
			return fmt.Errorf("lookup asset: %w", err)
		}

		if err := tx.SetAssetTombstoned(ctx, asset.AssetID); err != nil {
			return fmt.Errorf("tombstone asset: %w", err)
		}
		if err := tx.SoftDeleteSegmentsAndEmbeddings(ctx, asset.AssetID); err != nil {
			return fmt.Errorf("soft delete segments: %w", err)
		}
		return nil
	})
}

func (c *Controller) resolveMetadata(ctx context.Context, ev ports.ObjectEvent) (ports.ObjectMeta, error) {
	if ev.ETag != "" && ev.Size > 0 {
		return ports.ObjectMeta{
			Bucket:  ev.Bucket,
			Key:     ev.ObjectKey,
			ETag:    ev.ETag,
			Size:    ev.Size,
			ModTime: ev.Timestamp,
		}, nil
	}
	return c.deps.ObjectStore.Head(ctx, ev.Bucket, ev.ObjectKey)
}
