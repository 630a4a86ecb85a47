package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ssotoa70/mediasearch/engine/domain"
	"github.com/ssotoa70/mediasearch/ports"
)

// tx adapts a pgx.Tx to ports.Tx.
type tx struct {
	tx pgx.Tx
}

var _ ports.Tx = (*tx)(nil)

func (t *tx) GetAssetByID(ctx context.Context, assetID domain.AssetID) (*domain.Asset, error) {
	return scanAsset(ctx, t.tx, assetSelect+` WHERE asset_id = $1 AND NOT tombstone FOR UPDATE`, assetID)
}

func (t *tx) GetAssetByBucketKey(ctx context.Context, bucket, key string) (*domain.Asset, error) {
	return scanAsset(ctx, t.tx, assetSelect+` WHERE bucket = $1 AND object_key = $2 AND NOT tombstone FOR UPDATE`, bucket, key)
}

func (t *tx) GetTombstonedAssetByBucketKey(ctx context.Context, bucket, key string) (*domain.Asset, error) {
	return scanAsset(ctx, t.tx, assetSelect+` WHERE bucket = $1 AND object_key = $2 AND tombstone ORDER BY updated_at DESC LIMIT 1 FOR UPDATE`, bucket, key)
}

func (t *tx) CreateAsset(ctx context.Context, a domain.Asset) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO assets (asset_id, lineage_id, bucket, object_key, current_version_id,
			status, triage_state, recommended_action, engine, last_error, attempt_count,
			byte_size, content_type, etag, duration_ms, codec, tombstone, ingested_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		a.AssetID, a.LineageID, a.Bucket, a.ObjectKey, a.CurrentVersionID,
		a.Status, a.TriageState, a.RecommendedAction, a.Engine, a.LastError, a.AttemptCount,
		a.ByteSize, a.ContentType, a.ETag, a.DurationMs, a.Codec, a.Tombstone, a.IngestedAt, a.UpdatedAt)
	if err != nil {
		return wrapErr("create asset", err)
	}
	return nil
}

func (t *tx) UpdateAsset(ctx context.Context, a domain.Asset) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE assets SET lineage_id=$2, current_version_id=$3, status=$4, triage_state=$5,
			recommended_action=$6, engine=$7, last_error=$8, attempt_count=$9, byte_size=$10,
			content_type=$11, etag=$12, duration_ms=$13, codec=$14, tombstone=$15, updated_at=$16
		WHERE asset_id = $1`,
		a.AssetID, a.LineageID, a.CurrentVersionID, a.Status, a.TriageState,
		a.RecommendedAction, a.Engine, a.LastError, a.AttemptCount, a.ByteSize,
		a.ContentType, a.ETag, a.DurationMs, a.Codec, a.Tombstone, a.UpdatedAt)
	if err != nil {
		return wrapErr("update asset", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapErr("update asset", domain.ErrAssetNotFound)
	}
	return nil
}

func (t *tx) GetAssetVersionByContentKey(ctx context.Context, assetID domain.AssetID, versionID domain.VersionID) (*domain.AssetVersion, error) {
	return scanAssetVersion(ctx, t.tx, versionSelect+` WHERE asset_id = $1 AND version_id = $2`, assetID, versionID)
}

func (t *tx) CreateAssetVersion(ctx context.Context, v domain.AssetVersion) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO asset_versions (version_id, asset_id, processing_status, publish_state, etag, byte_size, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (version_id) DO NOTHING`,
		v.VersionID, v.AssetID, v.ProcessingStatus, v.PublishState, v.ETag, v.ByteSize, v.CreatedAt)
	if err != nil {
		return wrapErr("create asset version", err)
	}
	return nil
}

func (t *tx) SetVersionState(ctx context.Context, versionID domain.VersionID, processingStatus domain.AssetStatus, publishState domain.PublishState) error {
	_, err := t.tx.Exec(ctx, `UPDATE asset_versions SET processing_status=$2, publish_state=$3 WHERE version_id=$1`,
		versionID, processingStatus, publishState)
	if err != nil {
		return wrapErr("set version state", err)
	}
	return nil
}

// EnqueueJobIdempotent inserts the job's idempotency key; a unique
// constraint violation means the key already exists, reported as
// created=false per the §3 job invariant rather than as an error.
func (t *tx) EnqueueJobIdempotent(ctx context.Context, job domain.TranscriptionJob) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO job_idempotency_keys (idempotency_key, job_id, asset_id, version_id, attempt, enqueued_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		job.IdempotencyKey, job.JobID, job.AssetID, job.VersionID, job.Attempt, job.EnqueuedAt)
	if err != nil {
		return false, wrapErr("enqueue job idempotent", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *tx) SetAssetTombstoned(ctx context.Context, assetID domain.AssetID) error {
	_, err := t.tx.Exec(ctx, `UPDATE assets SET tombstone = true, status = $2, updated_at = now() WHERE asset_id = $1`,
		assetID, domain.StatusDeleted)
	if err != nil {
		return wrapErr("set asset tombstoned", err)
	}
	return nil
}

func (t *tx) SoftDeleteSegmentsAndEmbeddings(ctx context.Context, assetID domain.AssetID) error {
	if _, err := t.tx.Exec(ctx, `UPDATE segments SET visibility = $2 WHERE asset_id = $1 AND visibility = $3`,
		assetID, domain.VisibilitySoftDelete, domain.VisibilityActive); err != nil {
		return wrapErr("soft delete segments", err)
	}
	if _, err := t.tx.Exec(ctx, `UPDATE embeddings SET visibility = $2 WHERE asset_id = $1 AND visibility = $3`,
		assetID, domain.VisibilitySoftDelete, domain.VisibilityActive); err != nil {
		return wrapErr("soft delete embeddings", err)
	}
	return nil
}

func (t *tx) UpsertSegments(ctx context.Context, segs []domain.Segment) error {
	batch := &pgx.Batch{}
	for _, s := range segs {
		batch.Queue(`
			INSERT INTO segments (segment_id, asset_id, version_id, start_ms, end_ms, text, speaker,
				confidence, visibility, chunking_strategy, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (segment_id) DO UPDATE SET
				start_ms=EXCLUDED.start_ms, end_ms=EXCLUDED.end_ms, text=EXCLUDED.text,
				speaker=EXCLUDED.speaker, confidence=EXCLUDED.confidence,
				visibility=EXCLUDED.visibility, chunking_strategy=EXCLUDED.chunking_strategy`,
			s.SegmentID, s.AssetID, s.VersionID, s.StartMs, s.EndMs, s.Text, s.Speaker,
			s.Confidence, s.Visibility, s.ChunkingStrategy, s.CreatedAt)
	}
	return runBatch(ctx, t.tx, batch, "upsert segments")
}

func (t *tx) UpsertEmbeddings(ctx context.Context, embs []domain.Embedding) error {
	batch := &pgx.Batch{}
	for _, e := range embs {
		batch.Queue(`
			INSERT INTO embeddings (embedding_id, asset_id, version_id, segment_id, vector,
				model_name, dimension, visibility, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (embedding_id) DO UPDATE SET
				vector=EXCLUDED.vector, model_name=EXCLUDED.model_name,
				dimension=EXCLUDED.dimension, visibility=EXCLUDED.visibility`,
			e.EmbeddingID, e.AssetID, e.VersionID, e.SegmentID, e.Vector,
			e.ModelName, e.Dimension, e.Visibility, e.CreatedAt)
	}
	return runBatch(ctx, t.tx, batch, "upsert embeddings")
}

func runBatch(ctx context.Context, q interface{ SendBatch(context.Context, *pgx.Batch) pgx.BatchResults }, batch *pgx.Batch, op string) error {
	if batch.Len() == 0 {
		return nil
	}
	br := q.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return wrapErr(op, err)
		}
	}
	return nil
}

// SetSegmentsVisibility flips visibility on rows currently in state from,
// the precondition that makes the publisher's cutover safe under
// concurrent execution (§4.3, §5): a transition only applies to rows
// still in the expected state.
func (t *tx) SetSegmentsVisibility(ctx context.Context, assetID domain.AssetID, versionID domain.VersionID, from, to domain.Visibility) error {
	_, err := t.tx.Exec(ctx, `UPDATE segments SET visibility = $4 WHERE asset_id = $1 AND version_id = $2 AND visibility = $3`,
		assetID, versionID, from, to)
	if err != nil {
		return wrapErr("set segments visibility", err)
	}
	return nil
}

func (t *tx) SetEmbeddingsVisibility(ctx context.Context, assetID domain.AssetID, versionID domain.VersionID, from, to domain.Visibility) error {
	_, err := t.tx.Exec(ctx, `UPDATE embeddings SET visibility = $4 WHERE asset_id = $1 AND version_id = $2 AND visibility = $3`,
		assetID, versionID, from, to)
	if err != nil {
		return wrapErr("set embeddings visibility", err)
	}
	return nil
}

func (t *tx) SetAssetCurrentVersion(ctx context.Context, assetID domain.AssetID, versionID domain.VersionID) error {
	_, err := t.tx.Exec(ctx, `UPDATE assets SET current_version_id = $2, updated_at = now() WHERE asset_id = $1`,
		assetID, versionID)
	if err != nil {
		return wrapErr("set asset current version", err)
	}
	return nil
}

func (t *tx) SetAssetStatus(ctx context.Context, assetID domain.AssetID, status domain.AssetStatus, lastErr *string) error {
	_, err := t.tx.Exec(ctx, `UPDATE assets SET status = $2, last_error = $3, updated_at = now() WHERE asset_id = $1`,
		assetID, status, lastErr)
	if err != nil {
		return wrapErr("set asset status", err)
	}
	return nil
}

func (t *tx) SetAssetTriage(ctx context.Context, assetID domain.AssetID, triage *domain.TriageState, action *string) error {
	_, err := t.tx.Exec(ctx, `UPDATE assets SET triage_state = $2, recommended_action = $3, updated_at = now() WHERE asset_id = $1`,
		assetID, triage, action)
	if err != nil {
		return wrapErr("set asset triage", err)
	}
	return nil
}

func (t *tx) InsertDLQItem(ctx context.Context, item domain.DLQItem) error {
	jobSnapshot, err := json.Marshal(item.Job)
	if err != nil {
		return fmt.Errorf("postgres: encode dlq job snapshot: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO dlq_items (dlq_id, asset_id, version_id, error_kind, error_message, retryable, job_snapshot, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		item.DLQID, item.AssetID, item.VersionID, item.ErrorKind, item.ErrorMsg, item.Retryable, jobSnapshot, item.CreatedAt)
	if err != nil {
		return wrapErr("insert dlq item", err)
	}
	return nil
}

func (t *tx) RemoveDLQItem(ctx context.Context, dlqID string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM dlq_items WHERE dlq_id = $1`, dlqID)
	if err != nil {
		return wrapErr("remove dlq item", err)
	}
	if tag.RowsAffected() == 0 {
		return wrapErr("remove dlq item", domain.ErrDLQItemNotFound)
	}
	return nil
}
