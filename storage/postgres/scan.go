package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ssotoa70/mediasearch/engine/domain"
)

const assetSelect = `SELECT asset_id, lineage_id, bucket, object_key, current_version_id,
	status, triage_state, recommended_action, engine, last_error, attempt_count,
	byte_size, content_type, etag, duration_ms, codec, tombstone, ingested_at, updated_at
	FROM assets`

const versionSelect = `SELECT version_id, asset_id, processing_status, publish_state, etag, byte_size, created_at
	FROM asset_versions`

const dlqSelect = `SELECT dlq_id, asset_id, version_id, error_kind, error_message, retryable, job_snapshot, created_at
	FROM dlq_items`

// querier is the subset of pgx.Tx/pgxpool.Pool the scan helpers need, so
// they run identically whether called inside a transaction or directly
// against the pool.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanAsset(ctx context.Context, q querier, sql string, args ...any) (*domain.Asset, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapErr("get asset", err)
	}
	defer rows.Close()
	a, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[domain.Asset])
	if err != nil {
		if isNoRows(err) {
			return nil, wrapErr("get asset", domain.ErrAssetNotFound)
		}
		return nil, wrapErr("get asset", err)
	}
	return &a, nil
}

func scanAssetVersion(ctx context.Context, q querier, sql string, args ...any) (*domain.AssetVersion, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapErr("get asset version", err)
	}
	defer rows.Close()
	v, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[domain.AssetVersion])
	if err != nil {
		if isNoRows(err) {
			return nil, wrapErr("get asset version", domain.ErrVersionNotFound)
		}
		return nil, wrapErr("get asset version", err)
	}
	return &v, nil
}

func scanDLQItem(row pgx.Row) (*domain.DLQItem, error) {
	var item domain.DLQItem
	var jobSnapshot []byte
	err := row.Scan(&item.DLQID, &item.AssetID, &item.VersionID, &item.ErrorKind, &item.ErrorMsg, &item.Retryable, &jobSnapshot, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(jobSnapshot, &item.Job); err != nil {
		return nil, fmt.Errorf("postgres: decode dlq job snapshot: %w", err)
	}
	return &item, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func wrapErr(op string, err error) error {
	return domain.NewError("postgres."+op, kindForPgErr(err), err)
}

func kindForPgErr(err error) domain.ErrorKind {
	switch err {
	case domain.ErrAssetNotFound, domain.ErrVersionNotFound, domain.ErrJobNotFound, domain.ErrDLQItemNotFound:
		return domain.KindNotFound
	default:
		return domain.KindTransientResource
	}
}
