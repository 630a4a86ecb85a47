// Package postgres implements ports.Database/ports.Tx against Postgres
// with the pgvector extension, using pgx directly (no ORM) in the
// teacher's driver-wrapped-in-a-store style.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ssotoa70/mediasearch/engine/domain"
	"github.com/ssotoa70/mediasearch/pkg/logging"
	"github.com/ssotoa70/mediasearch/ports"
)

// DB is a Postgres-backed ports.Database.
type DB struct {
	pool *pgxpool.Pool
}

// New connects a pgxpool.Pool to dsn and verifies connectivity.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() { db.pool.Close() }

// Pool exposes the underlying connection pool for callers that need a
// simple single-table lookup (see pkg/repo) rather than the cross-table
// transactional operations this type wraps.
func (db *DB) Pool() *pgxpool.Pool { return db.pool }

// WithTx runs fn inside a single serializable transaction, rolling back
// on error or panic. Serializable isolation is what makes the
// concurrent-publish guarantee of §4.3/§5 hold without explicit locking.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) (err error) {
	pgxTx, txErr := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if txErr != nil {
		return fmt.Errorf("postgres: begin tx: %w", txErr)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = pgxTx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = pgxTx.Rollback(ctx)
			return
		}
		err = pgxTx.Commit(ctx)
	}()

	err = fn(ctx, &tx{tx: pgxTx})
	return err
}

func (db *DB) GetAsset(ctx context.Context, assetID domain.AssetID) (*domain.Asset, error) {
	return scanAsset(ctx, db.pool, assetSelect+` WHERE asset_id = $1 AND NOT tombstone`, assetID)
}

func (db *DB) GetAssetByBucketKey(ctx context.Context, bucket, key string) (*domain.Asset, error) {
	return scanAsset(ctx, db.pool, assetSelect+` WHERE bucket = $1 AND object_key = $2 AND NOT tombstone`, bucket, key)
}

func (db *DB) GetAssetVersion(ctx context.Context, versionID domain.VersionID) (*domain.AssetVersion, error) {
	return scanAssetVersion(ctx, db.pool, versionSelect+` WHERE version_id = $1`, versionID)
}

func (db *DB) ListQuarantined(ctx context.Context) ([]domain.Asset, error) {
	rows, err := db.pool.Query(ctx, assetSelect+` WHERE status = $1 AND NOT tombstone ORDER BY updated_at DESC`, domain.StatusQuarantined)
	if err != nil {
		return nil, fmt.Errorf("postgres: list quarantined: %w", err)
	}
	defer rows.Close()
	return pgx.CollectRows(rows, pgx.RowToStructByName[domain.Asset])
}

func (db *DB) GetDLQItem(ctx context.Context, assetID domain.AssetID) (*domain.DLQItem, error) {
	row := db.pool.QueryRow(ctx, dlqSelect+` WHERE asset_id = $1 ORDER BY created_at DESC LIMIT 1`, assetID)
	item, err := scanDLQItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: get dlq item: %w", domain.ErrDLQItemNotFound)
		}
		return nil, fmt.Errorf("postgres: get dlq item: %w", err)
	}
	return item, nil
}

// PurgeArchivedOlderThan deletes ARCHIVED segments/embeddings whose
// asset version was created before now-age, per §4.3's retention policy.
// It runs outside a caller-managed transaction since it is a standalone
// maintenance operation, not part of the request-serving path.
func (db *DB) PurgeArchivedOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)
	tag, err := db.pool.Exec(ctx, `
		DELETE FROM segments
		USING asset_versions
		WHERE segments.version_id = asset_versions.version_id
		  AND segments.visibility = $1
		  AND asset_versions.created_at < $2`, domain.VisibilityArchived, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: purge archived segments: %w", err)
	}
	if _, err := db.pool.Exec(ctx, `
		DELETE FROM embeddings
		USING asset_versions
		WHERE embeddings.version_id = asset_versions.version_id
		  AND embeddings.visibility = $1
		  AND asset_versions.created_at < $2`, domain.VisibilityArchived, cutoff); err != nil {
		return 0, fmt.Errorf("postgres: purge archived embeddings: %w", err)
	}
	logging.For("storage.postgres").Info().
		Int64("segments_deleted", tag.RowsAffected()).
		Dur("age", age).
		Msg("postgres: purged archived rows")
	return int(tag.RowsAffected()), nil
}
