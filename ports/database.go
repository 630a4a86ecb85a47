package ports

import (
	"context"
	"time"

	"github.com/ssotoa70/mediasearch/engine/domain"
)

// SearchQuery carries the parameters shared by all three query modes (§4.5).
type SearchQuery struct {
	Text      string
	Vector    []float32
	Bucket    string
	Speaker   string
	Limit     int
	Offset    int
}

// SearchHit is the response shape of §6 for a single segment match.
type SearchHit struct {
	AssetID    domain.AssetID
	VersionID  domain.VersionID
	SegmentID  domain.SegmentID
	StartMs    int64
	EndMs      int64
	Snippet    string
	Score      float64
	MatchType  string // "keyword" | "semantic" | "hybrid"
	Speaker    *string
	Bucket     string
	ObjectKey  string
}

// Tx scopes the database operations that must run inside a single
// transaction, per the invariants of §4.1 and §4.3.
type Tx interface {
	// GetAssetByID reads the asset row with the same isolation as the rest
	// of the transaction — publishers and the orchestrator use this (not
	// the non-transactional Database.GetAsset) so that concurrent
	// publishes for the same asset serialize correctly (§4.3, §5).
	GetAssetByID(ctx context.Context, assetID domain.AssetID) (*domain.Asset, error)
	GetAssetByBucketKey(ctx context.Context, bucket, key string) (*domain.Asset, error)
	// GetTombstonedAssetByBucketKey finds the most recent tombstoned asset
	// for (bucket, key), if any. Ingest uses it to carry the lineage-id
	// forward when the same key is re-uploaded after a delete (§3's
	// "tombstone then ingest creates a new asset sharing the previous
	// lineage-id" law).
	GetTombstonedAssetByBucketKey(ctx context.Context, bucket, key string) (*domain.Asset, error)
	CreateAsset(ctx context.Context, a domain.Asset) error
	UpdateAsset(ctx context.Context, a domain.Asset) error

	GetAssetVersionByContentKey(ctx context.Context, assetID domain.AssetID, versionID domain.VersionID) (*domain.AssetVersion, error)
	CreateAssetVersion(ctx context.Context, v domain.AssetVersion) error
	SetVersionState(ctx context.Context, versionID domain.VersionID, processingStatus domain.AssetStatus, publishState domain.PublishState) error

	// EnqueueJobIdempotent persists the job's idempotency key and reports
	// created=false if that key was already present (§3 job invariant).
	EnqueueJobIdempotent(ctx context.Context, job domain.TranscriptionJob) (created bool, err error)

	SetAssetTombstoned(ctx context.Context, assetID domain.AssetID) error
	SoftDeleteSegmentsAndEmbeddings(ctx context.Context, assetID domain.AssetID) error

	UpsertSegments(ctx context.Context, segs []domain.Segment) error
	UpsertEmbeddings(ctx context.Context, embs []domain.Embedding) error

	SetSegmentsVisibility(ctx context.Context, assetID domain.AssetID, versionID domain.VersionID, from, to domain.Visibility) error
	SetEmbeddingsVisibility(ctx context.Context, assetID domain.AssetID, versionID domain.VersionID, from, to domain.Visibility) error

	SetAssetCurrentVersion(ctx context.Context, assetID domain.AssetID, versionID domain.VersionID) error
	SetAssetStatus(ctx context.Context, assetID domain.AssetID, status domain.AssetStatus, lastErr *string) error
	SetAssetTriage(ctx context.Context, assetID domain.AssetID, triage *domain.TriageState, action *string) error

	InsertDLQItem(ctx context.Context, item domain.DLQItem) error
	RemoveDLQItem(ctx context.Context, dlqID string) error
}

// Database is the relational-plus-vector-distance storage contract of
// §4.6. A concrete engine (Postgres with pgvector-style distance functions
// is assumed) implements it.
type Database interface {
	// WithTx runs fn inside a single serializable transaction, rolling back
	// on error and on panic.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetAsset(ctx context.Context, assetID domain.AssetID) (*domain.Asset, error)
	GetAssetByBucketKey(ctx context.Context, bucket, key string) (*domain.Asset, error)
	GetAssetVersion(ctx context.Context, versionID domain.VersionID) (*domain.AssetVersion, error)
	ListQuarantined(ctx context.Context) ([]domain.Asset, error)
	GetDLQItem(ctx context.Context, assetID domain.AssetID) (*domain.DLQItem, error)

	SearchKeyword(ctx context.Context, q SearchQuery) ([]SearchHit, error)
	SearchSemantic(ctx context.Context, q SearchQuery) ([]SearchHit, error)

	PurgeArchivedOlderThan(ctx context.Context, age time.Duration) (int, error)
}
