// Package domain defines the core entities, state machines, and validation
// rules shared by every stage of the ingestion pipeline. It is the
// validation gate at every pipeline entry point.
package domain

import "time"

// AssetID identifies an asset — the canonical record per (bucket, object-key).
type AssetID string

// VersionID identifies a specific content state of an asset.
type VersionID string

// SegmentID identifies a timed text chunk of a version's transcript.
type SegmentID string

// JobID identifies a queued unit of transcription work.
type JobID string

// AssetStatus is the ingest-visible lifecycle state of an asset.
type AssetStatus string

const (
	StatusIngested     AssetStatus = "INGESTED"
	StatusTranscribing AssetStatus = "TRANSCRIBING"
	StatusTranscribed  AssetStatus = "TRANSCRIBED"
	StatusIndexed      AssetStatus = "INDEXED"
	StatusPendingRetry AssetStatus = "PENDING_RETRY"
	StatusQuarantined  AssetStatus = "QUARANTINED"
	StatusFailed       AssetStatus = "FAILED"
	StatusDeleted      AssetStatus = "DELETED"
)

// PublishState is the visibility lifecycle of a version (and, by extension,
// of its segments and embeddings).
type PublishState string

const (
	StagingState  PublishState = "STAGING"
	ActiveState   PublishState = "ACTIVE"
	ArchivedState PublishState = "ARCHIVED"
)

// Visibility is the per-row lifecycle tag on segments and embeddings.
// Only ACTIVE rows are search-visible.
type Visibility string

const (
	VisibilityStaging    Visibility = "STAGING"
	VisibilityActive     Visibility = "ACTIVE"
	VisibilityArchived   Visibility = "ARCHIVED"
	VisibilitySoftDelete Visibility = "SOFT_DELETED"
)

// TriageState is the operator-facing classification of why an asset was
// quarantined.
type TriageState string

const (
	TriageNeedsMediaFix     TriageState = "NEEDS_MEDIA_FIX"
	TriageNeedsEngineTuning TriageState = "NEEDS_ENGINE_TUNING"
	TriageQuarantined       TriageState = "QUARANTINED"
)

// ChunkingStrategy selects the segmentation algorithm.
type ChunkingStrategy string

const (
	ChunkingSentence    ChunkingStrategy = "sentence"
	ChunkingFixedWindow ChunkingStrategy = "fixed_window"
)

// ExecutionMode controls how aggressively the orchestrator parallelizes a job.
type ExecutionMode string

const (
	ExecutionModeStandard ExecutionMode = "standard"
	ExecutionModeFast     ExecutionMode = "fast"
	ExecutionModeThorough ExecutionMode = "thorough"
)

// Asset is the canonical record per (bucket, object-key).
type Asset struct {
	AssetID           AssetID      `json:"asset_id" db:"asset_id"`
	LineageID         string       `json:"lineage_id" db:"lineage_id"`
	Bucket            string       `json:"bucket" db:"bucket"`
	ObjectKey         string       `json:"object_key" db:"object_key"`
	CurrentVersionID  *VersionID   `json:"current_version_id,omitempty" db:"current_version_id"`
	Status            AssetStatus  `json:"status" db:"status"`
	TriageState       *TriageState `json:"triage_state,omitempty" db:"triage_state"`
	RecommendedAction *string      `json:"recommended_action,omitempty" db:"recommended_action"`
	Engine            string       `json:"engine" db:"engine"`
	LastError         *string      `json:"last_error,omitempty" db:"last_error"`
	AttemptCount      int          `json:"attempt_count" db:"attempt_count"`
	ByteSize          int64        `json:"byte_size" db:"byte_size"`
	ContentType       string       `json:"content_type" db:"content_type"`
	ETag              string       `json:"etag" db:"etag"`
	DurationMs        *int64       `json:"duration_ms,omitempty" db:"duration_ms"`
	Codec             *string      `json:"codec,omitempty" db:"codec"`
	Tombstone         bool         `json:"tombstone" db:"tombstone"`
	IngestedAt        time.Time    `json:"ingested_at" db:"ingested_at"`
	UpdatedAt         time.Time    `json:"updated_at" db:"updated_at"`
}

// AssetVersion is one entry per distinct content state of an asset.
type AssetVersion struct {
	VersionID        VersionID    `json:"version_id" db:"version_id"`
	AssetID          AssetID      `json:"asset_id" db:"asset_id"`
	ProcessingStatus AssetStatus  `json:"processing_status" db:"processing_status"`
	PublishState     PublishState `json:"publish_state" db:"publish_state"`
	ETag             string       `json:"etag" db:"etag"`
	ByteSize         int64        `json:"byte_size" db:"byte_size"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
}

// Segment is a timed text chunk of a version's transcript.
type Segment struct {
	SegmentID        SegmentID        `json:"segment_id" db:"segment_id"`
	AssetID          AssetID          `json:"asset_id" db:"asset_id"`
	VersionID        VersionID        `json:"version_id" db:"version_id"`
	StartMs          int64            `json:"start_ms" db:"start_ms"`
	EndMs            int64            `json:"end_ms" db:"end_ms"`
	Text             string           `json:"text" db:"text"`
	Speaker          *string          `json:"speaker,omitempty" db:"speaker"`
	Confidence       float64          `json:"confidence" db:"confidence"`
	Visibility       Visibility       `json:"visibility" db:"visibility"`
	ChunkingStrategy ChunkingStrategy `json:"chunking_strategy" db:"chunking_strategy"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

// Embedding is a fixed-dimension float vector representing a segment's meaning.
type Embedding struct {
	EmbeddingID string     `json:"embedding_id" db:"embedding_id"`
	AssetID     AssetID    `json:"asset_id" db:"asset_id"`
	VersionID   VersionID  `json:"version_id" db:"version_id"`
	SegmentID   SegmentID  `json:"segment_id" db:"segment_id"`
	Vector      []float32  `json:"vector" db:"vector"`
	ModelName   string     `json:"model_name" db:"model_name"`
	Dimension   int        `json:"dimension" db:"dimension"`
	Visibility  Visibility `json:"visibility" db:"visibility"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// EnginePolicy is the per-job configuration selecting the transcription
// engine, diarization, execution mode, and chunking thresholds.
type EnginePolicy struct {
	Engine                  string           `json:"engine" validate:"required"`
	DiarizationEnabled      bool             `json:"diarization_enabled"`
	ExecutionMode           ExecutionMode    `json:"execution_mode" validate:"required,oneof=standard fast thorough"`
	ComputeThresholdSeconds float64          `json:"compute_threshold_seconds" validate:"gte=0"`
	ForceChunkingStrategy   ChunkingStrategy `json:"force_chunking_strategy,omitempty" validate:"omitempty,oneof=sentence fixed_window"`
	LanguageHint            string           `json:"language_hint,omitempty"`
}

// TranscriptionJob is a queued unit of work.
type TranscriptionJob struct {
	JobID          JobID        `json:"job_id"`
	AssetID        AssetID      `json:"asset_id"`
	VersionID      VersionID    `json:"version_id"`
	EnginePolicy   EnginePolicy `json:"engine_policy"`
	Attempt        int          `json:"attempt"`
	IdempotencyKey string       `json:"idempotency_key"`
	EnqueuedAt     time.Time    `json:"enqueued_at"`
	ScheduledAt    time.Time    `json:"scheduled_at"`
}

// DLQItem is a parked failed job with diagnostics.
type DLQItem struct {
	DLQID     string           `json:"dlq_id" db:"dlq_id"`
	Job       TranscriptionJob `json:"job"`
	AssetID   AssetID          `json:"asset_id" db:"asset_id"`
	VersionID VersionID        `json:"version_id" db:"version_id"`
	ErrorKind ErrorKind        `json:"error_kind" db:"error_kind"`
	ErrorMsg  string           `json:"error_message" db:"error_message"`
	Retryable bool             `json:"retryable" db:"retryable"`
	LogTrail  []string         `json:"log_trail"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// TruncateMillis drops sub-millisecond precision, matching the millisecond
// timestamp resolution required throughout the data model.
func TruncateMillis(t time.Time) time.Time {
	return t.Truncate(time.Millisecond)
}
