// Package ports declares the behavioral contracts the core pipeline depends
// on — object store, queue, database, ASR, and embedder — so that storage
// and compute backends can be swapped without touching the pipeline.
package ports

import (
	"context"
	"io"
	"time"
)

// ObjectMeta is the authoritative metadata for a stored object.
type ObjectMeta struct {
	Bucket      string
	Key         string
	ETag        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// ObjectEventType distinguishes creation from removal notifications.
type ObjectEventType string

const (
	ObjectCreated ObjectEventType = "ObjectCreated"
	ObjectRemoved ObjectEventType = "ObjectRemoved"
)

// ObjectEvent is the wire shape of §6's object-event schema.
type ObjectEvent struct {
	EventType ObjectEventType
	Bucket    string
	ObjectKey string
	ETag      string
	Size      int64
	Timestamp time.Time
}

// ObjectStore is an S3-like get/put/list/notify abstraction (§4.6).
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectMeta, error)
	Head(ctx context.Context, bucket, key string) (ObjectMeta, error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
	List(ctx context.Context, bucket, prefix string) ([]ObjectMeta, error)
	Put(ctx context.Context, bucket, key string, r io.Reader, contentType string) (ObjectMeta, error)
	Delete(ctx context.Context, bucket, key string) error
	PresignedURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
	// Subscribe registers handler to receive object events for bucket,
	// delivered at least once. Cancelling ctx stops the subscription.
	Subscribe(ctx context.Context, bucket string, handler func(context.Context, ObjectEvent)) error
}
