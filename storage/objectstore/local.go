// Package objectstore implements ports.ObjectStore against a local
// filesystem tree, one directory per bucket, with a polling-based
// Subscribe standing in for S3-style bucket notifications.
package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/ssotoa70/mediasearch/pkg/logging"
	"github.com/ssotoa70/mediasearch/ports"
)

// Local is a filesystem-backed ports.ObjectStore. Each bucket is a
// subdirectory of Root; object keys map to paths beneath it.
type Local struct {
	Root string
}

// NewLocal constructs a Local store rooted at dir, creating it if absent.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create root %s: %w", dir, err)
	}
	return &Local{Root: dir}, nil
}

func (l *Local) path(bucket, key string) string {
	return filepath.Join(l.Root, bucket, filepath.FromSlash(key))
}

func (l *Local) Get(_ context.Context, bucket, key string) (io.ReadCloser, ports.ObjectMeta, error) {
	p := l.path(bucket, key)
	f, err := os.Open(p)
	if err != nil {
		return nil, ports.ObjectMeta{}, fmt.Errorf("objectstore: get %s/%s: %w", bucket, key, err)
	}
	meta, err := statMeta(p, bucket, key)
	if err != nil {
		f.Close()
		return nil, ports.ObjectMeta{}, err
	}
	return f, meta, nil
}

func (l *Local) Head(_ context.Context, bucket, key string) (ports.ObjectMeta, error) {
	return statMeta(l.path(bucket, key), bucket, key)
}

func (l *Local) Exists(_ context.Context, bucket, key string) (bool, error) {
	_, err := os.Stat(l.path(bucket, key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("objectstore: exists %s/%s: %w", bucket, key, err)
}

func (l *Local) List(_ context.Context, bucket, prefix string) ([]ports.ObjectMeta, error) {
	root := filepath.Join(l.Root, bucket)
	var out []ports.ObjectMeta
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == root {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !hasPrefix(key, prefix) {
			return nil
		}
		meta, err := statMeta(p, bucket, key)
		if err != nil {
			return err
		}
		out = append(out, meta)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: list %s/%s: %w", bucket, prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func hasPrefix(key, prefix string) bool {
	return len(key) >= len(prefix) && key[:len(prefix)] == prefix
}

func (l *Local) Put(_ context.Context, bucket, key string, r io.Reader, contentType string) (ports.ObjectMeta, error) {
	p := l.path(bucket, key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return ports.ObjectMeta{}, fmt.Errorf("objectstore: put %s/%s: %w", bucket, key, err)
	}
	f, err := os.Create(p)
	if err != nil {
		return ports.ObjectMeta{}, fmt.Errorf("objectstore: put %s/%s: %w", bucket, key, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return ports.ObjectMeta{}, fmt.Errorf("objectstore: put %s/%s: %w", bucket, key, err)
	}
	if contentType != "" {
		_ = os.WriteFile(p+".contenttype", []byte(contentType), 0o644)
	}
	return statMeta(p, bucket, key)
}

func (l *Local) Delete(_ context.Context, bucket, key string) error {
	p := l.path(bucket, key)
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("objectstore: delete %s/%s: %w", bucket, key, err)
	}
	_ = os.Remove(p + ".contenttype")
	return nil
}

// PresignedURL has no meaning for a local filesystem; it returns a
// file:// URL carrying the expiry as a query parameter for callers that
// log or display it, not for actual access control.
func (l *Local) PresignedURL(_ context.Context, bucket, key string, expiry time.Duration) (string, error) {
	p := l.path(bucket, key)
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("objectstore: presign %s/%s: %w", bucket, key, err)
	}
	return fmt.Sprintf("file://%s?expires_in=%s", p, expiry), nil
}

func statMeta(p, bucket, key string) (ports.ObjectMeta, error) {
	info, err := os.Stat(p)
	if err != nil {
		return ports.ObjectMeta{}, fmt.Errorf("objectstore: stat %s/%s: %w", bucket, key, err)
	}
	contentType := ""
	if ct, err := os.ReadFile(p + ".contenttype"); err == nil {
		contentType = string(ct)
	}
	return ports.ObjectMeta{
		Bucket:      bucket,
		Key:         key,
		ETag:        etagFor(info),
		Size:        info.Size(),
		ContentType: contentType,
		ModTime:     info.ModTime(),
	}, nil
}

// etagFor derives a stable identifier from size and modification time,
// standing in for the checksum-based ETag a real object store computes.
func etagFor(info os.FileInfo) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%d:%d", info.Size(), info.ModTime().UnixNano())))
	return hex.EncodeToString(h[:])[:16]
}

// PollOpts configures the polling subscription loop.
type PollOpts struct {
	Interval    time.Duration
	RateLimiter *rate.Limiter
}

// DefaultPollOpts is a conservative default scan interval for environments
// that don't override it.
func DefaultPollOpts() PollOpts {
	return PollOpts{
		Interval:    5 * time.Second,
		RateLimiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}
}

// Subscribe polls bucket on an interval and delivers ObjectCreated/
// ObjectRemoved events for files it has not seen before in this process's
// lifetime. Per §5, this seen-set is intentionally process-local and not
// persisted: after a restart, already-ingested objects may be redelivered,
// and the orchestrator's version-id idempotency check is what makes that
// safe, not this subscription.
func (l *Local) Subscribe(ctx context.Context, bucket string, handler func(context.Context, ports.ObjectEvent)) error {
	return l.subscribeWithOpts(ctx, bucket, DefaultPollOpts(), handler)
}

func (l *Local) subscribeWithOpts(ctx context.Context, bucket string, opts PollOpts, handler func(context.Context, ports.ObjectEvent)) error {
	log := logging.For("objectstore.local")
	seen := make(map[string]string) // key -> etag

	scan := func() {
		if opts.RateLimiter != nil {
			if err := opts.RateLimiter.Wait(ctx); err != nil {
				return
			}
		}
		metas, err := l.List(ctx, bucket, "")
		if err != nil {
			log.Warn().Err(err).Str("bucket", bucket).Msg("objectstore.local: poll scan failed")
			return
		}

		current := make(map[string]string, len(metas))
		for _, m := range metas {
			current[m.Key] = m.ETag
			if prevETag, ok := seen[m.Key]; !ok || prevETag != m.ETag {
				handler(ctx, ports.ObjectEvent{
					EventType: ports.ObjectCreated,
					Bucket:    m.Bucket,
					ObjectKey: m.Key,
					ETag:      m.ETag,
					Size:      m.Size,
					Timestamp: m.ModTime,
				})
			}
		}
		for key := range seen {
			if _, ok := current[key]; !ok {
				handler(ctx, ports.ObjectEvent{
					EventType: ports.ObjectRemoved,
					Bucket:    bucket,
					ObjectKey: key,
					Timestamp: time.Now(),
				})
			}
		}
		seen = current
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	scan()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			scan()
		}
	}
}
