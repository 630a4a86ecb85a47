package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssotoa70/mediasearch/engine/domain"
	"github.com/ssotoa70/mediasearch/engine/publisher"
	"github.com/ssotoa70/mediasearch/engine/retry"
	"github.com/ssotoa70/mediasearch/ports"
)

// fakeDB is a minimal in-memory ports.Database/ports.Tx good enough to
// drive the orchestrator through all five phases and assert on the
// resulting asset/version/segment/embedding state.
type fakeDB struct {
	mu         sync.Mutex
	assets     map[domain.AssetID]*domain.Asset
	versions   map[domain.VersionID]*domain.AssetVersion
	segments   map[domain.SegmentID]*domain.Segment
	embeddings map[string]*domain.Embedding
	dlqByKey   map[domain.AssetID]*domain.DLQItem
}

func newFakeDB(asset *domain.Asset, version *domain.AssetVersion) *fakeDB {
	return &fakeDB{
		assets:     map[domain.AssetID]*domain.Asset{asset.AssetID: asset},
		versions:   map[domain.VersionID]*domain.AssetVersion{version.VersionID: version},
		segments:   map[domain.SegmentID]*domain.Segment{},
		embeddings: map[string]*domain.Embedding{},
		dlqByKey:   map[domain.AssetID]*domain.DLQItem{},
	}
}

func (f *fakeDB) WithTx(ctx context.Context, fn func(context.Context, ports.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(ctx, f)
}

func (f *fakeDB) GetAsset(_ context.Context, id domain.AssetID) (*domain.Asset, error) {
	if a, ok := f.assets[id]; ok {
		return a, nil
	}
	return nil, domain.NewError("GetAsset", domain.KindNotFound, domain.ErrAssetNotFound)
}
func (f *fakeDB) GetAssetByID(_ context.Context, id domain.AssetID) (*domain.Asset, error) {
	if a, ok := f.assets[id]; ok {
		return a, nil
	}
	return nil, domain.NewError("GetAssetByID", domain.KindNotFound, domain.ErrAssetNotFound)
}
func (f *fakeDB) GetAssetByBucketKey(_ context.Context, _, _ string) (*domain.Asset, error) {
	return nil, domain.NewError("GetAssetByBucketKey", domain.KindNotFound, domain.ErrAssetNotFound)
}
func (f *fakeDB) GetTombstonedAssetByBucketKey(_ context.Context, _, _ string) (*domain.Asset, error) {
	return nil, domain.NewError("GetTombstonedAssetByBucketKey", domain.KindNotFound, domain.ErrAssetNotFound)
}
func (f *fakeDB) CreateAsset(_ context.Context, a domain.Asset) error {
	cp := a
	f.assets[a.AssetID] = &cp
	return nil
}
func (f *fakeDB) UpdateAsset(_ context.Context, a domain.Asset) error {
	if existing, ok := f.assets[a.AssetID]; ok {
		*existing = a
		return nil
	}
	cp := a
	f.assets[a.AssetID] = &cp
	return nil
}
func (f *fakeDB) GetAssetVersion(_ context.Context, id domain.VersionID) (*domain.AssetVersion, error) {
	if v, ok := f.versions[id]; ok {
		return v, nil
	}
	return nil, domain.NewError("GetAssetVersion", domain.KindNotFound, domain.ErrVersionNotFound)
}
func (f *fakeDB) GetAssetVersionByContentKey(_ context.Context, _ domain.AssetID, _ domain.VersionID) (*domain.AssetVersion, error) {
	return nil, domain.NewError("GetAssetVersionByContentKey", domain.KindNotFound, domain.ErrVersionNotFound)
}
func (f *fakeDB) CreateAssetVersion(_ context.Context, v domain.AssetVersion) error {
	cp := v
	f.versions[v.VersionID] = &cp
	return nil
}
func (f *fakeDB) SetVersionState(_ context.Context, versionID domain.VersionID, status domain.AssetStatus, publish domain.PublishState) error {
	if v, ok := f.versions[versionID]; ok {
		v.ProcessingStatus = status
		v.PublishState = publish
	}
	return nil
}
func (f *fakeDB) ListQuarantined(_ context.Context) ([]domain.Asset, error) { return nil, nil }
func (f *fakeDB) GetDLQItem(_ context.Context, assetID domain.AssetID) (*domain.DLQItem, error) {
	if item, ok := f.dlqByKey[assetID]; ok {
		return item, nil
	}
	return nil, domain.NewError("GetDLQItem", domain.KindNotFound, domain.ErrDLQItemNotFound)
}
func (f *fakeDB) SearchKeyword(_ context.Context, _ ports.SearchQuery) ([]ports.SearchHit, error) {
	return nil, nil
}
func (f *fakeDB) SearchSemantic(_ context.Context, _ ports.SearchQuery) ([]ports.SearchHit, error) {
	return nil, nil
}
func (f *fakeDB) PurgeArchivedOlderThan(_ context.Context, _ time.Duration) (int, error) {
	return 0, nil
}
func (f *fakeDB) EnqueueJobIdempotent(_ context.Context, _ domain.TranscriptionJob) (bool, error) {
	return true, nil
}
func (f *fakeDB) SetAssetTombstoned(_ context.Context, _ domain.AssetID) error { return nil }
func (f *fakeDB) SoftDeleteSegmentsAndEmbeddings(_ context.Context, _ domain.AssetID) error {
	return nil
}
func (f *fakeDB) UpsertSegments(_ context.Context, segs []domain.Segment) error {
	for _, s := range segs {
		cp := s
		f.segments[s.SegmentID] = &cp
	}
	return nil
}
func (f *fakeDB) UpsertEmbeddings(_ context.Context, embs []domain.Embedding) error {
	for _, e := range embs {
		cp := e
		f.embeddings[e.EmbeddingID] = &cp
	}
	return nil
}
func (f *fakeDB) SetSegmentsVisibility(_ context.Context, assetID domain.AssetID, versionID domain.VersionID, from, to domain.Visibility) error {
	for _, s := range f.segments {
		if s.AssetID == assetID && s.VersionID == versionID && s.Visibility == from {
			s.Visibility = to
		}
	}
	return nil
}
func (f *fakeDB) SetEmbeddingsVisibility(_ context.Context, assetID domain.AssetID, versionID domain.VersionID, from, to domain.Visibility) error {
	for _, e := range f.embeddings {
		if e.AssetID == assetID && e.VersionID == versionID && e.Visibility == from {
			e.Visibility = to
		}
	}
	return nil
}
func (f *fakeDB) SetAssetCurrentVersion(_ context.Context, assetID domain.AssetID, versionID domain.VersionID) error {
	if a, ok := f.assets[assetID]; ok {
		a.CurrentVersionID = &versionID
	}
	return nil
}
func (f *fakeDB) SetAssetStatus(_ context.Context, assetID domain.AssetID, status domain.AssetStatus, lastErr *string) error {
	if a, ok := f.assets[assetID]; ok {
		a.Status = status
		a.LastError = lastErr
	}
	return nil
}
func (f *fakeDB) SetAssetTriage(_ context.Context, assetID domain.AssetID, triage *domain.TriageState, action *string) error {
	if a, ok := f.assets[assetID]; ok {
		a.TriageState = triage
		a.RecommendedAction = action
	}
	return nil
}
func (f *fakeDB) InsertDLQItem(_ context.Context, item domain.DLQItem) error {
	cp := item
	f.dlqByKey[item.AssetID] = &cp
	return nil
}
func (f *fakeDB) RemoveDLQItem(_ context.Context, dlqID string) error {
	for k, v := range f.dlqByKey {
		if v.DLQID == dlqID {
			delete(f.dlqByKey, k)
		}
	}
	return nil
}

type fakeObjectStore struct{ body []byte }

func (o *fakeObjectStore) Get(_ context.Context, _, _ string) (io.ReadCloser, ports.ObjectMeta, error) {
	return io.NopCloser(bytes.NewReader(o.body)), ports.ObjectMeta{Size: int64(len(o.body))}, nil
}
func (o *fakeObjectStore) Head(_ context.Context, _, _ string) (ports.ObjectMeta, error) {
	return ports.ObjectMeta{Size: int64(len(o.body))}, nil
}
func (o *fakeObjectStore) Exists(_ context.Context, _, _ string) (bool, error) { return true, nil }
func (o *fakeObjectStore) List(_ context.Context, _, _ string) ([]ports.ObjectMeta, error) {
	return nil, nil
}
func (o *fakeObjectStore) Put(_ context.Context, _, _ string, _ io.Reader, _ string) (ports.ObjectMeta, error) {
	return ports.ObjectMeta{}, nil
}
func (o *fakeObjectStore) Delete(_ context.Context, _, _ string) error { return nil }
func (o *fakeObjectStore) PresignedURL(_ context.Context, _, _ string, _ time.Duration) (string, error) {
	return "", nil
}
func (o *fakeObjectStore) Subscribe(_ context.Context, _ string, _ func(context.Context, ports.ObjectEvent)) error {
	return nil
}

type fakeASR struct {
	result     ports.TranscribeResult
	err        error
	callCount  int
}

func (a *fakeASR) Transcribe(_ context.Context, _ []byte, _ ports.TranscribeOptions) (ports.TranscribeResult, error) {
	a.callCount++
	if a.err != nil {
		return ports.TranscribeResult{}, a.err
	}
	return a.result, nil
}
func (a *fakeASR) Capabilities(_ context.Context) (ports.Capabilities, error) {
	return ports.Capabilities{}, nil
}

type fakeEmbedder struct {
	dim   int
	batch int
}

func (e *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, e.dim), nil
}
func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, e.dim)
	}
	return out, nil
}
func (e *fakeEmbedder) ModelName() string { return "fake-embed" }
func (e *fakeEmbedder) Dimension() int    { return e.dim }
func (e *fakeEmbedder) BatchLimit() int   { return e.batch }

type fakeQueue struct {
	delayed []domain.TranscriptionJob
	direct  []domain.TranscriptionJob
}

func (q *fakeQueue) Enqueue(_ context.Context, job domain.TranscriptionJob) error {
	q.direct = append(q.direct, job)
	return nil
}
func (q *fakeQueue) EnqueueDelayed(_ context.Context, job domain.TranscriptionJob, _ time.Duration) error {
	q.delayed = append(q.delayed, job)
	return nil
}
func (q *fakeQueue) Consume(_ context.Context, _ int, _ time.Duration, _ func(context.Context, domain.TranscriptionJob) error) error {
	return nil
}
func (q *fakeQueue) Ack(_ context.Context, _ domain.JobID) error  { return nil }
func (q *fakeQueue) Nack(_ context.Context, _ domain.JobID) error { return nil }
func (q *fakeQueue) MoveToDLQ(_ context.Context, _ domain.TranscriptionJob, _ domain.DLQItem) error {
	return nil
}

func newOrchestrator(db *fakeDB, asr *fakeASR, emb *fakeEmbedder, q *fakeQueue, semantic bool) *Orchestrator {
	return New(Deps{
		Store:           db,
		ObjectStore:     &fakeObjectStore{body: []byte("hello world")},
		ASR:             asr,
		Embedder:        emb,
		Queue:           q,
		Publisher:       publisher.New(db),
		RetryMgr:        retry.NewManager(db, q, retry.Opts{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}),
		SemanticEnabled: semantic,
	})
}

func TestHandleJobFullPipelinePublishesOnSuccess(t *testing.T) {
	asset := &domain.Asset{AssetID: "a1", Bucket: "b", ObjectKey: "k.wav", Status: domain.StatusIngested}
	version := &domain.AssetVersion{VersionID: "v1", AssetID: "a1", ProcessingStatus: domain.StatusIngested, PublishState: domain.StagingState}
	db := newFakeDB(asset, version)
	asr := &fakeASR{result: ports.TranscribeResult{
		Segments: []ports.RawSegment{{StartMs: 0, EndMs: 2000, Text: "Hello there. General Kenobi."}},
		Duration: 2 * time.Second,
	}}
	emb := &fakeEmbedder{dim: 4, batch: 8}
	q := &fakeQueue{}
	o := newOrchestrator(db, asr, emb, q, true)

	job := domain.TranscriptionJob{AssetID: "a1", VersionID: "v1", EnginePolicy: domain.EnginePolicy{ComputeThresholdSeconds: 900}}
	require.NoError(t, o.handleJob(context.Background(), job))

	assert.Equal(t, domain.StatusIndexed, asset.Status)
	require.NotNil(t, asset.CurrentVersionID)
	assert.Equal(t, domain.VersionID("v1"), *asset.CurrentVersionID)
	assert.NotEmpty(t, db.segments)
	for _, s := range db.segments {
		assert.Equal(t, domain.VisibilityActive, s.Visibility)
	}
	for _, e := range db.embeddings {
		assert.Equal(t, domain.VisibilityActive, e.Visibility)
		assert.Len(t, e.Vector, 4)
	}
	assert.Empty(t, q.delayed)
}

func TestHandleJobSkipsAlreadyProcessedVersion(t *testing.T) {
	asset := &domain.Asset{AssetID: "a1", Bucket: "b", ObjectKey: "k.wav", Status: domain.StatusIndexed}
	version := &domain.AssetVersion{VersionID: "v1", AssetID: "a1", ProcessingStatus: domain.StatusIndexed, PublishState: domain.ActiveState}
	db := newFakeDB(asset, version)
	asr := &fakeASR{err: errors.New("should not be called")}
	emb := &fakeEmbedder{dim: 4, batch: 8}
	q := &fakeQueue{}
	o := newOrchestrator(db, asr, emb, q, true)

	job := domain.TranscriptionJob{AssetID: "a1", VersionID: "v1"}
	require.NoError(t, o.handleJob(context.Background(), job))
	assert.Zero(t, asr.callCount)
}

func TestHandleJobRoutesTransientASRFailureThroughRetryManager(t *testing.T) {
	asset := &domain.Asset{AssetID: "a1", Bucket: "b", ObjectKey: "k.wav", Status: domain.StatusIngested}
	version := &domain.AssetVersion{VersionID: "v1", AssetID: "a1", ProcessingStatus: domain.StatusIngested, PublishState: domain.StagingState}
	db := newFakeDB(asset, version)
	asr := &fakeASR{err: errors.New("connection reset by peer")}
	emb := &fakeEmbedder{dim: 4, batch: 8}
	q := &fakeQueue{}
	o := newOrchestrator(db, asr, emb, q, true)

	job := domain.TranscriptionJob{AssetID: "a1", VersionID: "v1", Attempt: 0}
	require.NoError(t, o.handleJob(context.Background(), job))

	assert.Equal(t, domain.StatusPendingRetry, asset.Status)
	require.Len(t, q.delayed, 1)
	assert.Equal(t, 1, q.delayed[0].Attempt)
}

func TestHandleJobQuarantinesOnMediaFormatFailure(t *testing.T) {
	asset := &domain.Asset{AssetID: "a1", Bucket: "b", ObjectKey: "k.wav", Status: domain.StatusIngested}
	version := &domain.AssetVersion{VersionID: "v1", AssetID: "a1", ProcessingStatus: domain.StatusIngested, PublishState: domain.StagingState}
	db := newFakeDB(asset, version)
	asr := &fakeASR{err: domain.NewError("asr", domain.KindMediaFormat, fmt.Errorf("corrupt atom"))}
	emb := &fakeEmbedder{dim: 4, batch: 8}
	q := &fakeQueue{}
	o := newOrchestrator(db, asr, emb, q, true)

	job := domain.TranscriptionJob{AssetID: "a1", VersionID: "v1"}
	require.NoError(t, o.handleJob(context.Background(), job))

	assert.Equal(t, domain.StatusQuarantined, asset.Status)
	require.NotNil(t, asset.TriageState)
	assert.Equal(t, domain.TriageNeedsMediaFix, *asset.TriageState)
	assert.Empty(t, q.delayed)
}

func TestHandleJobEmbedderDimensionMismatchQuarantines(t *testing.T) {
	asset := &domain.Asset{AssetID: "a1", Bucket: "b", ObjectKey: "k.wav", Status: domain.StatusIngested}
	version := &domain.AssetVersion{VersionID: "v1", AssetID: "a1", ProcessingStatus: domain.StatusIngested, PublishState: domain.StagingState}
	db := newFakeDB(asset, version)
	asr := &fakeASR{result: ports.TranscribeResult{
		Segments: []ports.RawSegment{{StartMs: 0, EndMs: 1000, Text: "hi."}},
		Duration: time.Second,
	}}
	emb := &fakeEmbedder{dim: 4, batch: 8}
	q := &fakeQueue{}
	o := newOrchestrator(db, asr, emb, q, true)
	// force a mismatch: embedder claims dim 8 while actually returning 4-wide vectors
	emb.dim = 8
	emb.batch = 8
	badEmb := &fakeEmbedder{dim: 4, batch: 8}
	o.deps.Embedder = wrappedDimMismatch{badEmb, 8}

	job := domain.TranscriptionJob{AssetID: "a1", VersionID: "v1"}
	require.NoError(t, o.handleJob(context.Background(), job))

	assert.Equal(t, domain.StatusQuarantined, asset.Status)
	require.NotNil(t, asset.TriageState)
	assert.Equal(t, domain.TriageNeedsEngineTuning, *asset.TriageState)
}

// wrappedDimMismatch reports a Dimension() inconsistent with the vectors
// its embedded fakeEmbedder actually returns, exercising the phase-4
// dimension-mismatch quarantine path.
type wrappedDimMismatch struct {
	*fakeEmbedder
	claimedDim int
}

func (w wrappedDimMismatch) Dimension() int { return w.claimedDim }
