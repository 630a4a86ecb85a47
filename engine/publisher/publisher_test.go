package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssotoa70/mediasearch/engine/domain"
	"github.com/ssotoa70/mediasearch/ports"
)

type fakeDB struct {
	mu         sync.Mutex
	assets     map[domain.AssetID]*domain.Asset
	versions   map[domain.VersionID]*domain.AssetVersion
	visibility map[string]domain.Visibility // key: assetID|versionID|"seg"/"emb"
}

func newFakeDB(asset *domain.Asset) *fakeDB {
	return &fakeDB{
		assets:     map[domain.AssetID]*domain.Asset{asset.AssetID: asset},
		versions:   map[domain.VersionID]*domain.AssetVersion{},
		visibility: map[string]domain.Visibility{},
	}
}

func (f *fakeDB) WithTx(ctx context.Context, fn func(context.Context, ports.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(ctx, f)
}

func (f *fakeDB) GetAsset(_ context.Context, id domain.AssetID) (*domain.Asset, error) {
	return f.assets[id], nil
}
func (f *fakeDB) GetAssetByBucketKey(_ context.Context, _, _ string) (*domain.Asset, error) {
	return nil, domain.NewError("GetAssetByBucketKey", domain.KindNotFound, domain.ErrAssetNotFound)
}
func (f *fakeDB) GetTombstonedAssetByBucketKey(_ context.Context, _, _ string) (*domain.Asset, error) {
	return nil, domain.NewError("GetTombstonedAssetByBucketKey", domain.KindNotFound, domain.ErrAssetNotFound)
}
func (f *fakeDB) GetAssetByID(_ context.Context, id domain.AssetID) (*domain.Asset, error) {
	if a, ok := f.assets[id]; ok {
		return a, nil
	}
	return nil, domain.NewError("GetAssetByID", domain.KindNotFound, domain.ErrAssetNotFound)
}
func (f *fakeDB) GetAssetVersion(_ context.Context, id domain.VersionID) (*domain.AssetVersion, error) {
	if v, ok := f.versions[id]; ok {
		return v, nil
	}
	return nil, domain.NewError("GetAssetVersion", domain.KindNotFound, domain.ErrVersionNotFound)
}
func (f *fakeDB) ListQuarantined(_ context.Context) ([]domain.Asset, error) { return nil, nil }
func (f *fakeDB) GetDLQItem(_ context.Context, _ domain.AssetID) (*domain.DLQItem, error) {
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

func (f *fakeDB) CreateAsset(_ context.Context, a domain.Asset) error {
	cp := a
	f.assets[a.AssetID] = &cp
	return nil
}
func (f *fakeDB) UpdateAsset(_ context.Context, a domain.Asset) error {
	cp := a
	f.assets[a.AssetID] = &cp
	return nil
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
func (f *fakeDB) EnqueueJobIdempotent(_ context.Context, _ domain.TranscriptionJob) (bool, error) {
	return true, nil
}
func (f *fakeDB) SetAssetTombstoned(_ context.Context, _ domain.AssetID) error { return nil }
func (f *fakeDB) SoftDeleteSegmentsAndEmbeddings(_ context.Context, _ domain.AssetID) error {
	return nil
}
func (f *fakeDB) UpsertSegments(_ context.Context, _ []domain.Segment) error     { return nil }
func (f *fakeDB) UpsertEmbeddings(_ context.Context, _ []domain.Embedding) error { return nil }

func (f *fakeDB) SetSegmentsVisibility(_ context.Context, assetID domain.AssetID, versionID domain.VersionID, from, to domain.Visibility) error {
	key := string(assetID) + "|" + string(versionID) + "|seg"
	if cur, ok := f.visibility[key]; ok && cur != from {
		return domain.NewError("SetSegmentsVisibility", domain.KindInternal, domain.ErrConcurrentPublish)
	}
	f.visibility[key] = to
	return nil
}
func (f *fakeDB) SetEmbeddingsVisibility(_ context.Context, assetID domain.AssetID, versionID domain.VersionID, from, to domain.Visibility) error {
	key := string(assetID) + "|" + string(versionID) + "|emb"
	if cur, ok := f.visibility[key]; ok && cur != from {
		return domain.NewError("SetEmbeddingsVisibility", domain.KindInternal, domain.ErrConcurrentPublish)
	}
	f.visibility[key] = to
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
func (f *fakeDB) SetAssetTriage(_ context.Context, _ domain.AssetID, _ *domain.TriageState, _ *string) error {
	return nil
}
func (f *fakeDB) InsertDLQItem(_ context.Context, _ domain.DLQItem) error { return nil }
func (f *fakeDB) RemoveDLQItem(_ context.Context, _ string) error        { return nil }

func TestPublishFirstVersionActivatesWithNoArchive(t *testing.T) {
	asset := &domain.Asset{AssetID: "a1", Status: domain.StatusTranscribed}
	db := newFakeDB(asset)
	db.versions["v1"] = &domain.AssetVersion{VersionID: "v1", AssetID: "a1", PublishState: domain.StagingState}

	p := New(db)
	require.NoError(t, p.Publish(context.Background(), "a1", "v1"))

	assert.Equal(t, domain.Visibility("ACTIVE"), db.visibility["a1|v1|seg"])
	assert.Equal(t, domain.Visibility("ACTIVE"), db.visibility["a1|v1|emb"])
	require.NotNil(t, asset.CurrentVersionID)
	assert.Equal(t, domain.VersionID("v1"), *asset.CurrentVersionID)
	assert.Equal(t, domain.StatusIndexed, asset.Status)
	assert.Equal(t, domain.ActiveState, db.versions["v1"].PublishState)
}

func TestPublishSecondVersionArchivesFirst(t *testing.T) {
	v1 := domain.VersionID("v1")
	asset := &domain.Asset{AssetID: "a1", Status: domain.StatusIndexed, CurrentVersionID: &v1}
	db := newFakeDB(asset)
	db.versions["v1"] = &domain.AssetVersion{VersionID: "v1", AssetID: "a1", PublishState: domain.ActiveState}
	db.versions["v2"] = &domain.AssetVersion{VersionID: "v2", AssetID: "a1", PublishState: domain.StagingState}
	db.visibility["a1|v1|seg"] = domain.VisibilityActive
	db.visibility["a1|v1|emb"] = domain.VisibilityActive

	p := New(db)
	require.NoError(t, p.Publish(context.Background(), "a1", "v2"))

	assert.Equal(t, domain.Visibility("ARCHIVED"), db.visibility["a1|v1|seg"])
	assert.Equal(t, domain.Visibility("ACTIVE"), db.visibility["a1|v2|seg"])
	assert.Equal(t, domain.ArchivedState, db.versions["v1"].PublishState)
	assert.Equal(t, domain.ActiveState, db.versions["v2"].PublishState)
	require.NotNil(t, asset.CurrentVersionID)
	assert.Equal(t, domain.VersionID("v2"), *asset.CurrentVersionID)
}

func TestPublishAlreadyActiveIsNoop(t *testing.T) {
	v1 := domain.VersionID("v1")
	asset := &domain.Asset{AssetID: "a1", Status: domain.StatusIndexed, CurrentVersionID: &v1}
	db := newFakeDB(asset)
	db.versions["v1"] = &domain.AssetVersion{VersionID: "v1", AssetID: "a1", PublishState: domain.ActiveState}
	db.visibility["a1|v1|seg"] = domain.VisibilityActive

	p := New(db)
	require.NoError(t, p.Publish(context.Background(), "a1", "v1"))

	assert.Equal(t, domain.Visibility("ACTIVE"), db.visibility["a1|v1|seg"])
}
