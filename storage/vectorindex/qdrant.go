// Package vectorindex provides an optional Qdrant-backed ANN index that
// can sit in front of Postgres/pgvector semantic search for deployments
// that need faster approximate nearest-neighbor lookups at larger scale.
// §4.5's semantic search works correctly through pgvector alone; this
// package is a pluggable accelerator, not a required dependency.
package vectorindex

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ssotoa70/mediasearch/engine/domain"
)

// Index is the contract a secondary ANN index offers: upsert embeddings
// as they're published, drop them on archive/soft-delete, and serve
// top-K similarity search. Kept separate from ports.Database so callers
// that don't need an ANN accelerator never have to wire one.
type Index interface {
	Upsert(ctx context.Context, embs []domain.Embedding) error
	Delete(ctx context.Context, segmentIDs []domain.SegmentID) error
	Search(ctx context.Context, vector []float32, topK int) ([]Hit, error)
}

// Hit is a single ANN search result, carrying just enough to re-join
// against Postgres for the rest of the segment's fields.
type Hit struct {
	SegmentID domain.SegmentID
	Score     float32
}

// Qdrant is the sole owner of all Qdrant gRPC operations for this
// package: one struct per collection, one gRPC connection,
// points/collections clients split out.
type Qdrant struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New dials addr and returns a Qdrant index scoped to collection.
func New(addr, collection string) (*Qdrant, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vectorindex: dial qdrant %s: %w", addr, err)
	}
	return &Qdrant{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients builds a Qdrant index around already-constructed
// clients, bypassing the gRPC dial — used by tests to inject mock
// pb.PointsClient/pb.CollectionsClient implementations.
func NewWithClients(points pb.PointsClient, collections pb.CollectionsClient, collection string) *Qdrant {
	return &Qdrant{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection.
func (q *Qdrant) Close() error { return q.conn.Close() }

// EnsureCollection creates the collection with a cosine-distance vector
// config of the given dimension if it does not already exist.
func (q *Qdrant) EnsureCollection(ctx context.Context, dims int) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("vectorindex: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: create collection %s: %w", q.collection, err)
	}
	return nil
}

// Upsert stores each embedding's vector under its segment-id as the
// point's UUID, with asset-id/version-id carried as filterable payload.
func (q *Qdrant) Upsert(ctx context.Context, embs []domain.Embedding) error {
	if len(embs) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(embs))
	for i, e := range embs {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: string(e.SegmentID)}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: e.Vector}},
			},
			Payload: map[string]*pb.Value{
				"asset_id":   {Kind: &pb.Value_StringValue{StringValue: string(e.AssetID)}},
				"version_id": {Kind: &pb.Value_StringValue{StringValue: string(e.VersionID)}},
			},
		}
	}

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("vectorindex: upsert %d points: %w", len(embs), err)
	}
	return nil
}

// Delete removes points by segment-id, used when a version is archived
// or an asset is soft-deleted and its embeddings no longer belong in the
// ANN index.
func (q *Qdrant) Delete(ctx context.Context, segmentIDs []domain.SegmentID) error {
	if len(segmentIDs) == 0 {
		return nil
	}
	ids := make([]*pb.PointId, len(segmentIDs))
	for i, id := range segmentIDs {
		ids[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: string(id)}}
	}

	wait := true
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: ids},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: delete %d points: %w", len(segmentIDs), err)
	}
	return nil
}

// Search runs k-NN similarity search and returns segment-id/score pairs;
// callers re-join against storage/postgres for the rest of a SearchHit.
func (q *Qdrant) Search(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(topK),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: search: %w", err)
	}

	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = Hit{SegmentID: domain.SegmentID(r.GetId().GetUuid()), Score: r.GetScore()}
	}
	return hits, nil
}
