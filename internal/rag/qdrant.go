package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// pointNamespace is the UUIDv5 namespace used to derive Qdrant point IDs
// from chunk IDs. Qdrant only accepts numeric or UUID point IDs, so the
// deterministic chunk ID is hashed into a deterministic UUID and carried
// verbatim in the payload.
var pointNamespace = uuid.MustParse("8f1c9c6e-2b4a-4f0d-9c71-5f2b8a3d6e10")

// QdrantConfig holds connection parameters for a Qdrant-backed vector index.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements VectorIndex backed by a Qdrant instance.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig
}

// NewQdrantIndex creates a new QdrantIndex, ensuring the target collection
// exists (creating it with cosine distance if necessary), and returns a
// ready-to-use VectorIndex.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("rag: qdrant client: %w: %v", ErrIndexUnavailable, err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("rag: qdrant collection check: %w: %v", ErrIndexUnavailable, err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("rag: qdrant create collection %q: %w: %v", q.cfg.Collection, ErrIndexUnavailable, err)
	}
	return nil
}

// pointID derives the deterministic Qdrant UUID for a chunk ID.
func pointID(chunkID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(pointNamespace, []byte(chunkID)).String())
}

// Upsert stores the batch of entries. Qdrant upserts are keyed by point ID,
// and point IDs are derived deterministically from chunk IDs, so re-writing
// an existing chunk replaces it with identical data — idempotent from the
// caller's perspective.
func (q *QdrantIndex) Upsert(ctx context.Context, entries []Entry) error {
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		if uint64(len(e.Vector)) != q.cfg.VectorSize {
			return fmt.Errorf("rag: entry %s has vector length %d, collection dimension is %d: %w",
				e.ChunkID, len(e.Vector), q.cfg.VectorSize, ErrDimensionMismatch)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      pointID(e.ChunkID),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id": e.ChunkID,
				"doc_id":   e.DocID,
				"content":  e.Text,
			}),
		})
	}

	if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("rag: qdrant upsert: %w: %v", ErrIndexUnavailable, err)
	}
	return nil
}

// Exists retrieves the derived point IDs and reports which chunk IDs are
// present, read back from the stored payload.
func (q *QdrantIndex) Exists(ctx context.Context, chunkIDs []string) (map[string]struct{}, error) {
	present := make(map[string]struct{}, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return present, nil
	}

	ids := make([]*qdrant.PointId, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		ids = append(ids, pointID(id))
	}

	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.cfg.Collection,
		Ids:            ids,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("rag: qdrant get: %w: %v", ErrIndexUnavailable, err)
	}

	for _, p := range points {
		if v, ok := p.Payload["chunk_id"]; ok {
			present[v.GetStringValue()] = struct{}{}
		}
	}
	return present, nil
}

// Search performs a cosine similarity search and returns the top-k results,
// optionally restricted to the given document IDs via a payload filter.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, topK int, docIDs []string) ([]Entry, error) {
	if uint64(len(vector)) != q.cfg.VectorSize {
		return nil, fmt.Errorf("rag: query vector length %d, collection dimension is %d: %w",
			len(vector), q.cfg.VectorSize, ErrDimensionMismatch)
	}

	limit := uint64(topK) //nolint:gosec // topK is a small positive bound
	req := &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(docIDs) > 0 {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchKeywords("doc_id", docIDs...)},
		}
	}

	results, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("rag: qdrant search: %w: %v", ErrIndexUnavailable, err)
	}

	entries := make([]Entry, 0, len(results))
	for _, r := range results {
		e := Entry{Score: r.Score}
		if p := r.Payload; p != nil {
			if v, ok := p["chunk_id"]; ok {
				e.ChunkID = v.GetStringValue()
			}
			if v, ok := p["doc_id"]; ok {
				e.DocID = v.GetStringValue()
			}
			if v, ok := p["content"]; ok {
				e.Text = v.GetStringValue()
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Count returns the number of points stored for docID, or the collection
// total when docID is empty.
func (q *QdrantIndex) Count(ctx context.Context, docID string) (int, error) {
	req := &qdrant.CountPoints{
		CollectionName: q.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	}
	if docID != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchKeyword("doc_id", docID)},
		}
	}

	n, err := q.client.Count(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("rag: qdrant count: %w: %v", ErrIndexUnavailable, err)
	}
	return int(n), nil //nolint:gosec // collection sizes are far below int overflow
}

// DeleteDoc removes every point belonging to the given document.
func (q *QdrantIndex) DeleteDoc(ctx context.Context, docID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.Collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchKeyword("doc_id", docID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("rag: qdrant delete doc %s: %w: %v", docID, ErrIndexUnavailable, err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// Ping probes the Qdrant instance via its native HealthCheck RPC. Used by
// the server's readiness endpoint.
func (q *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
