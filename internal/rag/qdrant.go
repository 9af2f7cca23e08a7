package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Payload keys written with every point.
const (
	payloadChunkID    = "chunk_id"
	payloadContent    = "content"
	payloadTypeTag    = "type_tag"
	payloadSequence   = "sequence_index"
	payloadDocumentID = "document_id"
)

// chunkNamespace seeds the UUIDv5 point ids derived from chunk ids.
var chunkNamespace = uuid.MustParse("6f1f7c1e-3b8e-4d1a-9f0e-2f6a3c5d8b71")

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string
	// Port is the Qdrant gRPC port (default: 6334).
	Port int
	// VectorSize is the dimensionality of every collection created.
	VectorSize uint64
	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string
	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore maps each store id onto its own Qdrant collection.
type QdrantStore struct {
	client     *qdrant.Client
	vectorSize uint64
	log        *slog.Logger
}

// NewQdrantStore connects to Qdrant. Collections are created on demand.
func NewQdrantStore(cfg QdrantConfig, log *slog.Logger) (*QdrantStore, error) {
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be positive")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if log == nil {
		log = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &QdrantStore{client: client, vectorSize: cfg.VectorSize, log: log}, nil
}

// PointID returns the Qdrant point id for a chunk id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(chunkNamespace, []byte(chunkID)).String()
}

// GetOrCreate ensures the collection for id exists.
func (s *QdrantStore) GetOrCreate(ctx context.Context, id string) (Collection, error) {
	if err := ValidateStoreID(id); err != nil {
		return nil, err
	}
	exists, err := s.client.CollectionExists(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("qdrant: check collection %q: %w", id, err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: id,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.vectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: create collection %q: %w", id, err)
		}
	}
	return &qdrantCollection{client: s.client, id: id}, nil
}

// Exists reports whether a collection named id exists.
func (s *QdrantStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := ValidateStoreID(id); err != nil {
		return false, err
	}
	exists, err := s.client.CollectionExists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("qdrant: check collection %q: %w", id, err)
	}
	return exists, nil
}

// Query searches id without creating it.
func (s *QdrantStore) Query(ctx context.Context, id string, vector []float32, topK int) ([]Match, error) {
	exists, err := s.Exists(ctx, id)
	if err != nil || !exists {
		return nil, err
	}
	c := &qdrantCollection{client: s.client, id: id}
	return c.Query(ctx, vector, topK)
}

// Delete drops the collection for id.
func (s *QdrantStore) Delete(ctx context.Context, id string) bool {
	log := s.log.With(slog.String("store_id", id))
	exists, err := s.Exists(ctx, id)
	if err != nil {
		log.Warn("qdrant: delete check failed", slog.String("error", err.Error()))
		return false
	}
	if !exists {
		return true
	}
	if err := s.client.DeleteCollection(ctx, id); err != nil {
		log.Warn("qdrant: delete collection failed", slog.String("error", err.Error()))
		return false
	}
	return true
}

// Ping checks connectivity with the Qdrant health endpoint.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check: %w", err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

type qdrantCollection struct {
	client *qdrant.Client
	id     string
}

func (c *qdrantCollection) ID() string { return c.id }

func (c *qdrantCollection) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(e.ID)),
			Vectors: qdrant.NewVectors(e.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadChunkID:    e.ID,
				payloadContent:    e.Content,
				payloadTypeTag:    e.Metadata.TypeTag,
				payloadSequence:   int64(e.Metadata.SequenceIndex),
				payloadDocumentID: e.Metadata.DocumentID,
			}),
		})
	}

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.id,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert into %q: %w", c.id, err)
	}
	return nil
}

func (c *qdrantCollection) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	results, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.id,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: query %q: %w", c.id, err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		m := Match{ID: r.GetId().GetUuid(), Score: r.GetScore()}
		p := r.GetPayload()
		if v, ok := p[payloadChunkID]; ok {
			m.ID = v.GetStringValue()
		}
		m.Content = p[payloadContent].GetStringValue()
		m.Metadata = Metadata{
			TypeTag:       p[payloadTypeTag].GetStringValue(),
			SequenceIndex: int(p[payloadSequence].GetIntegerValue()),
			DocumentID:    p[payloadDocumentID].GetStringValue(),
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (c *qdrantCollection) Count(ctx context.Context) (int, error) {
	n, err := c.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: c.id,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count %q: %w", c.id, err)
	}
	return int(n), nil
}

// Release is a no-op; Qdrant collections carry no client-side handle.
func (c *qdrantCollection) Release() error { return nil }
