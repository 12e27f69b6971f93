package store

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/victorgambert/repoindex/internal/errors"
)

// QdrantStore implements VectorStore backed by a qdrant deployment over
// gRPC. One collection serves the whole deployment; records are scoped by
// the project_id payload field.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

var _ VectorStore = (*QdrantStore)(nil)

// QdrantConfig configures the qdrant connection.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
	Dimensions int
}

// NewQdrantStore connects to qdrant and ensures the collection exists
// with cosine distance over the configured dimension.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: cfg.Host, Port: cfg.Port})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeVectorStore, err)
	}

	s := &QdrantStore{client: client, collection: cfg.Collection}
	if err := s.ensureCollection(ctx, uint64(cfg.Dimensions)); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, dims uint64) error {
	existing, err := s.client.ListCollections(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeVectorStore, err)
	}
	for _, name := range existing {
		if name == s.collection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dims,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return errors.New(errors.ErrCodeVectorStore,
			fmt.Sprintf("create collection %s", s.collection), err)
	}
	return nil
}

// Upsert writes points. Point ids are deterministic, so re-upserting the
// same chunk replaces its vector and payload in place.
func (s *QdrantStore) Upsert(ctx context.Context, points []*Point) error {
	if len(points) == 0 {
		return nil
	}

	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qpoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				"project_id":  p.Payload.ProjectID,
				"index_id":    p.Payload.IndexID,
				"chunk_id":    p.Payload.ChunkID,
				"file_path":   p.Payload.FilePath,
				"chunk_type":  p.Payload.ChunkType,
				"language":    p.Payload.Language,
				"chunk_index": int64(p.Payload.ChunkIndex),
			}),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         qpoints,
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeVectorStore, err)
	}
	return nil
}

// Search runs a scored vector query restricted to one project. The
// project filter is a must condition built here, at the query layer, so
// cross-tenant results are structurally impossible.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, projectID string, topK int, filter map[string]string) ([]*VectorResult, error) {
	must := []*qdrant.Condition{
		qdrant.NewMatch("project_id", projectID),
	}
	for key, value := range filter {
		must = append(must, qdrant.NewMatch(key, value))
	}

	limit := uint64(topK)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		Filter:         &qdrant.Filter{Must: must},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeVectorStore, err)
	}

	results := make([]*VectorResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, &VectorResult{
			ID:      hit.GetId().GetUuid(),
			Score:   hit.GetScore(),
			Payload: payloadFromValues(hit.GetPayload()),
		})
	}
	return results, nil
}

// Delete removes points by id.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeVectorStore, err)
	}
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func payloadFromValues(values map[string]*qdrant.Value) Payload {
	p := Payload{
		ProjectID: values["project_id"].GetStringValue(),
		IndexID:   values["index_id"].GetStringValue(),
		ChunkID:   values["chunk_id"].GetStringValue(),
		FilePath:  values["file_path"].GetStringValue(),
		ChunkType: values["chunk_type"].GetStringValue(),
		Language:  values["language"].GetStringValue(),
	}
	p.ChunkIndex = int(values["chunk_index"].GetIntegerValue())
	return p
}
