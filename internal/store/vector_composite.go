package store

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"droidmind/internal/memory"
)

// QdrantVector implements Vector by combining Qdrant for KNN over
// embeddings and person-relationship vectors with Postgres for the
// pg_trgm-backed fuzzy name match and person row metadata. The spec's
// vector backend does double duty (embedding KNN + trigram name search);
// Qdrant has no trigram primitive and Postgres's pg_trgm has no practical
// substitute for HNSW/cosine at scale, so the two are composed here rather
// than forcing one engine to do both.
type QdrantVector struct {
	client      *qdrant.Client
	embeddings  *qdrantCollection
	peopleVec   *qdrantCollection
	people      *PostgresPeople
}

// NewQdrantVector dials Qdrant, ensures the two collections exist (768 dims
// for observation embeddings, 1536 dims for person relationship vectors per
// §6), and wires in the Postgres people store for trigram search.
func NewQdrantVector(ctx context.Context, dsn string, people *PostgresPeople, embeddingDim, personDim int, metric string) (*QdrantVector, error) {
	client, err := dialQdrant(dsn)
	if err != nil {
		return nil, err
	}
	embeddings, err := newQdrantCollection(ctx, client, "observation_embeddings", embeddingDim, metric)
	if err != nil {
		client.Close()
		return nil, err
	}
	peopleVec, err := newQdrantCollection(ctx, client, "person_relationship_vectors", personDim, metric)
	if err != nil {
		client.Close()
		return nil, err
	}
	return &QdrantVector{client: client, embeddings: embeddings, peopleVec: peopleVec, people: people}, nil
}

func (q *QdrantVector) UpsertEmbedding(ctx context.Context, log memory.TextEmbeddingLog) error {
	return q.embeddings.upsert(ctx, log.ID, log.EmbeddingVector, map[string]string{
		"observation_id": log.ObservationID,
		"text":           log.ObservationText,
	})
}

func (q *QdrantVector) GetEmbedding(ctx context.Context, observationID string) (memory.TextEmbeddingLog, error) {
	md, vec, ok, err := q.embeddings.get(ctx, observationID)
	if err != nil {
		return memory.TextEmbeddingLog{}, err
	}
	if !ok {
		return memory.TextEmbeddingLog{}, ErrNotFound
	}
	return memory.TextEmbeddingLog{
		ID:              observationID,
		ObservationID:   md["observation_id"],
		ObservationText: md["text"],
		EmbeddingVector: vec,
	}, nil
}

func (q *QdrantVector) SimilaritySearch(ctx context.Context, vector []float32, k int, _ string) ([]VectorHit, error) {
	return q.embeddings.search(ctx, vector, k)
}

func (q *QdrantVector) UpsertPerson(ctx context.Context, p memory.InterpersonalRelationship) error {
	if err := q.people.Upsert(ctx, p); err != nil {
		return fmt.Errorf("upsert person metadata: %w", err)
	}
	if len(p.RelationshipVector) == 0 {
		return nil
	}
	return q.peopleVec.upsert(ctx, p.ID, p.RelationshipVector, map[string]string{"full_name": p.FullName})
}

func (q *QdrantVector) GetPersonByID(ctx context.Context, id string) (memory.InterpersonalRelationship, error) {
	return q.people.GetByID(ctx, id)
}

func (q *QdrantVector) FindPersonByName(ctx context.Context, name string, threshold float64, limit int) ([]PersonMatch, error) {
	return q.people.FindByName(ctx, name, threshold, limit)
}

func (q *QdrantVector) FindSimilarPersonRelationships(ctx context.Context, vector []float32, limit int) ([]PersonVectorHit, error) {
	hits, err := q.peopleVec.search(ctx, vector, limit)
	if err != nil {
		return nil, err
	}
	out := make([]PersonVectorHit, 0, len(hits))
	for _, h := range hits {
		person, perr := q.people.GetByID(ctx, h.ObservationID)
		if perr != nil {
			continue
		}
		out = append(out, PersonVectorHit{Person: person, Distance: 1 - h.Score})
	}
	return out, nil
}

func (q *QdrantVector) Ping(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := q.client.HealthCheck(pctx)
	return err
}

func (q *QdrantVector) Close() error {
	return q.client.Close()
}
