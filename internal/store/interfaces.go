// Package store implements the Memory Store facade (C2): a structured
// backend over typed observation rows and a vector backend over embeddings
// and person rows, each with a Postgres/Qdrant implementation and an
// in-memory test double.
package store

import (
	"context"
	"errors"

	"droidmind/internal/memory"
)

// ErrNotFound is returned by direct-lookup operations that find nothing.
var ErrNotFound = errors.New("store: not found")

// StructuredFilter narrows a Lookup call. A nil pointer/empty string means
// "don't filter on this field".
type StructuredFilter struct {
	MemoryType     *memory.MemoryType
	SourceEntityID string
	TargetEntityID string
}

// ScoredObservation pairs an observation row with its full-text search rank.
type ScoredObservation struct {
	Observation memory.Observation
	Rank        float64
}

// Structured is the structured backend: typed observation rows, entity
// index, and full-text search over node_content.
type Structured interface {
	Insert(ctx context.Context, o memory.Observation) error
	Lookup(ctx context.Context, filter StructuredFilter, limit int) ([]memory.Observation, error)
	ByEntity(ctx context.Context, entityID string, limit int) ([]memory.Observation, error)
	Search(ctx context.Context, query string, memoryType *memory.MemoryType, limit int) ([]ScoredObservation, error)
	TopByImportanceRecurrence(ctx context.Context, memoryType *memory.MemoryType, limit int) ([]memory.Observation, error)
	Ping(ctx context.Context) error
}

// VectorHit is one nearest-neighbor result over the embeddings collection.
type VectorHit struct {
	ObservationID string
	Text          string
	Score         float64
}

// PersonMatch is one trigram fuzzy-match result.
type PersonMatch struct {
	FullName    string
	Description string
	Score       float64
}

// PersonVectorHit is one nearest-neighbor result over person relationship
// vectors.
type PersonVectorHit struct {
	Person   memory.InterpersonalRelationship
	Distance float64
}

// Vector is the vector backend: KNN over observation embeddings plus the
// two person-specific queries (trigram name match, relationship-vector
// search).
type Vector interface {
	UpsertEmbedding(ctx context.Context, log memory.TextEmbeddingLog) error
	GetEmbedding(ctx context.Context, observationID string) (memory.TextEmbeddingLog, error)
	SimilaritySearch(ctx context.Context, vector []float32, k int, metric string) ([]VectorHit, error)

	UpsertPerson(ctx context.Context, p memory.InterpersonalRelationship) error
	GetPersonByID(ctx context.Context, id string) (memory.InterpersonalRelationship, error)
	FindPersonByName(ctx context.Context, name string, threshold float64, limit int) ([]PersonMatch, error)
	FindSimilarPersonRelationships(ctx context.Context, vector []float32, limit int) ([]PersonVectorHit, error)

	Ping(ctx context.Context) error
}

// Store bundles both backends behind a single facade. The orchestration
// core (Retriever, Tracker) depends only on this interface pair, never on
// pgx or qdrant types directly.
type Store struct {
	Structured Structured
	Vector     Vector
}

// Ping checks both backends, returning the first error encountered.
func (s Store) Ping(ctx context.Context) error {
	if err := s.Structured.Ping(ctx); err != nil {
		return err
	}
	return s.Vector.Ping(ctx)
}
