package store

import (
	"context"
	"fmt"
)

// Config selects and configures the structured/vector backends.
type Config struct {
	Backend         string // "memory" | "postgres" (structured) combined with qdrant (vector)
	PostgresDSN     string
	QdrantDSN       string
	EmbeddingDim    int // 768, text logs
	PersonVectorDim int // 1536, people
	Metric          string
}

// New constructs a Store from configuration. "memory" yields the in-process
// test-double backends (as does an empty value); "postgres" wires Postgres
// (structured + people trigram metadata) and Qdrant (embedding +
// person-vector KNN); any other value is an error.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return Store{Structured: NewMemoryStructured(), Vector: NewMemoryVector()}, nil
	case "postgres":
		if cfg.PostgresDSN == "" || cfg.QdrantDSN == "" {
			return Store{}, fmt.Errorf("store: postgres backend requires both postgres and qdrant DSNs")
		}
		pool, err := OpenPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return Store{}, fmt.Errorf("store: connect postgres: %w", err)
		}
		structured, err := NewPostgresStructured(ctx, pool)
		if err != nil {
			return Store{}, fmt.Errorf("store: bootstrap observations table: %w", err)
		}
		people, err := NewPostgresPeople(ctx, pool)
		if err != nil {
			return Store{}, fmt.Errorf("store: bootstrap people table: %w", err)
		}
		embDim, personDim := cfg.EmbeddingDim, cfg.PersonVectorDim
		if embDim <= 0 {
			embDim = 768
		}
		if personDim <= 0 {
			personDim = 1536
		}
		vector, err := NewQdrantVector(ctx, cfg.QdrantDSN, people, embDim, personDim, cfg.Metric)
		if err != nil {
			return Store{}, fmt.Errorf("store: connect qdrant: %w", err)
		}
		return Store{Structured: structured, Vector: vector}, nil
	default:
		return Store{}, fmt.Errorf("store: unsupported backend %q", cfg.Backend)
	}
}
