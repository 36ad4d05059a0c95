package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"droidmind/internal/embedding"
	"droidmind/internal/memory"
	"droidmind/internal/store"
)

// EmbeddingGenerator is the Tracker's embedding sub-component: it embeds an
// observation's node text and writes the row to the vector store keyed by
// the observation's own id.
type EmbeddingGenerator struct {
	provider embedding.Provider
	vector   store.Vector
}

func NewEmbeddingGenerator(provider embedding.Provider, vector store.Vector) *EmbeddingGenerator {
	return &EmbeddingGenerator{provider: provider, vector: vector}
}

// GenerateAndSave embeds text (task RETRIEVAL_DOCUMENT) and upserts the
// embedding row. Failures are logged and returned to the caller -- the
// Tracker treats a failed flush as a tolerable loss of that one observation
// from semantic memory, not a fatal condition.
func (g *EmbeddingGenerator) GenerateAndSave(ctx context.Context, observationID, text string) error {
	vectors, err := g.provider.Embed(ctx, []string{text}, embedding.TaskRetrievalDocument)
	if err != nil {
		log.Error().Err(err).Str("observation_id", observationID).Msg("tracker: embed observation failed")
		return fmt.Errorf("tracker: embed observation %s: %w", observationID, err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("tracker: embed observation %s: empty response", observationID)
	}

	row := memory.TextEmbeddingLog{
		ID:              observationID,
		ObservationID:   observationID,
		ObservationText: text,
		EmbeddingVector: vectors[0],
		CreatedAt:       time.Now(),
	}
	if err := g.vector.UpsertEmbedding(ctx, row); err != nil {
		log.Error().Err(err).Str("observation_id", observationID).Msg("tracker: persist observation embedding failed")
		return fmt.Errorf("tracker: persist embedding for %s: %w", observationID, err)
	}
	return nil
}
