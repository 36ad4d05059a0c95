// Package retriever implements the Memory Retriever (C3): a read-side
// facade over the Memory Store with semantically named lookups and a
// two-tier cache for the expensive semantic-similarity path.
package retriever

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"droidmind/internal/embedding"
	"droidmind/internal/memory"
	"droidmind/internal/store"
)

const defaultSemanticSimilarityThreshold = 0.70

// Config sizes the Retriever's caches and tunes the semantic-cache hit
// threshold. Zero values fall back to the spec-fixed defaults.
type Config struct {
	ExactCacheCapacity    int     // default 50
	SemanticCacheCapacity int     // default 10
	NameCacheCapacity     int     // default 50
	SemanticThreshold     float64 // default 0.70
}

// Retriever is single-owner: one instance is either request-scoped or
// accessed from a single cooperative scheduler. Its caches are still
// mutex-protected so the type is safe to share across goroutines if a
// caller chooses to.
type Retriever struct {
	structured store.Structured
	vector     store.Vector
	embedder   embedding.Provider

	mu                sync.Mutex
	exactCache        *lruCache[[]string]
	semanticDeq       *semanticCache
	nameCache         *lruCache[[]store.PersonMatch]
	semanticThreshold float64
}

func New(structured store.Structured, vector store.Vector, embedder embedding.Provider, cfg Config) *Retriever {
	if cfg.ExactCacheCapacity <= 0 {
		cfg.ExactCacheCapacity = 50
	}
	if cfg.SemanticCacheCapacity <= 0 {
		cfg.SemanticCacheCapacity = 10
	}
	if cfg.NameCacheCapacity <= 0 {
		cfg.NameCacheCapacity = 50
	}
	if cfg.SemanticThreshold <= 0 {
		cfg.SemanticThreshold = defaultSemanticSimilarityThreshold
	}
	return &Retriever{
		structured:        structured,
		vector:            vector,
		embedder:          embedder,
		exactCache:        newLRUCache[[]string](cfg.ExactCacheCapacity),
		semanticDeq:       newSemanticCache(cfg.SemanticCacheCapacity),
		nameCache:         newLRUCache[[]store.PersonMatch](cfg.NameCacheCapacity),
		semanticThreshold: cfg.SemanticThreshold,
	}
}

func (r *Retriever) GetPeopleRelationships(ctx context.Context, personID string, limit int) ([]memory.Observation, error) {
	peopleType := memory.MemoryTypeLongTermPeople
	filter := store.StructuredFilter{MemoryType: &peopleType}
	if personID != "" {
		filter.TargetEntityID = personID
	}
	return r.structured.Lookup(ctx, filter, defaultLimit(limit, 10))
}

func (r *Retriever) GetLongTermPreferences(ctx context.Context, sourceAppID string, limit int) ([]memory.Observation, error) {
	t := memory.MemoryTypeLongTermPreferences
	filter := store.StructuredFilter{MemoryType: &t, SourceEntityID: sourceAppID}
	return r.structured.Lookup(ctx, filter, defaultLimit(limit, 10))
}

func (r *Retriever) GetShortTermPreferences(ctx context.Context, sourceAppID string, limit int) ([]memory.Observation, error) {
	t := memory.MemoryTypeShortTermPreferences
	filter := store.StructuredFilter{MemoryType: &t, SourceEntityID: sourceAppID}
	return r.structured.Lookup(ctx, filter, defaultLimit(limit, 10))
}

func (r *Retriever) GetRecentContent(ctx context.Context, sourceID, contentID string, limit int) ([]memory.Observation, error) {
	t := memory.MemoryTypeShortTermContent
	filter := store.StructuredFilter{MemoryType: &t, SourceEntityID: sourceID}
	rows, err := r.structured.Lookup(ctx, filter, defaultLimit(limit, 10))
	if err != nil || contentID == "" {
		return rows, err
	}
	filtered := rows[:0]
	for _, row := range rows {
		if row.ContentID == contentID {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

func (r *Retriever) GetAllObservationsAboutEntity(ctx context.Context, entityID, entityType string, limit int) ([]memory.Observation, error) {
	rows, err := r.structured.ByEntity(ctx, entityID, defaultLimit(limit, 20))
	if err != nil || entityType == "" {
		return rows, err
	}
	filtered := rows[:0]
	for _, row := range rows {
		if row.TargetEntityType == entityType || row.SourceEntityType == entityType {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

func (r *Retriever) SearchMemories(ctx context.Context, query string, memoryType *memory.MemoryType, limit int) ([]store.ScoredObservation, error) {
	return r.structured.Search(ctx, query, memoryType, defaultLimit(limit, 10))
}

func (r *Retriever) GetTopRelevantMemories(ctx context.Context, memoryType *memory.MemoryType, limit int) ([]memory.Observation, error) {
	return r.structured.TopByImportanceRecurrence(ctx, memoryType, defaultLimit(limit, 10))
}

func (r *Retriever) GetEmbeddingForObservation(ctx context.Context, observationID string) (memory.TextEmbeddingLog, error) {
	return r.vector.GetEmbedding(ctx, observationID)
}

func (r *Retriever) GetPersonByID(ctx context.Context, personID string) (memory.InterpersonalRelationship, error) {
	return r.vector.GetPersonByID(ctx, personID)
}

func (r *Retriever) FindSimilarPersonRelationships(ctx context.Context, query string, limit int) ([]store.PersonVectorHit, error) {
	vecs, err := r.embedder.Embed(ctx, []string{query}, embedding.TaskRetrievalQuery)
	if err != nil {
		log.Warn().Err(err).Msg("retriever: embedding failed for find_similar_person_relationships, returning empty")
		return nil, nil
	}
	return r.vector.FindSimilarPersonRelationships(ctx, vecs[0], defaultLimit(limit, 5))
}

// FindPersonByName has its own exact-match LRU (capacity 50) keyed on the
// lowercased-trimmed name; there is no semantic tier for this path.
func (r *Retriever) FindPersonByName(ctx context.Context, name string, threshold float64, limit int) ([]store.PersonMatch, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	if threshold <= 0 {
		threshold = 0.3
	}
	key := strings.ToLower(strings.TrimSpace(name))

	r.mu.Lock()
	if cached, ok := r.nameCache.Get(key); ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	matches, err := r.vector.FindPersonByName(ctx, name, threshold, defaultLimit(limit, 10))
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.nameCache.Put(key, matches)
	r.mu.Unlock()
	return matches, nil
}

// FindSemanticallySimilar embeds the query (task type RETRIEVAL_QUERY) and
// searches the vector backend, fronted by an exact-match LRU and a
// newest-first-scanned semantic FIFO. disableCache bypasses both tiers.
func (r *Retriever) FindSemanticallySimilar(ctx context.Context, query string, limit int, metric string, disableCache bool) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	if metric == "" {
		metric = "cosine"
	}

	if !disableCache {
		r.mu.Lock()
		if cached, ok := r.exactCache.Get(query); ok {
			r.mu.Unlock()
			return cached, nil
		}
		r.mu.Unlock()
	}

	vecs, err := r.embedder.Embed(ctx, []string{query}, embedding.TaskRetrievalQuery)
	if err != nil {
		log.Warn().Err(err).Msg("retriever: embedding failed for find_semantically_similar, returning empty")
		return nil, nil
	}
	queryVector := vecs[0]

	if !disableCache {
		r.mu.Lock()
		if results, ok := r.semanticDeq.find(queryVector, r.semanticThreshold, store.CosineSimilarity); ok {
			r.exactCache.Put(query, results)
			r.mu.Unlock()
			return results, nil
		}
		r.mu.Unlock()
	}

	hits, err := r.vector.SimilaritySearch(ctx, queryVector, limit, metric)
	if err != nil {
		return nil, err
	}
	results := make([]string, len(hits))
	for i, h := range hits {
		results[i] = h.Text
	}

	if !disableCache {
		r.mu.Lock()
		r.exactCache.Put(query, results)
		r.semanticDeq.push(queryVector, results)
		r.mu.Unlock()
	}
	return results, nil
}

func defaultLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}
