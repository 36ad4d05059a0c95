package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	"droidmind/internal/memory"
)

// MemoryStructured is an in-process Structured backend for tests. It trades
// index-backed search for a linear scan, matching the teacher's in-memory
// store convention of trading scale for zero external dependencies.
type MemoryStructured struct {
	mu   sync.Mutex
	rows map[string]memory.Observation
}

func NewMemoryStructured() *MemoryStructured {
	return &MemoryStructured{rows: make(map[string]memory.Observation)}
}

func (m *MemoryStructured) Insert(_ context.Context, o memory.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[o.ID] = o
	return nil
}

func (m *MemoryStructured) Lookup(_ context.Context, filter StructuredFilter, limit int) ([]memory.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]memory.Observation, 0)
	for _, o := range m.rows {
		if filter.MemoryType != nil && o.MemoryType != *filter.MemoryType {
			continue
		}
		if filter.SourceEntityID != "" && o.SourceEntityID != filter.SourceEntityID {
			continue
		}
		if filter.TargetEntityID != "" && o.TargetEntityID != filter.TargetEntityID {
			continue
		}
		out = append(out, o)
	}
	sortByCreatedAtDesc(out)
	return capSlice(out, limit), nil
}

func (m *MemoryStructured) ByEntity(_ context.Context, entityID string, limit int) ([]memory.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]memory.Observation, 0)
	for _, o := range m.rows {
		if o.SourceEntityID == entityID || o.TargetEntityID == entityID {
			out = append(out, o)
		}
	}
	sortByCreatedAtDesc(out)
	return capSlice(out, limit), nil
}

func (m *MemoryStructured) Search(_ context.Context, query string, memoryType *memory.MemoryType, limit int) ([]ScoredObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	out := make([]ScoredObservation, 0)
	for _, o := range m.rows {
		if memoryType != nil && o.MemoryType != *memoryType {
			continue
		}
		node := strings.ToLower(o.Node)
		if !strings.Contains(node, q) {
			continue
		}
		rank := float64(strings.Count(node, q)) / float64(len(strings.Fields(node))+1)
		out = append(out, ScoredObservation{Observation: o, Rank: rank})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank > out[j].Rank })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStructured) TopByImportanceRecurrence(_ context.Context, memoryType *memory.MemoryType, limit int) ([]memory.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]memory.Observation, 0)
	for _, o := range m.rows {
		if memoryType != nil && o.MemoryType != *memoryType {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		return score(out[i]) > score(out[j])
	})
	return capSlice(out, limit), nil
}

func (m *MemoryStructured) Ping(context.Context) error { return nil }

func score(o memory.Observation) float64 {
	r := o.Recurrence
	if r <= 0 {
		r = 1
	}
	return o.Importance * float64(r)
}

func sortByCreatedAtDesc(rows []memory.Observation) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
}

func capSlice[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

// MemoryVector is an in-process Vector backend for tests: brute-force
// cosine scan over embeddings and person vectors, trigram scoring via a
// character-3-gram Jaccard similarity (a dependency-free approximation of
// Postgres's pg_trgm used by the production backend).
type MemoryVector struct {
	mu        sync.Mutex
	embeds    map[string]memory.TextEmbeddingLog
	people    map[string]memory.InterpersonalRelationship
}

func NewMemoryVector() *MemoryVector {
	return &MemoryVector{
		embeds: make(map[string]memory.TextEmbeddingLog),
		people: make(map[string]memory.InterpersonalRelationship),
	}
}

func (m *MemoryVector) UpsertEmbedding(_ context.Context, log memory.TextEmbeddingLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeds[log.ID] = log
	return nil
}

func (m *MemoryVector) GetEmbedding(_ context.Context, observationID string) (memory.TextEmbeddingLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.embeds {
		if e.ObservationID == observationID {
			return e, nil
		}
	}
	return memory.TextEmbeddingLog{}, ErrNotFound
}

func (m *MemoryVector) SimilaritySearch(_ context.Context, vector []float32, k int, _ string) ([]VectorHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hits := make([]VectorHit, 0, len(m.embeds))
	for _, e := range m.embeds {
		hits = append(hits, VectorHit{
			ObservationID: e.ObservationID,
			Text:          e.ObservationText,
			Score:         CosineSimilarity(vector, e.EmbeddingVector),
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return capSlice(hits, k), nil
}

func (m *MemoryVector) UpsertPerson(_ context.Context, p memory.InterpersonalRelationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.people[p.ID] = p
	return nil
}

func (m *MemoryVector) GetPersonByID(_ context.Context, id string) (memory.InterpersonalRelationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.people[id]
	if !ok {
		return memory.InterpersonalRelationship{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryVector) FindPersonByName(_ context.Context, name string, threshold float64, limit int) ([]PersonMatch, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PersonMatch, 0)
	for _, p := range m.people {
		score := trigramSimilarity(name, strings.ToLower(p.FullName))
		if score >= threshold {
			out = append(out, PersonMatch{FullName: p.FullName, Description: p.RelationshipDescription, Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return capSlice(out, limit), nil
}

func (m *MemoryVector) FindSimilarPersonRelationships(_ context.Context, vector []float32, limit int) ([]PersonVectorHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PersonVectorHit, 0, len(m.people))
	for _, p := range m.people {
		sim := CosineSimilarity(vector, p.RelationshipVector)
		out = append(out, PersonVectorHit{Person: p, Distance: 1 - sim})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return capSlice(out, limit), nil
}

func (m *MemoryVector) Ping(context.Context) error { return nil }

// CosineSimilarity computes ⟨a,b⟩ / (‖a‖·‖b‖), returning 0 if either vector
// has zero norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func trigrams(s string) map[string]struct{} {
	s = "  " + s + "  "
	out := make(map[string]struct{})
	for i := 0; i+3 <= len(s); i++ {
		out[s[i:i+3]] = struct{}{}
	}
	return out
}

// trigramSimilarity approximates Postgres's pg_trgm similarity() function:
// a Jaccard coefficient over character 3-grams, used as the in-memory
// backend's stand-in for the production store's trigram index. Short names
// (a typo'd first name, say) rarely share enough 3-grams to clear a normal
// threshold even when they're a near-exact match, so below minTrigramLen
// we fall back to normalized Levenshtein distance instead.
func trigramSimilarity(a, b string) float64 {
	if len(a) < minTrigramLen || len(b) < minTrigramLen {
		return levenshteinSimilarity(a, b)
	}
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

const minTrigramLen = 6

func levenshteinSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	return 1 - float64(dist)/float64(maxLen)
}
