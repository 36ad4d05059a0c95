package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"droidmind/internal/embedding"
	"droidmind/internal/memory"
	"droidmind/internal/store"
)

func newTestRetriever(t *testing.T) (*Retriever, store.Structured, store.Vector, *embedding.Fake) {
	t.Helper()
	structured := store.NewMemoryStructured()
	vector := store.NewMemoryVector()
	fake := embedding.NewFake(4)
	r := New(structured, vector, fake, Config{})
	return r, structured, vector, fake
}

func TestFindPersonByName_EmptyReturnsEmpty(t *testing.T) {
	t.Parallel()
	r, _, vector, _ := newTestRetriever(t)
	require.NoError(t, vector.UpsertPerson(context.Background(), memory.InterpersonalRelationship{ID: "p1", FullName: "Sarah Smith"}))

	matches, err := r.FindPersonByName(context.Background(), "", 0.3, 10)
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestFindPersonByName_SecondCallIsCacheHit(t *testing.T) {
	t.Parallel()
	r, _, vector, _ := newTestRetriever(t)
	require.NoError(t, vector.UpsertPerson(context.Background(), memory.InterpersonalRelationship{ID: "p1", FullName: "Sarah Smith"}))

	first, err := r.FindPersonByName(context.Background(), "Sarah Smith", 0.3, 10)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := r.FindPersonByName(context.Background(), "sarah smith", 0.3, 10)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestFindSemanticallySimilar_SecondCallHitsExactCacheNotVectorStore(t *testing.T) {
	t.Parallel()
	r, _, vector, fake := newTestRetriever(t)
	mv := vector.(*store.MemoryVector)
	require.NoError(t, mv.UpsertEmbedding(context.Background(), memory.TextEmbeddingLog{ID: "o1", ObservationID: "o1", ObservationText: "fitness content", EmbeddingVector: []float32{1, 0, 0, 0}}))

	first, err := r.FindSemanticallySimilar(context.Background(), "fitness content", 5, "cosine", false)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	require.Equal(t, 1, fake.Calls)

	second, err := r.FindSemanticallySimilar(context.Background(), "fitness content", 5, "cosine", false)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, fake.Calls, "exact-cache hit must not call the embedding provider again")
}

func TestFindSemanticallySimilar_DisableCacheBypassesBothTiers(t *testing.T) {
	t.Parallel()
	r, _, vector, fake := newTestRetriever(t)
	mv := vector.(*store.MemoryVector)
	require.NoError(t, mv.UpsertEmbedding(context.Background(), memory.TextEmbeddingLog{ID: "o1", ObservationID: "o1", ObservationText: "fitness content", EmbeddingVector: []float32{1, 0, 0, 0}}))

	_, err := r.FindSemanticallySimilar(context.Background(), "fitness content", 5, "cosine", true)
	require.NoError(t, err)
	_, err = r.FindSemanticallySimilar(context.Background(), "fitness content", 5, "cosine", true)
	require.NoError(t, err)
	require.Equal(t, 2, fake.Calls, "disable_cache must bypass caches entirely")
}

func TestFindSemanticallySimilar_EmbeddingFailureReturnsEmptyNotError(t *testing.T) {
	t.Parallel()
	r, _, _, fake := newTestRetriever(t)
	fake.FailErr = context.DeadlineExceeded

	results, err := r.FindSemanticallySimilar(context.Background(), "whatever", 5, "cosine", false)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestLRUCache_EvictsOldestAtCapacity(t *testing.T) {
	t.Parallel()
	c := newLRUCache[int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	_, ok := c.Get("a")
	require.False(t, ok, "oldest entry must be evicted once capacity is exceeded")
	_, ok = c.Get("b")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
}

func TestSemanticCache_ScansNewestFirst(t *testing.T) {
	t.Parallel()
	c := newSemanticCache(10)
	c.push([]float32{1, 0}, []string{"old"})
	c.push([]float32{1, 0}, []string{"new"})

	results, ok := c.find([]float32{1, 0}, 0.70, store.CosineSimilarity)
	require.True(t, ok)
	require.Equal(t, []string{"new"}, results)
}

func TestSemanticCache_EvictsOldestAtCapacity(t *testing.T) {
	t.Parallel()
	c := newSemanticCache(2)
	c.push([]float32{1, 0}, []string{"first"})
	c.push([]float32{0, 1}, []string{"second"})
	c.push([]float32{0, 0, 1}, []string{"third"})

	require.Equal(t, 2, c.Len())
	_, ok := c.find([]float32{1, 0}, 0.99, store.CosineSimilarity)
	require.False(t, ok, "first entry must have been evicted")
}
