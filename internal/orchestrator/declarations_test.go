package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"droidmind/internal/embedding"
	"droidmind/internal/memory"
	"droidmind/internal/retriever"
	"droidmind/internal/store"
)

func TestRetrievalDeclarations_CoversAllRetrieverMethods(t *testing.T) {
	structured := store.NewMemoryStructured()
	vector := store.NewMemoryVector()
	r := retriever.New(structured, vector, embedding.NewFake(8), retriever.Config{})

	decls, executors := retrievalDeclarations(r)
	require.Len(t, decls, 12)
	require.Len(t, executors, 12)
	for _, d := range decls {
		_, ok := executors[d.Name]
		require.True(t, ok, "declaration %s has no matching executor", d.Name)
	}
}

func TestSearchMemoriesExecutor_ReachesStructuredStore(t *testing.T) {
	structured := store.NewMemoryStructured()
	vector := store.NewMemoryVector()
	require.NoError(t, structured.Insert(context.Background(), memory.Observation{
		ID: "o1", MemoryType: memory.MemoryTypeShortTermContent, Node: "browses fitness content daily",
	}))
	r := retriever.New(structured, vector, embedding.NewFake(8), retriever.Config{})

	_, executors := retrievalDeclarations(r)
	result, err := executors["search_memories"](context.Background(), []byte(`{"query":"fitness"}`))
	require.NoError(t, err)
	require.Contains(t, string(result), "fitness content daily")
}

func TestFindPersonByNameExecutor_EmptyNameReturnsEmpty(t *testing.T) {
	structured := store.NewMemoryStructured()
	vector := store.NewMemoryVector()
	r := retriever.New(structured, vector, embedding.NewFake(8), retriever.Config{})

	_, executors := retrievalDeclarations(r)
	result, err := executors["find_person_by_name"](context.Background(), []byte(`{"name":""}`))
	require.NoError(t, err)
	require.Equal(t, "null", string(result))
}

func TestJSONExecutor_BadArgsReturnsError(t *testing.T) {
	structured := store.NewMemoryStructured()
	vector := store.NewMemoryVector()
	r := retriever.New(structured, vector, embedding.NewFake(8), retriever.Config{})

	_, executors := retrievalDeclarations(r)
	_, err := executors["search_memories"](context.Background(), []byte(`not json`))
	require.Error(t, err)
}
