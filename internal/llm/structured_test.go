package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type exampleOutput struct {
	Summary string `json:"summary"`
}

func TestGenerateStructured_ParsesOnFirstTry(t *testing.T) {
	t.Parallel()
	provider := &FakeProvider{Responses: []Message{{Role: "assistant", Content: `{"summary":"hi"}`}}}
	result := GenerateStructured[exampleOutput](context.Background(), provider, nil, "model", 2)
	require.True(t, result.IsOk())
	require.Equal(t, "hi", result.Value.Summary)
}

func TestGenerateStructured_StripsCodeFences(t *testing.T) {
	t.Parallel()
	provider := &FakeProvider{Responses: []Message{{Role: "assistant", Content: "```json\n{\"summary\":\"fenced\"}\n```"}}}
	result := GenerateStructured[exampleOutput](context.Background(), provider, nil, "model", 0)
	require.True(t, result.IsOk())
	require.Equal(t, "fenced", result.Value.Summary)
}

func TestGenerateStructured_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	provider := &FakeProvider{Responses: []Message{
		{Role: "assistant", Content: "not json"},
		{Role: "assistant", Content: `{"summary":"recovered"}`},
	}}
	result := GenerateStructured[exampleOutput](context.Background(), provider, nil, "model", 1)
	require.True(t, result.IsOk())
	require.Equal(t, "recovered", result.Value.Summary)
}

func TestGenerateStructured_ExhaustsRetriesReturnsRetryableErr(t *testing.T) {
	t.Parallel()
	provider := &FakeProvider{Responses: []Message{
		{Role: "assistant", Content: "not json"},
		{Role: "assistant", Content: "still not json"},
	}}
	result := GenerateStructured[exampleOutput](context.Background(), provider, nil, "model", 1)
	require.True(t, result.IsRetryable())
}

func TestGenerateStructured_ChatErrorIsFatal(t *testing.T) {
	t.Parallel()
	provider := &FakeProvider{Err: context.DeadlineExceeded}
	result := GenerateStructured[exampleOutput](context.Background(), provider, nil, "model", 2)
	require.True(t, result.IsFatal())
}
