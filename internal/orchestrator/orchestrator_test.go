package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"droidmind/internal/devicedriver"
	"droidmind/internal/embedding"
	"droidmind/internal/llm"
	"droidmind/internal/retriever"
	"droidmind/internal/store"
)

func newTestOrchestrator(provider llm.Provider, driver devicedriver.Driver, cfg Config) *Orchestrator {
	structured := store.NewMemoryStructured()
	vector := store.NewMemoryVector()
	r := retriever.New(structured, vector, embedding.NewFake(8), retriever.Config{})
	return New(provider, "test-model", "test-model", driver, r, cfg)
}

// TestRun_FirstExecutionSucceedsNoRetries models S1: a single retrieval
// pass followed by one successful execution call ends the loop immediately.
func TestRun_FirstExecutionSucceedsNoRetries(t *testing.T) {
	provider := &llm.FakeProvider{Responses: []llm.Message{
		{Content: `{"context_summary":"no relevant context","inferred_intent":"check battery","reasoning":"r","unresolved":[],"retrieval_log":[]}`},
		{Content: `{"success":true,"result_summary":"battery is at 80%"}`},
	}}
	driver := devicedriver.NewFakeDriver()
	o := newTestOrchestrator(provider, driver, Config{MaxIterations: 3})

	result, err := o.Run(context.Background(), "Check my battery level")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.False(t, result.Exhausted)
	require.Contains(t, result.ResultSummary, "battery")
}

// TestRun_ExhaustsIterationsOnRepeatedFailure models S3: every execution
// attempt fails, so the loop re-retrieves twice and returns after the third
// (final) execution attempt with Exhausted=true, never re-retrieving past
// the final iteration.
func TestRun_ExhaustsIterationsOnRepeatedFailure(t *testing.T) {
	failing := `{"success":false,"result_summary":"could not identify recipient","failure_reason":"Ambiguous recipient: 'him'","missing_information":"which contact 'him' refers to"}`
	retrieval := `{"context_summary":"no relevant context","inferred_intent":"call someone","reasoning":"r","unresolved":["who is him"],"retrieval_log":[{"tool":"find_person_by_name","params":{"name":"him"},"result_summary":"no match"}]}`

	provider := &llm.FakeProvider{Responses: []llm.Message{
		{Content: retrieval},
		{Content: failing},
		{Content: retrieval},
		{Content: failing},
		{Content: retrieval},
		{Content: failing},
	}}
	driver := devicedriver.NewFakeDriver()
	o := newTestOrchestrator(provider, driver, Config{MaxIterations: 3})

	result, err := o.Run(context.Background(), "Call him back")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.True(t, result.Exhausted)
	require.NotEmpty(t, *result.MissingInformation)
	require.Equal(t, 6, provider.CallCount, "3 retrieval calls + 3 execution calls")
}

func TestRun_RetrievalAgentParseFailureFallsBackToRawText(t *testing.T) {
	provider := &llm.FakeProvider{Responses: []llm.Message{
		{Content: "the user has no notable prior context"},
		{Content: `{"success":true,"result_summary":"done"}`},
	}}
	o := newTestOrchestrator(provider, devicedriver.NewFakeDriver(), Config{MaxIterations: 1})

	result, err := o.Run(context.Background(), "Do something")
	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestRun_ExecutionAgentParseFailureWrapsAsFailure(t *testing.T) {
	provider := &llm.FakeProvider{Responses: []llm.Message{
		{Content: `{"context_summary":"c","inferred_intent":"i","reasoning":"r","unresolved":[],"retrieval_log":[]}`},
		{Content: "not json at all"},
	}}
	o := newTestOrchestrator(provider, devicedriver.NewFakeDriver(), Config{MaxIterations: 1})

	result, err := o.Run(context.Background(), "Do something")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.True(t, result.Exhausted)
	require.Equal(t, "not json at all", result.ResultSummary)
}

// TestRun_ExecutionAgentInvokesDeviceThroughToolCall exercises the actual
// tool-call dispatch path: the model requests execute_command, the
// executor forwards it to the device driver, and the tool result is
// appended before the model's final structured response.
func TestRun_ExecutionAgentInvokesDeviceThroughToolCall(t *testing.T) {
	provider := &llm.FakeProvider{Responses: []llm.Message{
		{Content: `{"context_summary":"no relevant context","inferred_intent":"check battery","reasoning":"r","unresolved":[],"retrieval_log":[]}`},
		{ToolCalls: []llm.ToolCall{{Name: "execute_command", ID: "call-1", Args: []byte(`{"enriched_command":"report battery level"}`)}}},
		{Content: `{"success":true,"result_summary":"battery is at 80%"}`},
	}}
	driver := devicedriver.NewFakeDriver()
	driver.ExecuteResult = devicedriver.RawExecutionResult{Success: true, Reason: "battery is at 80%"}
	o := newTestOrchestrator(provider, driver, Config{MaxIterations: 1})

	result, err := o.Run(context.Background(), "Check my battery level")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, driver.Calls, 1)
	require.Equal(t, "report battery level", driver.Calls[0].Text)
}

func TestRun_RetrievalInfrastructureFailurePropagatesAsError(t *testing.T) {
	provider := &llm.FakeProvider{Err: context.DeadlineExceeded}
	o := newTestOrchestrator(provider, devicedriver.NewFakeDriver(), Config{MaxIterations: 3})

	_, err := o.Run(context.Background(), "Check my battery level")
	require.Error(t, err)
}
