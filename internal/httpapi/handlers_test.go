package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"droidmind/internal/devicedriver"
	"droidmind/internal/embedding"
	"droidmind/internal/llm"
	"droidmind/internal/memory"
	"droidmind/internal/orchestrator"
	"droidmind/internal/retriever"
	"droidmind/internal/store"
	"droidmind/internal/tracker"
)

func newTestServer(provider llm.Provider, driver devicedriver.Driver) (*Server, *tracker.Tracker) {
	structured := store.NewMemoryStructured()
	vector := store.NewMemoryVector()
	embedder := embedding.NewFake(8)
	r := retriever.New(structured, vector, embedder, retriever.Config{})
	inf := tracker.NewInferencer(provider, "test-model")
	gen := tracker.NewEmbeddingGenerator(embedder, vector)
	trk := tracker.New(driver, structured, inf, gen, tracker.Config{})

	st := store.Store{Structured: structured, Vector: vector}
	srv := NewServer(trk, st, r, driver, embedder, provider, "test-model", "test-model", orchestrator.Config{MaxIterations: 3})
	return srv, trk
}

func TestHandleStartStopTracker(t *testing.T) {
	srv, trk := newTestServer(&llm.FakeProvider{}, devicedriver.NewFakeDriver(memory.UIState{}))

	req := httptest.NewRequest(http.MethodPost, "/monitoring/background-tasks/start", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/monitoring/background-tasks/stop", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, trk.IsRunning())
}

func TestHandleStartTracker_BadPollIntervalRejected(t *testing.T) {
	srv, _ := newTestServer(&llm.FakeProvider{}, devicedriver.NewFakeDriver())

	req := httptest.NewRequest(http.MethodPost, "/monitoring/background-tasks/start?poll_interval=0", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMonitoringOverview_ReflectsDequeSizes(t *testing.T) {
	srv, trk := newTestServer(&llm.FakeProvider{}, devicedriver.NewFakeDriver())
	trk.Replay(context.Background(), []memory.UIStateSnapshot{{Package: "com.a", Activity: "Main", DenoisedText: "x"}})

	req := httptest.NewRequest(http.MethodGet, "/monitoring/background-tasks/monitoring-overview", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, float64(1), body["snapshots"])
	require.Equal(t, false, body["running"])
	require.Equal(t, float64(0), body["poll_interval"])
}

func TestHandleMonitoringOverview_ReflectsRunningAndPollInterval(t *testing.T) {
	srv, trk := newTestServer(&llm.FakeProvider{}, devicedriver.NewFakeDriver(memory.UIState{}))
	require.NoError(t, trk.Start(2*time.Second))
	defer trk.Stop()

	req := httptest.NewRequest(http.MethodGet, "/monitoring/background-tasks/monitoring-overview", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["running"])
	require.Equal(t, float64(2), body["poll_interval"])
}

func TestHandleOrchestratedExecutionTest_S1BatteryCheck(t *testing.T) {
	provider := &llm.FakeProvider{Responses: []llm.Message{
		{Content: `{"context_summary":"no relevant context","inferred_intent":"check battery","reasoning":"r","unresolved":[],"retrieval_log":[]}`},
		{Content: `{"success":true,"result_summary":"battery is at 80%"}`},
	}}
	srv, _ := newTestServer(provider, devicedriver.NewFakeDriver())

	body, _ := json.Marshal(orchestratedExecutionRequest{UserRequest: "Check my battery level"})
	req := httptest.NewRequest(http.MethodPost, "/execution-test/orchestrated-execution-test", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out orchestrator.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.True(t, out.Success)
	require.Contains(t, out.ResultSummary, "battery")
}

func TestHandleFindPersonByName_EmptyNameReturnsEmptyMatches(t *testing.T) {
	srv, _ := newTestServer(&llm.FakeProvider{}, devicedriver.NewFakeDriver())

	body, _ := json.Marshal(findPersonByNameRequest{Name: "", Threshold: 0.3})
	req := httptest.NewRequest(http.MethodPost, "/retrieval-test/find-person-by-name", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Empty(t, out["matches"])
}

func TestHandleHealth_AllOk(t *testing.T) {
	srv, _ := newTestServer(&llm.FakeProvider{}, devicedriver.NewFakeDriver())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, true, out["healthy"])
}
