// Package httpapi exposes the external HTTP surface (section 6): tracker
// lifecycle/inspection routes, the retrieval and execution test routes, the
// full orchestrated-execution route, and a composite health check.
package httpapi

import (
	"errors"
	"net/http"

	"droidmind/internal/devicedriver"
	"droidmind/internal/embedding"
	"droidmind/internal/llm"
	"droidmind/internal/orchestrator"
	"droidmind/internal/retriever"
	"droidmind/internal/store"
	"droidmind/internal/tracker"
)

// errBadPollInterval is returned when poll_interval is supplied but not
// strictly positive (section 8 boundary behavior: "reject at the HTTP
// layer").
var errBadPollInterval = errors.New("httpapi: poll_interval must be > 0.0")

// Server wires the HTTP surface to the core components. It holds no
// request-scoped state of its own -- the Orchestrator is constructed fresh
// per request (section 5: "Orchestrator state... request-scoped; no
// sharing").
type Server struct {
	mux *http.ServeMux

	tracker  *tracker.Tracker
	store    store.Store
	retr     *retriever.Retriever
	driver   devicedriver.Driver
	embedder embedding.Provider
	provider llm.Provider

	retrievalModel string
	executionModel string
	orchCfg        orchestrator.Config

	// PingLLM gates the optional LLM ping leg of the health check -- a real
	// LLM ping costs a token-billed round trip, so deployments may disable
	// it (config: HEALTH_CHECK_LLM).
	PingLLM bool
}

// NewServer wires the HTTP surface to already-constructed core components.
func NewServer(
	trk *tracker.Tracker,
	st store.Store,
	retr *retriever.Retriever,
	driver devicedriver.Driver,
	embedder embedding.Provider,
	provider llm.Provider,
	retrievalModel, executionModel string,
	orchCfg orchestrator.Config,
) *Server {
	s := &Server{
		mux:            http.NewServeMux(),
		tracker:        trk,
		store:          st,
		retr:           retr,
		driver:         driver,
		embedder:       embedder,
		provider:       provider,
		retrievalModel: retrievalModel,
		executionModel: executionModel,
		orchCfg:        orchCfg,
	}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /monitoring/background-tasks/start", s.handleStartTracker)
	s.mux.HandleFunc("POST /monitoring/background-tasks/stop", s.handleStopTracker)
	s.mux.HandleFunc("GET /monitoring/background-tasks/get-observations", s.handleGetObservations)
	s.mux.HandleFunc("GET /monitoring/background-tasks/get-recent-state-changes", s.handleGetStateChanges)
	s.mux.HandleFunc("GET /monitoring/background-tasks/get-state-snapshots", s.handleGetStateSnapshots)
	s.mux.HandleFunc("GET /monitoring/background-tasks/monitoring-overview", s.handleMonitoringOverview)

	s.mux.HandleFunc("POST /execution-test/orchestrated-execution-test", s.handleOrchestratedExecutionTest)
	s.mux.HandleFunc("POST /execution-test/no-context-execution-test", s.handleNoContextExecutionTest)
	s.mux.HandleFunc("POST /execution-test/direct-droidrun-execution-test", s.handleDirectExecutionTest)

	s.mux.HandleFunc("POST /retrieval-test/retrieval-test", s.handleRetrievalTest)
	s.mux.HandleFunc("POST /retrieval-test/semantic-search", s.handleSemanticSearch)
	s.mux.HandleFunc("POST /retrieval-test/find-person-by-name", s.handleFindPersonByName)

	s.mux.HandleFunc("GET /health", s.handleHealth)
}
