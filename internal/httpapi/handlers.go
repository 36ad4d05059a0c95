package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"droidmind/internal/memory"
	"droidmind/internal/orchestrator"
)

func (s *Server) handleStartTracker(w http.ResponseWriter, r *http.Request) {
	var pollInterval time.Duration
	if raw := r.URL.Query().Get("poll_interval"); raw != "" {
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		if seconds <= 0 {
			respondError(w, http.StatusBadRequest, errBadPollInterval)
			return
		}
		pollInterval = time.Duration(seconds * float64(time.Second))
	}
	if err := s.tracker.Start(pollInterval); err != nil {
		respondError(w, http.StatusConflict, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "started"})
}

func (s *Server) handleStopTracker(w http.ResponseWriter, r *http.Request) {
	s.tracker.Stop()
	respondJSON(w, http.StatusOK, map[string]any{"status": "stopped"})
}

func (s *Server) handleGetObservations(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 0)
	memType := memoryTypeQuery(r, "memory_type")
	respondJSON(w, http.StatusOK, map[string]any{"observations": s.tracker.GetObservations(memType, limit)})
}

func (s *Server) handleGetStateChanges(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 0)
	var changeType *memory.ChangeType
	if raw := r.URL.Query().Get("change_type"); raw != "" {
		ct := memory.ChangeType(raw)
		changeType = &ct
	}
	respondJSON(w, http.StatusOK, map[string]any{"changes": s.tracker.GetStateChanges(changeType, limit)})
}

func (s *Server) handleGetStateSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 0)
	respondJSON(w, http.StatusOK, map[string]any{"snapshots": s.tracker.GetStateSnapshots(limit)})
}

func (s *Server) handleMonitoringOverview(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"observations":  len(s.tracker.GetObservations(nil, 0)),
		"changes":       len(s.tracker.GetStateChanges(nil, 0)),
		"snapshots":     len(s.tracker.GetStateSnapshots(0)),
		"running":       s.tracker.IsRunning(),
		"poll_interval": s.tracker.PollInterval().Seconds(),
	})
}

type orchestratedExecutionRequest struct {
	UserRequest string `json:"user_request"`
}

func (s *Server) handleOrchestratedExecutionTest(w http.ResponseWriter, r *http.Request) {
	var req orchestratedExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	orch := orchestrator.New(s.provider, s.retrievalModel, s.executionModel, s.driver, s.retr, s.orchCfg)
	result, err := orch.Run(r.Context(), req.UserRequest)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleNoContextExecutionTest(w http.ResponseWriter, r *http.Request) {
	var req orchestratedExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	agent := orchestrator.NewExecutionAgent(s.provider, s.executionModel, s.driver, s.orchCfg.ExecutionMaxTurns)
	result, err := agent.Run(r.Context(), req.UserRequest, "")
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type directExecutionRequest struct {
	Text      string `json:"text"`
	Reasoning string `json:"reasoning"`
	TimeoutMS int64  `json:"timeout_ms"`
}

func (s *Server) handleDirectExecutionTest(w http.ResponseWriter, r *http.Request) {
	var req directExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.driver.ExecuteCommand(r.Context(), req.Text, req.Reasoning, time.Duration(req.TimeoutMS)*time.Millisecond)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRetrievalTest(w http.ResponseWriter, r *http.Request) {
	var req orchestratedExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	agent := orchestrator.NewRetrievalAgent(s.provider, s.retrievalModel, s.orchCfg.RetrievalMaxTurns)
	result, err := agent.Run(r.Context(), s.retr, req.UserRequest)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type semanticSearchRequest struct {
	Query        string `json:"query"`
	Limit        int    `json:"limit"`
	Metric       string `json:"metric"`
	DisableCache bool   `json:"disable_cache"`
}

func (s *Server) handleSemanticSearch(w http.ResponseWriter, r *http.Request) {
	var req semanticSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	start := time.Now()
	results, err := s.retr.FindSemanticallySimilar(r.Context(), req.Query, req.Limit, req.Metric, req.DisableCache)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"results":    results,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
}

type findPersonByNameRequest struct {
	Name      string  `json:"name"`
	Threshold float64 `json:"threshold"`
	Limit     int     `json:"limit"`
}

func (s *Server) handleFindPersonByName(w http.ResponseWriter, r *http.Request) {
	var req findPersonByNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	matches, err := s.retr.FindPersonByName(r.Context(), req.Name, req.Threshold, req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// handleHealth checks the store and embedding provider unconditionally, the
// device driver's ping endpoint, and the LLM provider only when PingLLM is
// enabled (a real LLM ping is a billed round trip).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]string{}
	healthy := true

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		healthy = false
	} else {
		checks["store"] = "ok"
	}

	if err := s.embedder.Ping(ctx); err != nil {
		checks["embedding"] = err.Error()
		healthy = false
	} else {
		checks["embedding"] = "ok"
	}

	if _, err := s.driver.Ping(ctx); err != nil {
		checks["device"] = err.Error()
		healthy = false
	} else {
		checks["device"] = "ok"
	}

	if s.PingLLM {
		if err := s.provider.Ping(ctx); err != nil {
			checks["llm"] = err.Error()
			healthy = false
		} else {
			checks["llm"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]any{"healthy": healthy, "checks": checks})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("httpapi: encode response failed")
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

func intQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func memoryTypeQuery(r *http.Request, key string) *memory.MemoryType {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	t := memory.MemoryType(raw)
	return &t
}
