// Package orchestrator implements the request-scoped Orchestrator + Agents
// (C5): a Retrieval Agent and an Execution Agent, each a thin ToolCallLoop
// wrapper, driven by a bounded retrieve-execute-re-retrieve loop.
package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"droidmind/internal/devicedriver"
	"droidmind/internal/llm"
	"droidmind/internal/retriever"
)

// RetrievalState is appended to the user request as a JSON suffix on
// re-retrieval, so the Retrieval Agent can see what has already been tried
// and why the prior execution attempt failed.
type RetrievalState struct {
	Iteration              int                 `json:"iteration"`
	PreviousQueries        []RetrievalLogEntry `json:"previous_queries"`
	ExecutionFailureReason string              `json:"execution_failure_reason"`
	MissingInformation     string              `json:"missing_information"`
}

// Result is the Orchestrator's return value: the last-seen execution
// result, plus Exhausted when max_iterations was reached without success
// (Open Question 5 -- the spec does not distinguish this from any other
// failed return, but callers that want to tell them apart can).
type Result struct {
	ExecutionLLMOutput
	Exhausted bool `json:"exhausted"`
}

// Config bounds one Orchestrator run.
type Config struct {
	MaxIterations     int // default 3
	RetrievalMaxTurns int // default 5
	ExecutionMaxTurns int // default 5
}

// Orchestrator is request-scoped: construct one per HTTP request, run it
// once, discard it. Its two agents share the process-wide LLM provider and
// device driver by reference.
type Orchestrator struct {
	retrieval *RetrievalAgent
	execution *ExecutionAgent
	retriever *retriever.Retriever
	cfg       Config
}

func New(provider llm.Provider, retrievalModel, executionModel string, driver devicedriver.Driver, r *retriever.Retriever, cfg Config) *Orchestrator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 3
	}
	return &Orchestrator{
		retrieval: NewRetrievalAgent(provider, retrievalModel, cfg.RetrievalMaxTurns),
		execution: NewExecutionAgent(provider, executionModel, driver, cfg.ExecutionMaxTurns),
		retriever: r,
		cfg:       cfg,
	}
}

// Run drives the retrieve -> execute -> re-retrieve loop described in
// section 4.5: it never returns an error on execution failure, only on
// agent infrastructure failures (max_turns exhausted, unknown tool,
// structured-output wrapping is handled inside the agents themselves).
func (o *Orchestrator) Run(ctx context.Context, userRequest string) (Result, error) {
	var allPrevQueries []RetrievalLogEntry

	retrieval, err := o.retrieval.Run(ctx, o.retriever, userRequest)
	if err != nil {
		return Result{}, err
	}
	allPrevQueries = append(allPrevQueries, retrieval.RetrievalLog...)
	contextSummary := retrieval.ContextSummary

	var last ExecutionLLMOutput
	for iteration := 1; iteration <= o.cfg.MaxIterations; iteration++ {
		result, err := o.execution.Run(ctx, userRequest, contextSummary)
		if err != nil {
			return Result{}, err
		}
		last = result
		if result.Success {
			return Result{ExecutionLLMOutput: last}, nil
		}

		if iteration == o.cfg.MaxIterations {
			break
		}

		state := RetrievalState{
			Iteration:              iteration,
			PreviousQueries:        allPrevQueries,
			ExecutionFailureReason: firstNonEmptyPtr(result.FailureReason, "Unknown"),
			MissingInformation:     firstNonEmptyPtr(result.MissingInformation, "Unknown"),
		}
		stateJSON, err := json.Marshal(state)
		if err != nil {
			log.Error().Err(err).Msg("orchestrator: marshal retrieval_state failed, re-retrieving without it")
			stateJSON = []byte("{}")
		}

		retrieval, err = o.retrieval.Run(ctx, o.retriever, userRequest+"\n\nretrieval_state:\n"+string(stateJSON))
		if err != nil {
			return Result{}, err
		}
		allPrevQueries = append(allPrevQueries, retrieval.RetrievalLog...)
		contextSummary = retrieval.ContextSummary
	}

	return Result{ExecutionLLMOutput: last, Exhausted: true}, nil
}

func firstNonEmptyPtr(s *string, fallback string) string {
	if s != nil && *s != "" {
		return *s
	}
	return fallback
}
