package orchestrator

import (
	"context"

	"github.com/rs/zerolog/log"

	"droidmind/internal/llm"
	"droidmind/internal/retriever"
)

// RetrievalLogEntry records one tool invocation made during a single
// Retrieval Agent run, as reported by the model in its final structured
// output (distinct from llm.CallLogEntry, which records the raw wire
// exchange -- this is the model's own summary of what it looked up).
type RetrievalLogEntry struct {
	Tool          string         `json:"tool"`
	Params        map[string]any `json:"params"`
	ResultSummary string         `json:"result_summary"`
}

// MemoryRetrievalOutput is the Retrieval Agent's required final shape.
type MemoryRetrievalOutput struct {
	ContextSummary string              `json:"context_summary"`
	InferredIntent string              `json:"inferred_intent"`
	Reasoning      string              `json:"reasoning"`
	Unresolved     []string            `json:"unresolved"`
	RetrievalLog   []RetrievalLogEntry `json:"retrieval_log"`
}

const retrievalSystemPrompt = `You are the retrieval agent for a personal assistant that controls an Android device.
Given a user request, call whichever memory lookup tools are useful to gather context that will help satisfy it:
facts about people the user mentions, their preferences, and recent activity. Call as many tools as needed,
in any order, then respond with ONLY a JSON object:
{"context_summary": string, "inferred_intent": string, "reasoning": string, "unresolved": [string],
 "retrieval_log": [{"tool": string, "params": object, "result_summary": string}]}
List anything you could not resolve (e.g. an ambiguous name) in unresolved.`

// RetrievalAgent wraps a ToolCallLoop over every Retriever method.
type RetrievalAgent struct {
	provider llm.Provider
	model    string
	maxTurns int
}

func NewRetrievalAgent(provider llm.Provider, model string, maxTurns int) *RetrievalAgent {
	if maxTurns <= 0 {
		maxTurns = 5
	}
	return &RetrievalAgent{provider: provider, model: model, maxTurns: maxTurns}
}

// Run drives one retrieval-agent turn against r. userRequest may already
// carry an appended retrieval_state JSON suffix (see Orchestrator.Run). On
// structured-output parse failure the raw text becomes a best-effort
// context summary, logged as a warning -- never an error.
func (a *RetrievalAgent) Run(ctx context.Context, r *retriever.Retriever, userRequest string) (MemoryRetrievalOutput, error) {
	decls, executors := retrievalDeclarations(r)

	finalText, _, err := llm.ToolCallLoop(ctx, a.provider, a.model, retrievalSystemPrompt, userRequest, decls, executors, a.maxTurns)
	if err != nil {
		return MemoryRetrievalOutput{}, err
	}

	result := llm.GenerateStructured[MemoryRetrievalOutput](ctx, constResultProvider{finalText}, nil, "", 0)
	if result.IsOk() {
		return result.Value, nil
	}

	log.Warn().Str("raw", finalText).Msg("orchestrator: retrieval agent output did not parse, using raw text as context")
	return MemoryRetrievalOutput{ContextSummary: finalText}, nil
}
