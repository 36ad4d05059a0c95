package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Declaration describes one callable tool to the model.
type Declaration struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Executor is the concrete function a Declaration is bound to. It receives
// the model-provided arguments as raw JSON and returns a JSON-safe result.
type Executor func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// CallLogEntry records one tool invocation within a ToolCallLoop run.
type CallLogEntry struct {
	Name   string          `json:"name"`
	Args   json.RawMessage `json:"args"`
	Result json.RawMessage `json:"result"`
}

// ToolCallLoop drives the shared agent tool-call loop: send the
// conversation with tool declarations, dispatch any tool call the model
// requests, append the result, and repeat until the model returns plain
// text or max_turns is exhausted.
//
// Executors are built once from a fixed, known set of bound methods, so a
// tool name outside that set can only be a model hallucination — this is
// treated as a fast-fail infrastructure error, unlike a tool's own
// execution error, which is caught and handed back to the model as
// {"error": "..."} so it can recover.
func ToolCallLoop(ctx context.Context, provider Provider, model, systemPrompt, userInput string, declarations []Declaration, executors map[string]Executor, maxTurns int) (string, []CallLogEntry, error) {
	if maxTurns <= 0 {
		maxTurns = 5
	}
	schemas := make([]ToolSchema, len(declarations))
	for i, d := range declarations {
		schemas[i] = ToolSchema{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}

	msgs := []Message{{Role: "system", Content: systemPrompt}, {Role: "user", Content: userInput}}
	var callLog []CallLogEntry

	for turn := 0; turn < maxTurns; turn++ {
		spanCtx, span := StartRequestSpan(ctx, "llm.tool_call_turn", model, len(schemas), len(msgs))
		LogRedactedPrompt(spanCtx, msgs)
		msg, err := provider.Chat(spanCtx, msgs, schemas, model)
		span.End()
		if err != nil {
			return "", callLog, fmt.Errorf("llm: tool_call chat failed on turn %d: %w", turn, err)
		}
		LogRedactedResponse(spanCtx, msg)
		msgs = append(msgs, msg)

		if len(msg.ToolCalls) == 0 {
			return msg.Content, callLog, nil
		}

		for _, tc := range msg.ToolCalls {
			executor, ok := executors[tc.Name]
			if !ok {
				return "", callLog, fmt.Errorf("llm: tool_call requested unknown tool %q", tc.Name)
			}
			result, execErr := executor(ctx, tc.Args)
			if execErr != nil {
				log.Warn().Err(execErr).Str("tool", tc.Name).Msg("llm: tool execution failed, returning error to model")
				result, _ = json.Marshal(map[string]string{"error": execErr.Error()})
			}
			callLog = append(callLog, CallLogEntry{Name: tc.Name, Args: tc.Args, Result: result})
			msgs = append(msgs, Message{Role: "tool", Content: string(result), ToolID: tc.ID})
		}
	}

	return "", callLog, fmt.Errorf("llm: tool_call exhausted max_turns=%d without a final response", maxTurns)
}
