package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"droidmind/internal/devicedriver"
	"droidmind/internal/llm"
)

// ExecutionLLMOutput is the Execution Agent's required final shape.
type ExecutionLLMOutput struct {
	Success            bool    `json:"success"`
	ResultSummary      string  `json:"result_summary"`
	FailureReason      *string `json:"failure_reason,omitempty"`
	MissingInformation *string `json:"missing_information,omitempty"`
}

const executionSystemPrompt = `You are the execution agent for a personal assistant that controls an Android device.
You are given a user request and retrieved context about the user's contacts, preferences, and recent activity.
Call execute_command exactly once with a natural-language instruction enriched with any relevant context
(e.g. a contact's platform or handle) so the device driver can act on it unambiguously.
After the tool result comes back, respond with ONLY a JSON object:
{"success": bool, "result_summary": string, "failure_reason": string|null, "missing_information": string|null}
If the command could not be carried out because information was missing or ambiguous, set success=false and
describe exactly what is missing in missing_information.`

// ExecutionAgent wraps a single-tool ToolCallLoop over the device driver's
// execute_command entry point.
type ExecutionAgent struct {
	provider llm.Provider
	model    string
	driver   devicedriver.Driver
	maxTurns int
}

func NewExecutionAgent(provider llm.Provider, model string, driver devicedriver.Driver, maxTurns int) *ExecutionAgent {
	if maxTurns <= 0 {
		maxTurns = 5
	}
	return &ExecutionAgent{provider: provider, model: model, driver: driver, maxTurns: maxTurns}
}

type executeCommandArgs struct {
	EnrichedCommand string `json:"enriched_command"`
	Reasoning       string `json:"reasoning"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
}

func (a *ExecutionAgent) declaration() llm.Declaration {
	return llm.Declaration{
		Name:        "execute_command",
		Description: "Send a natural-language instruction to the device for the user.",
		Parameters: objSchema(map[string]any{
			"enriched_command": strProp("the instruction to execute, enriched with retrieved context"),
			"reasoning":        strProp("why this command satisfies the user's request"),
			"timeout_seconds":  intProp("per-call timeout override, default 120"),
		}, []string{"enriched_command"}),
	}
}

func (a *ExecutionAgent) executor() llm.Executor {
	return func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var args executeCommandArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
		timeout := time.Duration(args.TimeoutSeconds) * time.Second
		result, err := a.driver.ExecuteCommand(ctx, args.EnrichedCommand, args.Reasoning, timeout)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	}
}

// Run drives one execution-agent turn. userRequest and context are combined
// into the user-facing prompt; on a structured-output parse failure the raw
// text is wrapped as a failed result rather than surfaced as an error,
// matching the Orchestrator's "never throws on execution failure" contract.
func (a *ExecutionAgent) Run(ctx context.Context, userRequest, retrievedContext string) (ExecutionLLMOutput, error) {
	userInput := userRequest
	if retrievedContext != "" {
		userInput = userRequest + "\n\nretrieved_context:\n" + retrievedContext
	}
	decl := a.declaration()
	executors := map[string]llm.Executor{decl.Name: a.executor()}

	finalText, _, err := llm.ToolCallLoop(ctx, a.provider, a.model, executionSystemPrompt, userInput, []llm.Declaration{decl}, executors, a.maxTurns)
	if err != nil {
		return ExecutionLLMOutput{}, err
	}

	result := llm.GenerateStructured[ExecutionLLMOutput](ctx, constResultProvider{finalText}, nil, "", 0)
	if result.IsOk() {
		return result.Value, nil
	}

	log.Warn().Str("raw", finalText).Msg("orchestrator: execution agent output did not parse, wrapping as failure")
	reason := "execution agent returned unparseable output"
	return ExecutionLLMOutput{Success: false, ResultSummary: finalText, FailureReason: &reason}, nil
}

// constResultProvider lets Run reuse llm.GenerateStructured's parse+strip-
// fences logic against text the tool-call loop already produced, instead of
// re-sending it to the model.
type constResultProvider struct{ text string }

func (c constResultProvider) Chat(context.Context, []llm.Message, []llm.ToolSchema, string) (llm.Message, error) {
	return llm.Message{Content: c.text}, nil
}

func (c constResultProvider) Ping(context.Context) error { return nil }
