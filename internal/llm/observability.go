package llm

import (
	"context"
	"encoding/json"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"droidmind/internal/observability"
)

var (
	logMu                sync.RWMutex
	enablePayloadLogging = false
	truncateBytes        = 0 // 0 means no truncation
)

// ConfigureLogging sets global behavior for prompt/response debug logging.
// Call once at startup with values from the main config.
func ConfigureLogging(enable bool, truncate int) {
	logMu.Lock()
	defer logMu.Unlock()
	enablePayloadLogging = enable
	truncateBytes = truncate
}

func shouldLog() (bool, int) {
	logMu.RLock()
	defer logMu.RUnlock()
	return enablePayloadLogging, truncateBytes
}

// StartRequestSpan starts a tracer span for an LLM request and sets common
// attributes, so a retrieval/execution agent turn shows up as its own span
// alongside the device-control and store spans it's bracketed by.
func StartRequestSpan(ctx context.Context, operation, model string, tools, messages int) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("internal/llm").Start(ctx, operation)
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.tools", tools),
		attribute.Int("llm.messages", messages),
	)
	return ctx, span
}

// LogRedactedPrompt logs a redacted copy of the outgoing messages at debug
// level. No-op unless ConfigureLogging(true, ...) has been called -- prompts
// routinely carry retrieved memory content that shouldn't hit logs by default.
func LogRedactedPrompt(ctx context.Context, msgs []Message) {
	ok, t := shouldLog()
	if !ok {
		return
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	logRedacted(ctx, "prompt", "llm_request", b, t)
}

// LogRedactedResponse logs a redacted copy of the response payload at debug
// level, subject to the same gate as LogRedactedPrompt.
func LogRedactedResponse(ctx context.Context, resp any) {
	ok, t := shouldLog()
	if !ok {
		return
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	logRedacted(ctx, "response", "llm_response", b, t)
}

func logRedacted(ctx context.Context, field, msg string, raw json.RawMessage, truncate int) {
	logger := observability.LoggerWithTrace(ctx)
	red := observability.RedactJSON(raw)
	if truncate > 0 && len(red) > truncate {
		preview, err := json.Marshal(map[string]any{"truncated": true, "preview": string(red[:truncate])})
		if err == nil {
			red = preview
		}
	}
	entry := logger.With().RawJSON(field, red).Logger()
	entry.Debug().Msg(msg)
}
