package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// GenerateStructured sends msgs to the model and parses its final text as
// T, retrying with a corrective follow-up message on parse failure up to
// maxRetries times. It never panics or raises on a bad parse; callers
// inspect the returned Result's Kind.
func GenerateStructured[T any](ctx context.Context, provider Provider, msgs []Message, model string, maxRetries int) Result[T] {
	if maxRetries < 0 {
		maxRetries = 0
	}
	conversation := append([]Message(nil), msgs...)

	var lastReason string
	for attempt := 0; attempt <= maxRetries; attempt++ {
		spanCtx, span := StartRequestSpan(ctx, "llm.generate_structured", model, 0, len(conversation))
		LogRedactedPrompt(spanCtx, conversation)
		msg, err := provider.Chat(spanCtx, conversation, nil, model)
		span.End()
		if err != nil {
			return FatalErr[T](fmt.Sprintf("chat failed: %v", err))
		}
		LogRedactedResponse(spanCtx, msg)

		var parsed T
		text := stripCodeFences(msg.Content)
		if err := json.Unmarshal([]byte(text), &parsed); err != nil {
			lastReason = fmt.Sprintf("parse failed: %v", err)
			conversation = append(conversation, msg, Message{
				Role:    "user",
				Content: "Your previous response was not valid JSON matching the required schema. Respond again with ONLY the JSON object, no prose or markdown fences.",
			})
			continue
		}
		return Ok(parsed)
	}
	return RetryableErr[T](lastReason)
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx != -1 {
		first := strings.TrimSpace(s[:idx])
		if first == "json" || first == "" {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
