package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"droidmind/internal/llm"
	"droidmind/internal/memory"
)

const createObservationSystemPrompt = `You watch a phone user's recent screen activity and decide whether it reveals a recurring behavioral pattern worth remembering long-term.
Only form an observation from behavior repeated across at least 3 related snapshots. Return a null observation_node rather than speculate from thin evidence.
Respond with JSON: {"observation_node": string|null, "reasoning": string}`

const updateObservationSystemPrompt = `You are given a previously recorded observation and newer screen activity. Decide whether the new activity meaningfully extends or revises that observation.
Set is_updated=false when the new snapshots describe a different pattern, different entities, or insufficient evidence to change anything.
Respond with JSON: {"updated_observation_node": string|null, "is_updated": bool, "reasoning": string}`

const classifySystemPrompt = `Classify the given observation text into exactly one of: LongTermPeople, LongTermPreferences, ShortTermPreferences, ShortTermContent.
Respond with JSON: {"memory_type": string, "reasoning": string}`

type createObservationOutput struct {
	ObservationNode *string `json:"observation_node"`
	Reasoning       string  `json:"reasoning"`
}

type updateObservationOutput struct {
	UpdatedObservationNode *string `json:"updated_observation_node"`
	IsUpdated              bool    `json:"is_updated"`
	Reasoning              string  `json:"reasoning"`
}

type classifyOutput struct {
	MemoryType string `json:"memory_type"`
	Reasoning  string `json:"reasoning"`
}

// Inferencer is a thin wrapper over an llm.Provider's structured-output
// entry point, implementing the create/update two-step policy and the
// second classification call that tags a newly created observation's
// MemoryType.
type Inferencer struct {
	provider   llm.Provider
	model      string
	maxRetries int
}

func NewInferencer(provider llm.Provider, model string) *Inferencer {
	return &Inferencer{provider: provider, model: model, maxRetries: 2}
}

// CreateNewObservation issues a structured call asking whether the recent
// snapshots reveal a new recurring pattern. Returns nil, nil when the model
// declines to speculate, and wraps a genuine model/transport failure as an
// error (the caller treats it as a loop-iteration exception).
func (i *Inferencer) CreateNewObservation(ctx context.Context, snapshotTexts []string) (*memory.Observation, error) {
	msgs := []llm.Message{
		{Role: "system", Content: createObservationSystemPrompt},
		{Role: "user", Content: "Recent screen activity:\n" + strings.Join(snapshotTexts, "\n")},
	}
	result := llm.GenerateStructured[createObservationOutput](ctx, i.provider, msgs, i.model, i.maxRetries)
	if result.IsFatal() {
		return nil, fmt.Errorf("tracker: create_new_observation: %s", result.Reason)
	}
	if result.IsRetryable() {
		log.Warn().Str("reason", result.Reason).Msg("tracker: create_new_observation gave up after retries, skipping this cycle")
		return nil, nil
	}

	out := result.Value
	if out.ObservationNode == nil || strings.TrimSpace(*out.ObservationNode) == "" {
		return nil, nil
	}

	now := time.Now()
	return &memory.Observation{
		ID:         uuid.NewString(),
		MemoryType: i.classify(ctx, *out.ObservationNode),
		CreatedAt:  now,
		UpdatedAt:  now,
		Importance: 1.0,
		Node:       *out.ObservationNode,
		Recurrence: 1,
	}, nil
}

// UpdateObservation issues a structured call asking whether the recent
// snapshots meaningfully change the current tail observation. Returns
// nil, nil when the model reports no update (or fails after retries --
// treated the same as "no update", falling through to CreateNewObservation).
func (i *Inferencer) UpdateObservation(ctx context.Context, current memory.Observation, snapshotTexts []string) (*memory.Observation, error) {
	msgs := []llm.Message{
		{Role: "system", Content: updateObservationSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Current observation:\n%s\n\nNew screen activity:\n%s", current.Node, strings.Join(snapshotTexts, "\n"))},
	}
	result := llm.GenerateStructured[updateObservationOutput](ctx, i.provider, msgs, i.model, i.maxRetries)
	if result.IsFatal() {
		return nil, fmt.Errorf("tracker: update_observation: %s", result.Reason)
	}
	if result.IsRetryable() {
		log.Warn().Str("reason", result.Reason).Msg("tracker: update_observation gave up after retries, treating as not updated")
		return nil, nil
	}

	out := result.Value
	if !out.IsUpdated || out.UpdatedObservationNode == nil || strings.TrimSpace(*out.UpdatedObservationNode) == "" {
		return nil, nil
	}

	updated := current
	updated.Node = *out.UpdatedObservationNode
	updated.UpdatedAt = time.Now()
	updated.Recurrence++
	return &updated, nil
}

// classify never fails the caller: a model or parse failure falls back to
// ShortTermPreferences, matching the spec's documented default behavior for
// implementations that skip classification entirely.
func (i *Inferencer) classify(ctx context.Context, node string) memory.MemoryType {
	msgs := []llm.Message{
		{Role: "system", Content: classifySystemPrompt},
		{Role: "user", Content: node},
	}
	result := llm.GenerateStructured[classifyOutput](ctx, i.provider, msgs, i.model, i.maxRetries)
	if !result.IsOk() {
		return memory.MemoryTypeShortTermPreferences
	}
	switch memory.MemoryType(result.Value.MemoryType) {
	case memory.MemoryTypeLongTermPeople, memory.MemoryTypeLongTermPreferences, memory.MemoryTypeShortTermPreferences, memory.MemoryTypeShortTermContent:
		return memory.MemoryType(result.Value.MemoryType)
	default:
		return memory.MemoryTypeShortTermPreferences
	}
}
