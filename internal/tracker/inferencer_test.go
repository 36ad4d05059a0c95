package tracker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"droidmind/internal/llm"
	"droidmind/internal/memory"
)

func TestCreateNewObservation_NullNodeReturnsNil(t *testing.T) {
	provider := &llm.FakeProvider{Responses: []llm.Message{
		{Content: `{"observation_node":null,"reasoning":"not enough evidence"}`},
	}}
	inf := NewInferencer(provider, "test-model")

	obs, err := inf.CreateNewObservation(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Nil(t, obs)
}

func TestCreateNewObservation_ClassifiesAndFillsDefaults(t *testing.T) {
	provider := &llm.FakeProvider{Responses: []llm.Message{
		{Content: `{"observation_node":"likes dark mode","reasoning":"seen repeatedly"}`},
		{Content: `{"memory_type":"LongTermPreferences","reasoning":"stable trait"}`},
	}}
	inf := NewInferencer(provider, "test-model")

	obs, err := inf.CreateNewObservation(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.NotNil(t, obs)
	require.Equal(t, memory.MemoryTypeLongTermPreferences, obs.MemoryType)
	require.Equal(t, 1.0, obs.Importance)
	require.Equal(t, 1, obs.Recurrence)
	require.NotEmpty(t, obs.ID)
}

func TestCreateNewObservation_ClassifyFailureFallsBackToShortTermPreferences(t *testing.T) {
	provider := &llm.FakeProvider{Responses: []llm.Message{
		{Content: `{"observation_node":"checks weather app","reasoning":"r"}`},
		{Content: `not json`},
	}}
	inf := NewInferencer(provider, "test-model")

	obs, err := inf.CreateNewObservation(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.NotNil(t, obs)
	require.Equal(t, memory.MemoryTypeShortTermPreferences, obs.MemoryType)
}

func TestUpdateObservation_NotUpdatedReturnsNil(t *testing.T) {
	provider := &llm.FakeProvider{Responses: []llm.Message{
		{Content: `{"updated_observation_node":null,"is_updated":false,"reasoning":"different pattern"}`},
	}}
	inf := NewInferencer(provider, "test-model")

	updated, err := inf.UpdateObservation(context.Background(), memory.Observation{Node: "old"}, []string{"a"})
	require.NoError(t, err)
	require.Nil(t, updated)
}

func TestUpdateObservation_UpdatesNodeAndIncrementsRecurrence(t *testing.T) {
	provider := &llm.FakeProvider{Responses: []llm.Message{
		{Content: `{"updated_observation_node":"checks messaging and social apps","is_updated":true,"reasoning":"extended pattern"}`},
	}}
	inf := NewInferencer(provider, "test-model")

	current := memory.Observation{ID: "obs-1", Node: "checks messaging app", Recurrence: 2}
	updated, err := inf.UpdateObservation(context.Background(), current, []string{"a"})
	require.NoError(t, err)
	require.NotNil(t, updated)
	require.Equal(t, "checks messaging and social apps", updated.Node)
	require.Equal(t, 3, updated.Recurrence)
	require.Equal(t, "obs-1", updated.ID)
}

func TestCreateNewObservation_FatalChatErrorPropagates(t *testing.T) {
	provider := &llm.FakeProvider{Err: context.DeadlineExceeded}
	inf := NewInferencer(provider, "test-model")

	_, err := inf.CreateNewObservation(context.Background(), []string{"a"})
	require.Error(t, err)
}
