package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"droidmind/internal/devicedriver"
	"droidmind/internal/embedding"
	"droidmind/internal/llm"
	"droidmind/internal/memory"
	"droidmind/internal/store"
)

func newTestTracker(driver devicedriver.Driver, provider llm.Provider, cfg Config) (*Tracker, *store.MemoryStructured, *store.MemoryVector) {
	structured := store.NewMemoryStructured()
	vector := store.NewMemoryVector()
	inferencer := NewInferencer(provider, "test-model")
	embedder := NewEmbeddingGenerator(embedding.NewFake(8), vector)
	return New(driver, structured, inferencer, embedder, cfg), structured, vector
}

func stateFor(pkg, activity, text string) memory.UIState {
	return memory.UIState{DenoisedText: text, Phone: memory.PhoneState{PackageName: pkg, ActivityName: activity}}
}

func TestTick_FirstCallEstablishesBaselineNoSnapshot(t *testing.T) {
	driver := devicedriver.NewFakeDriver(stateFor("com.a", "Main", "hello"))
	tr, _, _ := newTestTracker(driver, &llm.FakeProvider{}, Config{})

	_, err := tr.tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, tr.snapshots.Len())
}

func TestTick_NoChangeDoesNotBufferSnapshot(t *testing.T) {
	s := stateFor("com.a", "Main", "hello")
	driver := devicedriver.NewFakeDriver(s, s)
	tr, _, _ := newTestTracker(driver, &llm.FakeProvider{}, Config{})

	_, err := tr.tick(context.Background())
	require.NoError(t, err)
	_, err = tr.tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, tr.snapshots.Len())
	require.Equal(t, 0, tr.changes.Len())
}

func TestTick_RealChangeBuffersSnapshotAndChange(t *testing.T) {
	first := stateFor("com.a", "Main", "hello")
	second := stateFor("com.b", "Other", "world")
	driver := devicedriver.NewFakeDriver(first, second)
	tr, _, _ := newTestTracker(driver, &llm.FakeProvider{}, Config{})

	_, err := tr.tick(context.Background())
	require.NoError(t, err)
	_, err = tr.tick(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, tr.snapshots.Len())
	require.Equal(t, 1, tr.changes.Len())
	require.True(t, tr.snapshots.NewestFirst(1)[0].IsAppSwitch)

	changes := tr.GetStateChanges(nil, 0)
	require.Len(t, changes, 1)
	require.Equal(t, memory.ChangeTypeAppSwitch, changes[0].ChangeType)
}

func TestTick_DeviceErrorPropagates(t *testing.T) {
	driver := &devicedriver.FakeDriver{GetErr: context.DeadlineExceeded}
	tr, _, _ := newTestTracker(driver, &llm.FakeProvider{}, Config{})

	_, err := tr.tick(context.Background())
	require.Error(t, err)
}

func TestReplay_CreatesObservationWithNoPriorTailToRotate(t *testing.T) {
	provider := &llm.FakeProvider{Responses: []llm.Message{
		{Content: `{"observation_node":"checks messaging app repeatedly","reasoning":"r"}`},
		{Content: `{"memory_type":"ShortTermPreferences","reasoning":"r"}`},
	}}
	tr, structured, _ := newTestTracker(devicedriver.NewFakeDriver(), provider, Config{ContextSize: 2})

	snaps := []memory.UIStateSnapshot{
		{DenoisedText: "a", Package: "com.chat", Activity: "Main", Timestamp: time.Now()},
		{DenoisedText: "b", Package: "com.chat", Activity: "Main", Timestamp: time.Now()},
	}
	require.NoError(t, tr.Replay(context.Background(), snaps))

	obs := tr.GetObservations(nil, 0)
	require.Len(t, obs, 1)
	require.Equal(t, memory.MemoryTypeShortTermPreferences, obs[0].MemoryType)

	rows, err := structured.Lookup(context.Background(), store.StructuredFilter{}, 0)
	require.NoError(t, err)
	require.Empty(t, rows, "no prior tail existed, so nothing should have been rotated into the structured store yet")
}

func TestReplay_SecondObservationRotatesFirstIntoStore(t *testing.T) {
	provider := &llm.FakeProvider{Responses: []llm.Message{
		{Content: `{"observation_node":"checks messaging app repeatedly","reasoning":"r"}`},
		{Content: `{"memory_type":"ShortTermPreferences","reasoning":"r"}`},
		{Content: `{"updated_observation_node":null,"is_updated":false,"reasoning":"different pattern"}`},
		{Content: `{"observation_node":"browses news app repeatedly","reasoning":"r"}`},
		{Content: `{"memory_type":"ShortTermContent","reasoning":"r"}`},
	}}
	tr, structured, vector := newTestTracker(devicedriver.NewFakeDriver(), provider, Config{ContextSize: 2})

	round1 := []memory.UIStateSnapshot{
		{DenoisedText: "a", Package: "com.chat", Activity: "Main", Timestamp: time.Now()},
		{DenoisedText: "b", Package: "com.chat", Activity: "Main", Timestamp: time.Now()},
	}
	require.NoError(t, tr.Replay(context.Background(), round1))
	require.Len(t, tr.GetObservations(nil, 0), 1)

	round2 := []memory.UIStateSnapshot{
		{DenoisedText: "c", Package: "com.news", Activity: "Main", Timestamp: time.Now()},
		{DenoisedText: "d", Package: "com.news", Activity: "Main", Timestamp: time.Now()},
	}
	require.NoError(t, tr.Replay(context.Background(), round2))

	obs := tr.GetObservations(nil, 0)
	require.Len(t, obs, 2)

	rows, err := structured.Lookup(context.Background(), store.StructuredFilter{}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "checks messaging app repeatedly", rows[0].Node)

	_, err = vector.GetEmbedding(context.Background(), rows[0].ID)
	require.NoError(t, err)
}

func TestStartPauseStop_Lifecycle(t *testing.T) {
	driver := devicedriver.NewFakeDriver(stateFor("com.a", "Main", "hello"))
	tr, _, _ := newTestTracker(driver, &llm.FakeProvider{}, Config{
		PollInterval:  10 * time.Millisecond,
		BurstInterval: 5 * time.Millisecond,
	})

	require.NoError(t, tr.Start(0))
	require.Error(t, tr.Start(0), "starting an already-running tracker should fail")

	time.Sleep(50 * time.Millisecond)
	wasRunning := tr.Pause()
	require.True(t, wasRunning)
	require.False(t, tr.isRunning())

	tr.Stop()
}

func TestGetObservations_FiltersByMemoryType(t *testing.T) {
	tr, _, _ := newTestTracker(devicedriver.NewFakeDriver(), &llm.FakeProvider{}, Config{})
	tr.observations.Append(memory.Observation{ID: "1", MemoryType: memory.MemoryTypeShortTermPreferences, Node: "a"})
	tr.observations.Append(memory.Observation{ID: "2", MemoryType: memory.MemoryTypeLongTermPeople, Node: "b"})

	want := memory.MemoryTypeLongTermPeople
	got := tr.GetObservations(&want, 0)
	require.Len(t, got, 1)
	require.Equal(t, "2", got[0].ID)
}
