// Package tracker implements the Observation Tracker (C4): a single
// background polling loop that watches device state, buffers changes into
// snapshots, periodically infers durable Observations from the recent
// snapshot window, and, as a new observation is created, persists the
// previous newest observation to storage.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"droidmind/internal/devicedriver"
	"droidmind/internal/memory"
	"droidmind/internal/store"
)

// Config sizes the Tracker's in-process buffers and poll cadence.
type Config struct {
	ContextSize          int // snapshot_counter threshold that triggers an inference pass
	ChangesCapacity      int
	SnapshotsCapacity    int
	ObservationsCapacity int
	PollInterval         time.Duration // steady-state poll cadence
	BurstInterval        time.Duration // cadence right after a real change (burst likely continues)
	BackoffInterval      time.Duration // cadence after a loop-iteration error
}

func (c Config) withDefaults() Config {
	if c.ContextSize <= 0 {
		c.ContextSize = 10
	}
	if c.ChangesCapacity <= 0 {
		c.ChangesCapacity = 10
	}
	if c.SnapshotsCapacity <= 0 {
		c.SnapshotsCapacity = 50
	}
	if c.ObservationsCapacity <= 0 {
		c.ObservationsCapacity = 20
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 1 * time.Second
	}
	if c.BurstInterval <= 0 {
		c.BurstInterval = 200 * time.Millisecond
	}
	if c.BackoffInterval <= 0 {
		c.BackoffInterval = 5 * time.Second
	}
	return c
}

// Tracker owns the poll loop. All mutable state is guarded by mu; request
// handlers may call the accessor methods concurrently with the running loop.
type Tracker struct {
	mu sync.Mutex

	device     devicedriver.Driver
	structured store.Structured
	inferencer *Inferencer
	embedder   *EmbeddingGenerator

	cfg Config

	changes      *memory.Deque[memory.UIStateChange]
	snapshots    *memory.Deque[memory.UIStateSnapshot]
	observations *memory.Deque[memory.Observation]

	snapshotCounter int
	lastState       *memory.UIState
	pollInterval    time.Duration

	running  bool
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// New constructs a Tracker. The background loop does not start until Start
// is called.
func New(device devicedriver.Driver, structured store.Structured, inferencer *Inferencer, embedder *EmbeddingGenerator, cfg Config) *Tracker {
	cfg = cfg.withDefaults()
	return &Tracker{
		device:       device,
		structured:   structured,
		inferencer:   inferencer,
		embedder:     embedder,
		cfg:          cfg,
		changes:      memory.NewDeque[memory.UIStateChange](cfg.ChangesCapacity),
		snapshots:    memory.NewDeque[memory.UIStateSnapshot](cfg.SnapshotsCapacity),
		observations: memory.NewDeque[memory.Observation](cfg.ObservationsCapacity),
	}
}

// Start launches the main loop. Fails if a loop is already running.
func (t *Tracker) Start(pollInterval time.Duration) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return fmt.Errorf("tracker: already running")
	}
	if pollInterval <= 0 {
		pollInterval = t.cfg.PollInterval
	}
	t.pollInterval = pollInterval
	t.running = true
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	done := make(chan struct{})
	t.loopDone = done
	t.mu.Unlock()

	go t.runLoop(ctx, done)
	return nil
}

// Pause cooperatively stops the loop (it exits at its next iteration
// boundary) without clearing any state, and reports whether it had been
// running. State and history are preserved so Start can resume later.
func (t *Tracker) Pause() bool {
	t.mu.Lock()
	wasRunning := t.running
	t.running = false
	t.mu.Unlock()
	time.Sleep(100 * time.Millisecond)
	return wasRunning
}

// Stop pauses the loop, waits up to 5 seconds for it to exit on its own
// before force-cancelling, flushes the current tail observation to the
// vector store, and clears all buffers.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.running = false
	cancel := t.cancel
	done := t.loopDone
	t.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			if cancel != nil {
				cancel()
			}
			<-done
		}
	}

	t.flushTail(context.Background(), true)
}

// Replay pauses tracking (remembering whether it was running), feeds each
// snapshot through the same counter/inference/save path the live loop uses,
// flushes the tail, then resumes at the prior poll interval if it had been
// running. Intended for deterministic tests that don't want to drive a real
// device poll loop.
func (t *Tracker) Replay(ctx context.Context, snapshots []memory.UIStateSnapshot) error {
	t.mu.Lock()
	wasRunning := t.running
	priorPoll := t.pollInterval
	t.mu.Unlock()

	if wasRunning {
		t.Pause()
	}

	for _, snap := range snapshots {
		t.mu.Lock()
		t.snapshots.Append(snap)
		t.snapshotCounter++
		counter := t.snapshotCounter
		t.mu.Unlock()

		if counter >= t.cfg.ContextSize {
			if err := t.inferAndRotate(ctx); err != nil {
				return fmt.Errorf("tracker: replay: %w", err)
			}
		}
	}

	t.flushTail(ctx, false)

	if wasRunning {
		return t.Start(priorPoll)
	}
	return nil
}

func (t *Tracker) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		// A loop that was paused and superseded by a later Start exits here
		// even though running is true again.
		t.mu.Lock()
		current := t.running && t.loopDone == done
		t.mu.Unlock()
		if !current {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		sleep, err := t.tick(ctx)
		if err != nil {
			log.Error().Err(err).Msg("tracker: loop iteration failed, backing off")
			sleep = t.cfg.BackoffInterval
		}
		if !sleepCtx(ctx, sleep) {
			return
		}
	}
}

func (t *Tracker) isRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// IsRunning reports whether the background loop is currently active.
func (t *Tracker) IsRunning() bool {
	return t.isRunning()
}

// PollInterval reports the poll interval the loop was last started with
// (or resumed at, via Replay); zero if the loop has never been started.
func (t *Tracker) PollInterval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pollInterval
}

// tick performs one main-loop iteration (spec steps 1-4) and reports how
// long the loop should sleep before the next one. An error means step 5's
// exception path applies: the caller logs it and backs off instead of using
// the returned duration.
func (t *Tracker) tick(ctx context.Context) (time.Duration, error) {
	state, err := t.device.GetState(ctx)
	if err != nil {
		return 0, fmt.Errorf("tracker: get_state: %w", err)
	}

	t.mu.Lock()
	last := t.lastState
	t.mu.Unlock()

	if last == nil {
		t.mu.Lock()
		t.lastState = &state
		t.mu.Unlock()
		return t.cfg.PollInterval, nil
	}

	changeType := memory.ClassifyChange(*last, state)

	t.mu.Lock()
	t.lastState = &state
	t.mu.Unlock()

	if changeType == memory.ChangeTypeNoChange {
		return t.cfg.PollInterval, nil
	}

	change := memory.UIStateChange{
		Timestamp:  time.Now(),
		Before:     *last,
		After:      state,
		Source:     memory.ChangeSourceObservation,
		ChangeType: changeType,
	}

	t.mu.Lock()
	t.changes.Append(change)
	snapshot := memory.SnapshotFromChange(change)
	t.snapshots.Append(snapshot)
	t.snapshotCounter++
	counter := t.snapshotCounter
	t.mu.Unlock()

	if counter >= t.cfg.ContextSize {
		if err := t.inferAndRotate(ctx); err != nil {
			return 0, err
		}
	}

	return t.cfg.BurstInterval, nil
}

// inferAndRotate runs one inference pass over the most recent ContextSize
// snapshots (oldest-first) and, if it produced a new observation, rotates
// it in via save_and_rotate. The snapshot counter resets only once the
// whole pass succeeds, so a failure leaves it at-or-above threshold and the
// next tick retries immediately after backing off.
func (t *Tracker) inferAndRotate(ctx context.Context) error {
	t.mu.Lock()
	newestFirst := t.snapshots.NewestFirst(t.cfg.ContextSize)
	t.mu.Unlock()
	recent := make([]memory.UIStateSnapshot, len(newestFirst))
	for i, s := range newestFirst {
		recent[len(newestFirst)-1-i] = s
	}

	obs, err := t.inferObservation(ctx, recent)
	if err != nil {
		return err
	}
	if obs != nil {
		if err := t.saveAndRotate(ctx, *obs); err != nil {
			return err
		}
	}

	t.mu.Lock()
	t.snapshotCounter = 0
	t.mu.Unlock()
	return nil
}

// inferObservation implements the two-step policy: try to update the tail
// observation in place first, and only attempt to create a new one if the
// update path found nothing meaningful (or there was no tail to update).
func (t *Tracker) inferObservation(ctx context.Context, snapshots []memory.UIStateSnapshot) (*memory.Observation, error) {
	texts := formatSnapshots(snapshots)

	t.mu.Lock()
	tail, hasTail := t.observations.Tail()
	t.mu.Unlock()

	if hasTail {
		updated, err := t.inferencer.UpdateObservation(ctx, tail, texts)
		if err != nil {
			return nil, err
		}
		if updated != nil {
			t.mu.Lock()
			t.observations.ReplaceTail(*updated)
			t.mu.Unlock()
			return nil, nil
		}
	}

	created, err := t.inferencer.CreateNewObservation(ctx, texts)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// saveAndRotate persists the current tail observation (the one about to be
// rotated out, not the deque-evicted head) to both backends, then appends
// newObs as the new tail.
func (t *Tracker) saveAndRotate(ctx context.Context, newObs memory.Observation) error {
	t.mu.Lock()
	tail, hasTail := t.observations.Tail()
	t.mu.Unlock()

	if hasTail {
		if err := t.structured.Insert(ctx, tail); err != nil {
			return fmt.Errorf("tracker: persist tail observation: %w", err)
		}
		if err := t.embedder.GenerateAndSave(ctx, tail.ID, tail.Node); err != nil {
			return fmt.Errorf("tracker: embed tail observation: %w", err)
		}
	}

	t.mu.Lock()
	t.observations.Append(newObs)
	t.mu.Unlock()
	return nil
}

func (t *Tracker) flushTail(ctx context.Context, clearDeques bool) {
	t.mu.Lock()
	tail, hasTail := t.observations.Tail()
	t.mu.Unlock()
	if hasTail {
		if err := t.embedder.GenerateAndSave(ctx, tail.ID, tail.Node); err != nil {
			log.Error().Err(err).Msg("tracker: flush tail observation failed")
		}
	}
	if clearDeques {
		t.mu.Lock()
		t.changes.Clear()
		t.snapshots.Clear()
		t.observations.Clear()
		t.snapshotCounter = 0
		t.lastState = nil
		t.mu.Unlock()
	}
}

// GetObservations returns a newest-first copy of the observations buffer,
// optionally filtered by MemoryType and capped to limit (limit <= 0 means
// unbounded).
func (t *Tracker) GetObservations(memoryType *memory.MemoryType, limit int) []memory.Observation {
	t.mu.Lock()
	defer t.mu.Unlock()
	all := t.observations.NewestFirst(0)
	if memoryType == nil {
		return capSlice(all, limit)
	}
	out := make([]memory.Observation, 0, len(all))
	for _, o := range all {
		if o.MemoryType == *memoryType {
			out = append(out, o)
		}
	}
	return capSlice(out, limit)
}

// GetStateSnapshots returns a newest-first copy of the snapshots buffer.
func (t *Tracker) GetStateSnapshots(limit int) []memory.UIStateSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return capSlice(t.snapshots.NewestFirst(0), limit)
}

// GetStateChanges returns a newest-first copy of the changes buffer,
// optionally filtered by ChangeType.
func (t *Tracker) GetStateChanges(changeType *memory.ChangeType, limit int) []memory.UIStateChange {
	t.mu.Lock()
	defer t.mu.Unlock()
	all := t.changes.NewestFirst(0)
	if changeType == nil {
		return capSlice(all, limit)
	}
	out := make([]memory.UIStateChange, 0, len(all))
	for _, c := range all {
		if c.ChangeType == *changeType {
			out = append(out, c)
		}
	}
	return capSlice(out, limit)
}

func capSlice[T any](rows []T, limit int) []T {
	if limit > 0 && limit < len(rows) {
		return rows[:limit]
	}
	return rows
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func formatSnapshots(snapshots []memory.UIStateSnapshot) []string {
	out := make([]string, len(snapshots))
	for i, s := range snapshots {
		line := fmt.Sprintf("[%s] %s/%s: %s", s.Timestamp.Format(time.RFC3339), s.Package, s.Activity, s.DenoisedText)
		if s.SwitchNote != "" {
			line = s.SwitchNote + " -- " + line
		}
		out[i] = line
	}
	return out
}
