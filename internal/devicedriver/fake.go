package devicedriver

import (
	"context"
	"sync"
	"time"

	"droidmind/internal/memory"
)

// FakeDriver is a scriptable in-memory Driver used by tests: States is
// consumed in order by GetState (the last entry repeats once exhausted),
// and ExecuteCommand records every call it receives.
type FakeDriver struct {
	mu sync.Mutex

	States  []memory.UIState
	stateAt int
	GetErr  error

	ExecuteResult RawExecutionResult
	ExecuteErr    error
	Calls         []ExecuteCall

	PingInfo VersionInfo
	PingErr  error
}

type ExecuteCall struct {
	Text      string
	Reasoning string
	Timeout   time.Duration
}

func NewFakeDriver(states ...memory.UIState) *FakeDriver {
	return &FakeDriver{States: states}
}

func (f *FakeDriver) GetState(context.Context) (memory.UIState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return memory.UIState{}, f.GetErr
	}
	if len(f.States) == 0 {
		return memory.UIState{}, nil
	}
	idx := f.stateAt
	if idx >= len(f.States) {
		idx = len(f.States) - 1
	} else {
		f.stateAt++
	}
	return f.States[idx], nil
}

func (f *FakeDriver) ExecuteCommand(_ context.Context, text, reasoning string, timeout time.Duration) (RawExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, ExecuteCall{Text: text, Reasoning: reasoning, Timeout: timeout})
	if f.ExecuteErr != nil {
		return RawExecutionResult{}, f.ExecuteErr
	}
	res := f.ExecuteResult
	res.Command = text
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now()
	}
	return res, nil
}

func (f *FakeDriver) Ping(context.Context) (VersionInfo, error) {
	if f.PingErr != nil {
		return VersionInfo{}, f.PingErr
	}
	return f.PingInfo, nil
}
