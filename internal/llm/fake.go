package llm

import "context"

// FakeProvider is a scriptable Provider for tests: Responses is consumed in
// order, one per Chat call.
type FakeProvider struct {
	Responses []Message
	CallCount int
	Err       error
}

func (f *FakeProvider) Chat(_ context.Context, _ []Message, _ []ToolSchema, _ string) (Message, error) {
	if f.Err != nil {
		return Message{}, f.Err
	}
	if f.CallCount >= len(f.Responses) {
		return Message{}, nil
	}
	msg := f.Responses[f.CallCount]
	f.CallCount++
	return msg, nil
}

func (f *FakeProvider) Ping(context.Context) error { return f.Err }
