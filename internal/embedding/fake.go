package embedding

import (
	"context"
	"errors"
	"hash/fnv"
)

// Fake is a deterministic, dependency-free Provider used by tests: each
// text hashes to a small fixed-dimension vector so cosine similarity
// comparisons are stable across runs.
type Fake struct {
	Dim     int
	FailErr error // if set, Embed always returns this error
	Calls   int
}

func NewFake(dim int) *Fake { return &Fake{Dim: dim} }

func (f *Fake) Embed(_ context.Context, texts []string, _ TaskType) ([][]float32, error) {
	f.Calls++
	if f.FailErr != nil {
		return nil, f.FailErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = deterministicVector(t, f.Dim)
	}
	return out, nil
}

func (f *Fake) Ping(context.Context) error {
	if f.FailErr != nil {
		return errors.New("fake embedding provider unreachable")
	}
	return nil
}

func deterministicVector(text string, dim int) []float32 {
	if dim <= 0 {
		dim = 8
	}
	v := make([]float32, dim)
	h := fnv.New64a()
	for i := 0; i < dim; i++ {
		h.Write([]byte(text))
		h.Write([]byte{byte(i)})
		sum := h.Sum64()
		v[i] = float32(sum%1000) / 1000.0
	}
	return v
}
