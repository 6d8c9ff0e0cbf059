package matcher_test

import (
	"context"
	"math"
	"sync"
)

// stubEmbedder returns fixed unit vectors per text and counts calls.
type stubEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	dim     int
	err     error
	extra   map[int]int
	calls   int
	texts   [][]string
	closed  bool
}

func newStubEmbedder(dim int) *stubEmbedder {
	return &stubEmbedder{vectors: map[string][]float32{}, dim: dim}
}

// set registers a vector for text; it is normalized to unit length.
func (s *stubEmbedder) set(text string, vec ...float32) *stubEmbedder {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	s.vectors[text] = out
	return s
}

func (s *stubEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	out, err := s.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (s *stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.texts = append(s.texts, append([]string(nil), texts...))
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, ok := s.vectors[t]
		if !ok {
			// Unknown texts get a vector orthogonal to the first axis.
			vec = make([]float32, s.dim)
			vec[s.dim-1] = 1
		}
		out[i] = vec
	}
	// extra appends zero vectors to the reply of the given call number.
	for range s.extra[s.calls] {
		out = append(out, make([]float32, s.dim))
	}
	return out, nil
}

func (s *stubEmbedder) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubEmbedder) ModelID() string { return "stub" }

func (s *stubEmbedder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
