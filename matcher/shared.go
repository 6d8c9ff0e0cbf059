package matcher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// EmbedderFactory constructs the underlying embedder on first use.
type EmbedderFactory func() (Embedder, error)

// SharedEmbedder is a process wide, lazily built Embedder. The factory runs at
// most once per successful construction even when many goroutines race on
// first use; they all wait for the same result. A failed construction is not
// remembered, so the next call retries.
//
// Holders call Retain before use and Release when done. The underlying
// embedder is closed when the last holder releases it; Close shuts it down
// regardless of outstanding holders.
type SharedEmbedder struct {
	factory EmbedderFactory
	logger  *slog.Logger

	inst atomic.Pointer[Embedder]

	mu     sync.Mutex
	refs   int
	closed bool
}

// NewSharedEmbedder wraps factory. A nil logger discards log output.
func NewSharedEmbedder(factory EmbedderFactory, logger *slog.Logger) *SharedEmbedder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SharedEmbedder{factory: factory, logger: logger}
}

// Get returns the underlying embedder, constructing it if needed.
func (s *SharedEmbedder) Get() (Embedder, error) {
	if p := s.inst.Load(); p != nil {
		return *p, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrEmbedderClosed
	}
	if p := s.inst.Load(); p != nil {
		return *p, nil
	}
	s.logger.Info("initializing shared embedder")
	e, err := s.factory()
	if err != nil {
		s.logger.Warn("shared embedder initialization failed", "error", err)
		return nil, err
	}
	s.inst.Store(&e)
	return e, nil
}

// Loaded reports whether the underlying embedder has been constructed.
func (s *SharedEmbedder) Loaded() bool {
	return s.inst.Load() != nil
}

// Retain registers a holder.
func (s *SharedEmbedder) Retain() {
	s.mu.Lock()
	s.refs++
	s.mu.Unlock()
}

// Release drops a holder and closes the embedder when none remain.
func (s *SharedEmbedder) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs > 0 {
		s.refs--
	}
	if s.refs > 0 {
		return nil
	}
	return s.shutdownLocked()
}

// Close shuts the embedder down and rejects further construction.
func (s *SharedEmbedder) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.refs = 0
	return s.shutdownLocked()
}

func (s *SharedEmbedder) shutdownLocked() error {
	p := s.inst.Swap(nil)
	if p == nil {
		return nil
	}
	s.logger.Debug("closing shared embedder")
	return (*p).Close()
}

// ModelID returns the underlying model identifier, or an empty string when the
// embedder has not been built yet.
func (s *SharedEmbedder) ModelID() string {
	if p := s.inst.Load(); p != nil {
		return (*p).ModelID()
	}
	return ""
}

// EmbedText builds the embedder if needed and embeds text.
func (s *SharedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e, err := s.Get()
	if err != nil {
		return nil, err
	}
	return e.EmbedText(ctx, text)
}

// EmbedTexts builds the embedder if needed and embeds texts.
func (s *SharedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e, err := s.Get()
	if err != nil {
		return nil, err
	}
	return e.EmbedTexts(ctx, texts)
}
