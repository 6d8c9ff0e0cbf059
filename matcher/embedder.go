package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"sync"

	"yashubustudio/vlookup/emb"
)

// Embedder turns text into unit length vectors. Implementations must be
// deterministic for a given model.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Close() error
	ModelID() string
}

// NewEmbedder builds the embedder selected by cfg.Backend. Model paths for the
// onnx backend must already be resolved.
func NewEmbedder(cfg EmbedderConfig, logger *slog.Logger) (Embedder, error) {
	switch cfg.Backend {
	case BackendHashed:
		return NewHashedEmbedder(cfg.HashedDim), nil
	case BackendONNX, "":
		return NewOrtEmbedder(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown embedder backend %q", cfg.Backend)
	}
}

// OrtEmbedder runs an ONNX sentence encoder and caches its vectors by model
// and normalized text.
type OrtEmbedder struct {
	cfg    EmbedderConfig
	cache  *vectorCache
	logger *slog.Logger

	encMu sync.Mutex
	enc   *emb.Encoder
}

// NewOrtEmbedder loads the model described by cfg. ModelPath and
// TokenizerPath must point at existing files.
func NewOrtEmbedder(cfg EmbedderConfig, logger *slog.Logger) (*OrtEmbedder, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ModelID == "" && cfg.ModelPath != "" {
		cfg.ModelID = path.Join(filepath.Base(filepath.Dir(cfg.ModelPath)), filepath.Base(cfg.ModelPath))
	}
	cache, err := newVectorCache(cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	enc := &emb.Encoder{}
	err = enc.Init(emb.Config{
		OrtDLL:        cfg.OrtLibrary,
		ModelPath:     cfg.ModelPath,
		TokenizerPath: cfg.TokenizerPath,
		MaxSeqLen:     cfg.MaxSeqLen,
		Pooling:       cfg.Pooling,
	})
	if err != nil {
		return nil, fmt.Errorf("init encoder: %w", err)
	}
	logger.Info("embedding model loaded",
		"model", cfg.ModelID,
		"path", cfg.ModelPath,
		"cache_dir", cfg.CacheDir)
	return &OrtEmbedder{cfg: cfg, cache: cache, logger: logger, enc: enc}, nil
}

// ModelID names the model in cache keys and run history.
func (o *OrtEmbedder) ModelID() string {
	return o.cfg.ModelID
}

// Close frees the ONNX session. Cached vectors on disk are kept.
func (o *OrtEmbedder) Close() error {
	o.encMu.Lock()
	defer o.encMu.Unlock()
	if o.enc != nil {
		o.enc.Close()
		o.enc = nil
	}
	o.cache.reset()
	return nil
}

// EmbedText returns the vector for the NFKC normalized text, from the cache
// when possible.
func (o *OrtEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	normalized := NormalizeText(text)
	key := vectorKey(o.cfg.ModelID, normalized)
	vec, ok, err := o.cache.get(key)
	if err != nil {
		o.logger.Debug("ignoring unreadable cache entry", "key", key, "error", err)
	}
	if ok {
		return vec, nil
	}

	o.encMu.Lock()
	if o.enc == nil {
		o.encMu.Unlock()
		return nil, ErrEmbedderClosed
	}
	vec, err = o.enc.Encode(normalized)
	o.encMu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := o.cache.put(key, vec); err != nil {
		o.logger.Warn("failed to write embedding cache", "key", key, "error", err)
	}
	return vec, nil
}

// EmbedTexts embeds texts one after another, stopping at the first failure.
func (o *OrtEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := o.EmbedText(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed item %d: %w", i, err)
		}
		out = append(out, vec)
	}
	return out, nil
}
