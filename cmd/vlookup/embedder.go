package main

import (
	"log/slog"

	"yashubustudio/vlookup/internal/modelstore"
	"yashubustudio/vlookup/matcher"
)

// newSharedEmbedder defers model lookup and loading until the similarity
// stage first asks for vectors, so runs settled by exact matching never touch
// the model.
func newSharedEmbedder(cfg matcher.EmbedderConfig, logger *slog.Logger) *matcher.SharedEmbedder {
	return matcher.NewSharedEmbedder(func() (matcher.Embedder, error) {
		resolved, err := resolveModel(cfg, logger)
		if err != nil {
			return nil, err
		}
		return matcher.NewEmbedder(resolved, logger)
	}, logger)
}

// resolveModel fills in model and tokenizer paths for the onnx backend from
// the model search locations unless both are configured explicitly.
func resolveModel(cfg matcher.EmbedderConfig, logger *slog.Logger) (matcher.EmbedderConfig, error) {
	if cfg.Backend == matcher.BackendHashed {
		return cfg, nil
	}
	if cfg.ModelPath != "" && cfg.TokenizerPath != "" {
		return cfg, nil
	}
	loc := modelstore.Default(cfg.ModelName, cfg.ModelDir).Locate()
	if err := loc.Require(); err != nil {
		return cfg, err
	}
	logger.Debug("model located", "dir", loc.Dir, "source", loc.Source)
	if cfg.ModelPath == "" {
		cfg.ModelPath = loc.ModelPath
	}
	if cfg.TokenizerPath == "" {
		cfg.TokenizerPath = loc.TokenizerPath
	}
	if cfg.ModelID == "" {
		cfg.ModelID = cfg.ModelName
	}
	return cfg, nil
}
