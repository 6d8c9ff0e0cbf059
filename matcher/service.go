package matcher

import (
	"context"
	"fmt"
	"log/slog"
)

// Service runs the two-stage matching pipeline: exact matching first, then
// embedding similarity over whatever the exact stage left behind.
type Service struct {
	embedder Embedder
	logger   *slog.Logger
}

// NewService constructs a service around the given embedder. A nil logger
// discards log output.
func NewService(embedder Embedder, logger *slog.Logger) (*Service, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{embedder: embedder, logger: logger}, nil
}

// Close releases embedder resources.
func (s *Service) Close() error {
	if s.embedder != nil {
		return s.embedder.Close()
	}
	return nil
}

// Embedder returns the embedding provider used for the similarity stage.
func (s *Service) Embedder() Embedder {
	return s.embedder
}

// Run matches every A item against B. The returned records follow A order and
// cover each A item exactly once; B items claimed by neither stage are reported
// in B order. Embedding or similarity failures abort the run with an error
// wrapping both ErrMatchFailed and the cause.
//
// ctx is passed to the embedder only. Run itself does not stop early when ctx
// is cancelled.
func (s *Service) Run(ctx context.Context, a, b []string, threshold float64, progress ProgressFunc) (*Result, error) {
	notify := s.safeProgress(progress)

	notify(fmt.Sprintf("Loaded A: %d items, B: %d items", len(a), len(b)))
	notify("Running exact match...")
	exact := ExactMatch(a, b)
	notify(fmt.Sprintf("Exact match: %d pairs", len(exact.Matches)))
	s.logger.Debug("exact stage done",
		"a", len(a), "b", len(b),
		"matched", len(exact.Matches),
		"leftover_a", len(exact.UnmatchedA),
		"leftover_b", len(exact.UnmatchedB))

	var fuzzy []Pair
	if len(exact.UnmatchedA) > 0 && len(exact.UnmatchedB) > 0 {
		local, err := s.similarityStage(ctx, a, b, exact, threshold, notify)
		if err != nil {
			return nil, err
		}
		fuzzy = remap(local, exact.UnmatchedA, exact.UnmatchedB)
		notify(fmt.Sprintf("Similarity match: %d pairs", len(fuzzy)))
	} else {
		s.logger.Debug("similarity stage skipped", "leftover_a", len(exact.UnmatchedA), "leftover_b", len(exact.UnmatchedB))
	}

	notify("Assembling results...")
	res, err := assemble(a, b, exact, fuzzy)
	if err != nil {
		return nil, err
	}
	s.logger.Info("match run complete",
		"a", res.Stats.A, "b", res.Stats.B,
		"exact", res.Stats.Exact, "fuzzy", res.Stats.Fuzzy,
		"unmatched", res.Stats.Unmatched, "unused_b", res.Stats.UnusedB)
	notify("Done")
	return res, nil
}

func (s *Service) similarityStage(ctx context.Context, a, b []string, exact ExactResult, threshold float64, notify ProgressFunc) ([]Pair, error) {
	leftA := pick(a, exact.UnmatchedA)
	leftB := pick(b, exact.UnmatchedB)

	notify(fmt.Sprintf("Embedding %d A items...", len(leftA)))
	vecA, err := s.embedder.EmbedTexts(ctx, leftA)
	if err != nil {
		return nil, fmt.Errorf("%w: embed A items: %w", ErrMatchFailed, err)
	}
	if len(vecA) != len(leftA) {
		return nil, fmt.Errorf("%w: embed A items: got %d vectors for %d texts", ErrMatchFailed, len(vecA), len(leftA))
	}
	notify(fmt.Sprintf("Embedding %d B items...", len(leftB)))
	vecB, err := s.embedder.EmbedTexts(ctx, leftB)
	if err != nil {
		return nil, fmt.Errorf("%w: embed B items: %w", ErrMatchFailed, err)
	}
	if len(vecB) != len(leftB) {
		return nil, fmt.Errorf("%w: embed B items: got %d vectors for %d texts", ErrMatchFailed, len(vecB), len(leftB))
	}

	notify("Computing similarity...")
	sim, err := Similarity(vecA, vecB)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity: %w", ErrMatchFailed, err)
	}
	pairs := GreedyMatch(sim, threshold)
	s.logger.Debug("similarity stage done", "candidates_rows", len(leftA), "candidates_cols", len(leftB), "matched", len(pairs), "threshold", threshold)
	return pairs, nil
}

func (s *Service) safeProgress(progress ProgressFunc) ProgressFunc {
	if progress == nil {
		return func(string) {}
	}
	return func(message string) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Warn("progress callback panicked", "message", message, "panic", r)
			}
		}()
		progress(message)
	}
}

func pick(texts []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, g := range idx {
		out[i] = texts[g]
	}
	return out
}

// remap converts similarity stage indices to positions in the full inputs.
func remap(local []Pair, globalA, globalB []int) []Pair {
	out := make([]Pair, len(local))
	for i, p := range local {
		out[i] = Pair{A: globalA[p.A], B: globalB[p.B], Score: p.Score}
	}
	return out
}

func assemble(a, b []string, exact ExactResult, fuzzy []Pair) (*Result, error) {
	byA := make([]*MatchRecord, len(a))
	claimedB := make([]bool, len(b))

	claim := func(p Pair, status Status) error {
		if byA[p.A] != nil {
			return fmt.Errorf("%w: A item %d claimed twice", ErrInvariant, p.A)
		}
		if claimedB[p.B] {
			return fmt.Errorf("%w: B item %d claimed twice", ErrInvariant, p.B)
		}
		claimedB[p.B] = true
		byA[p.A] = &MatchRecord{
			AIndex:     p.A,
			BIndex:     p.B,
			AText:      a[p.A],
			BText:      b[p.B],
			Similarity: p.Score,
			Status:     status,
		}
		return nil
	}
	for _, p := range exact.Matches {
		if err := claim(p, StatusExact); err != nil {
			return nil, err
		}
	}
	for _, p := range fuzzy {
		if err := claim(p, StatusFuzzy); err != nil {
			return nil, err
		}
	}

	res := &Result{
		Records: make([]MatchRecord, len(a)),
		AItems:  a,
		BItems:  b,
		Stats:   Stats{A: len(a), B: len(b)},
	}
	for i, rec := range byA {
		if rec == nil {
			res.Records[i] = MatchRecord{AIndex: i, BIndex: -1, AText: a[i], Status: StatusUnmatched}
			res.Stats.Unmatched++
			continue
		}
		res.Records[i] = *rec
		if rec.Status == StatusExact {
			res.Stats.Exact++
		} else {
			res.Stats.Fuzzy++
		}
	}
	for _, j := range exact.UnmatchedB {
		if !claimedB[j] {
			res.UnmatchedB = append(res.UnmatchedB, b[j])
		}
	}
	res.Stats.UnusedB = len(res.UnmatchedB)
	return res, nil
}
