package matcher

import (
	"context"
	"math"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/cases"
)

// DefaultHashedDim is the vector size used when HashedEmbedder gets no dimension.
const DefaultHashedDim = 256

// HashedEmbedder maps text to character trigram count vectors folded into a
// fixed number of buckets. It needs no model files and is deterministic, which
// makes it usable offline and in tests. Similar spellings score high; synonyms
// do not.
type HashedEmbedder struct {
	dim int
}

// NewHashedEmbedder returns an embedder producing dim-sized vectors.
func NewHashedEmbedder(dim int) *HashedEmbedder {
	if dim <= 0 {
		dim = DefaultHashedDim
	}
	return &HashedEmbedder{dim: dim}
}

// ModelID identifies the backend in cache keys and history rows.
func (h *HashedEmbedder) ModelID() string {
	return "hashed-trigram"
}

// Close is a no-op.
func (h *HashedEmbedder) Close() error { return nil }

// EmbedText returns the unit length trigram vector of text. Text with no
// characters yields the zero vector.
func (h *HashedEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	vec := make([]float64, h.dim)
	runes := []rune(" " + cases.Fold().String(NormalizeText(text)) + " ")
	if len(runes) > 2 {
		var buf [12]byte
		for i := 0; i+3 <= len(runes); i++ {
			n := 0
			for _, r := range runes[i : i+3] {
				n += utf8.EncodeRune(buf[n:], r)
			}
			sum := xxhash.Sum64(buf[:n])
			bucket := int(sum % uint64(h.dim))
			// Top bit picks the sign.
			if sum>>63 == 1 {
				vec[bucket]--
			} else {
				vec[bucket]++
			}
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, h.dim)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// EmbedTexts embeds each text in order.
func (h *HashedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := h.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
