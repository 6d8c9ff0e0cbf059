package matcher

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SimilarityMatrix holds cosine similarities between A rows and B columns.
// The zero value is an empty 0x0 matrix.
type SimilarityMatrix struct {
	rows, cols int
	dense      *mat.Dense
}

// NewSimilarityMatrix builds a matrix from row slices. All rows must have the
// same length.
func NewSimilarityMatrix(rows [][]float64) (*SimilarityMatrix, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return &SimilarityMatrix{}, nil
	}
	n, m := len(rows), len(rows[0])
	data := make([]float64, 0, n*m)
	for i, row := range rows {
		if len(row) != m {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), m)
		}
		data = append(data, row...)
	}
	return &SimilarityMatrix{rows: n, cols: m, dense: mat.NewDense(n, m, data)}, nil
}

// Dims returns the number of rows and columns.
func (s *SimilarityMatrix) Dims() (int, int) {
	if s == nil {
		return 0, 0
	}
	return s.rows, s.cols
}

// At returns the similarity of A row i and B column j.
func (s *SimilarityMatrix) At(i, j int) float64 {
	return s.dense.At(i, j)
}

// Empty reports whether the matrix has no entries.
func (s *SimilarityMatrix) Empty() bool {
	r, c := s.Dims()
	return r == 0 || c == 0
}

// Similarity computes A·Bᵀ. Vectors are expected to be unit length already, so
// every entry is the cosine similarity of the corresponding pair. Either side
// being empty yields an empty matrix.
func Similarity(a, b [][]float32) (*SimilarityMatrix, error) {
	if len(a) == 0 || len(b) == 0 {
		return &SimilarityMatrix{}, nil
	}
	dim := len(a[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	left, err := denseRows(a, dim)
	if err != nil {
		return nil, fmt.Errorf("A side: %w", err)
	}
	right, err := denseRows(b, dim)
	if err != nil {
		return nil, fmt.Errorf("B side: %w", err)
	}
	out := mat.NewDense(len(a), len(b), nil)
	out.Mul(left, right.T())
	return &SimilarityMatrix{rows: len(a), cols: len(b), dense: out}, nil
}

func denseRows(vecs [][]float32, dim int) (*mat.Dense, error) {
	data := make([]float64, 0, len(vecs)*dim)
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		for _, x := range v {
			data = append(data, float64(x))
		}
	}
	return mat.NewDense(len(vecs), dim, data), nil
}
