package matcher

import "sort"

// GreedyMatch selects a one-to-one set of pairs from sim. Candidates with a
// score of at least threshold are visited from highest to lowest; a pair is
// kept when neither its row nor its column has been taken. Equal scores keep
// row-major order, so the lowest row and then the lowest column wins a tie.
// Returned indices are local to sim.
func GreedyMatch(sim *SimilarityMatrix, threshold float64) []Pair {
	rows, cols := sim.Dims()
	if rows == 0 || cols == 0 {
		return nil
	}

	candidates := make([]Pair, 0, rows)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if score := sim.At(i, j); score >= threshold {
				candidates = append(candidates, Pair{A: i, B: j, Score: score})
			}
		}
	}
	sort.SliceStable(candidates, func(x, y int) bool {
		return candidates[x].Score > candidates[y].Score
	})

	usedRow := make([]bool, rows)
	usedCol := make([]bool, cols)
	limit := min(rows, cols)
	pairs := make([]Pair, 0, min(limit, len(candidates)))
	for _, c := range candidates {
		if usedRow[c.A] || usedCol[c.B] {
			continue
		}
		usedRow[c.A] = true
		usedCol[c.B] = true
		pairs = append(pairs, c)
		if len(pairs) == limit {
			break
		}
	}
	return pairs
}
