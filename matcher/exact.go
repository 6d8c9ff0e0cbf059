package matcher

// ExactResult is the outcome of the exact stage. UnmatchedA and UnmatchedB hold
// global indices in ascending order; they become the local index spaces of the
// similarity stage.
type ExactResult struct {
	Matches    []Pair
	UnmatchedA []int
	UnmatchedB []int
}

// ExactMatch pairs A and B items whose trimmed, case folded text is equal.
// Each A item, in order, claims the first unclaimed B item sharing its key.
func ExactMatch(a, b []string) ExactResult {
	key := newKeyFunc()

	buckets := make(map[string][]int, len(b))
	for i, text := range b {
		k := key(text)
		buckets[k] = append(buckets[k], i)
	}

	claimedB := make([]bool, len(b))
	res := ExactResult{Matches: make([]Pair, 0, min(len(a), len(b)))}
	for i, text := range a {
		k := key(text)
		// Only this loop claims B items and always takes a bucket's head,
		// so the claimed entries of a bucket are exactly its consumed prefix.
		queue := buckets[k]
		if len(queue) == 0 {
			res.UnmatchedA = append(res.UnmatchedA, i)
			continue
		}
		j := queue[0]
		buckets[k] = queue[1:]
		claimedB[j] = true
		res.Matches = append(res.Matches, Pair{A: i, B: j, Score: 1.0})
	}
	for j, claimed := range claimedB {
		if !claimed {
			res.UnmatchedB = append(res.UnmatchedB, j)
		}
	}
	return res
}
