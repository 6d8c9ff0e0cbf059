package matcher

// Status describes how an A row was resolved.
type Status string

const (
	// StatusExact marks a normalized string equality match.
	StatusExact Status = "exact"
	// StatusFuzzy marks a match found through embedding similarity.
	StatusFuzzy Status = "fuzzy"
	// StatusUnmatched marks an A row claimed by neither stage.
	StatusUnmatched Status = "unmatched"
)

// Label returns the human readable status used in exported sheets.
func (s Status) Label() string {
	switch s {
	case StatusExact:
		return "Exact match"
	case StatusFuzzy:
		return "Fuzzy match"
	case StatusUnmatched:
		return "Unmatched"
	default:
		return string(s)
	}
}

// Pair links an A index to a B index with its similarity score.
// Indices are local or global depending on the producing stage.
type Pair struct {
	A     int     `json:"a"`
	B     int     `json:"b"`
	Score float64 `json:"score"`
}

// MatchRecord is the final outcome for one A row.
type MatchRecord struct {
	AIndex     int     `json:"aIndex"`
	BIndex     int     `json:"bIndex"`
	AText      string  `json:"aText"`
	BText      string  `json:"bText"`
	Similarity float64 `json:"similarity"`
	Status     Status  `json:"status"`
}

// Stats summarizes a run the way the result view reports it.
type Stats struct {
	A         int `json:"a"`
	B         int `json:"b"`
	Exact     int `json:"exact"`
	Fuzzy     int `json:"fuzzy"`
	Unmatched int `json:"unmatched"`
	UnusedB   int `json:"unusedB"`
}

// Result is the terminal output of one Service.Run call.
type Result struct {
	Records    []MatchRecord `json:"records"`
	AItems     []string      `json:"aItems"`
	BItems     []string      `json:"bItems"`
	UnmatchedB []string      `json:"unmatchedB"`
	Stats      Stats         `json:"stats"`
}

// ProgressFunc receives human readable status messages between pipeline stages.
// It must not block; panics raised inside it are recovered by the pipeline.
type ProgressFunc func(message string)
