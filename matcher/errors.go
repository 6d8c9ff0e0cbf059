package matcher

import "errors"

// Sentinel errors returned by the matching pipeline.
var (
	// ErrMatchFailed marks any run aborted by the embedding or similarity stage.
	// The underlying cause stays reachable through errors.Is / errors.As.
	ErrMatchFailed = errors.New("matching failed")
	// ErrDimensionMismatch reports vectors of different lengths.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrInvariant reports an internal bookkeeping violation, e.g. an A row claimed twice.
	ErrInvariant = errors.New("match invariant violated")
	// ErrEmbedderRequired is returned when a Service is built without an embedder.
	ErrEmbedderRequired = errors.New("embedder is required")
	// ErrEmbedderClosed is returned by a SharedEmbedder after Close.
	ErrEmbedderClosed = errors.New("embedder is closed")
)
