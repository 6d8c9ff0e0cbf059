package history_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/vlookup/internal/history"
	"yashubustudio/vlookup/matcher"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(context.Background(), filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleResult() *matcher.Result {
	return &matcher.Result{
		Records: []matcher.MatchRecord{
			{AIndex: 0, BIndex: 1, AText: "Apple", BText: "apple", Similarity: 1, Status: matcher.StatusExact},
			{AIndex: 1, BIndex: 0, AText: "banana", BText: "Banana split", Similarity: 0.81, Status: matcher.StatusFuzzy},
			{AIndex: 2, BIndex: -1, AText: "Cherry", Status: matcher.StatusUnmatched},
		},
		UnmatchedB: []string{"durian"},
		Stats:      matcher.Stats{A: 3, B: 3, Exact: 1, Fuzzy: 1, Unmatched: 1, UnusedB: 1},
	}
}

func TestRecordAndGet(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	run, err := store.Record(ctx, history.Run{
		StartedAt:  started,
		FileA:      "a.xlsx",
		FileB:      "b.xlsx",
		Threshold:  0.75,
		Backend:    matcher.BackendHashed,
		ModelID:    "hashed-trigram",
		Duration:   1500 * time.Millisecond,
		OutputPath: "/tmp/out.xlsx",
	}, sampleResult())
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, 1, run.Stats.Exact)

	entry, err := store.Get(ctx, run.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, run.ID, entry.Run.ID)
	assert.True(t, started.Equal(entry.Run.StartedAt))
	assert.Equal(t, "a.xlsx", entry.Run.FileA)
	assert.Equal(t, 1500*time.Millisecond, entry.Run.Duration)
	assert.Equal(t, sampleResult().Stats, entry.Run.Stats)
	assert.Equal(t, sampleResult().Records, entry.Records)
	assert.Equal(t, []string{"durian"}, entry.UnusedB)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		_, err := store.Record(ctx, history.Run{
			ID:        name,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Backend:   matcher.BackendONNX,
		}, sampleResult())
		require.NoError(t, err)
	}

	runs, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third", runs[0].ID)
	assert.Equal(t, "second", runs[1].ID)

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGetErrors(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, history.ErrNotFound)

	for _, id := range []string{"run-a", "run-b"} {
		_, err := store.Record(ctx, history.Run{ID: id}, sampleResult())
		require.NoError(t, err)
	}
	_, err = store.Get(ctx, "run-")
	require.ErrorIs(t, err, history.ErrAmbiguousID)

	entry, err := store.Get(ctx, "run-b")
	require.NoError(t, err)
	assert.Equal(t, "run-b", entry.Run.ID)
}

func TestRecordRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	_, err := store.Record(ctx, history.Run{ID: "same"}, sampleResult())
	require.NoError(t, err)
	_, err = store.Record(ctx, history.Run{ID: "same"}, sampleResult())
	require.Error(t, err)

	runs, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
