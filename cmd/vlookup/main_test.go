package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/vlookup/internal/history"
	"yashubustudio/vlookup/internal/modelstore"
	"yashubustudio/vlookup/matcher"
)

type cliTestEnv struct {
	baseDir     string
	configPath  string
	outputDir   string
	historyPath string
}

func setupCLITestEnv(t *testing.T, extra string) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	home := filepath.Join(base, "home")
	require.NoError(t, os.MkdirAll(home, 0o755))
	t.Setenv("HOME", home)
	t.Setenv("HF_HOME", "")
	for _, name := range []string{"VLOOKUP_THRESHOLD", "VLOOKUP_BACKEND", "VLOOKUP_HISTORY", "VLOOKUP_OUTPUT_DIR", "VLOOKUP_OUTPUT_FORMAT", "VLOOKUP_MODEL_DIR"} {
		t.Setenv(name, "")
	}
	t.Chdir(base)

	env := &cliTestEnv{
		baseDir:     base,
		configPath:  filepath.Join(base, "vlookup-test.toml"),
		outputDir:   filepath.Join(base, "out"),
		historyPath: filepath.Join(base, "history.db"),
	}
	content := fmt.Sprintf(`[embedder]
backend = "hashed"
cache_dir = %q

[output]
dir = %q
format = "csv"

[history]
path = %q

[logging]
level = "warn"
%s`, filepath.Join(base, "cache"), env.outputDir, env.historyPath, extra)
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o644))
	return env
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeLines(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestMatchWritesResultAndHistory(t *testing.T) {
	env := setupCLITestEnv(t, "")
	a := writeLines(t, env.baseDir, "a.csv", "Name", "Apple", "International Business Machines", "banana")
	b := writeLines(t, env.baseDir, "b.csv", "Company", "APPLE", "international business machine", "Durian")
	outPath := filepath.Join(env.baseDir, "result.csv")

	stdout, _, err := runCLI(t, "match", "-c", env.configPath, "-a", a, "-b", b, "-t", "0.8", "-o", outPath, "--json")
	require.NoError(t, err)

	var summary matchSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, outPath, summary.OutputPath)
	assert.Equal(t, matcher.Stats{A: 3, B: 3, Exact: 1, Fuzzy: 1, Unmatched: 1, UnusedB: 1}, summary.Stats)
	assert.Equal(t, "hashed-trigram", summary.ModelID)
	assert.Equal(t, []string{"Durian"}, summary.UnmatchedB)
	require.Len(t, summary.Records, 3)
	assert.Equal(t, matcher.StatusFuzzy, summary.Records[1].Status)
	assert.Equal(t, 1, summary.Records[1].BIndex)
	require.NotEmpty(t, summary.RunID)

	_, err = os.Stat(outPath)
	require.NoError(t, err)

	stdout, _, err = runCLI(t, "history", "list", "-c", env.configPath, "--json")
	require.NoError(t, err)
	var runs []history.Run
	require.NoError(t, json.Unmarshal([]byte(stdout), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].ID)
	assert.Equal(t, matcher.BackendHashed, runs[0].Backend)
	assert.Equal(t, 0.8, runs[0].Threshold)

	stdout, _, err = runCLI(t, "history", "show", "-c", env.configPath, summary.RunID[:8])
	require.NoError(t, err)
	assert.Contains(t, stdout, "Run:       "+summary.RunID)
	assert.Contains(t, stdout, "Unused in B: Durian")

	_, _, err = runCLI(t, "history", "show", "-c", env.configPath, "zzzz")
	require.ErrorContains(t, err, `no run matches "zzzz"`)
}

func TestMatchTableOutputAndDefaultFileName(t *testing.T) {
	env := setupCLITestEnv(t, "")
	a := writeLines(t, env.baseDir, "a.txt", "alpha", "beta")
	b := writeLines(t, env.baseDir, "b.txt", "BETA", "Alpha")

	stdout, _, err := runCLI(t, "match", "-c", env.configPath, "-a", a, "-b", b, "--format", "xlsx", "--no-history")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Wrote results to ")
	assert.Contains(t, stdout, "Exact matches")
	assert.Contains(t, stdout, "Exact match")
	assert.NotContains(t, stdout, "Run ID")

	files, err := filepath.Glob(filepath.Join(env.outputDir, "vlookup_result_*.xlsx"))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	_, err = os.Stat(env.historyPath)
	assert.True(t, os.IsNotExist(err))
}

func TestMatchRejectsInvalidThreshold(t *testing.T) {
	env := setupCLITestEnv(t, "")
	a := writeLines(t, env.baseDir, "a.txt", "x")

	_, _, err := runCLI(t, "match", "-c", env.configPath, "-a", a, "-b", a, "--threshold", "1.5")
	require.ErrorContains(t, err, "threshold")

	_, _, err = runCLI(t, "match", "-c", env.configPath, "-a", a, "-b", a, "--threshold", "NaN")
	require.ErrorContains(t, err, "threshold")

	_, _, err = runCLI(t, "match", "-c", env.configPath, "-a", a)
	require.Error(t, err)
}

func TestMatchLoadsModelOnlyWhenNeeded(t *testing.T) {
	modelDir := t.TempDir()
	env := setupCLITestEnv(t, "")
	onnx := fmt.Sprintf("[embedder]\nbackend = \"onnx\"\nmodel_dir = %q\n", modelDir)
	require.NoError(t, os.WriteFile(env.configPath, []byte(onnx), 0o644))

	same := writeLines(t, env.baseDir, "same.txt", "alpha", "beta")
	other := writeLines(t, env.baseDir, "other.txt", "gamma")
	outPath := filepath.Join(env.baseDir, "r.csv")

	// Identical lists are settled by exact matching; the missing model is never needed.
	_, _, err := runCLI(t, "match", "-c", env.configPath, "-a", same, "-b", same, "-o", outPath, "--no-history")
	require.NoError(t, err)

	_, _, err = runCLI(t, "match", "-c", env.configPath, "-a", same, "-b", other, "-o", outPath, "--no-history")
	require.Error(t, err)
	assert.True(t, errors.Is(err, matcher.ErrMatchFailed))
	assert.True(t, errors.Is(err, modelstore.ErrModelNotFound))
}

func TestColumnsCommand(t *testing.T) {
	env := setupCLITestEnv(t, "")
	path := writeLines(t, env.baseDir, "cols.csv", "Code,Name", "1,Acme")

	stdout, _, err := runCLI(t, "columns", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Header")
	assert.Contains(t, stdout, "Acme")

	stdout, _, err = runCLI(t, "columns", path, "--json")
	require.NoError(t, err)
	var payload struct {
		Columns []matcher.ColumnInfo `json:"columns"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &payload))
	assert.Equal(t, []matcher.ColumnInfo{
		{Index: 1, Name: "Code", Sample: "1"},
		{Index: 2, Name: "Name", Sample: "Acme"},
	}, payload.Columns)
}

func TestModelLocate(t *testing.T) {
	modelDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, modelstore.ModelFile), []byte("onnx"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, modelstore.TokenizerFile), []byte("{}"), 0o644))
	env := setupCLITestEnv(t, "")
	t.Setenv("VLOOKUP_MODEL_DIR", modelDir)

	stdout, _, err := runCLI(t, "model", "locate", "-c", env.configPath, "--json")
	require.NoError(t, err)
	var loc modelstore.Location
	require.NoError(t, json.Unmarshal([]byte(stdout), &loc))
	assert.True(t, loc.Found)
	assert.Equal(t, modelstore.SourceExplicit, loc.Source)
	assert.Equal(t, filepath.Join(modelDir, modelstore.ModelFile), loc.ModelPath)
}
