package modelstore_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/vlookup/internal/modelstore"
)

const modelName = "BAAI/bge-base-zh-v1.5"

func writeModel(t *testing.T, dir string, onnxSubdir bool) {
	t.Helper()
	modelDir := dir
	if onnxSubdir {
		modelDir = filepath.Join(dir, "onnx")
	}
	require.NoError(t, os.MkdirAll(modelDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, modelstore.ModelFile), []byte("onnx"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, modelstore.TokenizerFile), []byte("{}"), 0o644))
}

func TestLocateExplicitDir(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, false)

	loc := modelstore.Locator{Name: modelName, Dir: dir, AppCacheDir: t.TempDir()}.Locate()
	require.True(t, loc.Found)
	assert.Equal(t, modelstore.SourceExplicit, loc.Source)
	assert.Equal(t, filepath.Join(dir, modelstore.ModelFile), loc.ModelPath)
	assert.Equal(t, filepath.Join(dir, modelstore.TokenizerFile), loc.TokenizerPath)
	require.NoError(t, loc.Require())
}

func TestLocateExplicitDirMissingDoesNotFallBack(t *testing.T) {
	appCache := t.TempDir()
	writeModel(t, filepath.Join(appCache, modelstore.DirName(modelName)), false)

	missing := filepath.Join(t.TempDir(), "nope")
	loc := modelstore.Locator{Name: modelName, Dir: missing, AppCacheDir: appCache}.Locate()
	assert.False(t, loc.Found)
	assert.Equal(t, missing, loc.Dir)
	require.ErrorIs(t, loc.Require(), modelstore.ErrModelNotFound)
}

func TestLocatePrefersBundledOverCache(t *testing.T) {
	exeDir := t.TempDir()
	appCache := t.TempDir()
	writeModel(t, filepath.Join(exeDir, "models", "BAAI_bge-base-zh-v1.5"), false)
	writeModel(t, filepath.Join(appCache, "BAAI_bge-base-zh-v1.5"), false)

	loc := modelstore.Locator{Name: modelName, ExecutableDir: exeDir, AppCacheDir: appCache}.Locate()
	require.True(t, loc.Found)
	assert.Equal(t, modelstore.SourceBundled, loc.Source)
}

func TestLocateSecondaryCacheWithOnnxSubdir(t *testing.T) {
	stCache := t.TempDir()
	target := filepath.Join(stCache, "BAAI_bge-base-zh-v1.5")
	writeModel(t, target, true)

	loc := modelstore.Locator{
		Name:        modelName,
		AppCacheDir: t.TempDir(),
		CacheDirs:   []string{stCache},
	}.Locate()
	require.True(t, loc.Found)
	assert.Equal(t, modelstore.SourceCache, loc.Source)
	assert.Equal(t, filepath.Join(target, "onnx", modelstore.ModelFile), loc.ModelPath)
	assert.Len(t, loc.Searched, 2)
}

func TestLocateHubSnapshotNewestFirst(t *testing.T) {
	hub := t.TempDir()
	snapRoot := filepath.Join(hub, "models--BAAI--bge-base-zh-v1.5", "snapshots")
	older := filepath.Join(snapRoot, "aaa")
	newer := filepath.Join(snapRoot, "bbb")
	writeModel(t, older, false)
	writeModel(t, newer, false)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	loc := modelstore.Locator{Name: modelName, HubCacheDir: hub}.Locate()
	require.True(t, loc.Found)
	assert.Equal(t, modelstore.SourceHubCache, loc.Source)
	assert.Equal(t, newer, loc.Dir)
}

func TestLocateFallsBackToAppCache(t *testing.T) {
	appCache := t.TempDir()
	loc := modelstore.Locator{Name: modelName, AppCacheDir: appCache}.Locate()
	assert.False(t, loc.Found)
	assert.Equal(t, modelstore.SourceNotFound, loc.Source)
	assert.Equal(t, filepath.Join(appCache, "BAAI_bge-base-zh-v1.5"), loc.Dir)
}

func TestTokenizerRequired(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, modelstore.ModelFile), []byte("onnx"), 0o644))

	loc := modelstore.Locator{Name: modelName, Dir: dir}.Locate()
	assert.False(t, loc.Found)
}
