// Package modelstore finds the on-disk copy of the embedding model.
//
// Search order: an explicitly configured directory, a copy bundled in
// "models/" next to the executable, then existing copies in the application
// cache, the sentence-transformers cache and the Hugging Face hub cache. When
// nothing is found the application cache path is reported so the user knows
// where to put the files.
package modelstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Required file names inside a model directory.
const (
	ModelFile     = "model.onnx"
	TokenizerFile = "tokenizer.json"
)

// Sources reported by Locate.
const (
	SourceExplicit  = "explicit"
	SourceBundled   = "bundled"
	SourceCache     = "cache"
	SourceHubCache  = "hf-hub"
	SourceNotFound  = "missing"
	appCacheDirName = "vlookup"
)

// ErrModelNotFound is returned by Location.Require when no usable copy exists.
var ErrModelNotFound = errors.New("embedding model not found")

// Locator describes where to search for a model.
type Locator struct {
	// Name is the Hugging Face model id, e.g. "BAAI/bge-base-zh-v1.5".
	Name string
	// Dir is an explicitly configured model directory. When set, it is the
	// only candidate.
	Dir string
	// ExecutableDir holds the bundled "models" folder.
	ExecutableDir string
	// AppCacheDir is the application's own model cache root.
	AppCacheDir string
	// CacheDirs are further roots holding "<org>_<name>" directories.
	CacheDirs []string
	// HubCacheDir is the Hugging Face hub cache root.
	HubCacheDir string
}

// Location is the outcome of Locate.
type Location struct {
	Dir           string `json:"dir"`
	ModelPath     string `json:"modelPath"`
	TokenizerPath string `json:"tokenizerPath"`
	Source        string `json:"source"`
	Found         bool   `json:"found"`
	// Searched lists every directory that was checked, in order.
	Searched []string `json:"searched"`
}

// Require returns an error when the model was not found.
func (l Location) Require() error {
	if l.Found {
		return nil
	}
	return fmt.Errorf("%w: expected %s and %s in %s (searched %s)",
		ErrModelNotFound, ModelFile, TokenizerFile, l.Dir, strings.Join(l.Searched, ", "))
}

// Default returns a Locator for name using the executable directory and the
// user's cache directories.
func Default(name, dir string) Locator {
	loc := Locator{Name: name, Dir: dir}
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		loc.ExecutableDir = filepath.Dir(exe)
	}
	if cache, err := os.UserCacheDir(); err == nil {
		loc.AppCacheDir = filepath.Join(cache, appCacheDirName, "models")
	}
	if home, err := os.UserHomeDir(); err == nil {
		loc.CacheDirs = append(loc.CacheDirs, filepath.Join(home, ".cache", "torch", "sentence_transformers"))
		loc.HubCacheDir = filepath.Join(home, ".cache", "huggingface", "hub")
	}
	if hf := os.Getenv("HF_HOME"); hf != "" {
		loc.HubCacheDir = filepath.Join(hf, "hub")
	}
	return loc
}

// DirName returns the flattened directory name used for name in caches.
func DirName(name string) string {
	return strings.ReplaceAll(name, "/", "_")
}

// Locate searches the configured places in order and returns the first usable
// model directory.
func (l Locator) Locate() Location {
	var searched []string
	try := func(dir, source string) (Location, bool) {
		if dir == "" {
			return Location{}, false
		}
		searched = append(searched, dir)
		if model, tok, ok := usable(dir); ok {
			return Location{Dir: dir, ModelPath: model, TokenizerPath: tok, Source: source, Found: true}, true
		}
		return Location{}, false
	}

	if l.Dir != "" {
		loc, ok := try(l.Dir, SourceExplicit)
		if !ok {
			loc = Location{Dir: l.Dir, Source: SourceNotFound}
		}
		loc.Searched = searched
		return loc
	}

	flat := DirName(l.Name)
	if l.ExecutableDir != "" {
		if loc, ok := try(filepath.Join(l.ExecutableDir, "models", flat), SourceBundled); ok {
			loc.Searched = searched
			return loc
		}
	}
	for _, root := range append([]string{l.AppCacheDir}, l.CacheDirs...) {
		if root == "" {
			continue
		}
		if loc, ok := try(filepath.Join(root, flat), SourceCache); ok {
			loc.Searched = searched
			return loc
		}
	}
	if l.HubCacheDir != "" && l.Name != "" {
		for _, snap := range hubSnapshots(l.HubCacheDir, l.Name) {
			if loc, ok := try(snap, SourceHubCache); ok {
				loc.Searched = searched
				return loc
			}
		}
	}

	fallback := ""
	if l.AppCacheDir != "" {
		fallback = filepath.Join(l.AppCacheDir, flat)
	}
	return Location{Dir: fallback, Source: SourceNotFound, Searched: searched}
}

// usable reports the model and tokenizer paths of dir. Exported ONNX models
// often live in an "onnx" subdirectory, which is checked as well.
func usable(dir string) (string, string, bool) {
	tok := filepath.Join(dir, TokenizerFile)
	if !isFile(tok) {
		return "", "", false
	}
	for _, model := range []string{
		filepath.Join(dir, ModelFile),
		filepath.Join(dir, "onnx", ModelFile),
	} {
		if isFile(model) {
			return model, tok, true
		}
	}
	return "", "", false
}

// hubSnapshots lists snapshot directories of name in a Hugging Face hub cache,
// newest modification first.
func hubSnapshots(hubDir, name string) []string {
	root := filepath.Join(hubDir, "models--"+strings.ReplaceAll(name, "/", "--"), "snapshots")
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	type snap struct {
		path string
		mod  int64
	}
	snaps := make([]snap, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		snaps = append(snaps, snap{path: filepath.Join(root, e.Name()), mod: info.ModTime().UnixNano()})
	}
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].mod > snaps[j].mod })
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.path
	}
	return out
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
