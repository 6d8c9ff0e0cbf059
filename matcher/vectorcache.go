package matcher

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gofrs/flock"
)

// vectorCache keeps embeddings in memory and, when dir is set, as
// <dir>/<key>.bin files shared by every process using the same directory.
type vectorCache struct {
	dir  string
	lock *flock.Flock

	mu      sync.RWMutex
	entries map[string][]float32
}

func newVectorCache(dir string) (*vectorCache, error) {
	c := &vectorCache{dir: dir, entries: make(map[string][]float32)}
	if dir == "" {
		return c, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	c.lock = flock.New(filepath.Join(dir, ".lock"))
	return c, nil
}

// vectorKey identifies text embedded by modelID.
func vectorKey(modelID, text string) string {
	sum := sha1.Sum([]byte(modelID + "|" + text))
	return hex.EncodeToString(sum[:])
}

// get returns a copy of the cached vector. Disk hits are promoted to memory.
// An unreadable file is reported as a miss together with its error.
func (c *vectorCache) get(key string) ([]float32, bool, error) {
	c.mu.RLock()
	vec, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return slices.Clone(vec), true, nil
	}
	if c.dir == "" {
		return nil, false, nil
	}
	vec, err := readVectorFile(c.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	c.remember(key, vec)
	return vec, true, nil
}

// put stores vec in memory and on disk. Disk writes hold the directory lock.
func (c *vectorCache) put(key string, vec []float32) error {
	c.remember(key, vec)
	if c.dir == "" {
		return nil
	}
	if err := c.lock.Lock(); err != nil {
		return fmt.Errorf("lock cache dir: %w", err)
	}
	defer func() { _ = c.lock.Unlock() }()
	return writeVectorFile(c.path(key), vec)
}

func (c *vectorCache) remember(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries != nil {
		c.entries[key] = slices.Clone(vec)
	}
}

// reset drops the memory entries and stops further memory caching.
func (c *vectorCache) reset() {
	c.mu.Lock()
	c.entries = nil
	c.mu.Unlock()
}

func (c *vectorCache) path(key string) string {
	return filepath.Join(c.dir, key+".bin")
}

// Cache files hold a little endian uint32 count followed by that many float32
// values.

func readVectorFile(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("%s: truncated header", filepath.Base(path))
	}
	n := binary.LittleEndian.Uint32(data)
	body := data[4:]
	if uint64(len(body)) != uint64(n)*4 {
		return nil, fmt.Errorf("%s: header says %d values, body has %d bytes", filepath.Base(path), n, len(body))
	}
	vec := make([]float32, n)
	if _, err := binary.Decode(body, binary.LittleEndian, vec); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return vec, nil
}

func writeVectorFile(path string, vec []float32) error {
	buf := binary.LittleEndian.AppendUint32(make([]byte, 0, 4+4*len(vec)), uint32(len(vec)))
	buf, err := binary.Append(buf, binary.LittleEndian, vec)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
