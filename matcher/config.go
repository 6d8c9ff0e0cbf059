package matcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"yashubustudio/vlookup/emb"
)

// Embedder backends.
const (
	BackendONNX   = "onnx"
	BackendHashed = "hashed"
)

// Output formats.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// DefaultThreshold is the minimum similarity for a fuzzy match.
const DefaultThreshold = 0.75

// DefaultModelName is the embedding model looked up when none is configured.
const DefaultModelName = "BAAI/bge-base-zh-v1.5"

// MatchConfig controls the matching pipeline.
type MatchConfig struct {
	Threshold float64 `toml:"threshold"`
}

// EmbedderConfig wraps the configuration for the embedder and its cache.
type EmbedderConfig struct {
	Backend       string `toml:"backend"`
	OrtLibrary    string `toml:"ort_library"`
	ModelName     string `toml:"model_name"`
	ModelDir      string `toml:"model_dir"`
	ModelPath     string `toml:"model_path"`
	TokenizerPath string `toml:"tokenizer_path"`
	MaxSeqLen     int    `toml:"max_seq_len"`
	Pooling       string `toml:"pooling"`
	CacheDir      string `toml:"cache_dir"`
	ModelID       string `toml:"model_id"`
	HashedDim     int    `toml:"hashed_dim"`
}

// InputConfig selects the column read from each input file.
type InputConfig struct {
	ColumnA string `toml:"column_a"`
	ColumnB string `toml:"column_b"`
	Sheet   string `toml:"sheet"`
	NFKC    bool   `toml:"nfkc"`
}

// OutputConfig controls where results are written.
type OutputConfig struct {
	Dir    string `toml:"dir"`
	Format string `toml:"format"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// HistoryConfig configures the run history database.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Config aggregates runtime settings persisted to config.toml.
type Config struct {
	Match    MatchConfig    `toml:"match"`
	Embedder EmbedderConfig `toml:"embedder"`
	Input    InputConfig    `toml:"input"`
	Output   OutputConfig   `toml:"output"`
	Logging  LoggingConfig  `toml:"logging"`
	History  HistoryConfig  `toml:"history"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	cfg := Config{
		Match:   MatchConfig{Threshold: DefaultThreshold},
		Input:   InputConfig{NFKC: true},
		History: HistoryConfig{Enabled: true},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults populates zero values with sensible defaults. A zero
// threshold is a valid setting and is left alone.
func (c *Config) ApplyDefaults() {
	if c.Embedder.Backend == "" {
		c.Embedder.Backend = BackendONNX
	}
	if c.Embedder.ModelName == "" {
		c.Embedder.ModelName = DefaultModelName
	}
	if c.Embedder.MaxSeqLen == 0 {
		c.Embedder.MaxSeqLen = 512
	}
	if c.Embedder.Pooling == "" {
		c.Embedder.Pooling = emb.PoolingCLS
	}
	if c.Embedder.CacheDir == "" {
		c.Embedder.CacheDir = "~/.cache/vlookup/embeddings"
	}
	if c.Embedder.HashedDim == 0 {
		c.Embedder.HashedDim = DefaultHashedDim
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "."
	}
	if c.Output.Format == "" {
		c.Output.Format = FormatXLSX
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.History.Path == "" {
		c.History.Path = "~/.local/share/vlookup/history.db"
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if t := c.Match.Threshold; !(t >= 0 && t <= 1) {
		return errors.New("match.threshold must be between 0 and 1")
	}
	switch c.Embedder.Backend {
	case BackendONNX, BackendHashed:
	default:
		return fmt.Errorf("embedder.backend: unsupported value %q", c.Embedder.Backend)
	}
	switch c.Embedder.Pooling {
	case emb.PoolingCLS, emb.PoolingMean:
	default:
		return fmt.Errorf("embedder.pooling: unsupported value %q", c.Embedder.Pooling)
	}
	if c.Embedder.MaxSeqLen < 2 {
		return errors.New("embedder.max_seq_len must be at least 2")
	}
	if c.Embedder.HashedDim < 0 {
		return errors.New("embedder.hashed_dim must not be negative")
	}
	switch c.Output.Format {
	case FormatXLSX, FormatCSV:
	default:
		return fmt.Errorf("output.format: unsupported value %q", c.Output.Format)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/vlookup/config.toml")
}

// LoadConfig locates, parses, and validates a configuration file. Variables
// from a .env file in the working directory and VLOOKUP_* environment
// variables override file values. It also returns the resolved path and
// whether a file existed there.
func LoadConfig(path string) (Config, string, bool, error) {
	cfg := DefaultConfig()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return Config{}, "", false, err
	}
	if exists {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return Config{}, "", false, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, "", false, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, "", false, err
	}
	cfg.ApplyDefaults()
	if err := cfg.expandPaths(); err != nil {
		return Config{}, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, "", false, err
	}
	return cfg, resolved, exists, nil
}

// SaveConfig persists configuration to disk.
func SaveConfig(path string, cfg Config) error {
	if path == "" {
		return errors.New("config path is required")
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	cfg.ApplyDefaults()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("vlookup.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) applyEnv() error {
	strVars := map[string]*string{
		"VLOOKUP_BACKEND":        &c.Embedder.Backend,
		"VLOOKUP_ORT_LIBRARY":    &c.Embedder.OrtLibrary,
		"VLOOKUP_MODEL_NAME":     &c.Embedder.ModelName,
		"VLOOKUP_MODEL_DIR":      &c.Embedder.ModelDir,
		"VLOOKUP_CACHE_DIR":      &c.Embedder.CacheDir,
		"VLOOKUP_OUTPUT_DIR":     &c.Output.Dir,
		"VLOOKUP_OUTPUT_FORMAT":  &c.Output.Format,
		"VLOOKUP_LOG_LEVEL":      &c.Logging.Level,
		"VLOOKUP_LOG_FORMAT":     &c.Logging.Format,
		"VLOOKUP_HISTORY_PATH":   &c.History.Path,
		"VLOOKUP_TOKENIZER_PATH": &c.Embedder.TokenizerPath,
		"VLOOKUP_MODEL_PATH":     &c.Embedder.ModelPath,
	}
	for name, dst := range strVars {
		if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	if v, ok := os.LookupEnv("VLOOKUP_THRESHOLD"); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("VLOOKUP_THRESHOLD: %w", err)
		}
		c.Match.Threshold = f
	}
	if v, ok := os.LookupEnv("VLOOKUP_HISTORY"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("VLOOKUP_HISTORY: %w", err)
		}
		c.History.Enabled = b
	}
	return nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.Embedder.ModelDir,
		&c.Embedder.ModelPath,
		&c.Embedder.TokenizerPath,
		&c.Embedder.CacheDir,
		&c.Output.Dir,
		&c.History.Path,
	} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	// A bare library name is left for the dynamic loader to resolve.
	if strings.ContainsAny(c.Embedder.OrtLibrary, `/\`) {
		expanded, err := ExpandPath(c.Embedder.OrtLibrary)
		if err != nil {
			return err
		}
		c.Embedder.OrtLibrary = expanded
	}
	return nil
}

// ExpandPath resolves a leading ~ and returns an absolute, cleaned path.
// The empty string is returned unchanged.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
