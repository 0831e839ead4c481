// Package config loads CineSphere configuration from built-in defaults, the
// user config file, the project config file and CINESPHERE_* environment
// variables, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"

	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CINESPHERE_"

// Project config file names, tried in order.
var projectConfigNames = []string{".cinesphere.yaml", ".cinesphere.yml"}

// Config is the complete CineSphere configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" json:"telemetry"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
}

// PathsConfig locates the catalog and the artifact directory. Relative
// paths are resolved against the directory passed to Load.
type PathsConfig struct {
	Catalog     string `yaml:"catalog" json:"catalog" env:"CATALOG"`
	ArtifactDir string `yaml:"artifact_dir" json:"artifact_dir" env:"ARTIFACT_DIR"`
}

// SearchConfig holds query-time defaults. Flags on `cinesphere search`
// override them per query.
type SearchConfig struct {
	TopK        int     `yaml:"top_k" json:"top_k" env:"TOP_K"`
	MinScore    float64 `yaml:"min_score" json:"min_score" env:"MIN_SCORE"`
	BoostRating bool    `yaml:"boost_rating" json:"boost_rating" env:"BOOST_RATING"`
	Adaptive    bool    `yaml:"adaptive" json:"adaptive" env:"ADAPTIVE"`

	// Synonyms are appended to the built-in expansion table.
	Synonyms []Synonym `yaml:"synonyms,omitempty" json:"synonyms,omitempty"`

	// PenalizedGenres replaces the default list ("Documentary") when set.
	PenalizedGenres []string `yaml:"penalized_genres,omitempty" json:"penalized_genres,omitempty" env:"PENALIZED_GENRES"`
}

// Synonym is one extra query-expansion rule.
type Synonym struct {
	Term      string `yaml:"term" json:"term"`
	Expansion string `yaml:"expansion" json:"expansion"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	Provider   string        `yaml:"provider" json:"provider" env:"EMBEDDINGS_PROVIDER"`
	Model      string        `yaml:"model" json:"model" env:"EMBEDDINGS_MODEL"`
	Dimensions int           `yaml:"dimensions" json:"dimensions" env:"EMBEDDINGS_DIMENSIONS"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size" env:"EMBEDDINGS_BATCH_SIZE"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout" env:"EMBEDDINGS_TIMEOUT"`

	// CacheSize is the number of query embeddings kept in memory.
	CacheSize int `yaml:"cache_size" json:"cache_size" env:"EMBEDDINGS_CACHE_SIZE"`

	OllamaHost    string `yaml:"ollama_host" json:"ollama_host" env:"OLLAMA_HOST"`
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url" env:"OPENAI_BASE_URL"`

	// OpenAIAPIKey is only read from the environment.
	OpenAIAPIKey string `yaml:"-" json:"-" env:"OPENAI_API_KEY"`
}

// IndexConfig selects the nearest-neighbour backend.
type IndexConfig struct {
	Backend          string `yaml:"backend" json:"backend" env:"INDEX_BACKEND"`
	M                int    `yaml:"m" json:"m" env:"HNSW_M"`
	EfSearch         int    `yaml:"ef_search" json:"ef_search" env:"HNSW_EF_SEARCH"`
	QdrantAddr       string `yaml:"qdrant_addr" json:"qdrant_addr" env:"QDRANT_ADDR"`
	QdrantCollection string `yaml:"qdrant_collection" json:"qdrant_collection" env:"QDRANT_COLLECTION"`
	QdrantAPIKey     string `yaml:"-" json:"-" env:"QDRANT_API_KEY"`

	// BuildConcurrency bounds the embedding batches in flight during a build.
	BuildConcurrency int `yaml:"build_concurrency" json:"build_concurrency" env:"BUILD_CONCURRENCY"`
}

// ServerConfig holds process-wide settings.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level" env:"LOG_LEVEL"`
}

// TelemetryConfig controls local query metrics.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" env:"TELEMETRY_ENABLED"`

	// DBPath is the SQLite file. Empty means <artifact_dir>/telemetry.db.
	DBPath string `yaml:"db_path" json:"db_path" env:"TELEMETRY_DB"`
}

// WatchConfig controls `cinesphere watch`.
type WatchConfig struct {
	// Rebuild rebuilds the artifacts when the catalog file changes.
	Rebuild  bool          `yaml:"rebuild" json:"rebuild" env:"WATCH_REBUILD"`
	Debounce time.Duration `yaml:"debounce" json:"debounce" env:"WATCH_DEBOUNCE"`
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Catalog:     "data/movies.csv",
			ArtifactDir: "data/artifacts",
		},
		Search: SearchConfig{
			TopK:        5,
			MinScore:    0.45,
			BoostRating: true,
			Adaptive:    true,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "static",
			BatchSize: 64,
			Timeout:   60 * time.Second,
			CacheSize: 1000,
		},
		Index: IndexConfig{
			Backend:          "flat",
			M:                16,
			EfSearch:         128,
			QdrantAddr:       "localhost:6334",
			QdrantCollection: "cinesphere",
			BuildConcurrency: 4,
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
		Watch: WatchConfig{
			Rebuild:  true,
			Debounce: 500 * time.Millisecond,
		},
	}
}

// GetUserConfigPath returns the user configuration file:
// $XDG_CONFIG_HOME/cinesphere/config.yaml, else ~/.config/cinesphere/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cinesphere", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "cinesphere", "config.yaml")
	}
	return filepath.Join(home, ".config", "cinesphere", "config.yaml")
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	_, err := os.Stat(GetUserConfigPath())
	return err == nil
}

// Load builds the configuration for the project rooted at dir:
//  1. defaults
//  2. user config
//  3. project config (.cinesphere.yaml in dir)
//  4. CINESPHERE_* environment variables
//
// The result is validated and its relative paths resolved against dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if UserConfigExists() {
		if err := cfg.loadYAML(GetUserConfigPath()); err != nil {
			return nil, err
		}
	}

	for _, name := range projectConfigNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.resolvePaths(dir)
	return cfg, nil
}

// loadYAML decodes path on top of the current values, so keys absent
// from the file keep their earlier value. Unknown keys are rejected.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return cerrors.New(cerrors.ErrCodeConfigNotFound, "read config file "+path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return cerrors.New(cerrors.ErrCodeConfigInvalid, "parse config file "+path, err).
			WithDetail("path", path).
			WithSuggestion("Check the YAML syntax and key names")
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return cerrors.New(cerrors.ErrCodeConfigInvalid, "parse "+EnvPrefix+"* environment", err)
	}
	return nil
}

func (c *Config) resolvePaths(dir string) {
	if dir == "" {
		return
	}
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Paths.Catalog = abs(c.Paths.Catalog)
	c.Paths.ArtifactDir = abs(c.Paths.ArtifactDir)
	c.Telemetry.DBPath = abs(c.Telemetry.DBPath)
}

// TelemetryDBPath is the metrics database location.
func (c *Config) TelemetryDBPath() string {
	if c.Telemetry.DBPath != "" {
		return c.Telemetry.DBPath
	}
	return filepath.Join(c.Paths.ArtifactDir, "telemetry.db")
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Paths.Catalog == "" {
		add("paths.catalog must be set")
	}
	if c.Paths.ArtifactDir == "" {
		add("paths.artifact_dir must be set")
	}

	if c.Search.TopK < 1 {
		add("search.top_k must be at least 1, got %d", c.Search.TopK)
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		add("search.min_score must be between 0 and 1, got %g", c.Search.MinScore)
	}
	for i, s := range c.Search.Synonyms {
		if strings.TrimSpace(s.Term) == "" || strings.TrimSpace(s.Expansion) == "" {
			add("search.synonyms[%d] needs both term and expansion", i)
		}
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "", "static", "ollama", "openai":
	default:
		add("embeddings.provider must be 'static', 'ollama' or 'openai', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		add("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize < 1 {
		add("embeddings.batch_size must be at least 1, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.CacheSize < 0 {
		add("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize)
	}

	switch strings.ToLower(c.Index.Backend) {
	case "flat", "hnsw", "qdrant":
	default:
		add("index.backend must be 'flat', 'hnsw' or 'qdrant', got %q", c.Index.Backend)
	}
	if c.Index.M < 2 {
		add("index.m must be at least 2, got %d", c.Index.M)
	}
	if c.Index.EfSearch < 1 {
		add("index.ef_search must be at least 1, got %d", c.Index.EfSearch)
	}

	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		add("server.log_level must be 'debug', 'info', 'warn' or 'error', got %q", c.Server.LogLevel)
	}

	if c.Watch.Debounce < 0 {
		add("watch.debounce must be non-negative, got %s", c.Watch.Debounce)
	}

	if len(problems) == 0 {
		return nil
	}
	return cerrors.New(cerrors.ErrCodeConfigInvalid, "invalid configuration: "+strings.Join(problems, "; "), nil).
		WithSuggestion("Fix the listed keys in .cinesphere.yaml or " + GetUserConfigPath())
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
