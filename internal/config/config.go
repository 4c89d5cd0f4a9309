// Package config defines the engine's configuration surface, with
// YAML-tagged defaults, validation, and a
// convenience loader. Finding and watching a project's config file on disk
// remains a collaborator's responsibility — Load here is an optional
// shortcut a caller (or a test) may use, not a mandatory discovery path.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the engine's complete configuration.
type Config struct {
	Parse      ParseConfig      `yaml:"parse" json:"parse"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Resources  ResourcesConfig  `yaml:"resources" json:"resources"`
	LogLevel   string           `yaml:"log_level" json:"log_level"`
}

// ParseConfig controls which files the parse coordinator considers.
type ParseConfig struct {
	Glob        []string `yaml:"parse_glob" json:"parse_glob"`
	ExcludeGlob []string `yaml:"exclude_glob" json:"exclude_glob"`
}

// WatchConfig controls incremental re-parse triggers.
type WatchConfig struct {
	Glob          []string `yaml:"watch_glob" json:"watch_glob"`
	DebounceMS    int      `yaml:"watch_debounce_ms" json:"watch_debounce_ms"`
}

// SearchConfig controls query engine defaults.
type SearchConfig struct {
	TopK         int `yaml:"top_k" json:"top_k"`
	SnippetLines int `yaml:"snippet_lines" json:"snippet_lines"`
}

// IndexConfig controls HNSW index parameters and persistence.
type IndexConfig struct {
	Dimensions     int    `yaml:"dimensions" json:"dimensions"`
	MaxElements    int    `yaml:"max_elements" json:"max_elements"`
	M              int    `yaml:"m" json:"m"`
	EfConstruction int    `yaml:"ef_construction" json:"ef_construction"`
	Ef             int    `yaml:"ef" json:"ef"`
	Space          string `yaml:"space" json:"space"` // cosine | l2 | ip
	StorageFile    string `yaml:"storage_file" json:"storage_file"`
	IndexFile      string `yaml:"index_file" json:"index_file"`
	AutoSave       bool   `yaml:"auto_save" json:"auto_save"`
	SaveIntervalS  int    `yaml:"save_interval_s" json:"save_interval_s"`
	EnableNative   bool   `yaml:"enable_native" json:"enable_native"`
}

// EmbeddingsConfig selects and batches the external Embedder.
type EmbeddingsConfig struct {
	ModelName string `yaml:"model_name" json:"model_name"`
	ModelHost string `yaml:"model_host" json:"model_host"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
}

// CacheConfig controls the multi-level cache.
type CacheConfig struct {
	L1Enabled         bool   `yaml:"l1_enabled" json:"l1_enabled"`
	L1MaxEntries      int    `yaml:"l1_max_entries" json:"l1_max_entries"`
	L2Enabled         bool   `yaml:"l2_enabled" json:"l2_enabled"`
	L2Dir             string `yaml:"l2_dir" json:"l2_dir"`
	L3Enabled         bool   `yaml:"l3_enabled" json:"l3_enabled"`
	L3Path            string `yaml:"l3_path" json:"l3_path"`
	DefaultTTLSeconds int    `yaml:"default_ttl_seconds" json:"default_ttl_seconds"`
	PromotionEnabled  bool   `yaml:"promotion_enabled" json:"promotion_enabled"`
	WarmingEnabled    bool   `yaml:"warming_enabled" json:"warming_enabled"`
}

// ResourcesConfig controls worker concurrency and soft limits.
type ResourcesConfig struct {
	Concurrency     int  `yaml:"concurrency" json:"concurrency"`
	MaxMemoryMB     int  `yaml:"max_memory_mb" json:"max_memory_mb"`
	EnableTelemetry bool `yaml:"enable_telemetry" json:"enable_telemetry"`
}

// NewConfig returns a fully-populated default configuration.
func NewConfig() *Config {
	return &Config{
		Parse: ParseConfig{
			Glob:        []string{"**/*.go", "**/*.ts", "**/*.tsx", "**/*.js", "**/*.py"},
			ExcludeGlob: defaultExcludePatterns(),
		},
		Watch: WatchConfig{
			Glob:       []string{"**/*.go", "**/*.ts", "**/*.tsx", "**/*.js", "**/*.py"},
			DebounceMS: 500,
		},
		Search: SearchConfig{
			TopK:         10,
			SnippetLines: 6,
		},
		Index: IndexConfig{
			Dimensions:     768,
			MaxElements:    100_000,
			M:              16,
			EfConstruction: 200,
			Ef:             50,
			Space:          "cosine",
			StorageFile:    ".astdb/metadata.db",
			IndexFile:      ".astdb/index.bin",
			AutoSave:       true,
			SaveIntervalS:  60,
			EnableNative:   true,
		},
		Embeddings: EmbeddingsConfig{
			ModelName: "",
			ModelHost: "",
			BatchSize: 32,
		},
		Cache: CacheConfig{
			L1Enabled:         true,
			L1MaxEntries:      10_000,
			L2Enabled:         true,
			L2Dir:             ".astdb/l2-disk",
			L3Enabled:         true,
			L3Path:            ".astdb/l3-cache.db",
			DefaultTTLSeconds: 3600,
			PromotionEnabled:  true,
			WarmingEnabled:    true,
		},
		Resources: ResourcesConfig{
			Concurrency:     4,
			MaxMemoryMB:     2048,
			EnableTelemetry: false,
		},
	}
}

func defaultExcludePatterns() []string {
	return []string{
		"**/node_modules/**",
		"**/.git/**",
		"**/vendor/**",
		"**/__pycache__/**",
		"**/dist/**",
		"**/build/**",
		"**/*.min.js",
		"**/*.min.css",
	}
}

// Load reads layered configuration: defaults, then (if present) a
// "astdb.yaml"/"astdb.yml" file in dir, then ASTDB_* environment
// overrides. A missing file is not an error — defaults apply.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := mergeFromFile(cfg, dir); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFromFile(cfg *Config, dir string) error {
	for _, name := range []string{"astdb.yaml", "astdb.yml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("reading %s: %w", path, err)
		}
		return yaml.Unmarshal(data, cfg)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ASTDB_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.TopK = n
		}
	}
	if v := os.Getenv("ASTDB_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Resources.Concurrency = n
		}
	}
	if v := os.Getenv("ASTDB_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ASTDB_MODEL_NAME"); v != "" {
		cfg.Embeddings.ModelName = v
	}
}

// Validate checks the configuration for internally-consistent values.
func (c *Config) Validate() error {
	if c.Index.Dimensions < 1 {
		return fmt.Errorf("index.dimensions must be >= 1, got %d", c.Index.Dimensions)
	}
	if c.Index.M < 4 || c.Index.M > 64 {
		return fmt.Errorf("index.m must be in [4, 64], got %d", c.Index.M)
	}
	if c.Index.EfConstruction < 16 || c.Index.EfConstruction > 800 {
		return fmt.Errorf("index.ef_construction must be in [16, 800], got %d", c.Index.EfConstruction)
	}
	if c.Index.Ef < 16 || c.Index.Ef > 512 {
		return fmt.Errorf("index.ef must be in [16, 512], got %d", c.Index.Ef)
	}
	switch c.Index.Space {
	case "cosine", "l2", "ip":
	default:
		return fmt.Errorf("index.space must be one of cosine|l2|ip, got %q", c.Index.Space)
	}
	if c.Search.TopK < 0 {
		return fmt.Errorf("search.top_k must be >= 0, got %d", c.Search.TopK)
	}
	if c.Resources.Concurrency < 1 {
		return fmt.Errorf("resources.concurrency must be >= 1, got %d", c.Resources.Concurrency)
	}
	if c.Embeddings.BatchSize < 1 {
		return fmt.Errorf("embeddings.batch_size must be >= 1, got %d", c.Embeddings.BatchSize)
	}
	if strings.TrimSpace(c.Index.IndexFile) == "" {
		return fmt.Errorf("index.index_file must not be empty")
	}
	return nil
}
