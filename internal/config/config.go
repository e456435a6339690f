package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete pipeline configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Language  LanguageConfig  `yaml:"language" json:"language"`
	Dump      DumpConfig      `yaml:"dump" json:"dump"`
	Stores    StoresConfig    `yaml:"stores" json:"stores"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Chunking  ChunkingConfig  `yaml:"chunking" json:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// LanguageConfig selects the locale pack and the extraction language.
// Locale drives formatting (months, joiners, quotes); Target drives which
// labels, descriptions, aliases, and sitelinks are projected from the dump.
// They are usually the same code.
type LanguageConfig struct {
	Locale string `yaml:"locale" json:"locale"`
	Target string `yaml:"target" json:"target"`
}

// DumpConfig configures the dump reader and stage batching.
type DumpConfig struct {
	// Path is the dump file (.json, .json.gz, or .json.bz2).
	Path string `yaml:"path" json:"path"`
	// Workers is the number of consumer goroutines decoding entities.
	Workers int `yaml:"workers" json:"workers"`
	// QueueSize bounds the raw-line queue between producer and consumers.
	QueueSize int `yaml:"queue_size" json:"queue_size"`
	// SkipLines resumes a partial pass by skipping the first N lines.
	SkipLines int `yaml:"skip_lines" json:"skip_lines"`
	// MaxItems stops after parsing N entities (0 = whole dump).
	MaxItems int64 `yaml:"max_items" json:"max_items"`
	// BatchIDs is the bulk-upsert threshold for stage A.
	BatchIDs int `yaml:"batch_ids" json:"batch_ids"`
	// BatchEntities is the bulk-insert threshold for stage B.
	BatchEntities int `yaml:"batch_entities" json:"batch_entities"`
	// Date identifies the dump snapshot, e.g. "2024-09-18".
	// Stamped onto every emitted chunk.
	Date string `yaml:"date" json:"date"`
}

// StoresConfig configures the on-disk SQLite stores.
type StoresConfig struct {
	// Dir is the data directory holding store files and indexes.
	Dir string `yaml:"dir" json:"dir"`
	// CacheSizeMB is the SQLite page cache per connection.
	CacheSizeMB int `yaml:"cache_size_mb" json:"cache_size_mb"`
	// LabelCacheSize is the in-memory LRU for entity label lookups
	// during textification.
	LabelCacheSize int `yaml:"label_cache_size" json:"label_cache_size"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of "jina", "ollama", "static".
	Provider string `yaml:"provider" json:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model" json:"model"`
	// Dimensions is the vector dimension (0 = provider default).
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// BatchSize is texts per embedding request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// BaseURL overrides the OpenAI-compatible endpoint (jina provider).
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`
	// OllamaHost is the Ollama endpoint (default http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// RequestTimeout is the per-request timeout, e.g. "60s".
	RequestTimeout string `yaml:"request_timeout" json:"request_timeout"`
}

// IndexConfig configures the downstream document index.
type IndexConfig struct {
	// Backend is "local" (HNSW + bleve + SQLite) or "postgres" (pgvector).
	Backend string `yaml:"backend" json:"backend"`
	// Collection names the index namespace; store files and cache
	// namespaces derive from it.
	Collection string `yaml:"collection" json:"collection"`
	// PushBatch is the BatchWriter buffer size.
	PushBatch int `yaml:"push_batch" json:"push_batch"`
	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn" json:"postgres_dsn"`
	// Oversample multiplies K for filtered vector searches on the local
	// backend before metadata post-filtering.
	Oversample int `yaml:"oversample" json:"oversample"`
}

// ChunkingConfig configures token-bounded chunking.
type ChunkingConfig struct {
	// MaxTokens is the tokenizer budget per chunk.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
}

// RetrievalConfig configures query-side defaults.
type RetrievalConfig struct {
	// K is the default number of results per query.
	K int `yaml:"k" json:"k"`
	// Mode is "dense" or "keyword".
	Mode string `yaml:"mode" json:"mode"`
	// Language is an optional filter; comma-separated codes are a
	// disjunction.
	Language string `yaml:"language" json:"language"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// DefaultWorkers returns the default consumer count: all CPUs but one,
// at least one.
func DefaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Language: LanguageConfig{
			Locale: "en",
			Target: "en",
		},
		Dump: DumpConfig{
			Workers:       DefaultWorkers(),
			QueueSize:     1000,
			SkipLines:     0,
			MaxItems:      0,
			BatchIDs:      1000,
			BatchEntities: 1000,
		},
		Stores: StoresConfig{
			Dir:            defaultDataDir(),
			CacheSizeMB:    64,
			LabelCacheSize: 100000,
		},
		Embedding: EmbeddingConfig{
			Provider:       "jina",
			Model:          "jina-embeddings-v3",
			Dimensions:     1024,
			BatchSize:      32,
			BaseURL:        "https://api.jina.ai/v1",
			APIKeyEnv:      "JINA_API_KEY",
			OllamaHost:     "",
			RequestTimeout: "60s",
		},
		Index: IndexConfig{
			Backend:    "local",
			Collection: "wikidata",
			PushBatch:  100,
			Oversample: 4,
		},
		Chunking: ChunkingConfig{
			MaxTokens: 512,
		},
		Retrieval: RetrievalConfig{
			K:    10,
			Mode: "dense",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// defaultDataDir returns the default data directory (~/.wikidex).
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".wikidex")
	}
	return filepath.Join(home, ".wikidex")
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/wikidex/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/wikidex/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "wikidex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "wikidex", "config.yaml")
	}
	return filepath.Join(home, ".config", "wikidex", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/wikidex/config.yaml)
//  3. Project config (.wikidex.yaml in dir)
//  4. Environment variables (WIKIDEX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile loads configuration from an explicit project config file
// instead of searching dir for .wikidex.yaml. User config and
// environment overrides apply as in Load.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .wikidex.yaml or .wikidex.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".wikidex.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".wikidex.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine, defaults apply.
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Language.Locale != "" {
		c.Language.Locale = other.Language.Locale
	}
	if other.Language.Target != "" {
		c.Language.Target = other.Language.Target
	}

	if other.Dump.Path != "" {
		c.Dump.Path = other.Dump.Path
	}
	if other.Dump.Workers != 0 {
		c.Dump.Workers = other.Dump.Workers
	}
	if other.Dump.QueueSize != 0 {
		c.Dump.QueueSize = other.Dump.QueueSize
	}
	if other.Dump.SkipLines != 0 {
		c.Dump.SkipLines = other.Dump.SkipLines
	}
	if other.Dump.MaxItems != 0 {
		c.Dump.MaxItems = other.Dump.MaxItems
	}
	if other.Dump.BatchIDs != 0 {
		c.Dump.BatchIDs = other.Dump.BatchIDs
	}
	if other.Dump.BatchEntities != 0 {
		c.Dump.BatchEntities = other.Dump.BatchEntities
	}
	if other.Dump.Date != "" {
		c.Dump.Date = other.Dump.Date
	}

	if other.Stores.Dir != "" {
		c.Stores.Dir = other.Stores.Dir
	}
	if other.Stores.CacheSizeMB != 0 {
		c.Stores.CacheSizeMB = other.Stores.CacheSizeMB
	}
	if other.Stores.LabelCacheSize != 0 {
		c.Stores.LabelCacheSize = other.Stores.LabelCacheSize
	}

	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.BaseURL != "" {
		c.Embedding.BaseURL = other.Embedding.BaseURL
	}
	if other.Embedding.APIKeyEnv != "" {
		c.Embedding.APIKeyEnv = other.Embedding.APIKeyEnv
	}
	if other.Embedding.OllamaHost != "" {
		c.Embedding.OllamaHost = other.Embedding.OllamaHost
	}
	if other.Embedding.RequestTimeout != "" {
		c.Embedding.RequestTimeout = other.Embedding.RequestTimeout
	}

	if other.Index.Backend != "" {
		c.Index.Backend = other.Index.Backend
	}
	if other.Index.Collection != "" {
		c.Index.Collection = other.Index.Collection
	}
	if other.Index.PushBatch != 0 {
		c.Index.PushBatch = other.Index.PushBatch
	}
	if other.Index.PostgresDSN != "" {
		c.Index.PostgresDSN = other.Index.PostgresDSN
	}
	if other.Index.Oversample != 0 {
		c.Index.Oversample = other.Index.Oversample
	}

	if other.Chunking.MaxTokens != 0 {
		c.Chunking.MaxTokens = other.Chunking.MaxTokens
	}

	if other.Retrieval.K != 0 {
		c.Retrieval.K = other.Retrieval.K
	}
	if other.Retrieval.Mode != "" {
		c.Retrieval.Mode = other.Retrieval.Mode
	}
	if other.Retrieval.Language != "" {
		c.Retrieval.Language = other.Retrieval.Language
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
}

// applyEnvOverrides applies WIKIDEX_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("WIKIDEX_LANGUAGE"); v != "" {
		c.Language.Locale = v
		c.Language.Target = v
	}
	if v := os.Getenv("WIKIDEX_DUMP_PATH"); v != "" {
		c.Dump.Path = v
	}
	if v := os.Getenv("WIKIDEX_DUMP_DATE"); v != "" {
		c.Dump.Date = v
	}
	if v := os.Getenv("WIKIDEX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Dump.Workers = n
		}
	}
	if v := os.Getenv("WIKIDEX_DATA_DIR"); v != "" {
		c.Stores.Dir = v
	}
	if v := os.Getenv("WIKIDEX_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("WIKIDEX_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("WIKIDEX_EMBEDDING_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("WIKIDEX_OLLAMA_HOST"); v != "" {
		c.Embedding.OllamaHost = v
	}
	if v := os.Getenv("WIKIDEX_INDEX_BACKEND"); v != "" {
		c.Index.Backend = v
	}
	if v := os.Getenv("WIKIDEX_COLLECTION"); v != "" {
		c.Index.Collection = v
	}
	if v := os.Getenv("WIKIDEX_PG_DSN"); v != "" {
		c.Index.PostgresDSN = v
	}
	if v := os.Getenv("WIKIDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Language.Locale == "" {
		return fmt.Errorf("language.locale must not be empty")
	}
	if c.Language.Target == "" {
		return fmt.Errorf("language.target must not be empty")
	}

	if c.Dump.Workers < 1 {
		return fmt.Errorf("dump.workers must be at least 1, got %d", c.Dump.Workers)
	}
	if c.Dump.QueueSize < 1 {
		return fmt.Errorf("dump.queue_size must be at least 1, got %d", c.Dump.QueueSize)
	}
	if c.Dump.SkipLines < 0 {
		return fmt.Errorf("dump.skip_lines must be non-negative, got %d", c.Dump.SkipLines)
	}
	if c.Dump.BatchIDs < 1 {
		return fmt.Errorf("dump.batch_ids must be at least 1, got %d", c.Dump.BatchIDs)
	}
	if c.Dump.BatchEntities < 1 {
		return fmt.Errorf("dump.batch_entities must be at least 1, got %d", c.Dump.BatchEntities)
	}

	validProviders := map[string]bool{"jina": true, "ollama": true, "static": true}
	if !validProviders[strings.ToLower(c.Embedding.Provider)] {
		return fmt.Errorf("embedding.provider must be 'jina', 'ollama', or 'static', got %s", c.Embedding.Provider)
	}
	if c.Embedding.BatchSize < 1 {
		return fmt.Errorf("embedding.batch_size must be at least 1, got %d", c.Embedding.BatchSize)
	}

	validBackends := map[string]bool{"local": true, "postgres": true}
	if !validBackends[strings.ToLower(c.Index.Backend)] {
		return fmt.Errorf("index.backend must be 'local' or 'postgres', got %s", c.Index.Backend)
	}
	if strings.ToLower(c.Index.Backend) == "postgres" && c.Index.PostgresDSN == "" {
		return fmt.Errorf("index.postgres_dsn is required for the postgres backend")
	}
	if c.Index.Collection == "" {
		return fmt.Errorf("index.collection must not be empty")
	}
	if c.Index.PushBatch < 1 {
		return fmt.Errorf("index.push_batch must be at least 1, got %d", c.Index.PushBatch)
	}
	if c.Index.Oversample < 1 {
		return fmt.Errorf("index.oversample must be at least 1, got %d", c.Index.Oversample)
	}

	if c.Chunking.MaxTokens < 1 {
		return fmt.Errorf("chunking.max_tokens must be at least 1, got %d", c.Chunking.MaxTokens)
	}

	if c.Retrieval.K < 1 {
		return fmt.Errorf("retrieval.k must be at least 1, got %d", c.Retrieval.K)
	}
	validModes := map[string]bool{"dense": true, "keyword": true}
	if !validModes[strings.ToLower(c.Retrieval.Mode)] {
		return fmt.Errorf("retrieval.mode must be 'dense' or 'keyword', got %s", c.Retrieval.Mode)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
