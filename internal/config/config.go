// Package config handles engine configuration stored in sbe.yml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine configuration.
type Config struct {
	Data      DataConfig      `yaml:"data"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Search    SearchConfig    `yaml:"search"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Dir is the directory relative data paths are resolved against.
	// It is the config file's directory, or the working directory when no
	// file was found.
	Dir string `yaml:"-"`
}

// DataConfig locates the corpus and derived artifacts.
type DataConfig struct {
	Records  string `yaml:"records"`   // publications CSV
	Vectors  string `yaml:"vectors"`   // embedding matrix (.npy)
	CacheDir string `yaml:"cache_dir"` // explorer SQLite cache
	PDFDir   string `yaml:"pdf_dir"`   // optional full-text PDFs, named {n}_*.pdf
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // ollama, openai
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// LLMConfig configures the completion endpoint.
type LLMConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKey            string `yaml:"api_key"`
	Model             string `yaml:"model"`
	TimeoutSec        int    `yaml:"timeout_sec"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// SearchConfig holds ranking and context budgets.
type SearchConfig struct {
	TopK              int `yaml:"top_k"`
	ChatTopK          int `yaml:"chat_top_k"`
	SummaryChars      int `yaml:"summary_chars"`
	EntityChars       int `yaml:"entity_chars"`
	ContextChars      int `yaml:"context_chars"`
	ContextFieldChars int `yaml:"context_field_chars"`
	EmbedTimeoutSec   int `yaml:"embed_timeout_sec"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Env   string `yaml:"env"`   // local, dev, prod
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

const (
	// ConfigFile is the config file name looked up from the working directory.
	ConfigFile = "sbe.yml"
	// ConfigEnv names the environment variable that points at a config file.
	ConfigEnv = "SBE_CONFIG"

	DefaultRecordsPath = "data/publications.csv"
	DefaultVectorsPath = "data/corpus_embeddings.npy"
	DefaultCacheDir    = ".sbe/cache"
	DBFile             = "publications.db"
)

// ValidProviders lists the supported embedding providers.
var ValidProviders = []string{"ollama", "openai"}

// ValidLogEnvs lists the supported logging environments.
var ValidLogEnvs = []string{"local", "dev", "prod"}

// Load reads configuration from path. An empty path falls back to
// $SBE_CONFIG, then to sbe.yml found by walking up from the working
// directory. When no file exists, defaults plus environment overrides are
// returned. A .env file in the working directory is loaded first.
func Load(path string) (*Config, error) {
	loadDotEnv()

	if path == "" {
		path = os.Getenv(ConfigEnv)
	}
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		found, err := FindConfig(wd)
		if err != nil {
			cfg := &Config{Dir: wd}
			return cfg, cfg.finish()
		}
		path = found
	}

	return LoadFile(path)
}

// LoadFile reads configuration from an explicit file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(ExpandPath(path)))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	cfg.Dir = filepath.Dir(abs)
	return cfg, cfg.finish()
}

// Parse decodes YAML after expanding ${VAR} references. Defaults and
// validation are not applied.
func Parse(data []byte) (*Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) finish() error {
	c.ApplyEnv()
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Data.Records == "" {
		c.Data.Records = DefaultRecordsPath
	}
	if c.Data.Vectors == "" {
		c.Data.Vectors = DefaultVectorsPath
	}
	if c.Data.CacheDir == "" {
		c.Data.CacheDir = DefaultCacheDir
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "ollama"
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 60
	}
	if c.LLM.RequestsPerMinute < 0 {
		c.LLM.RequestsPerMinute = 0
	}
	if c.Search.TopK <= 0 {
		c.Search.TopK = 5
	}
	if c.Search.ChatTopK <= 0 {
		c.Search.ChatTopK = 3
	}
	if c.Search.SummaryChars <= 0 {
		c.Search.SummaryChars = 2500
	}
	if c.Search.EntityChars <= 0 {
		c.Search.EntityChars = 1500
	}
	if c.Search.ContextChars <= 0 {
		c.Search.ContextChars = 4000
	}
	if c.Search.ContextFieldChars <= 0 {
		c.Search.ContextFieldChars = 800
	}
	if c.Search.EmbedTimeoutSec <= 0 {
		c.Search.EmbedTimeoutSec = 15
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 90
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "local"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if !contains(ValidProviders, c.Embedding.Provider) {
		return fmt.Errorf("embedding.provider must be one of %v, got %q", ValidProviders, c.Embedding.Provider)
	}
	if c.Embedding.Provider == "openai" {
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required for the openai provider")
		}
		if c.Embedding.Dimensions <= 0 {
			return fmt.Errorf("embedding.dimensions is required for the openai provider")
		}
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if !contains(ValidLogEnvs, c.Logging.Env) {
		return fmt.Errorf("logging.env must be one of %v, got %q", ValidLogEnvs, c.Logging.Env)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

// RecordsPath returns the absolute publications CSV path.
func (c *Config) RecordsPath() string { return c.resolve(c.Data.Records) }

// VectorsPath returns the absolute embedding matrix path.
func (c *Config) VectorsPath() string { return c.resolve(c.Data.Vectors) }

// CachePath returns the absolute cache directory.
func (c *Config) CachePath() string { return c.resolve(c.Data.CacheDir) }

// DBPath returns the path to the explorer database.
func (c *Config) DBPath() string { return filepath.Join(c.CachePath(), DBFile) }

// PDFPath returns the absolute PDF directory, or "" when not configured.
func (c *Config) PDFPath() string {
	if c.Data.PDFDir == "" {
		return ""
	}
	return c.resolve(c.Data.PDFDir)
}

// EmbedTimeout returns the per-query embedding budget.
func (c *Config) EmbedTimeout() time.Duration {
	return time.Duration(c.Search.EmbedTimeoutSec) * time.Second
}

func (c *Config) resolve(p string) string {
	p = ExpandPath(p)
	if filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[1:])
}

// envVarRegex matches ${VAR} and ${VAR:-default}.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
