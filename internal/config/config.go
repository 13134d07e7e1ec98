package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the metaseek engine configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Redis       RedisConfig       `yaml:"redis"`
	VectorIndex VectorIndexConfig `yaml:"vector_index"`
	Provider    ProviderConfig    `yaml:"provider"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Learning    LearningConfig    `yaml:"learning"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// PostgresConfig holds catalog store connection settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
}

// RedisConfig holds the optional hot query-embedding cache settings.
// Empty addrs disables the cache layer.
type RedisConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
}

// VectorIndexConfig holds the vector index backend settings.
type VectorIndexConfig struct {
	BaseURL              string `yaml:"base_url"`
	NaturalCollection    string `yaml:"natural_collection"`
	StructuredCollection string `yaml:"structured_collection"`
	VectorSize           int    `yaml:"vector_size"`
	TimeoutSec           int    `yaml:"timeout_sec"`
}

// ProviderConfig holds the embedding/completion provider settings.
type ProviderConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	EmbeddingModel string `yaml:"embedding_model"`
	ChatModel      string `yaml:"chat_model"`
	Dimensions     int    `yaml:"dimensions"`
}

// ClassifierConfig holds routing classifier settings.
type ClassifierConfig struct {
	AIEnabled           bool    `yaml:"ai_enabled"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// EmbeddingConfig holds embedding generation settings.
type EmbeddingConfig struct {
	BatchSize       int `yaml:"batch_size"`
	StaleBatchLimit int `yaml:"stale_batch_limit"`
}

// LearningConfig holds continuous-learner settings.
type LearningConfig struct {
	BatchThreshold int `yaml:"batch_threshold"`
	MinClickCount  int `yaml:"min_click_count"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Postgres.MaxConns <= 0 {
		c.Postgres.MaxConns = 8
	}
	if c.VectorIndex.NaturalCollection == "" {
		c.VectorIndex.NaturalCollection = "catalog_natural"
	}
	if c.VectorIndex.StructuredCollection == "" {
		c.VectorIndex.StructuredCollection = "catalog_structured"
	}
	if c.VectorIndex.VectorSize <= 0 {
		c.VectorIndex.VectorSize = 3072
	}
	if c.VectorIndex.TimeoutSec <= 0 {
		c.VectorIndex.TimeoutSec = 30
	}
	if c.Classifier.ConfidenceThreshold <= 0 {
		c.Classifier.ConfidenceThreshold = 0.75
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 16
	}
	if c.Embedding.StaleBatchLimit <= 0 {
		c.Embedding.StaleBatchLimit = 100
	}
	if c.Learning.BatchThreshold <= 0 {
		c.Learning.BatchThreshold = 100
	}
	if c.Learning.MinClickCount <= 0 {
		c.Learning.MinClickCount = 3
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if c.VectorIndex.BaseURL == "" {
		return fmt.Errorf("vector_index.base_url is required")
	}
	if c.Classifier.ConfidenceThreshold > 1 {
		return fmt.Errorf("classifier.confidence_threshold must be <= 1, got %g",
			c.Classifier.ConfidenceThreshold)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}
	if dir := os.Getenv("METASEEK_CONFIG_DIR"); dir != "" {
		if path := filepath.Join(dir, filename); fileExists(path) {
			return path
		}
	}
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
