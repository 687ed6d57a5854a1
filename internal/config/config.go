// Package config loads and validates the engine's YAML configuration, with
// environment variables overriding file values for the settings operators
// most commonly need to change per-deployment (secrets, connection strings).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls the ops-only HTTP surface (health and metrics, not
// the complaint-submission API).
type ServerConfig struct {
	MetricsPort string `yaml:"metrics_port"`
	HealthPort  string `yaml:"health_port"`
}

// DatabaseConfig controls the Postgres connection pool backing the incident
// repository.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig controls the Redis connection used for the task queue and
// embedding cache.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EmbeddingConfig selects and tunes the embedding backend.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"` // "local" or "http"
	Endpoint  string        `yaml:"endpoint"`
	Dimension int           `yaml:"dimension"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LLMConfig controls the arbiter's underlying model provider.
type LLMConfig struct {
	Provider  string        `yaml:"provider"` // currently only "anthropic"
	Endpoint  string        `yaml:"endpoint"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"max_tokens"`
}

// FilterConfig is reserved for future candidate pre-filtering rules; kept
// structurally symmetric with the rest of the config tree even though
// clustering currently filters candidates purely by barangay and category.
type FilterConfig struct {
	Name       string              `yaml:"name"`
	Conditions map[string][]string `yaml:"conditions"`
}

// ClusteringConfig tunes the candidate-scoring and confidence-band decision.
type ClusteringConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	AmbiguousBand       float64 `yaml:"ambiguous_band"`
	CandidateLimit      int     `yaml:"candidate_limit"`
}

// SeverityConfig tunes the severity calculator's velocity window.
type SeverityConfig struct {
	VelocityWindow time.Duration `yaml:"velocity_window"`
}

// LifecycleConfig tunes the periodic incident-expiry sweep.
type LifecycleConfig struct {
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	DefaultWindowHours int           `yaml:"default_window_hours"`
}

// TasksConfig tunes the job runtime's retry and concurrency behavior.
type TasksConfig struct {
	ClusterMaxRetries    int           `yaml:"cluster_max_retries"`
	ClusterRetryBackoff  time.Duration `yaml:"cluster_retry_backoff"`
	SeverityMaxRetries   int           `yaml:"severity_max_retries"`
	SeverityRetryBackoff time.Duration `yaml:"severity_retry_backoff"`
	WorkerConcurrency    int           `yaml:"worker_concurrency"`
}

// LoggingConfig controls both logging backends' shared knobs.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root configuration tree for the worker process.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	LLM        LLMConfig        `yaml:"llm"`
	Filters    []FilterConfig   `yaml:"filters"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Severity   SeverityConfig   `yaml:"severity"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle"`
	Tasks      TasksConfig      `yaml:"tasks"`
	Logging    LoggingConfig    `yaml:"logging"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			MetricsPort: "9090",
			HealthPort:  "8080",
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
		},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			Dimension: 384,
			Timeout:   10 * time.Second,
		},
		LLM: LLMConfig{
			Provider:  "anthropic",
			Timeout:   20 * time.Second,
			MaxTokens: 16,
		},
		Clustering: ClusteringConfig{
			SimilarityThreshold: 0.78,
			AmbiguousBand:       0.10,
			CandidateLimit:      25,
		},
		Severity: SeverityConfig{
			VelocityWindow: 24 * time.Hour,
		},
		Lifecycle: LifecycleConfig{
			SweepInterval:      30 * time.Minute,
			DefaultWindowHours: 72,
		},
		Tasks: TasksConfig{
			ClusterMaxRetries:    3,
			ClusterRetryBackoff:  10 * time.Second,
			SeverityMaxRetries:   3,
			SeverityRetryBackoff: 5 * time.Second,
			WorkerConcurrency:    4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads, parses, defaults, env-overrides, and validates the
// configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaults()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	return config, nil
}

// loadFromEnv overlays a small set of operator-facing environment variables
// onto config, leaving anything unset untouched.
func loadFromEnv(config *Config) error {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		config.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDRESS"); v != "" {
		config.Redis.Address = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Redis.Password = v
	}
	if v := os.Getenv("EMBEDDING_ENDPOINT"); v != "" {
		config.Embedding.Endpoint = v
	}
	if v := os.Getenv("LLM_ENDPOINT"); v != "" {
		config.LLM.Endpoint = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		config.LLM.Model = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		config.LLM.APIKey = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		config.Server.MetricsPort = v
	}
	if v := os.Getenv("HEALTH_PORT"); v != "" {
		config.Server.HealthPort = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}
	return nil
}

func validate(config *Config) error {
	if config.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	switch config.LLM.Provider {
	case "anthropic":
	default:
		return fmt.Errorf("unsupported LLM provider: %s", config.LLM.Provider)
	}
	if config.LLM.Model == "" {
		return fmt.Errorf("LLM model is required")
	}
	if config.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM max tokens must be greater than 0")
	}

	if config.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be greater than 0")
	}
	if config.Embedding.Provider == "http" && config.Embedding.Endpoint == "" {
		return fmt.Errorf("embedding endpoint is required when provider is http")
	}

	if config.Clustering.SimilarityThreshold < 0.0 || config.Clustering.SimilarityThreshold > 1.0 {
		return fmt.Errorf("similarity threshold must be between 0.0 and 1.0")
	}
	if config.Clustering.AmbiguousBand < 0.0 {
		return fmt.Errorf("ambiguous band must not be negative")
	}
	if config.Clustering.CandidateLimit <= 0 {
		return fmt.Errorf("candidate limit must be greater than 0")
	}

	if config.Lifecycle.DefaultWindowHours <= 0 {
		return fmt.Errorf("default window hours must be greater than 0")
	}

	if config.Tasks.WorkerConcurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	return nil
}
