package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Embedding EmbeddingConfig
	Cache     CacheConfig
	Matching  MatchingConfig
	Pipeline  PipelineConfig
	Sources   SourcesConfig
	Output    OutputConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// EmbeddingConfig holds embeddings API configuration
type EmbeddingConfig struct {
	Endpoint          string        `mapstructure:"endpoint"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// CacheConfig holds vector cache configuration
type CacheConfig struct {
	Path string `mapstructure:"path"`
}

// FieldConfig configures one similarity field: its weight in the final
// score, the enrichment template, and the absent-value policy ("zero" or
// "ignore").
type FieldConfig struct {
	Weight       float64 `mapstructure:"weight"`
	Template     string  `mapstructure:"template"`
	AbsentPolicy string  `mapstructure:"absent_policy"`
}

// MatchingConfig holds the similarity threshold and field/weight table.
// An empty Fields map means the built-in default table is used.
type MatchingConfig struct {
	Threshold float64                `mapstructure:"threshold"`
	Fields    map[string]FieldConfig `mapstructure:"fields"`
}

// PipelineConfig holds embedding worker-pool settings
type PipelineConfig struct {
	Workers int `mapstructure:"workers"`
}

// SourcesConfig holds the catalog file locations
type SourcesConfig struct {
	PrimaryPath    string `mapstructure:"primary_path"`
	CompetitorPath string `mapstructure:"competitor_path"`
}

// OutputConfig holds the result sink location
type OutputConfig struct {
	Path string `mapstructure:"path"`
}

// RateLimitConfig holds HTTP rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/catalogmatch/")

	// Environment variable settings
	v.SetEnvPrefix("CATMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Embedding defaults
	v.SetDefault("embedding.endpoint", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-large")
	v.SetDefault("embedding.timeout", "30s")
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.requests_per_second", 2.0)
	v.SetDefault("embedding.burst", 5)

	// Cache defaults
	v.SetDefault("cache.path", "embeddings_cache.json")

	// Matching defaults (the field/weight table defaults live in code so
	// partial overrides don't silently drop fields)
	v.SetDefault("matching.threshold", 0.75)

	// Pipeline defaults
	v.SetDefault("pipeline.workers", 4)

	// Source and output defaults
	v.SetDefault("sources.primary_path", "data/primary_items.json")
	v.SetDefault("sources.competitor_path", "data/competitor_items.json")
	v.SetDefault("output.path", "price_comparison_matches.json")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 100)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Embedding.APIKey == "" {
		return fmt.Errorf("embeddings API key is required (set CATMATCH_EMBEDDING_API_KEY)")
	}

	if config.Matching.Threshold <= 0 || config.Matching.Threshold > 1 {
		return fmt.Errorf("matching threshold must be in (0, 1], got: %v", config.Matching.Threshold)
	}

	for name, field := range config.Matching.Fields {
		if field.Weight < 0 {
			return fmt.Errorf("field %q has negative weight: %v", name, field.Weight)
		}
	}

	if config.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline workers must be positive, got: %d", config.Pipeline.Workers)
	}

	if config.Sources.PrimaryPath == "" || config.Sources.CompetitorPath == "" {
		return fmt.Errorf("both source catalog paths are required")
	}

	return nil
}
