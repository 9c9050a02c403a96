// Package config provides configuration loading and validation for the job-tracker CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides (e.g. JOBTRACK_LISTINGS_SEARCH_K)
const EnvPrefix = "JOBTRACK"

// ListingsConfig holds the duplicate-detection thresholds
type ListingsConfig struct {
	SemanticThreshold float64 `mapstructure:"semantic_threshold" json:"semantic_threshold" validate:"gte=0,lte=1"`
	TitleThreshold    float64 `mapstructure:"title_threshold" json:"title_threshold" validate:"gte=0,lte=1"`
	CompanyThreshold  float64 `mapstructure:"company_threshold" json:"company_threshold" validate:"gte=0,lte=1"`
	SearchK           int     `mapstructure:"search_k" json:"search_k" validate:"gte=1"`
}

// ExperiencesConfig holds the relevance-ranking limits
type ExperiencesConfig struct {
	TopK       int `mapstructure:"top_k" json:"top_k" validate:"gte=1"`
	MaxBullets int `mapstructure:"max_bullets" json:"max_bullets" validate:"gte=1"`
	SearchK    int `mapstructure:"search_k" json:"search_k" validate:"gte=1"`
}

// EmbeddingConfig selects and throttles the embedding provider
type EmbeddingConfig struct {
	Provider          string  `mapstructure:"provider" json:"provider" validate:"oneof=openai gemini mock"`
	Model             string  `mapstructure:"model" json:"model,omitempty"` // empty selects the provider default
	APIKey            string  `mapstructure:"api_key" json:"api_key,omitempty"`
	BaseURL           string  `mapstructure:"base_url" json:"base_url,omitempty"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" json:"requests_per_second" validate:"gte=0"`
	Burst             int     `mapstructure:"burst" json:"burst" validate:"gte=0"`
}

// VectorConfig selects the vector index backend
type VectorConfig struct {
	Backend    string `mapstructure:"backend" json:"backend" validate:"oneof=qdrant memory"`
	QdrantAddr string `mapstructure:"qdrant_addr" json:"qdrant_addr,omitempty"`
}

// PipelineConfig bounds batch processing
type PipelineConfig struct {
	Concurrency int `mapstructure:"concurrency" json:"concurrency" validate:"gte=1"`
}

// LogConfig controls logger output
type LogConfig struct {
	JSON  bool `mapstructure:"json" json:"json"`
	Debug bool `mapstructure:"debug" json:"debug"`
}

// Config represents the full job-tracker configuration.
// Any field may be omitted from the file; Default supplies the rest.
type Config struct {
	Listings    ListingsConfig    `mapstructure:"listings" json:"listings"`
	Experiences ExperiencesConfig `mapstructure:"experiences" json:"experiences"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding" json:"embedding"`
	Vector      VectorConfig      `mapstructure:"vector" json:"vector"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline" json:"pipeline"`
	Log         LogConfig         `mapstructure:"log" json:"log"`
	DatabaseURL string            `mapstructure:"database_url" json:"database_url,omitempty"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Listings: ListingsConfig{
			SemanticThreshold: 0.90,
			TitleThreshold:    0.85,
			CompanyThreshold:  0.90,
			SearchK:           5,
		},
		Experiences: ExperiencesConfig{
			TopK:       3,
			MaxBullets: 4,
			SearchK:    5,
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
		},
		Vector: VectorConfig{
			Backend:    "qdrant",
			QdrantAddr: "localhost:6334",
		},
		Pipeline: PipelineConfig{
			Concurrency: 4,
		},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Default()

	v.SetDefault("listings.semantic_threshold", d.Listings.SemanticThreshold)
	v.SetDefault("listings.title_threshold", d.Listings.TitleThreshold)
	v.SetDefault("listings.company_threshold", d.Listings.CompanyThreshold)
	v.SetDefault("listings.search_k", d.Listings.SearchK)
	v.SetDefault("experiences.top_k", d.Experiences.TopK)
	v.SetDefault("experiences.max_bullets", d.Experiences.MaxBullets)
	v.SetDefault("experiences.search_k", d.Experiences.SearchK)
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.requests_per_second", 0)
	v.SetDefault("embedding.burst", 0)
	v.SetDefault("vector.backend", d.Vector.Backend)
	v.SetDefault("vector.qdrant_addr", d.Vector.QdrantAddr)
	v.SetDefault("pipeline.concurrency", d.Pipeline.Concurrency)
	v.SetDefault("log.json", false)
	v.SetDefault("log.debug", false)
	v.SetDefault("database_url", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// LoadConfig loads configuration from a JSON or YAML file, applying defaults
// and JOBTRACK_* environment overrides. An empty path loads defaults and
// environment only.
func LoadConfig(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		// Resolve path relative to current directory if not absolute
		if !filepath.IsAbs(path) {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("failed to get current directory: %w", err)
			}
			path = filepath.Join(cwd, path)
		}

		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if c.Embedding.Provider != "mock" && c.Embedding.APIKey == "" {
		return fmt.Errorf("config error: 'embedding.api_key' is required for provider %q", c.Embedding.Provider)
	}
	if c.Vector.Backend == "qdrant" && c.Vector.QdrantAddr == "" {
		return fmt.Errorf("config error: 'vector.qdrant_addr' is required for the qdrant backend")
	}

	return nil
}

// MergeWithDefaults returns a new Config with zero-valued fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// Float fields: use default if zero
	if result.Listings.SemanticThreshold == 0 {
		result.Listings.SemanticThreshold = defaults.Listings.SemanticThreshold
	}
	if result.Listings.TitleThreshold == 0 {
		result.Listings.TitleThreshold = defaults.Listings.TitleThreshold
	}
	if result.Listings.CompanyThreshold == 0 {
		result.Listings.CompanyThreshold = defaults.Listings.CompanyThreshold
	}

	// Int fields: use default if zero
	if result.Listings.SearchK == 0 {
		result.Listings.SearchK = defaults.Listings.SearchK
	}
	if result.Experiences.TopK == 0 {
		result.Experiences.TopK = defaults.Experiences.TopK
	}
	if result.Experiences.MaxBullets == 0 {
		result.Experiences.MaxBullets = defaults.Experiences.MaxBullets
	}
	if result.Experiences.SearchK == 0 {
		result.Experiences.SearchK = defaults.Experiences.SearchK
	}
	if result.Pipeline.Concurrency == 0 {
		result.Pipeline.Concurrency = defaults.Pipeline.Concurrency
	}

	// String fields: use default if empty
	if result.Embedding.Provider == "" {
		result.Embedding.Provider = defaults.Embedding.Provider
	}
	if result.Embedding.Model == "" {
		result.Embedding.Model = defaults.Embedding.Model
	}
	if result.Embedding.APIKey == "" {
		result.Embedding.APIKey = defaults.Embedding.APIKey
	}
	if result.Vector.Backend == "" {
		result.Vector.Backend = defaults.Vector.Backend
	}
	if result.Vector.QdrantAddr == "" {
		result.Vector.QdrantAddr = defaults.Vector.QdrantAddr
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge

	return result
}
