package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all pipeline configuration. It is loaded once at startup and
// threaded into constructors as an immutable snapshot; nothing reads ambient
// process state after Load returns, so a run is reproducible from its config.
type Config struct {
	Inference  InferenceConfig
	Classifier ClassifierConfig
	Extractor  ExtractorConfig
	Scoring    ScoringConfig
	Dedup      DedupConfig
	Qdrant     QdrantConfig
	Checkpoint CheckpointConfig
	Pipeline   PipelineConfig
}

// InferenceConfig holds model backend settings.
type InferenceConfig struct {
	Provider      string  `mapstructure:"provider"` // "ollama" or "openai"
	BaseURL       string  `mapstructure:"base_url"`
	APIKey        string  `mapstructure:"api_key"`
	Model         string  `mapstructure:"model"`
	TimeoutSecs   int     `mapstructure:"timeout_secs"`
	MaxRetries    int     `mapstructure:"max_retries"` // transport retries, outside the correction loop
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// Timeout returns the per-call timeout.
func (c *InferenceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ClassifierConfig holds classifier stage settings.
type ClassifierConfig struct {
	Model       string `mapstructure:"model"` // cheap model; empty = provider default
	SampleRunes int    `mapstructure:"sample_runes"`
	CacheSize   int    `mapstructure:"cache_size"`
}

// ExtractorConfig holds correction-loop settings.
type ExtractorConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	MaxTokens   int `mapstructure:"max_tokens"`
}

// ScoringConfig holds confidence scorer settings.
type ScoringConfig struct {
	RoundPenalty float64 `mapstructure:"round_penalty"`
	PenaltyFloor float64 `mapstructure:"penalty_floor"`
}

// DedupConfig holds deduplication gate settings.
type DedupConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Backend      string  `mapstructure:"backend"` // "memory" or "qdrant"
	Threshold    float64 `mapstructure:"threshold"`
	CacheTTLSecs int     `mapstructure:"cache_ttl_secs"`
}

// CacheTTL returns the content-hash fast-path cache TTL.
func (c *DedupConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSecs) * time.Second
}

// QdrantConfig holds vector index connection settings.
type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	APIKey     string `mapstructure:"api_key"`
	Collection string `mapstructure:"collection"`
	UseTLS     bool   `mapstructure:"use_tls"`
	VectorSize uint64 `mapstructure:"vector_size"`
}

// CheckpointConfig holds checkpoint store settings.
type CheckpointConfig struct {
	Path string `mapstructure:"path"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	Workers             int `mapstructure:"workers"`
	DocumentTimeoutSecs int `mapstructure:"document_timeout_secs"`
}

// DocumentTimeout returns the per-document processing deadline.
func (c *PipelineConfig) DocumentTimeout() time.Duration {
	return time.Duration(c.DocumentTimeoutSecs) * time.Second
}

// Load reads configuration from environment variables with the DOCPIPE_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Inference defaults. api_key defaults to empty so AutomaticEnv can
	// bind it; viper only reads env vars for keys it already knows about.
	v.SetDefault("inference.provider", "ollama")
	v.SetDefault("inference.base_url", "http://localhost:11434")
	v.SetDefault("inference.api_key", "")
	v.SetDefault("inference.model", "llava")
	v.SetDefault("inference.timeout_secs", 120)
	v.SetDefault("inference.max_retries", 2)
	v.SetDefault("inference.rate_per_second", 2.0)
	v.SetDefault("inference.burst", 4)

	// Classifier defaults
	v.SetDefault("classifier.model", "")
	v.SetDefault("classifier.sample_runes", 2000)
	v.SetDefault("classifier.cache_size", 1024)

	// Extractor defaults
	v.SetDefault("extractor.max_attempts", 3)
	v.SetDefault("extractor.max_tokens", 4096)

	// Scoring defaults
	v.SetDefault("scoring.round_penalty", 0.15)
	v.SetDefault("scoring.penalty_floor", 0.1)

	// Dedup defaults
	v.SetDefault("dedup.enabled", true)
	v.SetDefault("dedup.backend", "memory")
	v.SetDefault("dedup.threshold", 0.95)
	v.SetDefault("dedup.cache_ttl_secs", 3600)

	// Qdrant defaults
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.api_key", "")
	v.SetDefault("qdrant.collection", "docpipe_dedup")
	v.SetDefault("qdrant.use_tls", false)
	v.SetDefault("qdrant.vector_size", 384)

	// Checkpoint defaults
	v.SetDefault("checkpoint.path", ".docpipe/checkpoints.db")

	// Pipeline defaults
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.document_timeout_secs", 600)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Extractor.MaxAttempts < 1 {
		return fmt.Errorf("extractor.max_attempts must be at least 1, got %d", c.Extractor.MaxAttempts)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		return fmt.Errorf("dedup.threshold must be in (0, 1], got %f", c.Dedup.Threshold)
	}
	if c.Inference.Provider == "openai" && c.Inference.APIKey == "" {
		return fmt.Errorf("inference.api_key is required for the openai provider")
	}
	return nil
}
