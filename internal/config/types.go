package config

import (
	"time"

	"github.com/mfarouk/repochat/internal/batch"
	"github.com/mfarouk/repochat/internal/chunker"
)

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderGoogle ProviderType = "google"
	ProviderOllama ProviderType = "ollama"
)

// Config is the top-level repochat configuration, corresponding to
// .repochat.yml.
type Config struct {
	Provider          ProviderType `yaml:"provider" koanf:"provider"`
	Model             string       `yaml:"model" koanf:"model"`
	EmbeddingProvider ProviderType `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string       `yaml:"embedding_model" koanf:"embedding_model"`
	DataDir           string       `yaml:"data_dir" koanf:"data_dir"`
	Include           []string     `yaml:"include" koanf:"include"`
	Exclude           []string     `yaml:"exclude" koanf:"exclude"`
	Chunk             ChunkConfig  `yaml:"chunk" koanf:"chunk"`
	Engine            EngineConfig `yaml:"engine" koanf:"engine"`
	Server            ServerConfig `yaml:"server" koanf:"server"`
}

// ChunkConfig controls how source files are cut into chunks.
type ChunkConfig struct {
	MaxLines     int `yaml:"max_lines" koanf:"max_lines"`
	OverlapLines int `yaml:"overlap_lines" koanf:"overlap_lines"`
}

// EngineConfig maps onto the batch engine's options. Costs are abstract
// cost units (roughly one token each).
type EngineConfig struct {
	MaxBatchSize      int `yaml:"max_batch_size" koanf:"max_batch_size"`
	MaxCostPerBatch   int `yaml:"max_cost_per_batch" koanf:"max_cost_per_batch"`
	MaxConcurrent     int `yaml:"max_concurrent" koanf:"max_concurrent"`
	RequestsPerMinute int `yaml:"requests_per_minute" koanf:"requests_per_minute"`
	CostPerMinute     int `yaml:"cost_per_minute" koanf:"cost_per_minute"`
	MaxAttempts       int `yaml:"max_attempts" koanf:"max_attempts"`
	DeadlineSeconds   int `yaml:"deadline_seconds" koanf:"deadline_seconds"` // 0 = no deadline
	SplitOverlap      int `yaml:"split_overlap" koanf:"split_overlap"`
	CacheTTLHours     int `yaml:"cache_ttl_hours" koanf:"cache_ttl_hours"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" koanf:"host"`
	Port int    `yaml:"port" koanf:"port"`
}

// EngineOptions converts the engine section into batch engine options.
// An unset deadline_seconds leaves indexing runs unbounded; the engine
// itself reserves a zero deadline for "already expired".
func (c *Config) EngineOptions() batch.Options {
	e := c.Engine
	deadline := batch.NoDeadline
	if e.DeadlineSeconds > 0 {
		deadline = time.Duration(e.DeadlineSeconds) * time.Second
	}
	return batch.Options{
		MaxBatchSize:      e.MaxBatchSize,
		MaxCostPerBatch:   e.MaxCostPerBatch,
		MaxConcurrent:     e.MaxConcurrent,
		RequestsPerWindow: e.RequestsPerMinute,
		CostPerWindow:     e.CostPerMinute,
		Window:            time.Minute,
		MaxAttempts:       e.MaxAttempts,
		Deadline:          deadline,
		SplitOverlap:      e.SplitOverlap,
		CacheTTL:          time.Duration(e.CacheTTLHours) * time.Hour,
	}
}

// ChunkOptions converts the chunk section into chunker options.
func (c *Config) ChunkOptions() chunker.Options {
	return chunker.Options{
		MaxLines:     c.Chunk.MaxLines,
		OverlapLines: c.Chunk.OverlapLines,
	}
}
