package config

import (
	"os"
	"path/filepath"
)

// DefaultExcludes are glob patterns excluded from indexing by default.
var DefaultExcludes = []string{
	"vendor/**",
	"node_modules/**",
	".git/**",
	"dist/**",
	"build/**",
	"*.min.js",
	"*.min.css",
	"*.lock",
	"go.sum",
	"package-lock.json",
	"yarn.lock",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderOpenAI,
		Model:             "gpt-4o-mini",
		EmbeddingProvider: ProviderOpenAI,
		EmbeddingModel:    "text-embedding-3-small",
		DataDir:           defaultDataDir(),
		Include:           []string{"**"},
		Exclude:           DefaultExcludes,
		Chunk: ChunkConfig{
			MaxLines:     120,
			OverlapLines: 10,
		},
		Engine: EngineConfig{
			MaxBatchSize:      50,
			MaxCostPerBatch:   8000,
			MaxConcurrent:     5,
			RequestsPerMinute: 300,
			CostPerMinute:     1_000_000,
			MaxAttempts:       3,
			SplitOverlap:      50,
			CacheTTLHours:     24,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8377,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".repochat"
	}
	return filepath.Join(home, ".repochat")
}
