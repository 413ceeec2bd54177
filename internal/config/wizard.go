package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard, saves the result to
// .repochat.yml, and returns it.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to repochat! Let's configure your workspace.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Provider selection.
	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"openai", "google", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	cfg.Provider = ProviderType(providerStr)

	// 2. Model.
	defaultModel := "gpt-4o-mini"
	switch cfg.Provider {
	case ProviderGoogle:
		defaultModel = "gemini-2.0-flash"
	case ProviderOllama:
		defaultModel = "llama3"
	}
	modelPrompt := promptui.Prompt{
		Label:   "Chat model",
		Default: defaultModel,
	}
	if cfg.Model, err = modelPrompt.Run(); err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	// 3. Embedding provider follows the chat provider; OpenAI is the
	// hosted default otherwise.
	switch cfg.Provider {
	case ProviderOllama:
		cfg.EmbeddingProvider = ProviderOllama
		cfg.EmbeddingModel = "nomic-embed-text"
	case ProviderGoogle:
		cfg.EmbeddingProvider = ProviderGoogle
		cfg.EmbeddingModel = "gemini-embedding-001"
	default:
		cfg.EmbeddingProvider = ProviderOpenAI
		cfg.EmbeddingModel = "text-embedding-3-small"
	}

	// 4. Data directory.
	dataPrompt := promptui.Prompt{
		Label:   "Data directory (clones, index, cache)",
		Default: cfg.DataDir,
	}
	if cfg.DataDir, err = dataPrompt.Run(); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	// 5. Requests-per-minute budget.
	rpmPrompt := promptui.Prompt{
		Label:   "API requests per minute budget",
		Default: strconv.Itoa(cfg.Engine.RequestsPerMinute),
		Validate: func(s string) error {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil || n < 1 {
				return fmt.Errorf("must be a positive integer")
			}
			return nil
		},
	}
	rpmStr, err := rpmPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("requests per minute: %w", err)
	}
	cfg.Engine.RequestsPerMinute, _ = strconv.Atoi(strings.TrimSpace(rpmStr))

	// Check for API key.
	if envVar := APIKeyEnvVar(cfg.Provider); envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("\nNote: Set %s in your environment before indexing.\n", envVar)
	}

	if err := cfg.Save(DefaultPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", DefaultPath)
	return cfg, nil
}
