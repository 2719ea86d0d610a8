package config

import "time"

// DefaultPath is the config file read when --config is not given.
const DefaultPath = ".hygaudit.yml"

// defaultModels maps each provider to the model used when none is configured.
var defaultModels = map[ProviderType]string{
	ProviderAnthropic: "claude-sonnet-4-5-20250929",
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderOllama:    "llama3",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "hygaudit.db"},
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		LLM: LLMConfig{
			Provider:  ProviderAnthropic,
			Model:     defaultModels[ProviderAnthropic],
			MaxTokens: 1024,
		},
		Generation: GenerationConfig{
			Mode:        ModeLocal,
			Timeout:     5 * time.Minute,
			Concurrency: 2,
		},
		Notifications: NotificationsConfig{
			MinSeverity: "info",
			Timeout:     10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultModel returns the model used for provider when none is set.
// Unknown providers fall back to the Anthropic default.
func DefaultModel(provider ProviderType) string {
	if m, ok := defaultModels[provider]; ok {
		return m
	}
	return defaultModels[ProviderAnthropic]
}
