package config

import "time"

// ProviderType identifies an LLM provider.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderOllama    ProviderType = "ollama"
)

// GenerationMode selects the report generation backend.
type GenerationMode string

const (
	// ModeLocal compiles reports in-process without a model.
	ModeLocal GenerationMode = "local"
	// ModeLLM asks the configured LLM provider for the report summary.
	ModeLLM GenerationMode = "llm"
)

// Config is the top-level hygaudit configuration, corresponding to .hygaudit.yml.
type Config struct {
	Database      DatabaseConfig      `yaml:"database" koanf:"database"`
	Server        ServerConfig        `yaml:"server" koanf:"server"`
	LLM           LLMConfig           `yaml:"llm" koanf:"llm"`
	Generation    GenerationConfig    `yaml:"generation" koanf:"generation"`
	Notifications NotificationsConfig `yaml:"notifications" koanf:"notifications"`
	Log           LogConfig           `yaml:"log" koanf:"log"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path" koanf:"path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port" koanf:"port"`
	CORSOrigins []string `yaml:"cors_origins" koanf:"cors_origins"`
}

// LLMConfig selects the model used for report summaries.
type LLMConfig struct {
	Provider          ProviderType `yaml:"provider" koanf:"provider"`
	Model             string       `yaml:"model" koanf:"model"`
	APIKey            string       `yaml:"api_key,omitempty" koanf:"api_key"`
	BaseURL           string       `yaml:"base_url,omitempty" koanf:"base_url"`
	MaxTokens         int          `yaml:"max_tokens" koanf:"max_tokens"`
	RequestsPerMinute int          `yaml:"requests_per_minute" koanf:"requests_per_minute"`
}

// GenerationConfig tunes report generation jobs.
type GenerationConfig struct {
	Mode        GenerationMode `yaml:"mode" koanf:"mode"`
	Timeout     time.Duration  `yaml:"timeout" koanf:"timeout"`
	Concurrency int            `yaml:"concurrency" koanf:"concurrency"`
}

// NotificationsConfig configures webhook delivery of report outcomes.
type NotificationsConfig struct {
	Webhooks    []string      `yaml:"webhooks" koanf:"webhooks"`
	MinSeverity string        `yaml:"min_severity" koanf:"min_severity"`
	Timeout     time.Duration `yaml:"timeout" koanf:"timeout"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}
