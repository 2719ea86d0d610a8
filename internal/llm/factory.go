package llm

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrUnsupportedProvider is returned for an unknown provider name.
	ErrUnsupportedProvider = errors.New("unsupported llm provider")
	// ErrMissingAPIKey is returned when a hosted provider has no key.
	ErrMissingAPIKey = errors.New("llm api key is not set")
)

// Options selects and configures a provider.
type Options struct {
	Provider          string // anthropic, openai, ollama
	Model             string
	APIKey            string // falls back to the provider's usual environment variable
	BaseURL           string
	RequestsPerMinute int // 0 disables rate limiting
}

// apiKeyEnv names the environment variable each hosted provider reads.
var apiKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
}

// New builds the provider described by opts.
func New(opts Options) (Provider, error) {
	key := opts.APIKey
	if env, hosted := apiKeyEnv[opts.Provider]; hosted && key == "" {
		key = os.Getenv(env)
		if key == "" {
			return nil, fmt.Errorf("%w: set %s or llm.api_key", ErrMissingAPIKey, env)
		}
	}

	var p Provider
	switch opts.Provider {
	case "anthropic":
		p = NewAnthropicProvider(key, opts.Model, opts.BaseURL)
	case "openai":
		p = NewOpenAIProvider(key, opts.Model, opts.BaseURL)
	case "ollama":
		base := opts.BaseURL
		if base == "" {
			base = os.Getenv("OLLAMA_HOST")
		}
		p = NewOllamaProvider(base, opts.Model)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, opts.Provider)
	}

	if opts.RequestsPerMinute > 0 {
		p = NewRateLimitedProvider(p, opts.RequestsPerMinute)
	}
	return p, nil
}
