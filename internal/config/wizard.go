package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and saves the result
// to path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to hygaudit! Let's configure your audit server.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Database.
	dbPrompt := promptui.Prompt{
		Label:   "SQLite database path",
		Default: cfg.Database.Path,
	}
	dbPath, err := dbPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("database path: %w", err)
	}
	cfg.Database.Path = strings.TrimSpace(dbPath)

	// 2. Port.
	portPrompt := promptui.Prompt{
		Label:   "HTTP port",
		Default: strconv.Itoa(cfg.Server.Port),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 65535 {
				return fmt.Errorf("port must be between 1 and 65535")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	cfg.Server.Port, _ = strconv.Atoi(portStr)

	// 3. Generation mode.
	modePrompt := promptui.Select{
		Label: "How should report summaries be written?",
		Items: []string{
			"local - compile reports from the answers only",
			"llm   - ask a language model for an executive summary",
		},
	}
	modeIdx, _, err := modePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("mode selection: %w", err)
	}
	cfg.Generation.Mode = []GenerationMode{ModeLocal, ModeLLM}[modeIdx]

	// 4. Provider, only when a model is used.
	if cfg.Generation.Mode == ModeLLM {
		providerPrompt := promptui.Select{
			Label: "Select LLM provider",
			Items: []string{"anthropic", "openai", "ollama"},
		}
		_, providerStr, err := providerPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("provider selection: %w", err)
		}
		cfg.LLM.Provider = ProviderType(providerStr)
		cfg.LLM.Model = DefaultModel(cfg.LLM.Provider)

		if envVar := APIKeyEnvVar(cfg.LLM.Provider); envVar != "" && os.Getenv(envVar) == "" {
			fmt.Printf("\nNote: Set %s in your environment before running hygaudit server.\n", envVar)
		}
	}

	// 5. Webhooks.
	hookPrompt := promptui.Prompt{
		Label:   "Notification webhooks (comma-separated, leave blank for none)",
		Default: "",
	}
	hooks, err := hookPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("webhooks: %w", err)
	}
	cfg.Notifications.Webhooks = splitAndTrim(hooks)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

// splitAndTrim splits a comma-separated string and drops empty entries.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
