package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Generation.Mode != ModeLocal {
		t.Errorf("expected default mode %q, got %q", ModeLocal, cfg.Generation.Mode)
	}
	if cfg.Generation.Timeout != 5*time.Minute {
		t.Errorf("expected default timeout 5m, got %s", cfg.Generation.Timeout)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.LLM.Model != DefaultModel(ProviderAnthropic) {
		t.Errorf("expected default model %q, got %q", DefaultModel(ProviderAnthropic), cfg.LLM.Model)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.hygaudit.yml")

	original := DefaultConfig()
	original.Database.Path = "audits.db"
	original.LLM.Provider = ProviderOpenAI
	original.LLM.Model = "gpt-4o"
	original.Generation.Mode = ModeLLM
	original.Generation.Timeout = 90 * time.Second
	original.Notifications.Webhooks = []string{"https://hooks.example.com/a", "https://hooks.example.com/b"}

	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Database.Path != original.Database.Path {
		t.Errorf("database.path: got %q, want %q", loaded.Database.Path, original.Database.Path)
	}
	if loaded.LLM.Provider != original.LLM.Provider {
		t.Errorf("provider: got %q, want %q", loaded.LLM.Provider, original.LLM.Provider)
	}
	if loaded.LLM.Model != original.LLM.Model {
		t.Errorf("model: got %q, want %q", loaded.LLM.Model, original.LLM.Model)
	}
	if loaded.Generation.Mode != ModeLLM {
		t.Errorf("mode: got %q, want %q", loaded.Generation.Mode, ModeLLM)
	}
	if loaded.Generation.Timeout != original.Generation.Timeout {
		t.Errorf("timeout: got %s, want %s", loaded.Generation.Timeout, original.Generation.Timeout)
	}
	if len(loaded.Notifications.Webhooks) != 2 {
		t.Fatalf("webhooks length: got %d, want 2", len(loaded.Notifications.Webhooks))
	}
	for i, v := range loaded.Notifications.Webhooks {
		if v != original.Notifications.Webhooks[i] {
			t.Errorf("webhooks[%d]: got %q, want %q", i, v, original.Notifications.Webhooks[i])
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nonexistent.yml")

	// Loading a missing file should return defaults, not an error.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load should not fail for missing file: %v", err)
	}
	if cfg.Database.Path != "hygaudit.db" {
		t.Errorf("expected default database path, got %q", cfg.Database.Path)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yml")

	cfg := DefaultConfig()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	t.Setenv("HYGAUDIT_LLM_PROVIDER", "openai")
	t.Setenv("HYGAUDIT_GENERATION_TIMEOUT", "45s")
	t.Setenv("HYGAUDIT_LOG_LEVEL", "debug")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.LLM.Provider != ProviderOpenAI {
		t.Errorf("env override failed: got %q, want %q", loaded.LLM.Provider, ProviderOpenAI)
	}
	if loaded.Generation.Timeout != 45*time.Second {
		t.Errorf("timeout override failed: got %s", loaded.Generation.Timeout)
	}
	if loaded.Log.Level != "debug" {
		t.Errorf("log level override failed: got %q", loaded.Log.Level)
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"HYGAUDIT_LLM_API_KEY":            "llm.api_key",
		"HYGAUDIT_DATABASE_PATH":          "database.path",
		"HYGAUDIT_NOTIFICATIONS_WEBHOOKS": "notifications.webhooks",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty database path", func(c *Config) { c.Database.Path = "" }, true},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, true},
		{"unknown mode", func(c *Config) { c.Generation.Mode = "remote" }, true},
		{"llm mode with bad provider", func(c *Config) {
			c.Generation.Mode = ModeLLM
			c.LLM.Provider = "invalid"
		}, true},
		{"llm mode without model", func(c *Config) {
			c.Generation.Mode = ModeLLM
			c.LLM.Model = ""
		}, true},
		{"local mode ignores provider", func(c *Config) { c.LLM.Provider = "" }, false},
		{"zero timeout", func(c *Config) { c.Generation.Timeout = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Generation.Concurrency = 0 }, true},
		{"bad severity", func(c *Config) { c.Notifications.MinSeverity = "loud" }, true},
		{"bad webhook", func(c *Config) { c.Notifications.Webhooks = []string{"ftp://x"} }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"json logs", func(c *Config) { c.Log.Format = "json" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAPIKeyEnvVar(t *testing.T) {
	tests := []struct {
		provider ProviderType
		want     string
	}{
		{ProviderAnthropic, "ANTHROPIC_API_KEY"},
		{ProviderOpenAI, "OPENAI_API_KEY"},
		{ProviderOllama, ""},
	}
	for _, tt := range tests {
		if got := APIKeyEnvVar(tt.provider); got != tt.want {
			t.Errorf("APIKeyEnvVar(%q) = %q, want %q", tt.provider, got, tt.want)
		}
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" https://a , ,https://b ")
	if len(got) != 2 || got[0] != "https://a" || got[1] != "https://b" {
		t.Errorf("splitAndTrim = %q", got)
	}
	if got := splitAndTrim(""); got != nil {
		t.Errorf("splitAndTrim(\"\") = %q, want nil", got)
	}
}
