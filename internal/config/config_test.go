package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joelkehle/consultkit/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "AZURE_OPENAI_API_KEY",
		"CONSULTKIT_LLM_PROVIDER", "CONSULTKIT_API_KEYS", "CONSULTKIT_STORE_PATH", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8000" || cfg.Cleanup.Threshold != 0.85 || cfg.Mapping.MaxAttempts != 2 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.LLMEnabled() {
		t.Fatal("llm should be disabled without a key")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "consultkit.toml")
	body := `
[server]
addr = ":9000"
api_keys = ["a", " b "]

[cleanup]
threshold = 0.7

[logging]
format = "JSON"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "9100")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9100" {
		t.Fatalf("PORT should override file addr, got %q", cfg.Server.Addr)
	}
	if len(cfg.Server.APIKeys) != 2 || cfg.Server.APIKeys[1] != "b" {
		t.Fatalf("api keys %q", cfg.Server.APIKeys)
	}
	if cfg.Cleanup.Threshold != 0.7 || cfg.Logging.Format != "json" {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.LLM.Provider != "openai" || !cfg.LLMEnabled() {
		t.Fatalf("provider inferred from key: %+v", cfg.LLM)
	}
	lc := cfg.LLMConfig()
	if lc.Timeout != 60*time.Second || lc.MaxAttempts != 3 {
		t.Fatalf("llm config %+v", lc)
	}
}

func TestAnthropicKeyPreferred(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "ant")
	t.Setenv("OPENAI_API_KEY", "oai")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.APIKey != "ant" {
		t.Fatalf("llm %+v", cfg.LLM)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"cleanup.threshold":   func(c *config.Config) { c.Cleanup.Threshold = 1.5 },
		"llm.provider":        func(c *config.Config) { c.LLM.Provider = "gemini" },
		"mapping.concurrency": func(c *config.Config) { c.Mapping.Concurrency = 0 },
		"logging.format":      func(c *config.Config) { c.Logging.Format = "xml" },
		"server.max_body":     func(c *config.Config) { c.Server.MaxBodyBytes = 0 },
		"llm.base_url":        func(c *config.Config) { c.LLM.Provider, c.LLM.APIKey = "azure", "k" },
	}
	for name, mutate := range cases {
		cfg := config.Default()
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: expected validation error", name)
			continue
		}
		if !strings.Contains(err.Error(), strings.Split(name, ".")[0]) {
			t.Errorf("%s: error %q does not name the section", name, err)
		}
	}
}

func TestLoadRejectsUnknownKeysAndBadEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[server]\nadress = \":1\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key error")
	}
	t.Setenv("CONSULTKIT_RATE_LIMIT", "fast")
	if _, err := config.Load(""); err == nil || !strings.Contains(err.Error(), "CONSULTKIT_RATE_LIMIT") {
		t.Fatalf("expected env parse error, got %v", err)
	}
}
