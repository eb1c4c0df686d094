// Package config loads consultkit settings from defaults, an optional TOML
// file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/joelkehle/consultkit/internal/llm"
)

// Server contains the HTTP listener and middleware settings.
type Server struct {
	Addr                string   `toml:"addr"`
	MaxBodyBytes        int64    `toml:"max_body_bytes"`
	ReadTimeoutSeconds  int      `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `toml:"write_timeout_seconds"`
	APIKeys             []string `toml:"api_keys"`
	CORSOrigins         []string `toml:"cors_origins"`
	RateLimitPerSecond  float64  `toml:"rate_limit_per_second"`
	RateLimitBurst      int      `toml:"rate_limit_burst"`
}

// LLM contains provider connection settings.
type LLM struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	APIVersion     string `toml:"api_version"`
	Model          string `toml:"model"`
	MaxTokens      int    `toml:"max_tokens"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxAttempts    int    `toml:"max_attempts"`
}

type Store struct {
	// Path selects the SQLite backend; empty keeps documents in memory.
	Path string `toml:"path"`
}

type Cleanup struct {
	Threshold         float64 `toml:"threshold"`
	MaxCanonicalWords int     `toml:"max_canonical_words"`
	Concurrency       int     `toml:"concurrency"`
}

type Mapping struct {
	MaxAttempts int `toml:"max_attempts"`
	Concurrency int `toml:"concurrency"`
}

type Brand struct {
	RenderImages bool   `toml:"render_images"`
	DPI          int    `toml:"dpi"`
	ChromePath   string `toml:"chrome_path"`
	Concurrency  int    `toml:"concurrency"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Telemetry struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
	ServiceName  string `toml:"service_name"`
}

// Config encapsulates all configuration values.
type Config struct {
	Server    Server    `toml:"server"`
	LLM       LLM       `toml:"llm"`
	Store     Store     `toml:"store"`
	Cleanup   Cleanup   `toml:"cleanup"`
	Mapping   Mapping   `toml:"mapping"`
	Brand     Brand     `toml:"brand"`
	Logging   Logging   `toml:"logging"`
	Telemetry Telemetry `toml:"telemetry"`
}

func Default() Config {
	return Config{
		Server: Server{
			Addr:                ":8000",
			MaxBodyBytes:        25 << 20,
			ReadTimeoutSeconds:  60,
			WriteTimeoutSeconds: 600,
			RateLimitPerSecond:  10,
			RateLimitBurst:      20,
		},
		LLM: LLM{
			MaxTokens:      4096,
			TimeoutSeconds: 60,
			MaxAttempts:    3,
		},
		Cleanup: Cleanup{
			Threshold:         0.85,
			MaxCanonicalWords: 25,
			Concurrency:       4,
		},
		Mapping: Mapping{
			MaxAttempts: 2,
			Concurrency: 8,
		},
		Brand: Brand{
			DPI:         72,
			Concurrency: 4,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Telemetry: Telemetry{
			ServiceName: "consultkit",
		},
	}
}

// Load applies the TOML file at path (when non-empty) and then environment
// overrides to the defaults, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from CONSULTKIT_* variables, PORT and the
// provider API key variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = splitList(v)
		}
	}
	var errs []error
	num := func(key string, set func(string) error) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			if err := set(strings.TrimSpace(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}

	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		c.Server.Addr = ":" + strings.TrimSpace(v)
	}
	str("CONSULTKIT_ADDR", &c.Server.Addr)
	list("CONSULTKIT_API_KEYS", &c.Server.APIKeys)
	list("CONSULTKIT_CORS_ORIGINS", &c.Server.CORSOrigins)
	num("CONSULTKIT_RATE_LIMIT", func(v string) (err error) {
		c.Server.RateLimitPerSecond, err = strconv.ParseFloat(v, 64)
		return err
	})
	num("CONSULTKIT_MAX_BODY_BYTES", func(v string) (err error) {
		c.Server.MaxBodyBytes, err = strconv.ParseInt(v, 10, 64)
		return err
	})
	str("CONSULTKIT_STORE_PATH", &c.Store.Path)
	str("CONSULTKIT_LOG_LEVEL", &c.Logging.Level)
	str("CONSULTKIT_LOG_FORMAT", &c.Logging.Format)
	str("CONSULTKIT_LLM_PROVIDER", &c.LLM.Provider)
	str("CONSULTKIT_LLM_MODEL", &c.LLM.Model)
	str("CONSULTKIT_LLM_BASE_URL", &c.LLM.BaseURL)
	str("CONSULTKIT_LLM_API_VERSION", &c.LLM.APIVersion)
	num("CONSULTKIT_LLM_TIMEOUT_SECONDS", func(v string) (err error) {
		c.LLM.TimeoutSeconds, err = strconv.Atoi(v)
		return err
	})
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
	str("CONSULTKIT_CHROME_PATH", &c.Brand.ChromePath)

	if c.LLM.APIKey == "" {
		keys := map[string]string{}
		for _, k := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "AZURE_OPENAI_API_KEY"} {
			if v, ok := lookup(k); ok {
				keys[k] = strings.TrimSpace(v)
			}
		}
		switch strings.ToLower(c.LLM.Provider) {
		case "anthropic":
			c.LLM.APIKey = keys["ANTHROPIC_API_KEY"]
		case "openai":
			c.LLM.APIKey = keys["OPENAI_API_KEY"]
		case "azure":
			c.LLM.APIKey = keys["AZURE_OPENAI_API_KEY"]
		case "":
			if keys["ANTHROPIC_API_KEY"] != "" {
				c.LLM.Provider, c.LLM.APIKey = "anthropic", keys["ANTHROPIC_API_KEY"]
			} else if keys["OPENAI_API_KEY"] != "" {
				c.LLM.Provider, c.LLM.APIKey = "openai", keys["OPENAI_API_KEY"]
			}
		}
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) normalize() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Server.APIKeys = splitList(strings.Join(c.Server.APIKeys, ","))
	c.Server.CORSOrigins = splitList(strings.Join(c.Server.CORSOrigins, ","))
}

// LLMEnabled reports whether a provider key is configured.
func (c *Config) LLMEnabled() bool { return c.LLM.APIKey != "" }

// LLMConfig converts the [llm] section for llm.New.
func (c *Config) LLMConfig() llm.Config {
	return llm.Config{
		Provider:    llm.Provider(c.LLM.Provider),
		APIKey:      c.LLM.APIKey,
		BaseURL:     c.LLM.BaseURL,
		APIVersion:  c.LLM.APIVersion,
		Model:       c.LLM.Model,
		MaxTokens:   c.LLM.MaxTokens,
		Timeout:     time.Duration(c.LLM.TimeoutSeconds) * time.Second,
		MaxAttempts: c.LLM.MaxAttempts,
	}
}
