package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateWorkloads(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must be set")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}
	if c.Server.RateLimitPerSecond < 0 {
		return errors.New("server.rate_limit_per_second must be >= 0 (0 disables)")
	}
	if c.Server.RateLimitPerSecond > 0 && c.Server.RateLimitBurst < 1 {
		return errors.New("server.rate_limit_burst must be >= 1 when rate limiting is enabled")
	}
	return nil
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case "", "anthropic", "openai", "azure":
	default:
		return fmt.Errorf("llm.provider: unsupported value %q (anthropic, openai, azure)", c.LLM.Provider)
	}
	if c.LLM.Provider == "azure" && c.LLM.APIKey != "" && c.LLM.BaseURL == "" {
		return errors.New("llm.base_url is required for the azure provider")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	if c.LLM.MaxAttempts < 1 {
		return errors.New("llm.max_attempts must be >= 1")
	}
	return nil
}

func (c *Config) validateWorkloads() error {
	if c.Cleanup.Threshold < 0 || c.Cleanup.Threshold > 1 {
		return errors.New("cleanup.threshold must be between 0 and 1")
	}
	if c.Cleanup.MaxCanonicalWords < 1 {
		return errors.New("cleanup.max_canonical_words must be >= 1")
	}
	if c.Mapping.MaxAttempts < 1 {
		return errors.New("mapping.max_attempts must be >= 1")
	}
	for name, v := range map[string]int{
		"cleanup.concurrency": c.Cleanup.Concurrency,
		"mapping.concurrency": c.Mapping.Concurrency,
		"brand.concurrency":   c.Brand.Concurrency,
	} {
		if v < 1 || v > 100 {
			return fmt.Errorf("%s must be between 1 and 100", name)
		}
	}
	if c.Brand.DPI < 36 || c.Brand.DPI > 300 {
		return errors.New("brand.dpi must be between 36 and 300")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
