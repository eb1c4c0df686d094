package llm

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderAzure     Provider = "azure"
)

// Config selects and configures a provider.
type Config struct {
	Provider    Provider
	APIKey      string
	BaseURL     string
	APIVersion  string
	Model       string
	MaxTokens   int
	Timeout     time.Duration
	MaxAttempts int
}

// New builds an Adapter for cfg. It returns ErrNotConfigured when the key
// is missing so callers can run without a model.
func New(cfg Config, logger *slog.Logger) (*Adapter, error) {
	var (
		caller Caller
		err    error
	)
	switch Provider(strings.ToLower(string(cfg.Provider))) {
	case "", ProviderAnthropic:
		caller, err = NewAnthropicCaller(cfg)
	case ProviderOpenAI, ProviderAzure:
		cfg.Provider = Provider(strings.ToLower(string(cfg.Provider)))
		caller, err = NewOpenAICaller(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewAdapter(caller, AdapterOptions{
		Timeout:     cfg.Timeout,
		MaxAttempts: cfg.MaxAttempts,
		Logger:      logger,
	}), nil
}
