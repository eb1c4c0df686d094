package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/joelkehle/consultkit/internal/config"
	"github.com/joelkehle/consultkit/internal/llm"
	"github.com/joelkehle/consultkit/internal/logging"
)

type commandContext struct {
	configFlag *string
	envFlag    *string

	once   sync.Once
	config *config.Config
	logger *slog.Logger
	err    error
}

// ensure loads .env, the config file and the logger once per process.
func (c *commandContext) ensure() (*config.Config, *slog.Logger, error) {
	c.once.Do(func() {
		if path := strings.TrimSpace(*c.envFlag); path != "" {
			if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
				c.err = fmt.Errorf("load %s: %w", path, err)
				return
			}
		}
		cfg, err := config.Load(strings.TrimSpace(*c.configFlag))
		if err != nil {
			c.err = err
			return
		}
		logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Writer: os.Stderr})
		if err != nil {
			c.err = err
			return
		}
		c.config, c.logger = cfg, logger
	})
	return c.config, c.logger, c.err
}

// caller returns the configured model, or nil when no key is set.
func (c *commandContext) caller(cfg *config.Config, logger *slog.Logger) (llm.Caller, error) {
	if !cfg.LLMEnabled() {
		return nil, nil
	}
	adapter, err := llm.New(cfg.LLMConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	return adapter, nil
}

func newRootCommand() *cobra.Command {
	var configFlag, envFlag string
	ctx := &commandContext{configFlag: &configFlag, envFlag: &envFlag}

	rootCmd := &cobra.Command{
		Use:           "consultkit",
		Short:         "Consulting productivity backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := ctx.ensure()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (TOML)")
	rootCmd.PersistentFlags().StringVar(&envFlag, "env-file", ".env", "Dotenv file loaded before configuration")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newCleanupCommand(ctx))
	rootCmd.AddCommand(newMapAppsCommand(ctx))
	return rootCmd
}
