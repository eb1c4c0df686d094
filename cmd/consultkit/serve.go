package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joelkehle/consultkit/internal/brand"
	"github.com/joelkehle/consultkit/internal/cleanup"
	"github.com/joelkehle/consultkit/internal/docextract"
	"github.com/joelkehle/consultkit/internal/httpapi"
	"github.com/joelkehle/consultkit/internal/painpoints"
	"github.com/joelkehle/consultkit/internal/store"
	"github.com/joelkehle/consultkit/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensure()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := telemetry.Setup(runCtx, telemetry.Config{
				Endpoint:    cfg.Telemetry.OTLPEndpoint,
				ServiceName: cfg.Telemetry.ServiceName,
			})
			if err != nil {
				return fmt.Errorf("telemetry: %w", err)
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := shutdownTracing(sctx); err != nil {
					logger.Warn("consultkit telemetry_shutdown_failed", "err", err)
				}
			}()

			caller, err := ctx.caller(cfg, logger)
			if err != nil {
				return err
			}
			if caller == nil {
				logger.Warn("consultkit llm_disabled", "reason", "no API key configured; heuristics only")
			}

			st, err := store.Open(cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			defer st.Close()

			extractor := docextract.New(nil)
			var canon cleanup.Canonicalizer
			if caller != nil {
				canon = cleanup.NewLLMCanonicalizer(caller)
			}
			deps := httpapi.Deps{
				LLM:        caller,
				Cleanup:    cleanup.NewBuilder(canon, logger),
				PainPoints: painpoints.NewService(caller, logger),
				Brand: brand.NewService(st, extractor, caller, brand.Options{
					RenderImages: cfg.Brand.RenderImages,
					DPI:          cfg.Brand.DPI,
					Logger:       logger,
				}),
				PDF:       brand.NewChromiumPDFRenderer(cfg.Brand.ChromePath),
				Extractor: extractor,
				Logger:    logger,
			}

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           httpapi.NewServer(cfg, deps),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
				WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("consultkit listening", "addr", cfg.Server.Addr, "store", storeKind(cfg.Store.Path), "llm", caller != nil)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-runCtx.Done():
			}
			logger.Info("consultkit shutting_down")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func storeKind(path string) string {
	if path == "" {
		return "memory"
	}
	return "sqlite:" + path
}
