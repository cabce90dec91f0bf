package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	mcpauth "github.com/datalake-tools/lakeformation-mcp/internal/auth"
	"github.com/datalake-tools/lakeformation-mcp/internal/catalog"
	"github.com/datalake-tools/lakeformation-mcp/internal/config"
	"github.com/datalake-tools/lakeformation-mcp/internal/lakeformation"
	"github.com/datalake-tools/lakeformation-mcp/internal/policy"
	"github.com/datalake-tools/lakeformation-mcp/internal/server"
	"github.com/datalake-tools/lakeformation-mcp/internal/tools"
)

func newServeCmd(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the permission tools over the configured transport",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), version, commit, date)
		},
	}
}

func loadConfig() (config.Config, error) {
	return config.LoadWithOverrides(config.Overrides{
		Transport:  transportFlag,
		ListenAddr: listenAddrFlag,
		Mode:       modeFlag,
		LogLevel:   logLevelFlag,
	})
}

func runServe(ctx context.Context, version, commit, buildDate string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	// stdout carries the stdio MCP channel, so logs always go to stderr.
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "lakeformation-mcp").Str("version", version).Logger()

	logger := log.With().Str("component", "main").Logger()
	logger.Info().Str("transport", cfg.Transport).Msg("starting lakeformation-mcp")

	toolCatalog, err := catalog.Default()
	if err != nil {
		return fmt.Errorf("building tool catalog: %w", err)
	}
	registry, err := server.NewToolRegistry(toolCatalog)
	if err != nil {
		return fmt.Errorf("building tool registry: %w", err)
	}
	modeGuard, err := policy.NewGuard(cfg.Mode)
	if err != nil {
		return fmt.Errorf("invalid mode configuration: %w", err)
	}
	logger.Info().Str("mode", modeGuard.Mode()).Int("tools", len(registry.List())).Msg("execution policy initialized")

	resolvedToken, err := mcpauth.ResolveToken(mcpauth.TokenSourceOptions{
		AllowCLIConfigToken: cfg.AllowCLIConfigToken,
		CLIConfigPath:       cfg.CLIConfigPath,
	})
	if err != nil {
		return fmt.Errorf("failed to resolve session token: %w", err)
	}
	if resolvedToken.Token == "" {
		logger.Warn().Msg("no session token resolved from LAKEFORMATION_MCP_TOKEN or CLI config")
	} else {
		logger.Info().Str("token_source", string(resolvedToken.Source)).Msg("resolved session token source")
	}
	sessionAuth := server.NewTokenSessionAuthenticator(resolvedToken.Token)

	client, err := lakeformation.New(ctx, lakeformation.Config{
		Region:    cfg.Region,
		CatalogID: cfg.CatalogID,
	}, log.Logger)
	if err != nil {
		return err
	}
	runner := tools.NewRunner(toolCatalog, client, log.Logger)

	switch cfg.Transport {
	case config.TransportStdio:
		principal, err := sessionAuth.AuthenticateStdio()
		if err != nil {
			return fmt.Errorf("authenticating stdio session: %w", err)
		}
		if runErr := server.RunStdio(ctx, os.Stdin, os.Stdout, registry, modeGuard, principal, runner, version, log.Logger); runErr != nil && !errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("stdio runtime stopped: %w", runErr)
		}
		logger.Info().Msg("stdio runtime stopped")
		return nil

	case config.TransportHTTP, config.TransportSSE:
		if resolvedToken.Token == "" {
			return errors.New("HTTP transports require a session token; set LAKEFORMATION_MCP_TOKEN")
		}
		httpServer := server.NewHTTPServer(cfg, version, commit, buildDate, registry, modeGuard, sessionAuth, runner, log.Logger)
		return serveHTTP(ctx, cfg.ListenAddr, httpServer.Router(), logger)

	default:
		return fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}

// serveHTTP runs until ctx is cancelled or the listener fails, then shuts
// down gracefully.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // SSE streams stay open.
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("HTTP server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped gracefully")
	return serveErr
}
