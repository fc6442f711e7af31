package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"keybridge/internal/config"
	"keybridge/internal/gateway"
	"keybridge/internal/httpserver"
	"keybridge/internal/logging"
)

const shutdownTimeout = 10 * time.Second

type options struct {
	configPath string
	envFile    string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	serve := func(cmd *cobra.Command, _ []string) error {
		return runGateway(cmd.Context(), opts)
	}

	root := &cobra.Command{
		Use:   "keybridge",
		Short: "Header-translating proxy for Anthropic, OpenAI and Bedrock style clients",
		Long: `keybridge accepts requests under /anthropic, /openai and /bedrock, rewrites
their credentials and selected body fields, and forwards them to fixed upstream
targets. Upstream responses are relayed unchanged.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to yaml config file (optional)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file to load before reading the environment (default .env when present)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the proxy (default command)",
		Args:  cobra.NoArgs,
		RunE:  serve,
	})
	root.AddCommand(newAutostartCommand(opts))
	return root
}

// loadEnvFile loads dotenv values without overriding variables already set.
func loadEnvFile(path string) (string, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return "", fmt.Errorf("load env file: %w", err)
		}
		return path, nil
	}
	if _, err := os.Stat(".env"); err != nil {
		return "", nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return "", fmt.Errorf("load .env: %w", err)
	}
	return ".env", nil
}

func runGateway(ctx context.Context, opts *options) error {
	envFile, err := loadEnvFile(opts.envFile)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer closer.Close()

	if envFile != "" {
		logger.Info("loaded environment file", "path", envFile)
	}
	logStartup(logger, cfg)

	service := gateway.NewService(cfg, logger)
	server := httpserver.New(cfg, logger, service)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", "listen", cfg.Listen)
		errCh <- server.ListenAndServe()
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server exited unexpectedly: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("gateway stopped")
	return nil
}

func logStartup(logger *slog.Logger, cfg *config.Config) {
	for _, name := range []string{config.ProviderAnthropic, config.ProviderOpenAI, config.ProviderBedrock} {
		target, _ := cfg.Target(name)
		logger.Info("upstream target", "provider", name, "url", target.String())
	}
	logger.Info("route", "prefix", "/anthropic", "requires", "x-api-key", "forwards", "Authorization: Bearer <key>")
	logger.Info("route", "prefix", "/openai", "requires", "Authorization", "forwards", "Authorization unchanged, model rules applied")
	logger.Info("route", "prefix", "/bedrock", "requires", "x-api-key", "forwards", "Authorization: Bearer <key>, x-model-provider: bedrock")
	logger.Info(
		"request handling",
		"strict_paths", cfg.StrictPaths,
		"upstream_timeout", cfg.UpstreamTimeout.String(),
		"max_body_bytes", cfg.MaxBodyBytes,
		"model_aliases", cfg.AliasNames(),
		"strip_reasoning_effort", cfg.StripReasoningEffort,
	)
}
