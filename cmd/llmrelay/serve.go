package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/HerbHall/llmrelay/internal/config"
	"github.com/HerbHall/llmrelay/internal/credentials"
	"github.com/HerbHall/llmrelay/internal/llm/openai"
	"github.com/HerbHall/llmrelay/internal/server"
	"github.com/HerbHall/llmrelay/internal/version"
	"github.com/HerbHall/llmrelay/internal/ws"
	"github.com/HerbHall/llmrelay/pkg/llm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startupCheckTimeout bounds the optional upstream probe.
const startupCheckTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	// Load configuration (before logger, so log level/format can be configured).
	v, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger, level, err := config.NewLogger(v)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}

	logger.Info("llmrelay starting", zap.String("version", version.Short()))
	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Info("no configuration file found, using defaults and environment",
			zap.String("component", "config"),
		)
	}
	config.WatchLogLevel(v, level, logger.Named("config"))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiKey, err := resolveAPIKey(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("api key resolved",
		zap.String("component", "credentials"),
		zap.String("source", cfg.Credentials.Source),
	)

	provider, err := openai.New(cfg.OpenAI, apiKey, logger.Named("openai"))
	if err != nil {
		return err
	}
	if cfg.OpenAI.StartupCheck {
		probeUpstream(ctx, provider, cfg.OpenAI.Model, logger)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	relay, err := ws.NewHandler(cfg.Relay, provider, ws.NewMetrics(reg), logger.Named("relay"))
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server, logger.Named("server"), reg, relay.Ready, relay)

	// Bind before reporting ready; a bind failure ends startup.
	ln, err := srv.Listen()
	if err != nil {
		logger.Error("failed to bind listener", zap.String("addr", cfg.Server.Addr()), zap.Error(err))
		return err
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	logger.Info("llmrelay ready",
		zap.String("addr", ln.Addr().String()),
		zap.String("path", cfg.Relay.Path),
		zap.String("model", cfg.OpenAI.Model),
	)

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := relay.Shutdown(shutdownCtx); err != nil {
		logger.Warn("relay connections did not drain in time",
			zap.Int("open", relay.ActiveConnections()),
			zap.Error(err),
		)
	}

	logger.Info("llmrelay stopped")
	return nil
}

// resolveAPIKey reads the credential from the configured source.
func resolveAPIKey(ctx context.Context, cfg *config.Config) (string, error) {
	var store credentials.Getter
	if cfg.Credentials.Source == credentials.SourceSSM {
		client, err := credentials.NewSSMClient(ctx, cfg.Credentials.Region)
		if err != nil {
			return "", err
		}
		ps, err := credentials.NewParameterStore(client)
		if err != nil {
			return "", err
		}
		store = ps
	}

	key, err := credentials.Resolve(ctx, cfg.Credentials, cfg.OpenAI.APIKey, store)
	if errors.Is(err, credentials.ErrMissingCredential) {
		return "", fmt.Errorf("%w (set OPENAI_API_KEY or LLMRELAY_OPENAI_API_KEY)", err)
	}
	return key, err
}

// probeUpstream checks the key and model once at startup. Failures are
// logged; the relay still starts and reports errors per message.
func probeUpstream(ctx context.Context, hr llm.HealthReporter, model string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

	models, err := hr.ListModels(ctx)
	if err != nil {
		logger.Warn("upstream startup check failed",
			zap.String("code", llm.Code(err)),
			zap.Error(err),
		)
		return
	}
	for _, m := range models {
		if m == model {
			logger.Info("upstream startup check passed", zap.String("model", model))
			return
		}
	}
	logger.Warn("configured model not listed by upstream",
		zap.String("model", model),
		zap.Int("models", len(models)),
	)
}
