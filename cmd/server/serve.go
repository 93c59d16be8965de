package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/article-voice/internal/browser"
	"github.com/lexiqai/article-voice/internal/config"
	"github.com/lexiqai/article-voice/internal/observability"
	"github.com/lexiqai/article-voice/internal/transport/telegram"
	"github.com/lexiqai/article-voice/internal/transport/wschat"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat transports with health, readiness and metrics endpoints",
	Long: `Serve starts the shared browser session, then answers URLs sent over
Telegram and the /chat WebSocket until SIGINT or SIGTERM.

Configuration is read from the environment and an optional .env file.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.ValidateTransports(); err != nil {
		return err
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("grpc_port", cfg.GRPCPort).
		Str("extractor", cfg.Extractor).
		Str("tts_provider", cfg.TTSProvider).
		Bool("telegram", cfg.TelegramEnabled).
		Bool("wschat", cfg.WSChatEnabled).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("article-voice starting")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Close(closeCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(a.checks))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	var chat *wschat.Server
	if cfg.WSChatEnabled {
		chat = wschat.NewServer(gctx, a.pipeline)
		mux.Handle("/chat", chat)
		logger.Info().
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/chat", cfg.Port)).
			Msg("Web chat enabled")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var listener *telegram.Listener
	if cfg.TelegramEnabled {
		bot, err := telegram.NewBot(cfg.TelegramBotToken, cfg.TelegramEndpoint)
		if err != nil {
			return err
		}
		logger.Info().Str("bot", bot.Self.UserName).Msg("Telegram bot authorized")
		listener = telegram.NewListener(bot, a.pipeline)
	}

	var grpcLis net.Listener
	if cfg.GRPCPort != "" {
		grpcLis, err = net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC port: %w", err)
		}
	}

	g.Go(func() error {
		logger.Info().Str("port", cfg.Port).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	health := observability.NewGRPCHealthServer()
	if grpcLis != nil {
		g.Go(func() error {
			logger.Info().Str("port", cfg.GRPCPort).Msg("gRPC health server listening")
			return health.Serve(grpcLis)
		})
	}

	if listener != nil {
		g.Go(func() error {
			return listener.Run(gctx)
		})
	}

	if a.driver != nil {
		g.Go(func() error {
			return watchDriver(gctx, a.driver)
		})
	}

	health.SetServing(true)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")
		health.SetServing(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("HTTP server forced to shutdown")
		}
		health.Stop()
		if chat != nil {
			chat.Wait()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Server stopped with error")
		return err
	}

	logger.Info().Msg("Server exited gracefully")
	return nil
}

// watchDriver fails the group if the webdriver process dies while serving
func watchDriver(ctx context.Context, driver *browser.Driver) error {
	select {
	case <-driver.Exited():
		return errors.New("webdriver process exited while serving")
	case <-ctx.Done():
		return nil
	}
}
