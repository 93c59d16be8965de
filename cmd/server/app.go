package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/article-voice/internal/archive"
	"github.com/lexiqai/article-voice/internal/browser"
	"github.com/lexiqai/article-voice/internal/cache"
	"github.com/lexiqai/article-voice/internal/config"
	"github.com/lexiqai/article-voice/internal/extract"
	"github.com/lexiqai/article-voice/internal/observability"
	"github.com/lexiqai/article-voice/internal/pipeline"
	"github.com/lexiqai/article-voice/internal/resilience"
	"github.com/lexiqai/article-voice/internal/rewrite"
	"github.com/lexiqai/article-voice/internal/store"
	"github.com/lexiqai/article-voice/internal/tts"
)

// app holds the pipeline and the resources behind it
type app struct {
	pipeline *pipeline.Orchestrator
	checks   map[string]observability.HealthCheckFunc

	// driver is nil with the http extractor
	driver *browser.Driver

	closers []func(ctx context.Context) error
	logger  zerolog.Logger
}

// newApp builds every pipeline dependency cfg enables. On error the
// resources opened so far are released.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{
		checks: make(map[string]observability.HealthCheckFunc),
		logger: observability.GetLogger(),
	}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	extractor, err := a.newExtractor(ctx, cfg)
	if err != nil {
		return nil, err
	}

	resetTimeout := config.Seconds(cfg.CircuitBreakerResetTimeout)

	rewriter := rewrite.NewClient(rewrite.Config{
		APIKey:  cfg.OpenAIBearerToken,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.RewriteModel,
		Timeout: config.Seconds(cfg.RewriteTimeout),
	}, resilience.NewCircuitBreaker("rewrite", cfg.CircuitBreakerMaxFailures, resetTimeout))
	a.checks["rewrite"] = rewriter.Healthy

	synthesizer := tts.NewGuarded(newSynthesizer(cfg),
		resilience.NewCircuitBreaker("tts", cfg.CircuitBreakerMaxFailures, resetTimeout))
	a.checks["tts"] = synthesizer.Healthy

	opts := []pipeline.Option{
		pipeline.WithMaxChunkSize(cfg.MaxChunkSize),
		pipeline.WithTimeouts(pipeline.Timeouts{
			Extract:    config.Seconds(cfg.ExtractTimeout),
			Rewrite:    config.Seconds(cfg.RewriteTimeout),
			Synthesize: config.Seconds(cfg.SynthTimeout),
			Deliver:    config.Seconds(cfg.DeliverTimeout),
		}),
	}

	if cfg.RedisAddr != "" {
		rc := cache.NewRewriteCache(cfg.RedisAddr, time.Duration(cfg.RewriteCacheTTL)*time.Hour)
		a.checks["redis"] = rc.Healthy
		a.closers = append(a.closers, func(context.Context) error { return rc.Close() })
		opts = append(opts, pipeline.WithCache(rc))
		a.logger.Info().Str("addr", cfg.RedisAddr).Msg("Rewrite cache enabled")
	}

	if cfg.DatabaseURL != "" {
		repo, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.checks["database"] = repo.Healthy
		a.closers = append(a.closers, func(context.Context) error { return repo.Close() })
		opts = append(opts, pipeline.WithHistory(repo))
		a.logger.Info().Msg("Narration history enabled")
	}

	if cfg.AudioBucket != "" {
		client, err := archive.NewS3Client(ctx, cfg.AWSEndpointURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithArchive(archive.NewS3Archive(client, cfg.AudioBucket)))
		a.logger.Info().Str("bucket", cfg.AudioBucket).Msg("Audio archive enabled")
	}

	a.pipeline = pipeline.New(extractor, rewriter, synthesizer, opts...)
	return a, nil
}

func (a *app) newExtractor(ctx context.Context, cfg *config.Config) (extract.Extractor, error) {
	if cfg.Extractor == config.ExtractorHTTP {
		a.logger.Info().Msg("Using HTTP extractor")
		return extract.NewHTTPExtractor(config.Seconds(cfg.ExtractTimeout)), nil
	}

	driver, err := browser.StartDriver(ctx, cfg.GeckodriverPath, config.Seconds(cfg.DriverReadyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to start webdriver: %w", err)
	}
	a.driver = driver
	a.closers = append(a.closers, func(context.Context) error {
		driver.Stop()
		return nil
	})

	var session *browser.Session
	connect := func(ctx context.Context) error {
		s, err := browser.Connect(ctx, browser.SessionConfig{
			URL:             cfg.WebDriverURL,
			Headless:        cfg.BrowserHeadless,
			PageLoadTimeout: config.Seconds(cfg.ExtractTimeout),
		})
		if err != nil {
			return err
		}
		session = s
		return nil
	}

	reconnect := resilience.DefaultReconnectConfig()
	reconnect.MaxAttempts = cfg.SessionConnectAttempts
	reconnect.Backoff = time.Duration(cfg.SessionConnectBackoff) * time.Millisecond
	if err := resilience.Reconnect(ctx, "browser", connect, reconnect); err != nil {
		return nil, err
	}

	// The session must quit before the driver process stops.
	a.closers = append(a.closers, session.Close)
	a.checks["browser"] = session.Healthy
	a.logger.Info().Str("webdriver", cfg.WebDriverURL).Msg("Browser session ready")

	return browser.NewExtractor(session), nil
}

func newSynthesizer(cfg *config.Config) tts.Synthesizer {
	if cfg.TTSProvider == config.TTSProviderDeepgram {
		return tts.NewDeepgramClient(cfg.DeepgramAPIKey, cfg.DeepgramModel)
	}
	return tts.NewOpenAIClient(tts.OpenAIConfig{
		APIKey:  cfg.OpenAIBearerToken,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.TTSModel,
		Voice:   cfg.TTSVoice,
		Timeout: config.Seconds(cfg.SynthTimeout),
	})
}

// Close releases resources in reverse order of acquisition
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to release resource")
		}
	}
	a.closers = nil
}
