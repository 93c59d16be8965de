package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supported speech providers
const (
	TTSProviderOpenAI   = "openai"
	TTSProviderDeepgram = "deepgram"
)

// Supported extractor backends
const (
	ExtractorBrowser = "browser"
	ExtractorHTTP    = "http"
)

// Config holds all configuration for the article-voice service
type Config struct {
	// Server configuration
	Port     string `envconfig:"PORT" default:"8080"`      // HTTP port for health, metrics and web chat
	GRPCPort string `envconfig:"GRPC_PORT" default:"9090"` // gRPC health service port

	// OpenAI configuration (rewrite and speech)
	OpenAIBearerToken string `envconfig:"OPENAI_BEARER_TOKEN" required:"true"`
	OpenAIBaseURL     string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	RewriteModel      string `envconfig:"REWRITE_MODEL" default:"gpt-4o"`

	// Speech synthesis configuration
	TTSProvider    string `envconfig:"TTS_PROVIDER" default:"openai"` // openai, deepgram
	TTSModel       string `envconfig:"TTS_MODEL" default:"tts-1"`
	TTSVoice       string `envconfig:"TTS_VOICE" default:"nova"`
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"aura-asteria-en"`

	// Chunking
	MaxChunkSize int `envconfig:"MAX_CHUNK_SIZE" default:"4096"` // Speech endpoint input limit

	// Chat transports
	TelegramEnabled  bool   `envconfig:"TELEGRAM_ENABLED" default:"true"`
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	TelegramEndpoint string `envconfig:"TELEGRAM_API_ENDPOINT" default:""` // Self-hosted Bot API server, empty for api.telegram.org
	WSChatEnabled    bool   `envconfig:"WSCHAT_ENABLED" default:"false"`

	// Content extraction
	Extractor          string `envconfig:"EXTRACTOR" default:"browser"` // browser, http
	GeckodriverPath    string `envconfig:"GECKODRIVER_PATH" default:"geckodriver"`
	WebDriverURL       string `envconfig:"WEBDRIVER_URL" default:"http://127.0.0.1:4444"`
	DriverReadyTimeout int    `envconfig:"DRIVER_READY_TIMEOUT" default:"30"` // seconds
	BrowserHeadless    bool   `envconfig:"BROWSER_HEADLESS" default:"true"`

	// Per-stage timeouts
	ExtractTimeout int `envconfig:"EXTRACT_TIMEOUT" default:"90"`  // seconds
	RewriteTimeout int `envconfig:"REWRITE_TIMEOUT" default:"180"` // seconds
	SynthTimeout   int `envconfig:"SYNTH_TIMEOUT" default:"120"`   // seconds, per part
	DeliverTimeout int `envconfig:"DELIVER_TIMEOUT" default:"60"`  // seconds, per part

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	SessionConnectAttempts     int `envconfig:"SESSION_CONNECT_ATTEMPTS" default:"5"`       // Browser session attempts at startup
	SessionConnectBackoff      int `envconfig:"SESSION_CONNECT_BACKOFF" default:"500"`      // milliseconds

	// Optional storage
	RedisAddr       string `envconfig:"REDIS_ADDR" default:""`
	RewriteCacheTTL int    `envconfig:"REWRITE_CACHE_TTL" default:"24"` // hours
	DatabaseURL     string `envconfig:"DATABASE_URL" default:""`
	AudioBucket     string `envconfig:"AUDIO_BUCKET" default:""`
	AWSEndpointURL  string `envconfig:"AWS_ENDPOINT_URL" default:""`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field requirements envconfig cannot express
func (c *Config) Validate() error {
	if c.OpenAIBearerToken == "" {
		return fmt.Errorf("OPENAI_BEARER_TOKEN is required")
	}

	switch c.TTSProvider {
	case TTSProviderOpenAI:
	case TTSProviderDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when TTS_PROVIDER is %q", TTSProviderDeepgram)
		}
	default:
		return fmt.Errorf("unsupported TTS_PROVIDER %q", c.TTSProvider)
	}

	switch c.Extractor {
	case ExtractorBrowser, ExtractorHTTP:
	default:
		return fmt.Errorf("unsupported EXTRACTOR %q", c.Extractor)
	}

	if c.MaxChunkSize < 1 {
		return fmt.Errorf("MAX_CHUNK_SIZE must be positive, got %d", c.MaxChunkSize)
	}

	return nil
}

// ValidateTransports checks the chat front ends the serve command starts
func (c *Config) ValidateTransports() error {
	if c.TelegramEnabled && c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required when TELEGRAM_ENABLED is true")
	}
	if !c.TelegramEnabled && !c.WSChatEnabled {
		return fmt.Errorf("no chat transport enabled: set TELEGRAM_ENABLED or WSCHAT_ENABLED")
	}
	return nil
}

// Seconds converts one of the integer second settings to a duration
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
