package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	defaultOpenAIModel    = "gpt-4o"
	defaultAnthropicModel = "claude-sonnet-4-20250514"
)

// ErrConfiguration marks a configuration problem detected before any
// generation starts. It is never retried.
var ErrConfiguration = errors.New("invalid configuration")

type Config struct {
	Port        int
	DatabaseURL string
	NatsURL     string
	NatsToken   string
	LogLevel    string

	Provider        string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	Model           string
	MaxOutputTokens int

	DirectThreshold int
	MaxChunkChars   int
	AtomicFiles     bool
	CollapseTitles  bool
	Concurrency     int
	MaxRetries      int
	RetryBackoff    time.Duration
	ChunkTimeout    time.Duration
	BatchTimeout    time.Duration

	SlackBotToken string
	SlackChannel  string
	APIToken      string
}

func Load() Config {
	cfg := Config{
		Port:        envInt("SCRIBE_PORT", 8760),
		DatabaseURL: envStr("DATABASE_URL", ""),
		NatsURL:     envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken:   envStr("NATS_TOKEN", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),

		Provider:        strings.ToLower(envStr("SCRIBE_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:    envStr("OPENAI_API_KEY", ""),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		Model:           envStr("SCRIBE_MODEL", ""),
		MaxOutputTokens: envInt("SCRIBE_MAX_OUTPUT_TOKENS", 4000),

		DirectThreshold: envInt("SCRIBE_DIRECT_THRESHOLD", 100000),
		MaxChunkChars:   envInt("SCRIBE_MAX_CHUNK_CHARS", 50000),
		AtomicFiles:     envBool("SCRIBE_ATOMIC_FILES", false),
		CollapseTitles:  envBool("SCRIBE_COLLAPSE_TITLES", false),
		Concurrency:     envInt("SCRIBE_CONCURRENCY", 3),
		MaxRetries:      envInt("SCRIBE_MAX_RETRIES", 2),
		RetryBackoff:    envDuration("SCRIBE_RETRY_BACKOFF", 500*time.Millisecond),
		ChunkTimeout:    envDuration("SCRIBE_CHUNK_TIMEOUT", 90*time.Second),
		BatchTimeout:    envDuration("SCRIBE_BATCH_TIMEOUT", 10*time.Minute),

		SlackBotToken: envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:  envStr("SLACK_SCRIBE_CHANNEL", ""),
		APIToken:      envStr("SCRIBE_API_TOKEN", ""),
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}
	return cfg
}

// DefaultModel returns the model used when SCRIBE_MODEL is unset.
func DefaultModel(provider string) string {
	if provider == ProviderAnthropic {
		return defaultAnthropicModel
	}
	return defaultOpenAIModel
}

// APIKey returns the key of the selected provider.
func (c Config) APIKey() string {
	if c.Provider == ProviderAnthropic {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

// Validate checks the generation settings. Every problem is reported,
// wrapped in ErrConfiguration.
func (c Config) Validate() error {
	var problems []string
	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			problems = append(problems, "OPENAI_API_KEY is required")
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			problems = append(problems, "ANTHROPIC_API_KEY is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown provider %q", c.Provider))
	}
	if c.MaxOutputTokens <= 0 {
		problems = append(problems, "max output tokens must be positive")
	}
	if c.DirectThreshold <= 0 {
		problems = append(problems, "direct threshold must be positive")
	}
	if c.MaxChunkChars <= 0 {
		problems = append(problems, "max chunk chars must be positive")
	}
	if c.Concurrency <= 0 {
		problems = append(problems, "concurrency must be positive")
	}
	if c.MaxRetries < 0 {
		problems = append(problems, "max retries must not be negative")
	}
	if c.ChunkTimeout <= 0 || c.BatchTimeout <= 0 {
		problems = append(problems, "timeouts must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go durations ("750ms") or a bare number of milliseconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	return fallback
}
