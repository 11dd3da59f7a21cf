package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/scribe/internal/anthropic"
	"github.com/MikeSquared-Agency/scribe/internal/batch"
	"github.com/MikeSquared-Agency/scribe/internal/chunker"
	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/generator"
	"github.com/MikeSquared-Agency/scribe/internal/llm"
	"github.com/MikeSquared-Agency/scribe/internal/openai"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "scribe",
		Short:         "Generate documentation from source code with an LLM",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if logLevel == "" {
				logLevel = config.Load().LogLevel
			}
			setupLogging(logLevel, cmd.Name() != "serve")
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default LOG_LEVEL or info)")
	cmd.AddCommand(newServeCmd(), newGenerateCmd(), newValidateKeyCmd())
	return cmd
}

// setupLogging installs the default slog handler. The service logs JSON to
// stdout; one-shot commands log text to stderr so stdout carries the artifact.
func setupLogging(level string, cli bool) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cli {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// newProvider returns the completion client and key validator for cfg.Provider.
func newProvider(cfg config.Config) (llm.Completer, generator.KeyValidator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		c := openai.NewClient(cfg.OpenAIAPIKey, cfg.Model)
		return c, c.Validate, nil
	case config.ProviderAnthropic:
		c := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.Model)
		return c, c.Validate, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown provider %q", config.ErrConfiguration, cfg.Provider)
}

func generatorOptions(cfg config.Config, validate generator.KeyValidator) generator.Options {
	return generator.Options{
		DirectThreshold: cfg.DirectThreshold,
		Validate:        validate,
		Batch: batch.Options{
			Model:     cfg.Model,
			MaxTokens: cfg.MaxOutputTokens,
			Chunking: chunker.Options{
				MaxChunkChars: cfg.MaxChunkChars,
				AtomicFiles:   cfg.AtomicFiles,
			},
			Concurrency:    cfg.Concurrency,
			MaxRetries:     maxRetries(cfg.MaxRetries),
			RetryBackoff:   cfg.RetryBackoff,
			ChunkTimeout:   cfg.ChunkTimeout,
			CollapseTitles: cfg.CollapseTitles,
		},
	}
}

// maxRetries maps SCRIBE_MAX_RETRIES=0 to an explicit no-retry budget.
func maxRetries(n int) int {
	if n == 0 {
		return batch.NoRetries
	}
	return n
}

func newGenerator(cfg config.Config, logger *slog.Logger) (*generator.Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	completer, validate, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return generator.New(completer, generatorOptions(cfg, validate), logger), nil
}
