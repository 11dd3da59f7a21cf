package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/generator"
)

var errInvalidKey = errors.New("api key rejected")

func newValidateKeyCmd() *cobra.Command {
	var key, provider string

	cmd := &cobra.Command{
		Use:   "validate-key",
		Short: "Check that the provider accepts an API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if provider != "" {
				cfg.Provider = strings.ToLower(provider)
				cfg.Model = config.DefaultModel(cfg.Provider)
			}
			if key == "" {
				key = cfg.APIKey()
			}
			if key == "" {
				return fmt.Errorf("%w: no API key given for provider %s", config.ErrConfiguration, cfg.Provider)
			}

			completer, validate, err := newProvider(cfg)
			if err != nil {
				return err
			}
			gen := generator.New(completer, generator.Options{Validate: validate}, slog.Default())

			ctx, cancel := context.WithTimeout(contextOrBackground(cmd.Context()), 30*time.Second)
			defer cancel()
			if !gen.ValidateKey(ctx, key) {
				return errInvalidKey
			}
			cmd.Println("API key is valid")
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "key to check (default: the configured provider key)")
	cmd.Flags().StringVar(&provider, "provider", "", "override SCRIBE_PROVIDER")
	return cmd
}
