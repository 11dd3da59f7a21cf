package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/scribe/internal/batch"
	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/source"
	"github.com/MikeSquared-Agency/scribe/internal/task"
)

type generateFlags struct {
	dir           string
	file          string
	kind          string
	instruction   string
	complexity    string
	out           string
	provider      string
	model         string
	concurrency   int
	maxChunkChars int
	extensions    []string
}

func newGenerateCmd() *cobra.Command {
	var f generateFlags

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one artifact from a directory or file",
		Example: `  # Architecture document for a repository
  scribe generate --dir ./myrepo --kind architecture --out ARCHITECTURE.md

  # Custom analysis of a concatenated dump read from stdin
  cat dump.txt | scribe generate --file - --kind custom-analysis --instruction "List every HTTP route"

  # Detailed code story, two chunks at a time
  scribe generate --dir ./myrepo --kind code-story --complexity detailed --concurrency 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.dir, "dir", "", "repository directory to document")
	cmd.Flags().StringVar(&f.file, "file", "", "pre-concatenated payload file (- for stdin)")
	cmd.Flags().StringVarP(&f.kind, "kind", "k", "", "architecture, user-stories, custom-analysis or code-story")
	cmd.Flags().StringVar(&f.instruction, "instruction", "", "request for custom-analysis")
	cmd.Flags().StringVar(&f.complexity, "complexity", "", "code-story detail: simple, moderate or detailed")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "write the artifact here instead of stdout")
	cmd.Flags().StringVar(&f.provider, "provider", "", "override SCRIBE_PROVIDER")
	cmd.Flags().StringVar(&f.model, "model", "", "override SCRIBE_MODEL")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "override SCRIBE_CONCURRENCY")
	cmd.Flags().IntVar(&f.maxChunkChars, "max-chunk-chars", 0, "override SCRIBE_MAX_CHUNK_CHARS")
	cmd.Flags().StringSliceVar(&f.extensions, "ext", nil, "only include files with these extensions (with --dir)")
	cmd.MarkFlagsMutuallyExclusive("dir", "file")
	cmd.MarkFlagsOneRequired("dir", "file")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func runGenerate(cmd *cobra.Command, f generateFlags) error {
	kind, err := task.ParseKind(f.kind)
	if err != nil {
		return err
	}
	params, err := task.Params{Instruction: f.instruction, Complexity: task.Complexity(f.complexity)}.Normalize(kind)
	if err != nil {
		return err
	}

	cfg := applyOverrides(config.Load(), f)
	logger := slog.Default()

	gen, err := newGenerator(cfg, logger)
	if err != nil {
		return err
	}

	payload, ref, err := readPayload(cmd.InOrStdin(), f)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.BatchTimeout)
	defer cancel()

	art, err := gen.Generate(ctx, kind, payload, params)
	if err != nil {
		var bf *batch.BatchFailure
		if errors.As(err, &bf) {
			for _, cf := range bf.Failures {
				logger.Error("chunk failed", "chunk", cf.Index+1, "kind", string(cf.Kind), "error", cf.Message)
			}
		}
		return err
	}

	attrs := []any{"source", ref, "mode", string(art.Mode), "processing_ms", art.ProcessingMs}
	if art.Metrics != nil {
		attrs = append(attrs, "chunks", art.Metrics.TotalChunks, "failed_chunks", art.Metrics.FailedChunks, "retries", art.Metrics.Retries)
	}
	logger.Info("artifact generated", attrs...)

	return writeArtifact(cmd.OutOrStdout(), f.out, art.Text)
}

func applyOverrides(cfg config.Config, f generateFlags) config.Config {
	if f.provider != "" {
		cfg.Provider = strings.ToLower(f.provider)
		if f.model == "" && os.Getenv("SCRIBE_MODEL") == "" {
			cfg.Model = config.DefaultModel(cfg.Provider)
		}
	}
	if f.model != "" {
		cfg.Model = f.model
	}
	if f.concurrency != 0 {
		cfg.Concurrency = f.concurrency
	}
	if f.maxChunkChars != 0 {
		cfg.MaxChunkChars = f.maxChunkChars
	}
	return cfg
}

// readPayload returns the text to document and a reference for logs.
func readPayload(stdin io.Reader, f generateFlags) (string, string, error) {
	switch {
	case f.dir != "":
		payload, stats, err := source.Concatenate(f.dir, source.Options{Extensions: f.extensions})
		if err != nil {
			return "", "", err
		}
		slog.Info("repository read", "dir", f.dir, "files", stats.Files, "skipped", stats.Skipped, "bytes", stats.Bytes)
		return payload, f.dir, nil
	case f.file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), "stdin", nil
	case f.file != "":
		data, err := os.ReadFile(f.file)
		if err != nil {
			return "", "", fmt.Errorf("read payload: %w", err)
		}
		return string(data), f.file, nil
	}
	return "", "", errors.New("one of --dir or --file is required")
}

func writeArtifact(stdout io.Writer, path, text string) error {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if path == "" {
		_, err := io.WriteString(stdout, text)
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}
