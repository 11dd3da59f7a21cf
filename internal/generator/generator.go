package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/batch"
	"github.com/MikeSquared-Agency/scribe/internal/llm"
	"github.com/MikeSquared-Agency/scribe/internal/task"
)

// DefaultDirectThreshold is the largest payload, in bytes, sent as a single request.
const DefaultDirectThreshold = 100000

// Mode records which path produced an artifact.
type Mode string

const (
	ModeDirect  Mode = "direct"
	ModeBatched Mode = "batched"
)

// Artifact is a generated document. Metrics is set only for batched runs.
type Artifact struct {
	Kind         task.Kind      `json:"kind"`
	Mode         Mode           `json:"mode"`
	Text         string         `json:"text"`
	Metrics      *batch.Metrics `json:"metrics,omitempty"`
	ProcessingMs int64          `json:"processingMs"`
}

// KeyValidator reports whether a provider accepts an API key.
type KeyValidator func(ctx context.Context, apiKey string) bool

type Options struct {
	DirectThreshold int
	Batch           batch.Options
	Validate        KeyValidator
}

// Generator routes a payload to a single completion call or to the batch
// processor depending on its size.
type Generator struct {
	llm       llm.Completer
	processor *batch.Processor
	threshold int
	model     string
	maxTokens int
	validate  KeyValidator
	logger    *slog.Logger
}

func New(completer llm.Completer, opts Options, logger *slog.Logger) *Generator {
	if opts.DirectThreshold <= 0 {
		opts.DirectThreshold = DefaultDirectThreshold
	}
	maxTokens := opts.Batch.MaxTokens
	if maxTokens <= 0 {
		maxTokens = batch.DefaultMaxTokens
	}
	return &Generator{
		llm:       completer,
		processor: batch.NewProcessor(completer, opts.Batch, logger),
		threshold: opts.DirectThreshold,
		model:     opts.Batch.Model,
		maxTokens: maxTokens,
		validate:  opts.Validate,
		logger:    logger,
	}
}

// Generate produces the artifact of the given kind for payload. Invalid
// params are rejected before any provider call.
func (g *Generator) Generate(ctx context.Context, kind task.Kind, payload string, params task.Params) (*Artifact, error) {
	params, err := params.Normalize(kind)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if len(payload) > g.threshold {
		g.logger.Info("processing large codebase using batch processing",
			"kind", string(kind),
			"chars", len(payload),
		)
		res, err := g.processor.Run(ctx, payload, kind, params)
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s: %w", kind.Label(), err)
		}
		g.logger.Info("batch processing complete",
			"kind", string(kind),
			"chunks", res.Metrics.TotalChunks,
			"processing_ms", res.Metrics.ProcessingTimeMs,
		)
		m := res.Metrics
		return &Artifact{
			Kind:         kind,
			Mode:         ModeBatched,
			Text:         res.CombinedResult,
			Metrics:      &m,
			ProcessingMs: m.ProcessingTimeMs,
		}, nil
	}

	text, err := g.llm.Complete(ctx, llm.Request{
		Model:     g.model,
		Messages:  task.BuildMessages(kind, params, payload, nil),
		MaxTokens: g.maxTokens,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		g.logger.Error("generation failed", "kind", string(kind), "chars", len(payload), "error", err)
		return nil, fmt.Errorf("failed to generate %s: %w", kind.Label(), err)
	}

	ms := time.Since(start).Milliseconds()
	g.logger.Info("generation complete", "kind", string(kind), "chars", len(payload), "processing_ms", ms)
	return &Artifact{
		Kind:         kind,
		Mode:         ModeDirect,
		Text:         strings.TrimSpace(text),
		ProcessingMs: ms,
	}, nil
}

func (g *Generator) ArchitecturalDoc(ctx context.Context, payload string) (*Artifact, error) {
	return g.Generate(ctx, task.KindArchitecture, payload, task.Params{})
}

func (g *Generator) UserStories(ctx context.Context, payload string) (*Artifact, error) {
	return g.Generate(ctx, task.KindUserStories, payload, task.Params{})
}

func (g *Generator) CustomAnalysis(ctx context.Context, payload, instruction string) (*Artifact, error) {
	return g.Generate(ctx, task.KindCustomAnalysis, payload, task.Params{Instruction: instruction})
}

func (g *Generator) CodeStory(ctx context.Context, payload string, complexity task.Complexity) (*Artifact, error) {
	return g.Generate(ctx, task.KindCodeStory, payload, task.Params{Complexity: complexity})
}

// ValidateKey reports whether the configured provider accepts apiKey.
// It returns false when no validator is configured.
func (g *Generator) ValidateKey(ctx context.Context, apiKey string) bool {
	if g.validate == nil || strings.TrimSpace(apiKey) == "" {
		return false
	}
	ok := g.validate(ctx, apiKey)
	if !ok {
		g.logger.Warn("api key rejected")
	}
	return ok
}
