package batch

import (
	"context"
	"log/slog"

	"github.com/MikeSquared-Agency/scribe/internal/llm"
	"github.com/MikeSquared-Agency/scribe/internal/task"
)

// GenerateArchitecturalDocBatched runs a batch producing architectural documentation.
func GenerateArchitecturalDocBatched(ctx context.Context, payload string, completer llm.Completer, opts Options) (*Result, error) {
	return NewProcessor(completer, opts, slog.Default()).Run(ctx, payload, task.KindArchitecture, task.Params{})
}

// GenerateUserStoriesBatched runs a batch producing user stories.
func GenerateUserStoriesBatched(ctx context.Context, payload string, completer llm.Completer, opts Options) (*Result, error) {
	return NewProcessor(completer, opts, slog.Default()).Run(ctx, payload, task.KindUserStories, task.Params{})
}

// GenerateCustomAnalysisBatched answers instruction over every chunk of payload.
func GenerateCustomAnalysisBatched(ctx context.Context, payload, instruction string, completer llm.Completer, opts Options) (*Result, error) {
	return NewProcessor(completer, opts, slog.Default()).Run(ctx, payload, task.KindCustomAnalysis, task.Params{Instruction: instruction})
}

// GenerateCodeStoryBatched runs a batch producing a code story at the given complexity.
func GenerateCodeStoryBatched(ctx context.Context, payload string, complexity task.Complexity, completer llm.Completer, opts Options) (*Result, error) {
	return NewProcessor(completer, opts, slog.Default()).Run(ctx, payload, task.KindCodeStory, task.Params{Complexity: complexity})
}
