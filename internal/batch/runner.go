package batch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/chunker"
	"github.com/MikeSquared-Agency/scribe/internal/llm"
	"github.com/MikeSquared-Agency/scribe/internal/task"
)

// Runner performs a single completion call for one chunk. It never retries
// and never returns an error: failures are reported in the ChunkResult.
type Runner struct {
	llm       llm.Completer
	model     string
	maxTokens int
	timeout   time.Duration
	logger    *slog.Logger
}

func NewRunner(completer llm.Completer, model string, maxTokens int, timeout time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		llm:       completer,
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
		logger:    logger,
	}
}

// RunChunk builds the chunk-scoped prompt and calls the completion service
// under the per-chunk timeout.
func (r *Runner) RunChunk(ctx context.Context, chunk chunker.Chunk, kind task.Kind, params task.Params) ChunkResult {
	res := ChunkResult{Index: chunk.Index, Attempts: 1}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	messages := task.BuildMessages(kind, params, chunk.Text, &task.Position{Index: chunk.Index, Total: chunk.Total})
	text, err := r.llm.Complete(callCtx, llm.Request{
		Model:     r.model,
		Messages:  messages,
		MaxTokens: r.maxTokens,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		errKind := llm.Classify(err)
		// The chunk deadline firing while the batch is still live is a timeout,
		// not a cancellation of the whole batch.
		if errKind == llm.KindCanceled && ctx.Err() == nil {
			errKind = llm.KindTimeout
		}
		res.Err = &ChunkFailure{
			Index:     chunk.Index,
			Kind:      errKind,
			Retryable: errKind.Retryable(),
			Message:   err.Error(),
		}
		r.logger.Warn("chunk failed",
			"chunk", chunk.Index,
			"total", chunk.Total,
			"kind", string(errKind),
			"retryable", res.Err.Retryable,
			"error", err,
		)
		return res
	}

	res.Text = strings.TrimSpace(text)
	r.logger.Debug("chunk complete",
		"chunk", chunk.Index,
		"total", chunk.Total,
		"input_len", chunk.Len(),
		"output_len", len(res.Text),
	)
	return res
}
