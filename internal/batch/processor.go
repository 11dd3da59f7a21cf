package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/MikeSquared-Agency/scribe/internal/chunker"
	"github.com/MikeSquared-Agency/scribe/internal/llm"
	"github.com/MikeSquared-Agency/scribe/internal/task"
)

// Defaults for Options fields left at zero.
const (
	DefaultConcurrency  = 3
	DefaultMaxRetries   = 2
	DefaultRetryBackoff = 500 * time.Millisecond
	DefaultChunkTimeout = 90 * time.Second
	DefaultMaxTokens    = 4000

	// MaxRetryBackoff caps the doubled wait between attempts.
	MaxRetryBackoff = 30 * time.Second
)

// NoRetries disables retries when set as Options.MaxRetries. Zero means
// DefaultMaxRetries.
const NoRetries = -1

// Options configures a Processor.
type Options struct {
	Model        string
	MaxTokens    int
	Chunking     chunker.Options
	Concurrency  int
	MaxRetries   int // additional attempts after the first; NoRetries for none
	RetryBackoff time.Duration
	ChunkTimeout time.Duration

	// CollapseTitles also drops a chunk's leading heading when it repeats
	// any earlier "# " document title, not only the heading just before it.
	CollapseTitles bool
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Chunking.MaxChunkChars <= 0 {
		o.Chunking.MaxChunkChars = chunker.DefaultMaxChunkChars
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	switch {
	case o.MaxRetries == 0:
		o.MaxRetries = DefaultMaxRetries
	case o.MaxRetries < 0:
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.ChunkTimeout <= 0 {
		o.ChunkTimeout = DefaultChunkTimeout
	}
	return o
}

// Processor splits a payload, generates each chunk under bounded concurrency,
// retries transient chunk failures and combines the results. A Processor
// holds no per-run state; concurrent Run calls are independent.
type Processor struct {
	opts   Options
	runner *Runner
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewProcessor(completer llm.Completer, opts Options, logger *slog.Logger) *Processor {
	opts = opts.withDefaults()
	return &Processor{
		opts:   opts,
		runner: NewRunner(completer, opts.Model, opts.MaxTokens, opts.ChunkTimeout, logger),
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Run executes one batch. Invalid params are rejected before any chunk is
// sent. It returns a *BatchFailure when the payload cannot be chunked or
// every chunk permanently fails, and the context error when the caller
// cancels; in both of those cases no artifact is produced.
func (p *Processor) Run(ctx context.Context, payload string, kind task.Kind, params task.Params) (*Result, error) {
	params, err := params.Normalize(kind)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	batchID := uuid.New().String()
	logger := p.logger.With("batch_id", batchID, "kind", string(kind))

	chunks, err := chunker.Split(payload, p.opts.Chunking)
	if err != nil {
		m := Metrics{ProcessingTimeMs: time.Since(start).Milliseconds()}
		logger.Error("chunking failed", "payload_len", len(payload), "error", err)
		return nil, &BatchFailure{Stage: StageChunking, Metrics: &m, Err: err}
	}

	logger.Info("batch started",
		"payload_len", len(payload),
		"chunks", len(chunks),
		"concurrency", p.opts.Concurrency,
	)

	results := make([]ChunkResult, len(chunks))
	sem := semaphore.NewWeighted(int64(p.opts.Concurrency))
	g, gctx := errgroup.WithContext(ctx)

	for i := range chunks {
		// Chunks are dispatched in index order; the semaphore queues waiters FIFO.
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			res, err := p.process(gctx, sem, chunks[i], kind, params)
			results[i] = res
			return err
		})
	}
	waitErr := g.Wait()

	// Cancellation discards the whole batch.
	if err := ctx.Err(); err != nil {
		logger.Warn("batch canceled", "chunks", len(chunks), "error", err)
		return nil, err
	}
	if waitErr != nil {
		return nil, waitErr
	}

	m := Metrics{TotalChunks: len(chunks)}
	var failures []ChunkFailure
	for _, r := range results {
		m.Retries += r.Attempts - 1
		if r.OK() {
			m.SucceededChunks++
			continue
		}
		m.FailedChunks++
		failures = append(failures, *r.Err)
	}

	if m.SucceededChunks == 0 {
		m.ProcessingTimeMs = time.Since(start).Milliseconds()
		logger.Error("all chunks failed", "chunks", m.TotalChunks, "processing_ms", m.ProcessingTimeMs)
		return nil, &BatchFailure{Stage: StageAllChunksFailed, Metrics: &m, Failures: failures}
	}

	combined := combine(results, kind, params, p.opts.CollapseTitles)
	m.ProcessingTimeMs = time.Since(start).Milliseconds()

	logger.Info("batch complete",
		"chunks", m.TotalChunks,
		"succeeded", m.SucceededChunks,
		"failed", m.FailedChunks,
		"retries", m.Retries,
		"processing_ms", m.ProcessingTimeMs,
	)

	return &Result{CombinedResult: combined, Metrics: m}, nil
}

// process runs one chunk with retries. The caller has already acquired a
// semaphore slot for the first attempt; the slot is released during backoff.
// The returned error is non-nil only when ctx is done.
func (p *Processor) process(ctx context.Context, sem *semaphore.Weighted, chunk chunker.Chunk, kind task.Kind, params task.Params) (ChunkResult, error) {
	held := true
	defer func() {
		if held {
			sem.Release(1)
		}
	}()

	var res ChunkResult
	for attempt := 1; ; attempt++ {
		res = p.runner.RunChunk(ctx, chunk, kind, params)
		res.Attempts = attempt
		if res.OK() {
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !res.Err.Retryable || attempt > p.opts.MaxRetries {
			return res, nil
		}

		sem.Release(1)
		held = false
		backoff := retryBackoff(p.opts.RetryBackoff, attempt)
		p.logger.Info("retrying chunk", "chunk", chunk.Index, "attempt", attempt+1, "backoff", backoff)
		if err := p.sleep(ctx, backoff); err != nil {
			return res, err
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return res, err
		}
		held = true
	}
}

// retryBackoff is the wait after the given failed attempt: base doubled per
// prior retry, capped at MaxRetryBackoff.
func retryBackoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < MaxRetryBackoff; i++ {
		d *= 2
	}
	return min(d, MaxRetryBackoff)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
