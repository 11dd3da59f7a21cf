package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/batch"
	"github.com/MikeSquared-Agency/scribe/internal/generator"
	"github.com/MikeSquared-Agency/scribe/internal/hermes"
	"github.com/MikeSquared-Agency/scribe/internal/slack"
	"github.com/MikeSquared-Agency/scribe/internal/store"
	"github.com/MikeSquared-Agency/scribe/internal/task"
)

const persistTimeout = 10 * time.Second

type Generator interface {
	Generate(ctx context.Context, kind task.Kind, payload string, params task.Params) (*generator.Artifact, error)
}

type ArtifactWriter interface {
	WriteArtifact(ctx context.Context, a store.Artifact) (uuid.UUID, error)
}

type Publisher interface {
	Publish(subject string, data any) error
}

type Notifier interface {
	PostArtifactSummary(ctx context.Context, s slack.Summary) (string, error)
}

// Job is one generation request, from NATS or the HTTP API.
type Job struct {
	RequestID string
	Kind      task.Kind
	Payload   string
	Params    task.Params
	SourceRef string
}

// Processor runs generation jobs end to end: generate under the batch
// timeout, persist the outcome, announce it. Store, publisher and notifier
// are optional.
type Processor struct {
	gen          Generator
	store        ArtifactWriter
	hermes       Publisher
	slack        Notifier
	batchTimeout time.Duration
	logger       *slog.Logger

	baseCtx context.Context
	wg      sync.WaitGroup
}

func New(gen Generator, s ArtifactWriter, h Publisher, sl Notifier, batchTimeout time.Duration, logger *slog.Logger) *Processor {
	return &Processor{
		gen:          gen,
		store:        s,
		hermes:       h,
		slack:        sl,
		batchTimeout: batchTimeout,
		logger:       logger,
		baseCtx:      context.Background(),
	}
}

// WithContext sets the parent context of jobs started from NATS. Canceling
// it aborts in-flight generations.
func (p *Processor) WithContext(ctx context.Context) *Processor {
	p.baseCtx = ctx
	return p
}

// HandleGenerateRequested is the NATS handler for swarm.scribe.generate.requested.
// The job runs in the background; Wait blocks until every started job ends.
func (p *Processor) HandleGenerateRequested(subject string, data []byte) {
	var req hermes.GenerateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		p.logger.Error("failed to parse generate request", "subject", subject, "error", err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	kind, err := task.ParseKind(req.Kind)
	if err != nil {
		p.logger.Warn("rejecting generate request", "request_id", req.RequestID, "error", err)
		p.publish(hermes.SubjectArtifactFailed, hermes.ArtifactEvent{
			RequestID: req.RequestID,
			Kind:      task.Kind(req.Kind),
			Status:    store.StatusFailed,
			Error:     err.Error(),
			SourceRef: req.SourceRef,
			Timestamp: now(),
		})
		return
	}

	job := Job{
		RequestID: req.RequestID,
		Kind:      kind,
		Payload:   req.Payload,
		Params:    task.Params{Instruction: req.Instruction, Complexity: req.Complexity},
		SourceRef: req.SourceRef,
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		rec, err := p.Run(p.baseCtx, job)
		p.announce(job, rec, err)
	}()
}

// Wait blocks until all background jobs have finished.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// Run generates the artifact for job and records the outcome. The returned
// record reflects what was persisted; its ID is uuid.Nil when no store is
// configured or the job was rejected before generation.
func (p *Processor) Run(ctx context.Context, job Job) (store.Artifact, error) {
	rec := store.Artifact{
		Kind:      job.Kind,
		Params:    job.Params,
		SourceRef: job.SourceRef,
		Status:    store.StatusFailed,
	}

	params, err := job.Params.Normalize(job.Kind)
	if err != nil {
		rec.Error = err.Error()
		return rec, err
	}
	rec.Params = params

	logger := p.logger.With("request_id", job.RequestID, "kind", string(job.Kind))
	logger.Info("generating artifact", "payload_len", len(job.Payload), "source_ref", job.SourceRef)

	genCtx := ctx
	if p.batchTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, p.batchTimeout)
		defer cancel()
	}

	start := time.Now()
	art, genErr := p.gen.Generate(genCtx, job.Kind, job.Payload, params)
	if genErr != nil {
		rec.Error = genErr.Error()
		rec.ProcessingMs = time.Since(start).Milliseconds()
		var bf *batch.BatchFailure
		if errors.As(genErr, &bf) {
			rec.Mode = string(generator.ModeBatched)
			rec.Failures = bf.Failures
			if bf.Metrics != nil {
				rec.TotalChunks = bf.Metrics.TotalChunks
				rec.FailedChunks = bf.Metrics.FailedChunks
				rec.ProcessingMs = bf.Metrics.ProcessingTimeMs
			}
		}
		logger.Error("generation failed", "error", genErr)
	} else {
		rec.Status = store.StatusSucceeded
		rec.Mode = string(art.Mode)
		rec.Result = art.Text
		rec.ProcessingMs = art.ProcessingMs
		if art.Metrics != nil {
			rec.TotalChunks = art.Metrics.TotalChunks
			rec.FailedChunks = art.Metrics.FailedChunks
		}
	}

	if p.store != nil {
		// The outcome is recorded even when the job's context was canceled.
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		id, err := p.store.WriteArtifact(pctx, rec)
		cancel()
		if err != nil {
			logger.Error("failed to persist artifact", "error", err)
		} else {
			rec.ID = id
		}
	}

	p.notify(ctx, rec)

	logger.Info("artifact processed",
		"artifact_id", rec.ID,
		"status", rec.Status,
		"mode", rec.Mode,
		"chunks", rec.TotalChunks,
		"failed_chunks", rec.FailedChunks,
		"processing_ms", rec.ProcessingMs,
	)
	return rec, genErr
}

func (p *Processor) announce(job Job, rec store.Artifact, err error) {
	evt := hermes.ArtifactEvent{
		RequestID:    job.RequestID,
		Kind:         job.Kind,
		Mode:         rec.Mode,
		Status:       rec.Status,
		TotalChunks:  rec.TotalChunks,
		FailedChunks: rec.FailedChunks,
		ProcessingMs: rec.ProcessingMs,
		SourceRef:    job.SourceRef,
		Timestamp:    now(),
	}
	if rec.ID != uuid.Nil {
		evt.ArtifactID = rec.ID.String()
	}

	if err != nil {
		evt.Error = err.Error()
		evt.Failures = rec.Failures
		var bf *batch.BatchFailure
		if errors.As(err, &bf) {
			evt.Stage = bf.Stage
		}
		p.publish(hermes.SubjectArtifactFailed, evt)
		return
	}

	// Without a store, consumers have no other way to fetch the text.
	if rec.ID == uuid.Nil {
		evt.Result = rec.Result
	}
	p.publish(hermes.SubjectArtifactGenerated, evt)
}

func (p *Processor) publish(subject string, evt hermes.ArtifactEvent) {
	if p.hermes == nil {
		return
	}
	if err := p.hermes.Publish(subject, evt); err != nil {
		p.logger.Error("failed to publish artifact event", "subject", subject, "request_id", evt.RequestID, "error", err)
	}
}

func (p *Processor) notify(ctx context.Context, rec store.Artifact) {
	if p.slack == nil {
		return
	}
	s := slack.Summary{
		Kind:         rec.Kind.Label(),
		Mode:         rec.Mode,
		Succeeded:    rec.Status == store.StatusSucceeded,
		TotalChunks:  rec.TotalChunks,
		FailedChunks: rec.FailedChunks,
		ProcessingMs: rec.ProcessingMs,
		SourceRef:    rec.SourceRef,
		Error:        rec.Error,
	}
	if rec.ID != uuid.Nil {
		s.ArtifactID = rec.ID.String()
	}
	for _, f := range rec.Failures {
		s.Failures = append(s.Failures, fmt.Sprintf("chunk %d: %s: %s", f.Index+1, f.Kind, f.Message))
	}
	if _, err := p.slack.PostArtifactSummary(context.WithoutCancel(ctx), s); err != nil {
		p.logger.Error("slack post failed", "error", err)
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
