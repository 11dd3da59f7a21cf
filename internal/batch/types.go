package batch

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/scribe/internal/llm"
)

// ChunkFailure describes why a single chunk produced no text.
type ChunkFailure struct {
	Index     int           `json:"index"`
	Kind      llm.ErrorKind `json:"kind"`
	Retryable bool          `json:"retryable"`
	Message   string        `json:"message"`
}

func (f *ChunkFailure) Error() string {
	return fmt.Sprintf("chunk %d: %s: %s", f.Index, f.Kind, f.Message)
}

// ChunkResult is the outcome of processing one chunk. Err is nil on success.
type ChunkResult struct {
	Index    int
	Text     string
	Attempts int
	Err      *ChunkFailure
}

func (r ChunkResult) OK() bool { return r.Err == nil }

// Metrics describes one batch run.
type Metrics struct {
	TotalChunks      int   `json:"totalChunks"`
	ProcessingTimeMs int64 `json:"processingTimeMs"`
	SucceededChunks  int   `json:"succeededChunks"`
	FailedChunks     int   `json:"failedChunks"`
	Retries          int   `json:"retries"`
}

// Result is returned to the caller of a successful batch.
type Result struct {
	CombinedResult string  `json:"combinedResult"`
	Metrics        Metrics `json:"metrics"`
}

// Stage names where a batch failed.
type Stage string

const (
	StageChunking        Stage = "chunking"
	StageAllChunksFailed Stage = "all_chunks_failed"
)

// BatchFailure is returned when the batch as a whole produced nothing usable.
type BatchFailure struct {
	Stage    Stage
	Metrics  *Metrics
	Failures []ChunkFailure
	Err      error
}

func (e *BatchFailure) Error() string {
	switch e.Stage {
	case StageChunking:
		return fmt.Sprintf("batch failed at chunking: %v", e.Err)
	case StageAllChunksFailed:
		msgs := make([]string, 0, len(e.Failures))
		for i := range e.Failures {
			msgs = append(msgs, e.Failures[i].Error())
		}
		return fmt.Sprintf("batch failed: all %d chunks failed: %s", len(e.Failures), strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("batch failed at %s: %v", e.Stage, e.Err)
}

func (e *BatchFailure) Unwrap() error { return e.Err }
