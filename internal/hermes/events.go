package hermes

import (
	"github.com/MikeSquared-Agency/scribe/internal/batch"
	"github.com/MikeSquared-Agency/scribe/internal/task"
)

const (
	SubjectGenerateRequested = "swarm.scribe.generate.requested"
	SubjectArtifactGenerated = "swarm.scribe.artifact.generated"
	SubjectArtifactFailed    = "swarm.scribe.artifact.failed"
	SubjectRegistered        = "swarm.agent.scribe.registered"
)

// GenerateRequest asks scribe to produce one artifact from an inline payload.
type GenerateRequest struct {
	RequestID   string          `json:"request_id"`
	Kind        string          `json:"kind"`
	Payload     string          `json:"payload"`
	Instruction string          `json:"instruction,omitempty"`
	Complexity  task.Complexity `json:"complexity,omitempty"`
	SourceRef   string          `json:"source_ref,omitempty"`
}

// ArtifactEvent reports the outcome of a GenerateRequest.
type ArtifactEvent struct {
	RequestID    string               `json:"request_id"`
	ArtifactID   string               `json:"artifact_id,omitempty"`
	Kind         task.Kind            `json:"kind"`
	Mode         string               `json:"mode,omitempty"`
	Status       string               `json:"status"`
	Result       string               `json:"result,omitempty"`
	TotalChunks  int                  `json:"total_chunks"`
	FailedChunks int                  `json:"failed_chunks"`
	ProcessingMs int64                `json:"processing_ms"`
	Stage        batch.Stage          `json:"stage,omitempty"`
	Error        string               `json:"error,omitempty"`
	Failures     []batch.ChunkFailure `json:"failures,omitempty"`
	SourceRef    string               `json:"source_ref,omitempty"`
	Timestamp    string               `json:"timestamp"`
}
