package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/batch"
	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/llm"
	"github.com/MikeSquared-Agency/scribe/internal/processor"
	"github.com/MikeSquared-Agency/scribe/internal/store"
	"github.com/MikeSquared-Agency/scribe/internal/task"
)

const maxPayloadBytes = 32 << 20

// GenerateRequest is the body of POST /api/v1/artifacts.
type GenerateRequest struct {
	Kind        string          `json:"kind"`
	Payload     string          `json:"payload"`
	Instruction string          `json:"instruction,omitempty"`
	Complexity  task.Complexity `json:"complexity,omitempty"`
	SourceRef   string          `json:"source_ref,omitempty"`
}

// failureResponse is returned when generation produced no artifact.
type failureResponse struct {
	Error      string               `json:"error"`
	ArtifactID string               `json:"artifact_id,omitempty"`
	Stage      batch.Stage          `json:"stage,omitempty"`
	Metrics    *batch.Metrics       `json:"metrics,omitempty"`
	Failures   []batch.ChunkFailure `json:"failures,omitempty"`
}

// createArtifact handles POST /api/v1/artifacts. Generation is synchronous.
func (s *Server) createArtifact(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	kind, err := task.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Payload) == "" {
		writeError(w, http.StatusBadRequest, "payload is required")
		return
	}

	rec, err := s.deps.Jobs.Run(r.Context(), processor.Job{
		RequestID: middleware.GetReqID(r.Context()),
		Kind:      kind,
		Payload:   req.Payload,
		Params:    task.Params{Instruction: req.Instruction, Complexity: req.Complexity},
		SourceRef: req.SourceRef,
	})
	if err != nil {
		s.writeGenerateError(w, rec, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// statusClientClosedRequest is nginx's code for a client that went away
// before the response was written.
const statusClientClosedRequest = 499

func (s *Server) writeGenerateError(w http.ResponseWriter, rec store.Artifact, err error) {
	resp := failureResponse{Error: err.Error()}
	if rec.ID != uuid.Nil {
		resp.ArtifactID = rec.ID.String()
	}

	var bf *batch.BatchFailure
	var pe *llm.ProviderError
	switch {
	case errors.Is(err, task.ErrUnknownKind),
		errors.Is(err, task.ErrMissingInstruction),
		errors.Is(err, task.ErrInvalidComplexity),
		errors.Is(err, config.ErrConfiguration):
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.As(err, &bf):
		resp.Stage = bf.Stage
		resp.Metrics = bf.Metrics
		resp.Failures = bf.Failures
		writeJSON(w, http.StatusBadGateway, resp)
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, resp)
	case errors.Is(err, context.Canceled):
		s.logger.Info("generation canceled by client", "error", err)
		writeJSON(w, statusClientClosedRequest, resp)
	case errors.As(err, &pe), errors.Is(err, llm.ErrEmptyResponse):
		writeJSON(w, http.StatusBadGateway, resp)
	default:
		s.logger.Error("generation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, resp)
	}
}

// getArtifact handles GET /api/v1/artifacts/{id}.
func (s *Server) getArtifact(w http.ResponseWriter, r *http.Request) {
	if s.deps.Artifacts == nil {
		writeError(w, http.StatusServiceUnavailable, "artifact store not configured")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid artifact id")
		return
	}

	a, err := s.deps.Artifacts.GetArtifact(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	if err != nil {
		s.logger.Error("get artifact failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "get artifact failed")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// listArtifacts handles GET /api/v1/artifacts?kind=&status=&limit=.
func (s *Server) listArtifacts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Artifacts == nil {
		writeError(w, http.StatusServiceUnavailable, "artifact store not configured")
		return
	}

	var filter store.ListFilter
	q := r.URL.Query()
	if k := q.Get("kind"); k != "" {
		kind, err := task.ParseKind(k)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Kind = kind
	}
	switch st := q.Get("status"); st {
	case "", store.StatusSucceeded, store.StatusFailed:
		filter.Status = st
	default:
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	artifacts, err := s.deps.Artifacts.ListArtifacts(r.Context(), filter)
	if err != nil {
		s.logger.Error("list artifacts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list artifacts failed")
		return
	}
	if artifacts == nil {
		artifacts = []store.Artifact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"artifacts": artifacts,
		"count":     len(artifacts),
	})
}

// validateKey handles POST /api/v1/keys/validate.
func (s *Server) validateKey(w http.ResponseWriter, r *http.Request) {
	if s.deps.Keys == nil {
		writeError(w, http.StatusServiceUnavailable, "key validation not configured")
		return
	}

	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		writeError(w, http.StatusBadRequest, "api_key is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": s.deps.Keys.ValidateKey(r.Context(), req.APIKey)})
}
