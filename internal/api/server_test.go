package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/batch"
	"github.com/MikeSquared-Agency/scribe/internal/llm"
	"github.com/MikeSquared-Agency/scribe/internal/processor"
	"github.com/MikeSquared-Agency/scribe/internal/store"
	"github.com/MikeSquared-Agency/scribe/internal/task"
)

const testToken = "scribe-secret"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeJobs struct {
	rec  store.Artifact
	err  error
	jobs []processor.Job
}

func (f *fakeJobs) Run(ctx context.Context, job processor.Job) (store.Artifact, error) {
	f.jobs = append(f.jobs, job)
	return f.rec, f.err
}

type fakeArtifacts struct {
	byID   map[uuid.UUID]*store.Artifact
	filter store.ListFilter
}

func (f *fakeArtifacts) GetArtifact(ctx context.Context, id uuid.UUID) (*store.Artifact, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (f *fakeArtifacts) ListArtifacts(ctx context.Context, filter store.ListFilter) ([]store.Artifact, error) {
	f.filter = filter
	var out []store.Artifact
	for _, a := range f.byID {
		out = append(out, *a)
	}
	return out, nil
}

type fakeKeys struct{}

func (fakeKeys) ValidateKey(ctx context.Context, key string) bool { return key == "sk-good" }

func newTestServer(deps Deps) *Server {
	deps.Logger = discardLogger()
	return NewServer(8760, testToken, deps)
}

func do(t *testing.T, srv *Server, method, path string, body any, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if auth {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(Deps{})

	w := do(t, srv, "GET", "/health", nil, false)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	decode(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(Deps{
		Provider:  "openai",
		Model:     "gpt-4o",
		Connected: func() bool { return true },
	})

	w := do(t, srv, "GET", "/api/v1/scribe/status", nil, false)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	decode(t, w, &body)
	if body["agent"] != "scribe" {
		t.Errorf("expected agent scribe, got %v", body["agent"])
	}
	if body["model"] != "gpt-4o" || body["nats"] != true || body["store"] != false {
		t.Errorf("unexpected status body %v", body)
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := newTestServer(Deps{})

	w := do(t, srv, "GET", "/nonexistent", nil, false)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	srv := newTestServer(Deps{Artifacts: &fakeArtifacts{}})

	if w := do(t, srv, "GET", "/api/v1/artifacts", nil, false); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest("GET", "/api/v1/artifacts", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", w.Code)
	}

	if w := do(t, srv, "GET", "/api/v1/artifacts", nil, true); w.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", w.Code)
	}
}

func TestBearerAuth_DisabledWithoutToken(t *testing.T) {
	srv := NewServer(8760, "", Deps{Artifacts: &fakeArtifacts{}, Logger: discardLogger()})

	if w := do(t, srv, "GET", "/api/v1/artifacts", nil, false); w.Code != http.StatusOK {
		t.Errorf("expected open access without configured token, got %d", w.Code)
	}
}

func TestCreateArtifact_Success(t *testing.T) {
	id := uuid.New()
	jobs := &fakeJobs{rec: store.Artifact{
		ID:          id,
		Kind:        task.KindCustomAnalysis,
		Mode:        "batched",
		Result:      "## Part 1 of 2\n\n...",
		Status:      store.StatusSucceeded,
		TotalChunks: 2,
	}}
	srv := newTestServer(Deps{Jobs: jobs})

	w := do(t, srv, "POST", "/api/v1/artifacts", GenerateRequest{
		Kind:        "custom-analysis",
		Payload:     "// File: main.go\npackage main\n",
		Instruction: "List the entry points.",
		SourceRef:   "acme/api",
	}, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var got store.Artifact
	decode(t, w, &got)
	if got.ID != id || got.TotalChunks != 2 {
		t.Errorf("unexpected artifact %+v", got)
	}

	if len(jobs.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(jobs.jobs))
	}
	job := jobs.jobs[0]
	if job.Kind != task.KindCustomAnalysis || job.Params.Instruction != "List the entry points." || job.SourceRef != "acme/api" {
		t.Errorf("unexpected job %+v", job)
	}
}

func TestCreateArtifact_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"unknown kind", GenerateRequest{Kind: "poem", Payload: "x"}},
		{"empty payload", GenerateRequest{Kind: "architecture", Payload: "  "}},
		{"not an object", "just a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &fakeJobs{}
			srv := newTestServer(Deps{Jobs: jobs})

			w := do(t, srv, "POST", "/api/v1/artifacts", tt.body, true)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
			if len(jobs.jobs) != 0 {
				t.Error("no job should run for a bad request")
			}
		})
	}
}

func TestCreateArtifact_ErrorMapping(t *testing.T) {
	bf := &batch.BatchFailure{
		Stage:    batch.StageAllChunksFailed,
		Metrics:  &batch.Metrics{TotalChunks: 3, FailedChunks: 3},
		Failures: []batch.ChunkFailure{{Index: 0, Kind: llm.KindAuth, Message: "401"}},
	}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing instruction", task.ErrMissingInstruction, http.StatusBadRequest},
		{"batch failure", fmt.Errorf("failed to generate user stories: %w", bf), http.StatusBadGateway},
		{"provider error", fmt.Errorf("failed to generate user stories: %w", &llm.ProviderError{Kind: llm.KindAuth, StatusCode: 401}), http.StatusBadGateway},
		{"deadline", fmt.Errorf("failed to generate user stories: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"client gone", fmt.Errorf("failed to generate user stories: %w", context.Canceled), statusClientClosedRequest},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(Deps{Jobs: &fakeJobs{err: tt.err, rec: store.Artifact{Status: store.StatusFailed}}})

			w := do(t, srv, "POST", "/api/v1/artifacts", GenerateRequest{Kind: "user-stories", Payload: "x"}, true)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestCreateArtifact_BatchFailureBody(t *testing.T) {
	id := uuid.New()
	bf := &batch.BatchFailure{
		Stage:   batch.StageAllChunksFailed,
		Metrics: &batch.Metrics{TotalChunks: 2, FailedChunks: 2, ProcessingTimeMs: 40},
		Failures: []batch.ChunkFailure{
			{Index: 0, Kind: llm.KindServer, Retryable: true, Message: "500"},
			{Index: 1, Kind: llm.KindServer, Retryable: true, Message: "500"},
		},
	}
	srv := newTestServer(Deps{Jobs: &fakeJobs{err: bf, rec: store.Artifact{ID: id, Status: store.StatusFailed}}})

	w := do(t, srv, "POST", "/api/v1/artifacts", GenerateRequest{Kind: "architecture", Payload: "x"}, true)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}

	var body failureResponse
	decode(t, w, &body)
	if body.Stage != batch.StageAllChunksFailed || body.ArtifactID != id.String() {
		t.Errorf("unexpected failure body %+v", body)
	}
	if body.Metrics == nil || body.Metrics.TotalChunks != 2 || len(body.Failures) != 2 {
		t.Errorf("expected metrics and chunk failures, got %+v", body)
	}
}

func TestGetArtifact(t *testing.T) {
	id := uuid.New()
	arts := &fakeArtifacts{byID: map[uuid.UUID]*store.Artifact{
		id: {ID: id, Kind: task.KindArchitecture, Status: store.StatusSucceeded, Result: "# Doc", CreatedAt: time.Now()},
	}}
	srv := newTestServer(Deps{Artifacts: arts})

	w := do(t, srv, "GET", "/api/v1/artifacts/"+id.String(), nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got store.Artifact
	decode(t, w, &got)
	if got.ID != id || got.Result != "# Doc" {
		t.Errorf("unexpected artifact %+v", got)
	}

	if w := do(t, srv, "GET", "/api/v1/artifacts/"+uuid.New().String(), nil, true); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown id, got %d", w.Code)
	}
	if w := do(t, srv, "GET", "/api/v1/artifacts/not-a-uuid", nil, true); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid id, got %d", w.Code)
	}
}

func TestArtifacts_NoStore(t *testing.T) {
	srv := newTestServer(Deps{})

	if w := do(t, srv, "GET", "/api/v1/artifacts/"+uuid.New().String(), nil, true); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without store, got %d", w.Code)
	}
	if w := do(t, srv, "GET", "/api/v1/artifacts", nil, true); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without store, got %d", w.Code)
	}
}

func TestListArtifacts_Filters(t *testing.T) {
	arts := &fakeArtifacts{byID: map[uuid.UUID]*store.Artifact{}}
	srv := newTestServer(Deps{Artifacts: arts})

	w := do(t, srv, "GET", "/api/v1/artifacts?kind=architectural-doc&status=failed&limit=5", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if arts.filter.Kind != task.KindArchitecture || arts.filter.Status != store.StatusFailed || arts.filter.Limit != 5 {
		t.Errorf("unexpected filter %+v", arts.filter)
	}

	var body struct {
		Artifacts []store.Artifact `json:"artifacts"`
		Count     int              `json:"count"`
	}
	decode(t, w, &body)
	if body.Artifacts == nil || body.Count != 0 {
		t.Errorf("expected empty list, got %+v", body)
	}

	for _, q := range []string{"kind=poem", "status=pending", "limit=-1", "limit=abc"} {
		if w := do(t, srv, "GET", "/api/v1/artifacts?"+q, nil, true); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, w.Code)
		}
	}
}

func TestValidateKey(t *testing.T) {
	srv := newTestServer(Deps{Keys: fakeKeys{}})

	for key, want := range map[string]bool{"sk-good": true, "sk-bad": false} {
		w := do(t, srv, "POST", "/api/v1/keys/validate", map[string]string{"api_key": key}, true)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var body map[string]bool
		decode(t, w, &body)
		if body["valid"] != want {
			t.Errorf("key %s: expected valid=%v, got %v", key, want, body["valid"])
		}
	}

	if w := do(t, srv, "POST", "/api/v1/keys/validate", map[string]string{}, true); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing key, got %d", w.Code)
	}
}
