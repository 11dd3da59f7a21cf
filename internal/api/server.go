package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/processor"
	"github.com/MikeSquared-Agency/scribe/internal/store"
)

type JobRunner interface {
	Run(ctx context.Context, job processor.Job) (store.Artifact, error)
}

type ArtifactReader interface {
	GetArtifact(ctx context.Context, id uuid.UUID) (*store.Artifact, error)
	ListArtifacts(ctx context.Context, filter store.ListFilter) ([]store.Artifact, error)
}

type KeyValidator interface {
	ValidateKey(ctx context.Context, apiKey string) bool
}

// Deps are the collaborators behind the routes. Artifacts may be nil when
// no database is configured; Connected may be nil when NATS is not used.
type Deps struct {
	Jobs      JobRunner
	Artifacts ArtifactReader
	Keys      KeyValidator
	Connected func() bool
	Provider  string
	Model     string
	Logger    *slog.Logger
}

type Server struct {
	router *chi.Mux
	port   int
	deps   Deps
	logger *slog.Logger
	http   *http.Server
}

func NewServer(port int, apiToken string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		deps:   deps,
		logger: deps.Logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/scribe/status", s.status)

	router.Group(func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/api/v1/artifacts", s.createArtifact)
		r.Get("/api/v1/artifacts", s.listArtifacts)
		r.Get("/api/v1/artifacts/{id}", s.getArtifact)
		r.Post("/api/v1/keys/validate", s.validateKey)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// BearerAuthMiddleware requires "Authorization: Bearer <token>". An empty
// token disables the check.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"agent":    "scribe",
		"status":   "ready",
		"provider": s.deps.Provider,
		"model":    s.deps.Model,
		"store":    s.deps.Artifacts != nil,
	}
	if s.deps.Connected != nil {
		body["nats"] = s.deps.Connected()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
