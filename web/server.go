// ABOUTME: HTTP API for launching pipeline runs and browsing run history,
// ABOUTME: served behind a chi router with standard middleware.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chalkmotion/chalkmotion/pipeline"
)

// Runner executes one pipeline run. Each request gets its own run; the server
// never shares state between runs.
type Runner interface {
	Run(ctx context.Context, in pipeline.Inputs) (*pipeline.State, error)
}

// HistoryStore persists and lists run summaries. May be nil to disable history.
type HistoryStore interface {
	Save(sum *pipeline.Summary) error
	Get(runID string) (*pipeline.Summary, error)
	List(limit int) ([]*pipeline.Summary, error)
}

// ServerConfig holds the configuration for the HTTP server.
type ServerConfig struct {
	Addr    string // listen address (default "127.0.0.1:8323")
	Runner  Runner
	History HistoryStore
}

// Server exposes the pipeline over HTTP.
type Server struct {
	runner  Runner
	history HistoryStore
	router  chi.Router
	addr    string
}

// NewServer creates a Server with the given configuration.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("web: Runner must not be nil")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8323"
	}
	s := &Server{
		runner:  cfg.Runner,
		history: cfg.History,
		addr:    cfg.Addr,
	}
	s.router = s.buildRouter()
	return s, nil
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server. Runs render video, so the write
// timeout is generous.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	return srv.ListenAndServe()
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/runs", func(r chi.Router) {
		r.Post("/", s.handleRunCreate)
		r.Get("/", s.handleRunList)
		r.Get("/{runID}", s.handleRunGet)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// runRequest is the POST /api/runs payload.
type runRequest struct {
	Topic           string  `json:"topic"`
	Audience        string  `json:"audience"`
	DurationMinutes float64 `json:"duration_minutes"`
	Quality         string  `json:"quality"`
	OutputFilename  string  `json:"output_filename"`
	Voice           string  `json:"voice"`
	MaxCodeRetries  int     `json:"max_code_retries"`
}

// handleRunCreate validates the request, executes a full pipeline run, saves
// the summary to history, and returns it.
func (s *Server) handleRunCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	in := pipeline.Inputs{
		Topic:           req.Topic,
		Audience:        pipeline.Audience(req.Audience),
		DurationMinutes: req.DurationMinutes,
		Quality:         pipeline.Quality(req.Quality),
		OutputFilename:  req.OutputFilename,
		Voice:           req.Voice,
		MaxCodeRetries:  req.MaxCodeRetries,
	}

	st, err := s.runner.Run(r.Context(), in)
	if err != nil {
		// Only input validation fails before a state exists.
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	sum := st.Summarize()
	if s.history != nil {
		if saveErr := s.history.Save(sum); saveErr != nil {
			log.Printf("save run %s to history: %v", sum.RunID, saveErr)
		}
	}

	status := http.StatusOK
	if !sum.Succeeded {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, sum)
}

func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []*pipeline.Summary{})
		return
	}
	sums, err := s.history.List(50)
	if err != nil {
		log.Printf("list runs: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list runs"})
		return
	}
	if sums == nil {
		sums = []*pipeline.Summary{}
	}
	writeJSON(w, http.StatusOK, sums)
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "history disabled"})
		return
	}
	runID := chi.URLParam(r, "runID")
	sum, err := s.history.Get(runID)
	if err != nil {
		log.Printf("get run %s: %v", runID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load run"})
		return
	}
	if sum == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}
