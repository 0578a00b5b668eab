// Package api exposes the submission pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/FormSink/internal/model"
	"github.com/dharsanguruparan/FormSink/internal/signing"
	"github.com/dharsanguruparan/FormSink/internal/submission"
)

// Pipeline handles one decoded submission.
type Pipeline interface {
	Handle(ctx context.Context, sub *model.Submission) submission.Response
}

// Linker resolves stored object keys to direct links.
type Linker interface {
	URL(ctx context.Context, key string) (string, error)
}

// Options configures a Server.
type Options struct {
	Address     string
	MaxBodySize int64
}

// Server exposes the HTTP endpoints.
type Server struct {
	opts     Options
	pipeline Pipeline
	signer   *signing.Signer
	links    Linker
	logger   *zap.Logger
	now      func() time.Time
}

// New constructs a Server. signer and links may be nil, in which case the
// file routes answer 404.
func New(opts Options, pipeline Pipeline, signer *signing.Signer, links Linker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		opts:     opts,
		pipeline: pipeline,
		signer:   signer,
		links:    links,
		logger:   logger.Named("api"),
		now:      time.Now,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(cors)

	r.Get("/healthz", s.handleHealth)
	r.Post("/submit", s.handleSubmit)
	r.Get("/files/view", s.handleFile)
	r.Get("/files/thumbnail", s.handleFile)
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	s.logger.Info("api listening", zap.String("address", s.opts.Address))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if s.opts.MaxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodySize)
	}
	fields, err := decodeForm(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		status := http.StatusBadRequest
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		respondJSON(w, s.logger, status, submission.Response{Result: submission.ResultError, Message: err.Error()})
		return
	}
	resp := s.pipeline.Handle(r.Context(), model.NewSubmission(fields))
	respondJSON(w, s.logger, resp.Status, resp)
}

// handleFile verifies a signed file link and redirects to a short-lived
// direct link minted for this request.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if s.signer == nil || s.links == nil {
		http.NotFound(w, r)
		return
	}
	key, err := s.signer.Verify(r.URL.Query(), s.now())
	if err != nil {
		status := http.StatusForbidden
		if errors.Is(err, signing.ErrMissingParams) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	link, err := s.links.URL(r.Context(), key)
	if err != nil {
		s.logger.Warn("file lookup failed", zap.String("key", key), zap.Error(err))
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	http.Redirect(w, r, link, http.StatusFound)
}

func respondJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("encode response", zap.Error(err))
	}
}
