// Package server exposes the mapper's HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samvad-hq/samvad-news-mapper/internal/apperr"
	"github.com/samvad-hq/samvad-news-mapper/internal/dedupe"
	"github.com/samvad-hq/samvad-news-mapper/internal/domain"
	"github.com/samvad-hq/samvad-news-mapper/internal/logger"
	"github.com/samvad-hq/samvad-news-mapper/internal/pipeline"
	"github.com/samvad-hq/samvad-news-mapper/internal/rotation"
)

// Server routes the mapper API onto its services.
type Server struct {
	cleaner  *dedupe.Cleaner
	rotation *rotation.Manager
	pipeline *pipeline.Service
	log      logger.Logger

	httpServer      *http.Server
	shutdownTimeout time.Duration
}

// New builds the HTTP server on addr.
func New(addr string, cleaner *dedupe.Cleaner, rot *rotation.Manager, pipe *pipeline.Service, log logger.Logger, shutdownTimeout time.Duration) *Server {
	if log == nil {
		log = &logger.NopLogger{}
	}
	s := &Server{
		cleaner:         cleaner,
		rotation:        rot,
		pipeline:        pipe,
		log:             log,
		shutdownTimeout: shutdownTimeout,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /clean", s.handleClean)
	mux.HandleFunc("POST /index", s.handleIndex)
	mux.HandleFunc("GET /request-data", s.handleRequestData)
	mux.HandleFunc("GET /request-source", s.handleRequestSource)
	mux.HandleFunc("POST /renew-sources", s.handleRenewSources)
	mux.HandleFunc("POST /headlines", s.handleHeadlines)
	mux.HandleFunc("POST /enhancements", s.handleEnhancements)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.InfoObj("http server listening", "server_addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) handleClean(w http.ResponseWriter, _ *http.Request) {
	report, err := s.cleaner.CleanDuplicates()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	if _, err := s.pipeline.MarkIndexed(req.IDs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "successful"})
}

func (s *Server) handleRequestData(w http.ResponseWriter, _ *http.Request) {
	news, count, err := s.pipeline.UnindexedData()
	if err != nil {
		writeError(w, err)
		return
	}
	if news == nil {
		news = []domain.Headline{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"news": news, "count": count})
}

func (s *Server) handleRequestSource(w http.ResponseWriter, _ *http.Request) {
	source, err := s.rotation.Request()
	if err != nil {
		if apperr.IsKind(err, apperr.KindPrecondition) || apperr.IsKind(err, apperr.KindNotFound) {
			writeJSON(w, apperr.StatusFor(err), map[string]any{
				"message":       err.Error(),
				"updateRequest": true,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updateRequest": false, "source": source})
}

func (s *Server) handleRenewSources(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sources []domain.Source `json:"sources"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	result, err := s.rotation.Register(req.Sources)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHeadlines(w http.ResponseWriter, r *http.Request) {
	var batch domain.HeadlineBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	result, err := s.pipeline.Ingest(r.Context(), batch)
	if err != nil {
		writeError(w, err)
		return
	}
	if result.NoOp() {
		writeJSON(w, http.StatusOK, map[string]string{"message": result.Message})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"db":      map[string]any{"status": "success", "total": result.Stored},
		"publish": result.Publish,
	})
}

func (s *Server) handleEnhancements(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Headlines []domain.Enhancement `json:"headlines"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	result, err := s.pipeline.ApplyEnhancements(r.Context(), req.Headlines)
	if err != nil {
		writeError(w, err)
		return
	}
	if result.NoOp() {
		writeJSON(w, http.StatusOK, map[string]string{"message": result.Message})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enhancements":  result.Enhancements,
		"message":       result.Message,
		"publishStatus": result.Publish,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
