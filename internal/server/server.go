// Package server exposes the daemon's operational HTTP listener. The
// public case-management API lives in a separate service; this listener
// only serves health and integrity status.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/custodia-legal/custodia/internal/domain"
	"github.com/custodia-legal/custodia/internal/export"
	"github.com/custodia-legal/custodia/internal/gate"
)

// GateChecker evaluates the workspace quarantine gate.
type GateChecker interface {
	Check(ctx context.Context, workspaceID uuid.UUID) (gate.Decision, error)
}

// Certifier renders integrity certificates.
type Certifier interface {
	BuildCertificate(ctx context.Context, workspaceID uuid.UUID, assetsChecked, assetsFailed int) (*export.Certificate, error)
}

// Server is the operational HTTP server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	gate       GateChecker
	certifier  Certifier
	runs       domain.AuditRunRepository
}

// New creates a Server with routes wired.
func New(addr string, readTimeout, writeTimeout time.Duration, gateChecker GateChecker, certifier Certifier, runs domain.AuditRunRepository) *Server {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)

	s := &Server{
		router:    router,
		gate:      gateChecker,
		certifier: certifier,
		runs:      runs,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
	}

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	router.Get("/integrity/{workspaceID}", s.handleIntegrityStatus)
	router.Get("/certificate/{workspaceID}", s.handleCertificate)

	return s
}

// handleCertificate renders the human-readable integrity certificate,
// seeding asset counts from the latest continuous audit run.
func (s *Server) handleCertificate(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, "workspaceID"))
	if err != nil {
		http.Error(w, `{"error":"invalid workspace id"}`, http.StatusBadRequest)
		return
	}

	checked, failed := 0, 0
	if run, err := s.runs.LatestByKind(r.Context(), workspaceID, domain.RunContinuous); err == nil {
		checked, failed = run.Checked, run.Failed
	}

	cert, err := s.certifier.BuildCertificate(r.Context(), workspaceID, checked, failed)
	if err != nil {
		http.Error(w, `{"error":"certificate build failed"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(cert.Render()))
}

func (s *Server) handleIntegrityStatus(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(chi.URLParam(r, "workspaceID"))
	if err != nil {
		http.Error(w, `{"error":"invalid workspace id"}`, http.StatusBadRequest)
		return
	}

	decision, err := s.gate.Check(r.Context(), workspaceID)
	if err != nil {
		http.Error(w, `{"error":"gate check failed"}`, http.StatusInternalServerError)
		return
	}

	status := map[string]any{
		"workspaceId": workspaceID,
		"gate":        decision,
	}

	if run, err := s.runs.LatestByKind(r.Context(), workspaceID, domain.RunContinuous); err == nil {
		status["lastAudit"] = run
	}
	if run, err := s.runs.LatestByKind(r.Context(), workspaceID, domain.RunChain); err == nil {
		status["lastChainProof"] = run
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

// Handler exposes the routed handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
