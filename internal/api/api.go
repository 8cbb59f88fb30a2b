// Package api exposes the session orchestrator over REST for polling
// clients. It carries no business logic: every handler maps a request
// onto one orchestrator call and translates its errors to status codes.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/remedyhq/remedy/internal/models"
	"github.com/remedyhq/remedy/internal/orchestrator"
	"github.com/remedyhq/remedy/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	orch *orchestrator.Orchestrator
}

// NewServer creates a new API server over the orchestrator.
func NewServer(orch *orchestrator.Orchestrator) *Server {
	return &Server{orch: orch}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/sessions", s.createSession)
	mux.HandleFunc("GET /api/v1/sessions", s.listSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.getSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.deleteSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/fixes", s.generateFixes)
	mux.HandleFunc("POST /api/v1/sessions/{id}/plan/refine", s.refinePlan)

	mux.HandleFunc("GET /api/v1/healthz", s.healthz)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeOrchestratorError maps orchestrator/store errors to HTTP codes.
func writeOrchestratorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orchestrator.ErrNoPlan), errors.Is(err, orchestrator.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// --- Sessions ---

type createSessionRequest struct {
	IssueRef string `json:"issue_ref"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.IssueRef == "" {
		writeError(w, http.StatusBadRequest, "issue_ref is required")
		return
	}

	sess, err := s.orch.CreateSession(r.Context(), req.IssueRef)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	sessions, err := s.orch.ListSessions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.orch.GetSession(r.Context(), id)
	if err != nil {
		writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.orch.DeleteSession(r.Context(), id); err != nil {
		writeOrchestratorError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Fix generation ---

func (s *Server) generateFixes(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.orch.GenerateFixes(r.Context(), id); err != nil {
		writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// --- Plan refinement ---

type refinePlanRequest struct {
	Feedback string `json:"feedback"`
}

func (s *Server) refinePlan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req refinePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Feedback == "" {
		writeError(w, http.StatusBadRequest, "feedback is required")
		return
	}

	sess, err := s.orch.RefinePlan(r.Context(), id, req.Feedback)
	if err != nil {
		writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// --- Health ---

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
