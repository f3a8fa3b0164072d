package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/goalrunner/internal/orchestrator"
)

type createSessionRequest struct {
	Objective string `json:"objective"`
}

type sessionResponse struct {
	SessionID string             `json:"session_id"`
	Objective string             `json:"objective"`
	State     orchestrator.State `json:"state"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.orch.Store().List()
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionResponse{SessionID: sess.ID, Objective: sess.Objective, State: sess.State()})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Objective = strings.TrimSpace(req.Objective)
	if req.Objective == "" {
		respondError(w, http.StatusBadRequest, "objective is required")
		return
	}

	sess := s.orch.Submit(s.baseCtx, req.Objective)
	w.Header().Set("Location", "/v1/sessions/"+sess.ID+"/status")
	respondJSON(w, http.StatusAccepted, sessionResponse{SessionID: sess.ID, Objective: sess.Objective, State: sess.State()})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.orch.Store().Status(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Store().Dispose(chi.URLParam(r, "sessionID")); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, orchestrator.ErrSessionNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}
