package api

import (
	"encoding/json"
	"net/http"
)

// ReauthRequest is the body of POST /bridge/reauth.
type ReauthRequest struct {
	// Password is the new bridge password; empty for bridges without one.
	Password string `json:"password"`
}

// handleBridgeStatus returns the bridge summary.
func (s *Server) handleBridgeStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.Status())
}

// handleRefresh runs one reconcile cycle now.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.bridge.Refresh(r.Context()); err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"devices": len(s.bridge.Devices()),
	})
}

// handleReauth replaces the bridge password, rebuilds the registry and
// resumes polling.
func (s *Server) handleReauth(w http.ResponseWriter, r *http.Request) {
	var req ReauthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.bridge.Reauthenticate(r.Context(), req.Password); err != nil {
		s.logger.Warn("bridge reauthentication failed", "error", err)
		writeBridgeError(w, err)
		return
	}

	s.logger.Info("bridge reauthenticated via API")
	writeJSON(w, http.StatusOK, s.bridge.Status())
}
