package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// handleDeviceHistory returns recorded state snapshots for a device,
// newest first.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "history is disabled")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.bridge.Device(id); err != nil {
		writeBridgeError(w, err)
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("reading state history", "device_id", id, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"entries":   entries,
		"count":     len(entries),
	})
}

// handleDeviceCommands returns recorded commands for a device, newest first.
func (s *Server) handleDeviceCommands(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.bridge.Device(id); err != nil {
		writeBridgeError(w, err)
		return
	}
	s.writeCommands(w, r, id)
}

// handleListCommands returns recorded commands for all devices.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	s.writeCommands(w, r, "")
}

func (s *Server) writeCommands(w http.ResponseWriter, r *http.Request, deviceID string) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "history is disabled")
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.history.GetCommands(r.Context(), deviceID, limit)
	if err != nil {
		s.logger.Error("reading command log", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to read commands")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"commands": entries,
		"count":    len(entries),
	})
}

// parseHistoryLimit parses the limit query parameter.
// Empty means the default; values above the maximum are capped.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return min(limit, maxHistoryLimit), nil
}
