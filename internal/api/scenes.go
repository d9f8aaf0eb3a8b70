package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homepilot-core/internal/bridges/homepilot"
)

// handleListScenes returns the bridge's scenes.
func (s *Server) handleListScenes(w http.ResponseWriter, _ *http.Request) {
	scenes := s.bridge.Scenes()
	writeJSON(w, http.StatusOK, map[string]any{"scenes": scenes, "count": len(scenes)})
}

// handleExecuteScene runs a scene. It goes through the hub's command path
// so the run is acknowledged and recorded like any other command.
func (s *Server) handleExecuteScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ack, err := s.bridge.ExecuteCommand(r.Context(), homepilot.CommandMessage{
		ID:         requestIDFrom(r.Context()),
		DeviceID:   homepilot.HubID,
		Command:    string(homepilot.ActionExecuteScene),
		Parameters: map[string]any{"scene_id": id},
		Source:     commandSourceAPI,
	})
	if err != nil {
		s.logger.Debug("scene execution failed", "scene_id", id, "error", err)
	}

	writeJSON(w, commandStatus(ack), ack)
}
