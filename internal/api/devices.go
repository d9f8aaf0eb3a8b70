package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/homepilot-core/internal/bridges/homepilot"
)

// commandSourceAPI marks commands issued over HTTP.
const commandSourceAPI = "api"

// DeviceView is the API representation of a registry device.
type DeviceView struct {
	homepilot.Identity
	Kind      homepilot.Kind `json:"kind"`
	Available bool           `json:"available"`
	State     map[string]any `json:"state"`
}

// DeviceCommand is the request body of POST /devices/{id}/commands.
type DeviceCommand struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// NewDeviceView renders a device for API and CLI output.
func NewDeviceView(d homepilot.Device) DeviceView {
	return DeviceView{
		Identity:  d.Identity(),
		Kind:      d.Kind(),
		Available: d.Available(),
		State:     d.StateMap(),
	}
}

// handleListDevices returns all devices sorted by ID.
//
// Query parameters:
//   - kind: filter by device kind (cover, switch, thermostat, ...)
//   - available: "true" or "false" to filter by availability
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	available := r.URL.Query().Get("available")
	if available != "" && available != "true" && available != "false" {
		writeBadRequest(w, "available must be true or false")
		return
	}

	devices := s.bridge.Devices()
	views := make([]DeviceView, 0, len(devices))
	for _, d := range devices {
		if kind != "" && string(d.Kind()) != kind {
			continue
		}
		if available != "" && d.Available() != (available == "true") {
			continue
		}
		views = append(views, NewDeviceView(d))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })

	writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
}

// handleGetDevice returns a single device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.bridge.Device(chi.URLParam(r, "id"))
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewDeviceView(d))
}

// handleDeviceCommand executes a command on a device.
//
// The bridge confirms acceptance, not the resulting state: 202 with the
// ack on success, the ack with a matching error status otherwise. The new
// state arrives on the next reconcile, over MQTT and WebSocket.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var cmd DeviceCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if cmd.Command == "" {
		writeBadRequest(w, "command field is required")
		return
	}

	ack, err := s.bridge.ExecuteCommand(r.Context(), homepilot.CommandMessage{
		ID:         requestIDFrom(r.Context()),
		DeviceID:   id,
		Command:    cmd.Command,
		Parameters: cmd.Parameters,
		Source:     commandSourceAPI,
	})
	if err != nil {
		s.logger.Debug("api command failed", "device_id", id, "command", cmd.Command, "error", err)
	}

	writeJSON(w, commandStatus(ack), ack)
}
