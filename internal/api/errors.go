package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/homepilot-core/internal/bridges/homepilot"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeInternal           = "internal_error"
	ErrCodeUnsupported        = "unsupported"
	ErrCodeBridgeAuth         = "bridge_auth_failed"
	ErrCodeBridgeUnreachable  = "bridge_unreachable"
	ErrCodeServiceUnavailable = "service_unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeBridgeError maps a bridge error onto a status code.
func writeBridgeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, homepilot.ErrDeviceNotFound), errors.Is(err, homepilot.ErrSceneNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, homepilot.ErrInvalidValue):
		writeBadRequest(w, err.Error())
	case errors.Is(err, homepilot.ErrUnsupported):
		writeError(w, http.StatusNotImplemented, ErrCodeUnsupported, err.Error())
	case errors.Is(err, homepilot.ErrAuth):
		writeError(w, http.StatusBadGateway, ErrCodeBridgeAuth, err.Error())
	case errors.Is(err, homepilot.ErrCannotConnect), errors.Is(err, homepilot.ErrInvalidResponse):
		writeError(w, http.StatusBadGateway, ErrCodeBridgeUnreachable, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}

// commandStatus maps an ack error code onto the HTTP status of the
// command response.
func commandStatus(ack homepilot.AckMessage) int {
	if ack.Error == nil {
		return http.StatusAccepted
	}
	switch ack.Error.Code {
	case homepilot.ErrCodeDeviceNotFound, homepilot.ErrCodeSceneNotFound:
		return http.StatusNotFound
	case homepilot.ErrCodeInvalidCommand, homepilot.ErrCodeInvalidParameters:
		return http.StatusBadRequest
	case homepilot.ErrCodeUnsupported:
		return http.StatusNotImplemented
	case homepilot.ErrCodeAuthFailed, homepilot.ErrCodeBridgeUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
