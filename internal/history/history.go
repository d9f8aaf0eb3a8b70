package history

import (
	"context"
	"time"
)

// State history source values.
const (
	SourcePoll    = "poll"
	SourceCommand = "command"
)

// Command status values.
const (
	CommandAccepted = "accepted"
	CommandFailed   = "failed"
)

// StateEntry is one recorded device state.
//
// Each entry stores a full snapshot of the device state at the time the
// change was observed.
type StateEntry struct {
	// ID is the auto-incremented primary key.
	ID int64 `json:"id"`

	// DeviceID is the HomePilot device ID.
	DeviceID string `json:"device_id"`

	// State is the snapshot as published to MQTT.
	State map[string]any `json:"state"`

	// Source identifies how the change was observed (poll, command).
	Source string `json:"source"`

	// CreatedAt is when the change was recorded (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// CommandEntry is one executed command.
type CommandEntry struct {
	ID           int64          `json:"id"`
	CommandID    string         `json:"command_id"`
	DeviceID     string         `json:"device_id"`
	Action       string         `json:"action"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Source       string         `json:"source"`
	Status       string         `json:"status"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Repository stores and retrieves the audit trail.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// RecordStateChange records a device state snapshot.
	RecordStateChange(ctx context.Context, deviceID string, state map[string]any, source string) error

	// RecordCommand records an executed command.
	RecordCommand(ctx context.Context, entry CommandEntry) error

	// GetHistory returns recent state entries for a device, newest first.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]StateEntry, error)

	// GetCommands returns recent commands for a device, newest first.
	// An empty deviceID returns commands for all devices.
	GetCommands(ctx context.Context, deviceID string, limit int) ([]CommandEntry, error)

	// Prune deletes entries older than the given age.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
