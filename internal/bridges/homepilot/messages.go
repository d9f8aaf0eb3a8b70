package homepilot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MQTT message types exchanged between the bridge and the rest of the house.

// CommandMessage asks the bridge to act on a device.
// Topic: homepilot/command/{device_id}
type CommandMessage struct {
	// ID correlates the command with its acknowledgment. Generated when empty.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID defaults to the last topic segment when empty.
	DeviceID string `json:"device_id"`

	// Command is an action name (e.g., "open", "set_position", "turn_on").
	Command string `json:"command"`

	// Parameters contains action-specific values.
	// Examples:
	//   {"position": 75} for set_position
	//   {"temperature": 21.5} for set_temperature
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated ("mqtt", "api").
	Source string `json:"source"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the bridge accepted the command.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage acknowledges a command.
// Topic: homepilot/ack/{device_id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeDeviceNotFound    = "DEVICE_NOT_FOUND"
	ErrCodeSceneNotFound     = "SCENE_NOT_FOUND"
	ErrCodeUnsupported       = "UNSUPPORTED_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeAuthFailed        = "AUTH_FAILED"
	ErrCodeBridgeUnreachable = "BRIDGE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// ErrorCode maps an Execute error to an ack error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		return ErrCodeDeviceNotFound
	case errors.Is(err, ErrSceneNotFound):
		return ErrCodeSceneNotFound
	case errors.Is(err, ErrUnsupported):
		return ErrCodeUnsupported
	case errors.Is(err, ErrInvalidValue):
		return ErrCodeInvalidParameters
	case errors.Is(err, ErrAuth):
		return ErrCodeAuthFailed
	case errors.Is(err, ErrCannotConnect):
		return ErrCodeBridgeUnreachable
	default:
		return ErrCodeBridgeError
	}
}

// StateMessage carries one device's state.
// Topic: homepilot/state/{device_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string         `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      Kind           `json:"kind"`
	Name      string         `json:"name"`
	State     map[string]any `json:"state"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates polling succeeds.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates transient failures or a lost broker link.
	HealthDegraded HealthStatus = "degraded"

	// HealthUnhealthy indicates polling is suspended after an auth failure.
	HealthUnhealthy HealthStatus = "unhealthy"

	// HealthOffline indicates the process is gone (from LWT).
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports operational status.
// Topic: homepilot/health
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge         string            `json:"bridge"`
	Timestamp      time.Time         `json:"timestamp"`
	Status         HealthStatus      `json:"status"`
	Version        string            `json:"version"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	Polling        *PollStatus       `json:"polling,omitempty"`
	Statistics     *BridgeStatistics `json:"statistics,omitempty"`
	DevicesManaged int               `json:"devices_managed"`
	Reason         string            `json:"reason,omitempty"`
}

// BridgeStatistics contains operational counters.
type BridgeStatistics struct {
	StatesPublished  uint64 `json:"states_published"`
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
}

// MarshalJSON renders the timestamp as RFC3339.
func (m *CommandMessage) MarshalJSON() ([]byte, error) {
	type Alias CommandMessage
	return json.Marshal(&struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias:     (*Alias)(m),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
	})
}

// UnmarshalJSON accepts an RFC3339 timestamp or none.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// NewCommandID returns a fresh command correlation ID.
func NewCommandID() string {
	return uuid.NewString()
}

// NewAckMessage creates an acknowledgment for a command.
func NewAckMessage(cmd CommandMessage, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
	}
}

// NewAckError creates a failed acknowledgment with error details.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	ack := NewAckMessage(cmd, AckFailed)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage creates a state message for a device.
func NewStateMessage(d Device) StateMessage {
	id := d.Identity()
	return StateMessage{
		DeviceID:  id.ID,
		Timestamp: time.Now().UTC(),
		Kind:      d.Kind(),
		Name:      id.Name,
		State:     d.StateMap(),
	}
}

// NewLWTMessage creates the Last Will and Testament health message.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// Topic helpers

const (
	// TopicPrefix is the base topic for all bridge messages.
	TopicPrefix = "homepilot"
)

// StateTopic returns the topic for a device's state.
// Example: homepilot/state/1010
func StateTopic(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// CommandTopic returns the topic for commands to a device.
// Example: homepilot/command/1010
func CommandTopic(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, deviceID)
}

// AckTopic returns the topic for command acknowledgments.
// Example: homepilot/ack/1010
func AckTopic(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, deviceID)
}

// HealthTopic returns the topic for health status.
func HealthTopic() string {
	return TopicPrefix + "/health"
}

// CommandSubscribeTopic returns the subscription pattern for all commands.
func CommandSubscribeTopic() string {
	return TopicPrefix + "/command/+"
}

// deviceIDFromTopic returns the last segment of a command topic.
func deviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		return ""
	}
	return parts[len(parts)-1]
}

// minTopicParts is the segment count of a valid command topic.
const minTopicParts = 3
