package homepilot

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCommandMessageJSON(t *testing.T) {
	ts := time.Date(2026, 10, 1, 12, 30, 0, 0, time.UTC)
	cmd := CommandMessage{
		ID:         "cmd-1",
		Timestamp:  ts,
		DeviceID:   "1010",
		Command:    "set_position",
		Parameters: map[string]any{"position": 75.0},
		Source:     "api",
	}

	data, err := json.Marshal(&cmd)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal(raw) error = %v", err)
	}
	if raw["timestamp"] != "2026-10-01T12:30:00Z" {
		t.Errorf("timestamp = %v, want RFC3339", raw["timestamp"])
	}

	var decoded CommandMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !decoded.Timestamp.Equal(ts) || decoded.DeviceID != "1010" || decoded.Parameters["position"] != 75.0 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestCommandMessageUnmarshalEdgeCases(t *testing.T) {
	var cmd CommandMessage
	if err := json.Unmarshal([]byte(`{"command":"open"}`), &cmd); err != nil {
		t.Fatalf("Unmarshal() without timestamp error = %v", err)
	}
	if !cmd.Timestamp.IsZero() || cmd.Command != "open" {
		t.Errorf("cmd = %+v", cmd)
	}

	if err := json.Unmarshal([]byte(`{"command":"open","timestamp":"yesterday"}`), &cmd); err == nil {
		t.Error("Unmarshal() with a bad timestamp should fail")
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", ErrDeviceNotFound), ErrCodeDeviceNotFound},
		{fmt.Errorf("x: %w", ErrUnsupported), ErrCodeUnsupported},
		{fmt.Errorf("x: %w", ErrInvalidValue), ErrCodeInvalidParameters},
		{fmt.Errorf("x: %w", ErrAuth), ErrCodeAuthFailed},
		{fmt.Errorf("x: %w", ErrCannotConnect), ErrCodeBridgeUnreachable},
		{errors.New("boom"), ErrCodeBridgeError},
	}

	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestAckMessages(t *testing.T) {
	cmd := CommandMessage{ID: "c1", DeviceID: "2020"}

	ok := NewAckMessage(cmd, AckAccepted)
	if ok.CommandID != "c1" || ok.DeviceID != "2020" || ok.Error != nil {
		t.Errorf("ack = %+v", ok)
	}

	failed := NewAckError(cmd, ErrCodeUnsupported, "nope")
	if failed.Status != AckFailed || failed.Error == nil || failed.Error.Code != ErrCodeUnsupported {
		t.Errorf("ack = %+v", failed)
	}
}

func TestNewCommandIDUnique(t *testing.T) {
	a, b := NewCommandID(), NewCommandID()
	if a == "" || a == b {
		t.Errorf("NewCommandID() = %q, %q; want distinct", a, b)
	}
}

func TestTopics(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{StateTopic("1010"), "homepilot/state/1010"},
		{CommandTopic("1010"), "homepilot/command/1010"},
		{AckTopic("1010"), "homepilot/ack/1010"},
		{HealthTopic(), "homepilot/health"},
		{CommandSubscribeTopic(), "homepilot/command/+"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestDeviceIDFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"homepilot/command/1010", "1010"},
		{"homepilot/command/-1", "-1"},
		{"homepilot/command", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := deviceIDFromTopic(tt.topic); got != tt.want {
			t.Errorf("deviceIDFromTopic(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestNewStateMessage(t *testing.T) {
	m := buildTestManager(t, newTestHouse(), ManagerOptions{})
	d, err := m.Device("2020")
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}

	msg := NewStateMessage(d)
	if msg.DeviceID != "2020" || msg.Kind != KindSwitch || msg.Name != "Garden socket" {
		t.Errorf("msg = %+v", msg)
	}
	if _, ok := msg.State["available"]; !ok {
		t.Error("state should carry availability")
	}
}
