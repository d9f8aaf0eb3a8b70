package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the history tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE state_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			state TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT 'poll',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		) STRICT;
		CREATE INDEX idx_state_history_device ON state_history(device_id, created_at DESC);

		CREATE TABLE command_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			command_id TEXT NOT NULL,
			device_id TEXT NOT NULL,
			action TEXT NOT NULL,
			parameters TEXT,
			source TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error_code TEXT,
			error_message TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		) STRICT;
		CREATE INDEX idx_command_log_device ON command_log(device_id, created_at DESC);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// insertStateRow inserts a state history row with a specific timestamp.
func insertStateRow(t *testing.T, db *sql.DB, deviceID, stateJSON string, createdAt time.Time) {
	t.Helper()

	_, err := db.Exec(
		"INSERT INTO state_history (device_id, state, source, created_at) VALUES (?, ?, ?, ?)",
		deviceID,
		stateJSON,
		SourcePoll,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("failed to insert state history row: %v", err)
	}
}

func TestRecordStateChange(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	state := map[string]any{"position": 42, "available": true}
	if err := repo.RecordStateChange(ctx, "1010", state, SourcePoll); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "1010", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}

	entry := entries[0]
	if entry.DeviceID != "1010" || entry.Source != SourcePoll {
		t.Errorf("entry = %+v", entry)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero, want non-zero")
	}
	if pos, ok := entry.State["position"].(float64); !ok || pos != 42 {
		t.Errorf("State[\"position\"] = %v, want 42", entry.State["position"])
	}
	if avail, ok := entry.State["available"].(bool); !ok || !avail {
		t.Errorf("State[\"available\"] = %v, want true", entry.State["available"])
	}
}

func TestRecordStateChangeDefaults(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.RecordStateChange(ctx, "2020", nil, ""); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "2020", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Source != SourcePoll || len(entries[0].State) != 0 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestDeviceIDRequired(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.RecordStateChange(ctx, "", nil, SourcePoll); !errors.Is(err, ErrDeviceIDRequired) {
		t.Errorf("RecordStateChange() error = %v, want ErrDeviceIDRequired", err)
	}
	if err := repo.RecordCommand(ctx, CommandEntry{Action: "open"}); !errors.Is(err, ErrDeviceIDRequired) {
		t.Errorf("RecordCommand() error = %v, want ErrDeviceIDRequired", err)
	}
	if _, err := repo.GetHistory(ctx, "", 10); !errors.Is(err, ErrDeviceIDRequired) {
		t.Errorf("GetHistory() error = %v, want ErrDeviceIDRequired", err)
	}
}

func TestGetHistoryOrderingAndLimit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertStateRow(t, db, "1010", `{"position":0}`, now.Add(-2*time.Hour))
	insertStateRow(t, db, "1010", `{"position":50}`, now.Add(-1*time.Hour))
	insertStateRow(t, db, "1010", `{"position":100}`, now)
	insertStateRow(t, db, "1011", `{"position":10}`, now)

	entries, err := repo.GetHistory(ctx, "1010", 2)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries length = %d, want 2", len(entries))
	}
	if !entries[0].CreatedAt.Equal(now) {
		t.Errorf("entry[0] CreatedAt = %s, want %s", entries[0].CreatedAt, now)
	}
	if entries[1].State["position"] != 50.0 {
		t.Errorf("entry[1] position = %v, want 50", entries[1].State["position"])
	}
}

func TestGetHistorySameSecondOrdering(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := repo.RecordStateChange(ctx, "1010", map[string]any{"seq": i}, SourcePoll); err != nil {
			t.Fatalf("RecordStateChange() error = %v", err)
		}
	}

	entries, err := repo.GetHistory(ctx, "1010", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 || entries[0].State["seq"] != 2.0 || entries[2].State["seq"] != 0.0 {
		t.Errorf("entries not newest first: %+v", entries)
	}
}

func TestRecordAndGetCommands(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	issued := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	entries := []CommandEntry{
		{
			CommandID:  "c1",
			DeviceID:   "1010",
			Action:     "set_position",
			Parameters: map[string]any{"position": 75},
			Source:     "mqtt",
			Status:     CommandAccepted,
			CreatedAt:  issued,
		},
		{
			CommandID:    "c2",
			DeviceID:     "1010",
			Action:       "ping",
			Source:       "api",
			Status:       CommandFailed,
			ErrorCode:    "UNSUPPORTED_COMMAND",
			ErrorMessage: "device does not support ping",
			CreatedAt:    issued.Add(time.Minute),
		},
		{
			CommandID: "c3",
			DeviceID:  "2020",
			Action:    "turn_on",
			CreatedAt: issued.Add(2 * time.Minute),
		},
	}
	for _, e := range entries {
		if err := repo.RecordCommand(ctx, e); err != nil {
			t.Fatalf("RecordCommand(%s) error = %v", e.CommandID, err)
		}
	}

	got, err := repo.GetCommands(ctx, "1010", 10)
	if err != nil {
		t.Fatalf("GetCommands() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("commands = %d, want 2", len(got))
	}

	failed := got[0]
	if failed.CommandID != "c2" || failed.Status != CommandFailed || failed.ErrorCode != "UNSUPPORTED_COMMAND" {
		t.Errorf("got[0] = %+v", failed)
	}
	if failed.Parameters != nil {
		t.Errorf("Parameters = %v, want nil", failed.Parameters)
	}

	accepted := got[1]
	if accepted.Parameters["position"] != 75.0 || accepted.ErrorCode != "" {
		t.Errorf("got[1] = %+v", accepted)
	}
	if !accepted.CreatedAt.Equal(issued) {
		t.Errorf("CreatedAt = %s, want %s", accepted.CreatedAt, issued)
	}

	all, err := repo.GetCommands(ctx, "", 10)
	if err != nil {
		t.Fatalf("GetCommands(all) error = %v", err)
	}
	if len(all) != 3 || all[0].CommandID != "c3" {
		t.Errorf("all = %+v", all)
	}
	if all[0].Status != CommandAccepted {
		t.Errorf("default status = %q, want accepted", all[0].Status)
	}
}

func TestPrune(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	insertStateRow(t, db, "1010", `{"position":0}`, now.Add(-48*time.Hour))
	insertStateRow(t, db, "1010", `{"position":10}`, now.Add(-1*time.Hour))
	if err := repo.RecordCommand(ctx, CommandEntry{
		CommandID: "old", DeviceID: "1010", Action: "open", CreatedAt: now.Add(-72 * time.Hour),
	}); err != nil {
		t.Fatalf("RecordCommand() error = %v", err)
	}
	if err := repo.RecordCommand(ctx, CommandEntry{
		CommandID: "new", DeviceID: "1010", Action: "close",
	}); err != nil {
		t.Fatalf("RecordCommand() error = %v", err)
	}

	deleted, err := repo.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	states, _ := repo.GetHistory(ctx, "1010", 10)
	if len(states) != 1 || states[0].State["position"] != 10.0 {
		t.Errorf("remaining states = %+v", states)
	}
	cmds, _ := repo.GetCommands(ctx, "1010", 10)
	if len(cmds) != 1 || cmds[0].CommandID != "new" {
		t.Errorf("remaining commands = %+v", cmds)
	}
}

func TestPruneRejectsNonPositive(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	if _, err := repo.Prune(context.Background(), 0); !errors.Is(err, ErrInvalidRetention) {
		t.Errorf("Prune(0) error = %v, want ErrInvalidRetention", err)
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, defaultLimit},
		{-5, defaultLimit},
		{10, 10},
		{maxLimit + 1, maxLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"2026-10-01T12:00:00Z", false},
		{"2026-10-01T12:00:00.123456789Z", false},
		{"2026-10-01 12:00:00", false},
		{"", true},
		{"not a time", true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			_, err := parseTimestamp(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseTimestamp() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
