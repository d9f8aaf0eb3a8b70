package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// SQLiteRepository implements Repository using SQLite.
//
// It stores snapshots and parameters as JSON text in the state_history
// and command_log tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite history repository.
//
// Parameters:
//   - db: Open SQLite connection with migrations applied
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordStateChange inserts a new state history entry for a device.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: HomePilot device ID
//   - state: State snapshot to persist
//   - source: Origin of the change (poll, command)
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) RecordStateChange(ctx context.Context, deviceID string, state map[string]any, source string) error {
	if deviceID == "" {
		return ErrDeviceIDRequired
	}
	if source == "" {
		source = SourcePoll
	}
	if state == nil {
		state = map[string]any{}
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO state_history (device_id, state, source, created_at) VALUES (?, ?, ?, ?)",
		deviceID,
		string(stateJSON),
		source,
		formatTimestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}

	return nil
}

// RecordCommand inserts a command log entry.
func (r *SQLiteRepository) RecordCommand(ctx context.Context, entry CommandEntry) error {
	if entry.DeviceID == "" {
		return ErrDeviceIDRequired
	}
	if entry.Status == "" {
		entry.Status = CommandAccepted
	}

	var params any
	if len(entry.Parameters) > 0 {
		b, err := json.Marshal(entry.Parameters)
		if err != nil {
			return fmt.Errorf("marshalling parameters: %w", err)
		}
		params = string(b)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_log
		   (command_id, device_id, action, parameters, source, status, error_code, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.CommandID,
		entry.DeviceID,
		entry.Action,
		params,
		entry.Source,
		entry.Status,
		nullString(entry.ErrorCode),
		nullString(entry.ErrorMessage),
		formatTimestamp(createdAt),
	)
	if err != nil {
		return fmt.Errorf("inserting command log: %w", err)
	}
	return nil
}

// GetHistory returns recent state history entries for a device, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: HomePilot device ID
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []StateEntry: History entries ordered by created_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteRepository) GetHistory(ctx context.Context, deviceID string, limit int) ([]StateEntry, error) {
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, state, source, created_at
		 FROM state_history
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]StateEntry, 0, limit)
	for rows.Next() {
		var entry StateEntry
		var stateJSON string
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.DeviceID, &stateJSON, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}

		if err := json.Unmarshal([]byte(stateJSON), &entry.State); err != nil {
			return nil, fmt.Errorf("unmarshalling state: %w", err)
		}

		entry.CreatedAt, err = parseTimestamp(createdAt)
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}

	return entries, nil
}

// GetCommands returns recent command log entries, newest first.
func (r *SQLiteRepository) GetCommands(ctx context.Context, deviceID string, limit int) ([]CommandEntry, error) {
	limit = clampLimit(limit)

	query := `SELECT id, command_id, device_id, action, parameters, source, status, error_code, error_message, created_at
		 FROM command_log`
	args := []any{}
	if deviceID != "" {
		query += " WHERE device_id = ?"
		args = append(args, deviceID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	entries := make([]CommandEntry, 0, limit)
	for rows.Next() {
		var (
			entry     CommandEntry
			params    sql.NullString
			errCode   sql.NullString
			errMsg    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.CommandID, &entry.DeviceID, &entry.Action,
			&params, &entry.Source, &entry.Status, &errCode, &errMsg, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command log: %w", err)
		}
		if params.Valid && params.String != "" {
			if err := json.Unmarshal([]byte(params.String), &entry.Parameters); err != nil {
				return nil, fmt.Errorf("unmarshalling parameters: %w", err)
			}
		}
		entry.ErrorCode = errCode.String
		entry.ErrorMessage = errMsg.String

		entry.CreatedAt, err = parseTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log: %w", err)
	}
	return entries, nil
}

// Prune deletes state and command entries older than the given duration.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Duration to retain (entries older than now-olderThan are deleted)
//
// Returns:
//   - int64: Number of rows deleted across both tables
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := formatTimestamp(time.Now().Add(-olderThan))

	var total int64
	for _, table := range []string{"state_history", "command_log"} {
		result, err := r.db.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE created_at < ?", //nolint:gosec // table names are constants
			cutoff,
		)
		if err != nil {
			return total, fmt.Errorf("deleting from %s: %w", table, err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}

	return total, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// formatTimestamp renders t the way it is stored: UTC RFC3339 with
// nanoseconds, so lexical order matches time order within a second.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// timestampLayout is RFC3339Nano with a fixed-width fraction.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// parseTimestamp parses a timestamp stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339Nano, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02 15:04:05", value)
	if fallbackErr == nil {
		return fallback.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
