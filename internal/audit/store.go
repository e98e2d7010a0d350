// Package audit keeps a persistent record of control requests and
// interface transitions in SQLite.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"grimm.is/zonefwd/internal/logging"
)

// Event kinds.
const (
	KindControl    = "control"
	KindTransition = "transition"
)

// Event is a single audit log entry.
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Action    string    `json:"action"`
	Network   string    `json:"network,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Store provides persistent storage for audit events.
type Store struct {
	mu            sync.RWMutex
	db            *sql.DB
	retentionDays int
	logger        *logging.Logger
}

// DefaultRetentionDays applies when NewStore gets a non-positive retention.
const DefaultRetentionDays = 30

// NewStore opens or creates the audit database at dbPath.
func NewStore(dbPath string, retentionDays int, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			kind TEXT NOT NULL,
			action TEXT NOT NULL,
			network TEXT,
			request_id TEXT,
			success INTEGER NOT NULL DEFAULT 1,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_audit_network ON audit_events(network);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	return &Store{
		db:            db,
		retentionDays: retentionDays,
		logger:        logger.WithComponent("audit"),
	}, nil
}

// Record persists an event. A zero Timestamp is set to now.
func (s *Store) Record(ctx context.Context, evt Event) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (timestamp, kind, action, network, request_id, success, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, evt.Timestamp.UTC(), evt.Kind, evt.Action, nullString(evt.Network), nullString(evt.RequestID), evt.Success, nullString(evt.Error))
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Query selects events. Zero fields do not filter.
type Query struct {
	Since   time.Time
	Kind    string
	Network string
	Limit   int
}

// Query returns matching events, newest first.
func (s *Store) Query(ctx context.Context, q Query) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if !q.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, q.Since.UTC())
	}
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, q.Kind)
	}
	if q.Network != "" {
		where = append(where, "network = ?")
		args = append(args, q.Network)
	}

	query := `SELECT id, timestamp, kind, action, network, request_id, success, error FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var evt Event
		var network, requestID, errText sql.NullString
		if err := rows.Scan(&evt.ID, &evt.Timestamp, &evt.Kind, &evt.Action,
			&network, &requestID, &evt.Success, &errText); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		evt.Network = network.String
		evt.RequestID = requestID.String
		evt.Error = errText.String
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Prune removes events older than the retention period.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays).UTC()
	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	n, err := result.RowsAffected()
	if err == nil && n > 0 {
		s.logger.Info("audit events pruned", "count", n, "retention_days", s.retentionDays)
	}
	return n, err
}

// Count returns the total number of events in the store.
func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
