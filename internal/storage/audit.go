// Package storage provides the SQLite-backed audit trail. Sessions and
// their event logs never persist; only redacted audit events about the
// lifecycle do.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"guardian/internal/redaction"
)

// Audit event kinds.
const (
	AuditSessionStarted = "session_started"
	AuditRiskScored     = "risk_scored"
	AuditSessionEnded   = "session_ended"
	AuditSessionExpired = "session_expired"
	AuditEventsTrimmed  = "events_trimmed"
)

// AuditEvent is one immutable audit trail entry. Detail is redacted
// before it is written, never after.
type AuditEvent struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	SessionID string         `json:"session_id"`
	Module    string         `json:"module"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists audit events in SQLite.
type AuditStore struct {
	db       *sql.DB
	redactor *redaction.PatternRedactor
}

// NewAuditStore opens (or creates) the audit database at dbPath.
func NewAuditStore(dbPath string) (*AuditStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL keeps writers from blocking the control API's reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &AuditStore{db: db, redactor: redaction.NewPatternRedactor()}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("audit storage initialized", "path", dbPath)
	return store, nil
}

func (s *AuditStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		session_id TEXT NOT NULL,
		module TEXT NOT NULL,
		detail TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_events(created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_session_id ON audit_events(session_id);
	CREATE INDEX IF NOT EXISTS idx_audit_kind ON audit_events(kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record writes one audit event. Detail strings are redacted first.
func (s *AuditStore) Record(kind, sessionID, module string, detail map[string]any) error {
	var detailJSON string
	if detail != nil {
		data, err := json.Marshal(s.redactor.RedactMap(detail))
		if err != nil {
			data = []byte("{}")
		}
		detailJSON = string(data)
	}

	_, err := s.db.Exec(`
		INSERT INTO audit_events (id, kind, session_id, module, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(),
		kind,
		sessionID,
		module,
		detailJSON,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// ListOptions filters audit event listings.
type ListOptions struct {
	SessionID string
	Kind      string
	Limit     int
	Since     *time.Time
}

// List retrieves audit events, newest first.
func (s *AuditStore) List(opts ListOptions) ([]AuditEvent, error) {
	query := `
		SELECT id, kind, session_id, module, detail, created_at
		FROM audit_events WHERE 1=1`
	args := []any{}

	if opts.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, opts.SessionID)
	}
	if opts.Kind != "" {
		query += " AND kind = ?"
		args = append(args, opts.Kind)
	}
	if opts.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, *opts.Since)
	}

	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var event AuditEvent
		var detailStr string
		if err := rows.Scan(&event.ID, &event.Kind, &event.SessionID, &event.Module, &detailStr, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if detailStr != "" {
			json.Unmarshal([]byte(detailStr), &event.Detail)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Cleanup deletes audit events older than the retention window.
func (s *AuditStore) Cleanup(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result, err := s.db.Exec("DELETE FROM audit_events WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit events: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		slog.Info("cleaned up old audit events", "deleted", deleted, "retention_days", retentionDays)
	}
	return deleted, nil
}

// Close closes the database connection.
func (s *AuditStore) Close() error {
	return s.db.Close()
}
