package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/orderdesk/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	insertAttempts  = 3
	insertBaseDelay = 100 * time.Millisecond
	insertTimeout   = 5 * time.Second
)

// SQLiteStore writes transcript events to a SQLite audit table.
type SQLiteStore struct {
	*asyncWriter
	db *sql.DB
}

// NewSQLite opens (or creates) the audit database at dbPath.
func NewSQLite(dbPath string, queueSize int, logger *slog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	s.asyncWriter = newAsyncWriter("sqlite", queueSize, s.insert, logger)
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS transcripts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		category TEXT NOT NULL,
		kind TEXT NOT NULL,
		stage TEXT NOT NULL,
		from_stage TEXT,
		role TEXT,
		text TEXT,
		resolved INTEGER NOT NULL DEFAULT 0,
		escalated INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transcripts_session ON transcripts(session_id, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) insert(e Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	query := `
	INSERT INTO transcripts (session_id, category, kind, stage, from_stage, role, text, resolved, escalated, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return shared.RetrySQLite(ctx, insertAttempts, insertBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			e.SessionID, e.Category, e.Kind, e.Stage, nullable(e.FromStage), nullable(e.Role), nullable(e.Text),
			e.Resolved, e.Escalated, e.Time.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert transcript event: %w", err)
		}
		return nil
	})
}

// Session returns the recorded events of a session in insertion order.
func (s *SQLiteStore) Session(ctx context.Context, sessionID string) ([]Event, error) {
	query := `
		SELECT session_id, category, kind, stage, from_stage, role, text, resolved, escalated, created_at
		FROM transcripts WHERE session_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close transcript rows", "error", closeErr)
		}
	}()

	var events []Event
	for rows.Next() {
		var e Event
		var fromStage, role, text sql.NullString
		var createdAt int64
		if err := rows.Scan(
			&e.SessionID, &e.Category, &e.Kind, &e.Stage, &fromStage, &role, &text,
			&e.Resolved, &e.Escalated, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		e.FromStage = fromStage.String
		e.Role = role.String
		e.Text = text.String
		e.Time = time.UnixMilli(createdAt).UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript: %w", err)
	}
	return events, nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close flushes queued events and closes the database.
func (s *SQLiteStore) Close() error {
	s.drain()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
