// Package audit persists every permission decision to a local SQLite
// database, independent of the JSONL event log: the event log is a
// rolling, compactable activity feed (internal/eventstore), while this
// store is an append-only audit trail a human can later query ("what did
// I approve for this project last week") without replaying JSONL.
package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ZAKERR/agent-desk/internal/wire"
)

// Store records permission decisions for later review.
type Store struct {
	db *sqlx.DB
}

// Decision is one row of the audit trail.
type Decision struct {
	ID        string    `db:"id"`
	SessionID string    `db:"session_id"`
	Cwd       string    `db:"cwd"`
	ToolName  string    `db:"tool_name"`
	Decision  string    `db:"decision"`
	TimedOut  bool      `db:"timed_out"`
	CreatedAt time.Time `db:"created_at"`
}

// Open creates the database file (and parent directory) if missing and
// runs the schema migration.
func Open(dbPath string) (*Store, error) {
	if err := ensureDir(dbPath); err != nil {
		return nil, fmt.Errorf("prepare audit db path: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_mode=rwc", dbPath)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return store, nil
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS permission_decisions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		cwd TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		decision TEXT NOT NULL,
		timed_out INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_permission_decisions_session_id ON permission_decisions(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends one decision row. Called fire-and-forget from the
// permission-respond and permission-timeout paths; a failure here must
// never block the HTTP response, so callers log and discard the error.
func (s *Store) Record(ctx context.Context, req wire.PermissionRequest, kind wire.PermissionDecisionKind, timedOut bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permission_decisions (id, session_id, cwd, tool_name, decision, timed_out, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, req.ID, req.SessionID, req.Cwd, req.ToolName, string(kind), boolToInt(timedOut), time.Now().UTC())
	return err
}

// RecentForSession returns the most recent decisions for a session, newest
// first, for UI/debugging use.
func (s *Store) RecentForSession(ctx context.Context, sessionID string, limit int) ([]Decision, error) {
	var rows []Decision
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, session_id, cwd, tool_name, decision, timed_out, created_at
		FROM permission_decisions
		WHERE session_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, sessionID, limit)
	return rows, err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
