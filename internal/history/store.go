// Package history keeps a local SQLite log of the edits made through the editor.
package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/editor-server/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS changes (
	id         TEXT PRIMARY KEY,
	path       TEXT NOT NULL,
	action     TEXT NOT NULL,
	checksum   TEXT NOT NULL DEFAULT '',
	summary    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_changes_path ON changes(path, created_at);
`

// Actions recorded by connectors.
const (
	ActionCreate = "create"
	ActionCopy   = "copy"
	ActionSave   = "save"
	ActionUpload = "upload"
	ActionDelete = "delete"
)

// Entry is one recorded change.
type Entry struct {
	ID        string
	Path      string
	Action    string
	Checksum  string
	Summary   string
	CreatedAt time.Time
}

// Change converts e to its editor representation.
func (e Entry) Change() models.ChangeData {
	return models.ChangeData{
		ID:        e.ID,
		Action:    e.Action,
		Summary:   e.Summary,
		Checksum:  e.Checksum,
		Timestamp: e.CreatedAt,
	}
}

// Recorder records and lists changes. Consumers depend on this interface so
// that history can be switched off.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	ForFile(ctx context.Context, path string, limit int) ([]Entry, error)
	Close() error
}

// Checksum returns the hex-encoded SHA-256 digest of data.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// DB is the SQLite-backed Recorder.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

var _ Recorder = (*DB)(nil)

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &DB{conn: conn, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Record stores e, filling in ID and CreatedAt when unset.
func (db *DB) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = db.now()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO changes (id, path, action, checksum, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.Path, e.Action, e.Checksum, e.Summary, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("history: record %s %s: %w", e.Action, e.Path, err)
	}
	return nil
}

// ForFile returns the most recent changes of path, newest first. limit <= 0
// means no limit.
func (db *DB) ForFile(ctx context.Context, path string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, path, action, checksum, summary, created_at
		FROM changes
		WHERE path = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, path, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list %s: %w", path, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Path, &e.Action, &e.Checksum, &e.Summary, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Nop is the Recorder used when history is disabled.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) Record(context.Context, Entry) error                   { return nil }
func (Nop) ForFile(context.Context, string, int) ([]Entry, error) { return nil, nil }
func (Nop) Close() error                                          { return nil }
