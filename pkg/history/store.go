// Package history archives finished sessions to a local SQLite database so
// transcripts and answers stay exportable without the backend.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/liveassist-ai/liveassist-go/pkg/core/types"
)

// Store wraps the archive database.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default archive location.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".liveassist", "history.sqlite")
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	role           TEXT NOT NULL,
	status         TEXT NOT NULL,
	scheduled_at   INTEGER NOT NULL,
	duration_min   INTEGER NOT NULL,
	used_seconds   INTEGER NOT NULL,
	billed_minutes INTEGER NOT NULL,
	archived_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS paragraphs (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL REFERENCES sessions(id),
	source        TEXT NOT NULL,
	text          TEXT NOT NULL,
	started_at_ms INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS answers (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	channel    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_paragraphs_session ON paragraphs(session_id, started_at_ms);
CREATE INDEX IF NOT EXISTS idx_answers_session ON answers(session_id, created_at);
`

// Open opens (creating if needed) the archive at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Answer is one archived AI response.
type Answer struct {
	Channel   string
	Kind      types.RequestKind
	Content   string
	CreatedAt time.Time
}

// Archive stores a finished session with its paragraphs and answers.
// Re-archiving a session id replaces the earlier record.
func (s *Store) Archive(session types.Session, paragraphs []types.Paragraph, answers []Answer) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM paragraphs WHERE session_id = ?`,
		`DELETE FROM answers WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err := tx.Exec(stmt, session.ID); err != nil {
			return fmt.Errorf("replace session: %w", err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO sessions (id, role, status, scheduled_at, duration_min, used_seconds, billed_minutes, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, string(session.Role), string(session.Status),
		session.ScheduledAt.Unix(), session.DurationMin,
		session.UsedSeconds, session.BilledMinutes, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, p := range paragraphs {
		if _, err := tx.Exec(`
			INSERT INTO paragraphs (id, session_id, source, text, started_at_ms)
			VALUES (?, ?, ?, ?, ?)`,
			p.ID, session.ID, string(p.Source), p.Text, p.StartedAtMS,
		); err != nil {
			return fmt.Errorf("insert paragraph: %w", err)
		}
	}

	for _, a := range answers {
		if _, err := tx.Exec(`
			INSERT INTO answers (session_id, channel, kind, content, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			session.ID, a.Channel, string(a.Kind), a.Content, a.CreatedAt.Unix(),
		); err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
	}

	return tx.Commit()
}

// Sessions lists archived sessions, most recently archived first.
func (s *Store) Sessions() ([]types.Session, error) {
	rows, err := s.db.Query(`
		SELECT id, role, status, scheduled_at, duration_min, used_seconds, billed_minutes
		FROM sessions
		ORDER BY archived_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []types.Session
	for rows.Next() {
		var sess types.Session
		var role, status string
		var scheduledAt int64
		if err := rows.Scan(&sess.ID, &role, &status, &scheduledAt,
			&sess.DurationMin, &sess.UsedSeconds, &sess.BilledMinutes); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Role = types.Role(role)
		sess.Status = types.Status(status)
		sess.ScheduledAt = time.Unix(scheduledAt, 0)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Transcript returns a session's paragraphs in chronological order.
func (s *Store) Transcript(sessionID string) ([]types.Paragraph, error) {
	rows, err := s.db.Query(`
		SELECT id, source, text, started_at_ms
		FROM paragraphs
		WHERE session_id = ?
		ORDER BY started_at_ms ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query paragraphs: %w", err)
	}
	defer rows.Close()

	var paragraphs []types.Paragraph
	for rows.Next() {
		var p types.Paragraph
		var source string
		if err := rows.Scan(&p.ID, &source, &p.Text, &p.StartedAtMS); err != nil {
			return nil, fmt.Errorf("scan paragraph: %w", err)
		}
		p.Source = types.Source(source)
		p.LastAtMS = p.StartedAtMS
		paragraphs = append(paragraphs, p)
	}
	return paragraphs, rows.Err()
}

// Answers returns a session's archived AI responses in arrival order.
func (s *Store) Answers(sessionID string) ([]Answer, error) {
	rows, err := s.db.Query(`
		SELECT channel, kind, content, created_at
		FROM answers
		WHERE session_id = ?
		ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	var answers []Answer
	for rows.Next() {
		var a Answer
		var kind string
		var createdAt int64
		if err := rows.Scan(&a.Channel, &kind, &a.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		a.Kind = types.RequestKind(kind)
		a.CreatedAt = time.Unix(createdAt, 0)
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
