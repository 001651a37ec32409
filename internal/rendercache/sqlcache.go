package rendercache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vizflow/internal/viz"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// savedAtLayout is fixed-width so that saved_at sorts as text in time order.
const savedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);
CREATE TABLE IF NOT EXISTS artifacts (
	session_key    TEXT PRIMARY KEY,
	mime_type      TEXT NOT NULL,
	payload        TEXT NOT NULL,
	source_title   TEXT NOT NULL,
	goal_id        TEXT NOT NULL,
	goal_question  TEXT NOT NULL,
	goal_icon      TEXT NOT NULL DEFAULT '',
	saved_at       TEXT NOT NULL
);
`

// SQLCache implements Cache with SQLite, one row per session key.
type SQLCache struct {
	db  *sql.DB
	key string
	now func() time.Time
}

// Entry is a cached artifact plus when it was written.
type Entry struct {
	SessionKey string
	Artifact   viz.Artifact
	SavedAt    time.Time
}

// Open opens or creates the cache database at path and binds it to
// sessionKey. Creates the parent directory if it does not exist.
func Open(path, sessionKey string) (*SQLCache, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("rendercache: session key is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	c := &SQLCache{db: db, key: sessionKey, now: time.Now}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLCache) migrate() error {
	var tableCount int
	err := c.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableCount == 0 {
		if _, err := c.db.Exec(schema); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := c.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}

	var v int
	err = c.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("schema_version table is empty")
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case v != schemaVersion:
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

func (c *SQLCache) Save(a viz.Artifact) error {
	_, err := c.db.Exec(`
INSERT INTO artifacts(session_key, mime_type, payload, source_title, goal_id, goal_question, goal_icon, saved_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_key) DO UPDATE SET
	mime_type = excluded.mime_type,
	payload = excluded.payload,
	source_title = excluded.source_title,
	goal_id = excluded.goal_id,
	goal_question = excluded.goal_question,
	goal_icon = excluded.goal_icon,
	saved_at = excluded.saved_at`,
		c.key, a.MimeType, a.Payload, a.SourceTitle,
		string(a.SourceGoal.ID), a.SourceGoal.Question, string(a.SourceGoal.Icon),
		c.now().UTC().Format(savedAtLayout))
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}

func (c *SQLCache) Load() (viz.Artifact, bool, error) {
	e, ok, err := c.Entry()
	return e.Artifact, ok, err
}

// Entry returns the cached artifact together with its save time.
func (c *SQLCache) Entry() (Entry, bool, error) {
	var (
		e                Entry
		goalID, goalIcon string
		savedAt          string
	)
	err := c.db.QueryRow(`
SELECT session_key, mime_type, payload, source_title, goal_id, goal_question, goal_icon, saved_at
FROM artifacts WHERE session_key = ?`, c.key).Scan(
		&e.SessionKey, &e.Artifact.MimeType, &e.Artifact.Payload, &e.Artifact.SourceTitle,
		&goalID, &e.Artifact.SourceGoal.Question, &goalIcon, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("load artifact: %w", err)
	}
	e.Artifact.SourceGoal.ID = viz.GoalID(goalID)
	e.Artifact.SourceGoal.Icon = viz.Icon(goalIcon)
	if t, err := time.Parse(savedAtLayout, savedAt); err == nil {
		e.SavedAt = t
	}
	return e, true, nil
}

// Sessions lists every cached entry across session keys, newest first.
func (c *SQLCache) Sessions() ([]Entry, error) {
	rows, err := c.db.Query(`
SELECT session_key, mime_type, payload, source_title, goal_id, goal_question, goal_icon, saved_at
FROM artifacts ORDER BY saved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var goalID, goalIcon, savedAt string
		if err := rows.Scan(&e.SessionKey, &e.Artifact.MimeType, &e.Artifact.Payload, &e.Artifact.SourceTitle,
			&goalID, &e.Artifact.SourceGoal.Question, &goalIcon, &savedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		e.Artifact.SourceGoal.ID = viz.GoalID(goalID)
		e.Artifact.SourceGoal.Icon = viz.Icon(goalIcon)
		if t, err := time.Parse(savedAtLayout, savedAt); err == nil {
			e.SavedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (c *SQLCache) Clear() error {
	if _, err := c.db.Exec("DELETE FROM artifacts WHERE session_key = ?", c.key); err != nil {
		return fmt.Errorf("clear artifact: %w", err)
	}
	return nil
}

func (c *SQLCache) Close() error { return c.db.Close() }
