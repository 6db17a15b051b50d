package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"lattice/internal/domain"
)

// SQLiteStore implements domain.SessionStore on a local SQLite database.
// A single connection serializes writers; WAL keeps readers unblocked.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and runs the schema
// migration. Parent directories are created as needed.
func OpenSQLite(path string) (*SQLiteStore, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" || p == "." {
		return nil, errors.New("open session db: missing path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+p+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate session db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS threads (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			thread_id  TEXT NOT NULL,
			agent      TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (session_id, thread_id)
		);
		CREATE TABLE IF NOT EXISTS thread_messages (
			thread_seq INTEGER NOT NULL REFERENCES threads(seq) ON DELETE CASCADE,
			position   INTEGER NOT NULL,
			role       TEXT NOT NULL,
			body       TEXT NOT NULL,
			PRIMARY KEY (thread_seq, position)
		);
		CREATE TABLE IF NOT EXISTS session_models (
			session_id TEXT PRIMARY KEY,
			model      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nowText() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ensureThread returns the thread's seq, inserting the row when absent.
func ensureThread(ctx context.Context, q execer, sessionID, threadID string) (int64, error) {
	now := nowText()
	if _, err := q.ExecContext(ctx,
		`INSERT INTO threads (session_id, thread_id, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id, thread_id) DO UPDATE SET updated_at = excluded.updated_at`,
		sessionID, threadID, now, now,
	); err != nil {
		return 0, err
	}
	var seq int64
	err := q.QueryRowContext(ctx,
		"SELECT seq FROM threads WHERE session_id = ? AND thread_id = ?", sessionID, threadID,
	).Scan(&seq)
	return seq, err
}

func (s *SQLiteStore) GetThreadSettings(ctx context.Context, sessionID, threadID string) (domain.ThreadSettings, error) {
	var agent string
	err := s.db.QueryRowContext(ctx,
		"SELECT agent FROM threads WHERE session_id = ? AND thread_id = ?", sessionID, threadID,
	).Scan(&agent)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ThreadSettings{}, nil
	}
	if err != nil {
		return domain.ThreadSettings{}, fmt.Errorf("get thread settings: %w", err)
	}
	return domain.ThreadSettings{Agent: agent}, nil
}

func (s *SQLiteStore) SetThreadSettings(ctx context.Context, sessionID, threadID string, settings domain.ThreadSettings) error {
	now := nowText()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (session_id, thread_id, agent, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (session_id, thread_id) DO UPDATE SET agent = excluded.agent, updated_at = excluded.updated_at`,
		sessionID, threadID, settings.Agent, now, now,
	)
	if err != nil {
		return fmt.Errorf("set thread settings: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSessionModel(ctx context.Context, sessionID string) (string, error) {
	var model string
	err := s.db.QueryRowContext(ctx, "SELECT model FROM session_models WHERE session_id = ?", sessionID).Scan(&model)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get session model: %w", err)
	}
	return model, nil
}

func (s *SQLiteStore) SetSessionModel(ctx context.Context, sessionID, model string) error {
	var err error
	if model == "" {
		_, err = s.db.ExecContext(ctx, "DELETE FROM session_models WHERE session_id = ?", sessionID)
	} else {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO session_models (session_id, model, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (session_id) DO UPDATE SET model = excluded.model, updated_at = excluded.updated_at`,
			sessionID, model, nowText(),
		)
	}
	if err != nil {
		return fmt.Errorf("set session model: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadThread(ctx context.Context, sessionID, threadID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.body FROM thread_messages m
		 JOIN threads t ON t.seq = m.thread_seq
		 WHERE t.session_id = ? AND t.thread_id = ?
		 ORDER BY m.position`,
		sessionID, threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("load thread: %w", err)
		}
		var m domain.Message
		if err := json.Unmarshal([]byte(body), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// SaveThread replaces the thread's messages inside one transaction.
func (s *SQLiteStore) SaveThread(ctx context.Context, sessionID, threadID string, messages []domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save thread: %w", err)
	}
	defer tx.Rollback()

	seq, err := ensureThread(ctx, tx, sessionID, threadID)
	if err != nil {
		return fmt.Errorf("save thread: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM thread_messages WHERE thread_seq = ?", seq); err != nil {
		return fmt.Errorf("save thread: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO thread_messages (thread_seq, position, role, body) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("save thread: %w", err)
	}
	defer stmt.Close()

	for i, m := range messages {
		body, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, seq, i, m.Role, string(body)); err != nil {
			return fmt.Errorf("save thread: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListThreads(ctx context.Context, sessionID string) ([]domain.ThreadInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.thread_id, t.agent, t.created_at, t.updated_at,
		        (SELECT COUNT(*) FROM thread_messages m WHERE m.thread_seq = t.seq)
		 FROM threads t WHERE t.session_id = ? ORDER BY t.seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	infos := []domain.ThreadInfo{}
	for rows.Next() {
		var info domain.ThreadInfo
		var created, updated string
		if err := rows.Scan(&info.ID, &info.Agent, &created, &updated, &info.Messages); err != nil {
			return nil, fmt.Errorf("list threads: %w", err)
		}
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *SQLiteStore) CreateThread(ctx context.Context, sessionID, threadID string) error {
	now := nowText()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (session_id, thread_id, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id, thread_id) DO NOTHING`,
		sessionID, threadID, now, now,
	)
	if err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrThreadExists
	}
	return nil
}

// DeleteThread removes the thread row and its messages in one transaction.
func (s *SQLiteStore) DeleteThread(ctx context.Context, sessionID, threadID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM thread_messages WHERE thread_seq IN
		 (SELECT seq FROM threads WHERE session_id = ? AND thread_id = ?)`,
		sessionID, threadID,
	); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		"DELETE FROM threads WHERE session_id = ? AND thread_id = ?", sessionID, threadID,
	)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrThreadNotFound
	}
	return tx.Commit()
}

func (s *SQLiteStore) ThreadExists(ctx context.Context, sessionID, threadID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM threads WHERE session_id = ? AND thread_id = ?", sessionID, threadID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("thread exists: %w", err)
	}
	return true, nil
}

var _ domain.SessionStore = (*SQLiteStore)(nil)
