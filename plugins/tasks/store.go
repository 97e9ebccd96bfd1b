package tasksplugin

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "tomobot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

var ErrTaskNotFound = errors.New("task not found")

const (
	StatusOpen = "open"
	StatusDone = "done"
)

// Priorities in display order.
var priorities = []string{"high", "medium", "low"}

func validPriority(p string) bool {
	for _, v := range priorities {
		if v == p {
			return true
		}
	}
	return false
}

type Task struct {
	ID        int64
	ChatID    int64
	CreatedBy int64
	Title     string
	Priority  string
	Status    string
	Due       *time.Time
	CreatedAt time.Time
	DoneAt    *time.Time
}

func (t Task) Open() bool { return t.Status == StatusOpen }

type taskStore struct {
	db  *sql.DB
	log logx.Logger
}

func openTaskStore(path string, log logx.Logger) (*taskStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("task store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 3000")

	st := &taskStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *taskStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *taskStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *taskStore) Add(ctx context.Context, t Task) (int64, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(chat_id, created_by, title, priority, status, due, created_at)
		 VALUES(?,?,?,?,?,?,?)`,
		t.ChatID, t.CreatedBy, t.Title, t.Priority, t.Status,
		nullTime(t.Due), t.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return res.LastInsertId()
}

// List returns the chat's tasks, open first, then by priority and due
// date.
func (s *taskStore) List(ctx context.Context, chatID int64, includeDone bool) ([]Task, error) {
	q := `SELECT id, chat_id, created_by, title, priority, status, due, created_at, done_at
	      FROM tasks WHERE chat_id = ?`
	if !includeDone {
		q += ` AND status = 'open'`
	}
	q += ` ORDER BY status = 'open' DESC,
	       CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END,
	       due IS NULL, due, id`
	rows, err := s.db.QueryContext(ctx, q, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *taskStore) Get(ctx context.Context, chatID, id int64) (Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, created_by, title, priority, status, due, created_at, done_at
		 FROM tasks WHERE chat_id = ? AND id = ?`, chatID, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrTaskNotFound
	}
	return t, err
}

func (s *taskStore) SetDone(ctx context.Context, chatID, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'done', done_at = ? WHERE chat_id = ? AND id = ? AND status = 'open'`,
		at.Format(time.RFC3339Nano), chatID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *taskStore) Remove(ctx context.Context, chatID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE chat_id = ? AND id = ?`, chatID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// DueBetween returns open tasks whose due date falls inside [from, to),
// across all chats. Used by the daily digest.
func (s *taskStore) DueBetween(ctx context.Context, from, to time.Time) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, created_by, title, priority, status, due, created_at, done_at
		 FROM tasks
		 WHERE status = 'open' AND due IS NOT NULL AND due >= ? AND due < ?
		 ORDER BY due, chat_id, id`,
		from.Format(time.RFC3339Nano), to.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var (
		t             Task
		due, cr, done sql.NullString
	)
	if err := row.Scan(&t.ID, &t.ChatID, &t.CreatedBy, &t.Title, &t.Priority, &t.Status, &due, &cr, &done); err != nil {
		return Task{}, err
	}
	if due.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, due.String); err == nil {
			t.Due = &ts
		}
	}
	if cr.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, cr.String); err == nil {
			t.CreatedAt = ts
		}
	}
	if done.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, done.String); err == nil {
			t.DoneAt = &ts
		}
	}
	return t, nil
}

func scanTasks(rows *sql.Rows) ([]Task, error) {
	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
