package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"todome/internal/logging"
	"todome/internal/task"
)

// schemaVersion is stored in PRAGMA user_version. A database carrying any other
// version is dropped and recreated.
const schemaVersion = 1

var ErrNotFound = errors.New("task not found")

// Query selects one of the continuously-updating task lists.
type Query int

const (
	QueryAll Query = iota
	QueryPending
	QueryDone
)

func (q Query) String() string {
	switch q {
	case QueryPending:
		return "pending"
	case QueryDone:
		return "done"
	default:
		return "all"
	}
}

func (q Query) where() (string, []any) {
	switch q {
	case QueryPending:
		return "WHERE status = ?", []any{int(task.StatusPending)}
	case QueryDone:
		return "WHERE status = ?", []any{int(task.StatusDone)}
	default:
		return "", nil
	}
}

type Store struct {
	db     *sql.DB
	path   string
	logger *log.Logger
	now    func() time.Time

	mu       sync.Mutex
	watchers map[*watcher]struct{}
}

type watcher struct {
	ctx   context.Context
	query Query
	ch    chan task.Snapshot
}

type Option func(*Store)

func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used to stamp created_at on insert.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func Open(dbPath string, opts ...Option) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{
		db:       db,
		path:     dbPath,
		logger:   logging.Discard(),
		now:      time.Now,
		watchers: map[*watcher]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing schema: %w", err)
	}
	return s, nil
}

// Path is the database file location, used by the backup hook.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.mu.Lock()
	for w := range s.watchers {
		delete(s.watchers, w)
		close(w.ch)
	}
	s.mu.Unlock()
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	var version int
	if err := s.db.QueryRow(`PRAGMA user_version;`).Scan(&version); err != nil {
		return err
	}
	if version != schemaVersion {
		if version != 0 {
			s.logger.Warn("schema version mismatch, recreating task table", "have", version, "want", schemaVersion)
		}
		if _, err := s.db.Exec(`DROP TABLE IF EXISTS task;`); err != nil {
			return err
		}
	}
	const ddl = `
CREATE TABLE IF NOT EXISTS task (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL,
	content TEXT NOT NULL,
	status INTEGER NOT NULL DEFAULT 0,
	priority INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL
);`
	if _, err := s.db.Exec(ddl); err != nil {
		return err
	}
	_, err := s.db.Exec(fmt.Sprintf(`PRAGMA user_version = %d;`, schemaVersion))
	return err
}

func (s *Store) List(ctx context.Context, q Query) ([]task.Task, error) {
	where, args := q.where()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, content, status, priority, created_at FROM task `+where+` ORDER BY date DESC, priority ASC;`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s tasks: %w", q, err)
	}
	defer rows.Close()

	tasks := []task.Task{}
	for rows.Next() {
		var t task.Task
		var status, priority int
		var created int64
		if err := rows.Scan(&t.ID, &t.Date, &t.Content, &status, &priority, &created); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		t.Status = task.Status(status)
		t.Priority = task.Priority(priority)
		t.CreatedAt = time.UnixMilli(created)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s tasks: %w", q, err)
	}
	return tasks, nil
}

// Insert stores t as a new row and returns it with the assigned id. A zero
// CreatedAt is stamped with the store clock.
func (s *Store) Insert(ctx context.Context, t task.Task) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO task (date, content, status, priority, created_at) VALUES (?, ?, ?, ?, ?);`,
		t.Date, t.Content, int(t.Status), int(t.Priority), t.CreatedAt.UnixMilli())
	if err != nil {
		return task.Task{}, fmt.Errorf("inserting task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return task.Task{}, fmt.Errorf("reading inserted id: %w", err)
	}
	t.ID = id
	t.CreatedAt = time.UnixMilli(t.CreatedAt.UnixMilli())
	s.logger.Debug("task inserted", "id", id)
	s.notifyLocked()
	return t, nil
}

// Update replaces the mutable fields of the row with t.ID. created_at is kept.
func (s *Store) Update(ctx context.Context, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE task SET date = ?, content = ?, status = ?, priority = ? WHERE id = ?;`,
		t.Date, t.Content, int(t.Status), int(t.Priority), t.ID)
	if err != nil {
		return fmt.Errorf("updating task %d: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating task %d: %w", t.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("updating task %d: %w", t.ID, ErrNotFound)
	}
	s.logger.Debug("task updated", "id", t.ID, "status", t.Status)
	s.notifyLocked()
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM task WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("deleting task %d: %w", id, err)
	}
	s.logger.Debug("task deleted", "id", id)
	s.notifyLocked()
	return nil
}

// Watch emits the current result of q and re-emits after every mutation. The
// channel holds at most one pending list; a newer list replaces an unread one.
// It is closed once ctx is done.
func (s *Store) Watch(ctx context.Context, q Query) <-chan task.Snapshot {
	w := &watcher{ctx: ctx, query: q, ch: make(chan task.Snapshot, 1)}

	s.mu.Lock()
	s.watchers[w] = struct{}{}
	s.pushLocked(w)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[w]; ok {
			delete(s.watchers, w)
			close(w.ch)
		}
	}()
	return w.ch
}

func (s *Store) notifyLocked() {
	for w := range s.watchers {
		if w.ctx.Err() != nil {
			continue
		}
		s.pushLocked(w)
	}
}

func (s *Store) pushLocked(w *watcher) {
	tasks, err := s.List(w.ctx, w.query)
	if err != nil {
		if w.ctx.Err() != nil {
			return
		}
		s.logger.Error("watch query failed", "query", w.query, "err", err)
	}
	select {
	case <-w.ch:
	default:
	}
	w.ch <- task.Snapshot{Tasks: tasks, Err: err}
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	u := url.URL{
		Scheme: "file",
		Path:   path,
	}
	q := u.Query()
	q.Set("mode", "rwc")
	q.Set("_pragma", "busy_timeout(5000)")
	u.RawQuery = q.Encode()
	return u.String()
}
