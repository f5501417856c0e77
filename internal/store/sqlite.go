package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS notes (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	summary TEXT NOT NULL,
	transcript TEXT NOT NULL,
	priority TEXT NOT NULL,
	createdAt REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	noteId TEXT NOT NULL,
	description TEXT NOT NULL,
	priority TEXT NOT NULL,
	deadline REAL,
	searchPrompt TEXT NOT NULL DEFAULT '',
	assistantPrompt TEXT NOT NULL DEFAULT '',
	createdAt REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_note ON tasks(noteId);
`

// SQLite is the default local store. Timestamps are stored as fractional
// Unix seconds.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens path with WAL journaling. ":memory:" gives a private
// in-memory database.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" a single database and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() {
	_ = s.db.Close()
}

func (s *SQLite) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *SQLite) CreateNote(ctx context.Context, n *Note) error {
	prepareNote(n)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, title, summary, transcript, priority, createdAt)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID.String(), n.Title, n.Summary, n.Transcript, n.Priority, unixFromTime(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (s *SQLite) CreateTask(ctx context.Context, t *Task) error {
	prepareTask(t)
	var deadline sql.NullFloat64
	if t.Deadline != nil {
		deadline = sql.NullFloat64{Float64: unixFromTime(*t.Deadline), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, noteId, description, priority, deadline, searchPrompt, assistantPrompt, createdAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.NoteID.String(), t.Description, t.Priority, deadline,
		t.SearchPrompt, t.AssistantPrompt, unixFromTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *SQLite) GetNote(ctx context.Context, id uuid.UUID) (*Note, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, summary, transcript, priority, createdAt
		FROM notes WHERE id = ?`, id.String())

	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

func (s *SQLite) ListNotes(ctx context.Context, limit int) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, summary, transcript, priority, createdAt
		FROM notes
		ORDER BY createdAt DESC
		LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

// TasksForNote returns a note's tasks in insertion order.
func (s *SQLite) TasksForNote(ctx context.Context, noteID uuid.UUID) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, noteId, description, priority, deadline, searchPrompt, assistantPrompt, createdAt
		FROM tasks
		WHERE noteId = ?
		ORDER BY rowid ASC`, noteID.String())
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		var id, note string
		var deadline sql.NullFloat64
		var createdAt float64
		if err := rows.Scan(&id, &note, &t.Description, &t.Priority, &deadline,
			&t.SearchPrompt, &t.AssistantPrompt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse task id: %w", err)
		}
		if t.NoteID, err = uuid.Parse(note); err != nil {
			return nil, fmt.Errorf("parse note id: %w", err)
		}
		if deadline.Valid {
			d := timeFromUnix(deadline.Float64)
			t.Deadline = &d
		}
		t.CreatedAt = timeFromUnix(createdAt)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*Note, error) {
	var n Note
	var id string
	var createdAt float64
	if err := row.Scan(&id, &n.Title, &n.Summary, &n.Transcript, &n.Priority, &createdAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse note id: %w", err)
	}
	n.ID = parsed
	n.CreatedAt = timeFromUnix(createdAt)
	return &n, nil
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// timeFromUnix rounds to the microsecond; float64 seconds cannot hold
// nanosecond precision for current dates.
func timeFromUnix(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9)).Round(time.Microsecond).UTC()
}
