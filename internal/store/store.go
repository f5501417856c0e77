// Package store persists notes and their tasks.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

type Note struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	Transcript string    `json:"transcript"`
	Priority   string    `json:"priority"`
	CreatedAt  time.Time `json:"created_at"`
}

// Task belongs to a note but is stored independently; deleting a note does
// not remove its tasks.
type Task struct {
	ID              uuid.UUID  `json:"id"`
	NoteID          uuid.UUID  `json:"note_id"`
	Description     string     `json:"description"`
	Priority        string     `json:"priority"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	SearchPrompt    string     `json:"search_prompt"`
	AssistantPrompt string     `json:"assistant_prompt"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Store is implemented by Postgres and SQLite. Create methods assign ID and
// CreatedAt when they are zero.
type Store interface {
	EnsureSchema(ctx context.Context) error
	CreateNote(ctx context.Context, n *Note) error
	CreateTask(ctx context.Context, t *Task) error
	GetNote(ctx context.Context, id uuid.UUID) (*Note, error)
	ListNotes(ctx context.Context, limit int) ([]Note, error)
	TasksForNote(ctx context.Context, noteID uuid.UUID) ([]Task, error)
	Close()
}

// Open connects to the configured driver ("postgres" or "sqlite") and makes
// sure the schema exists.
func Open(ctx context.Context, driver, databaseURL, sqlitePath string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case "postgres":
		if databaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
		s, err = NewPostgres(ctx, databaseURL)
	case "sqlite", "":
		if dir := filepath.Dir(sqlitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		s, err = NewSQLite(ctx, sqlitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.EnsureSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func prepareNote(n *Note) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
}

func prepareTask(t *Task) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
