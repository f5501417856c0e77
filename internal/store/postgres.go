package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS notes (
	id          UUID PRIMARY KEY,
	title       TEXT NOT NULL,
	summary     TEXT NOT NULL,
	transcript  TEXT NOT NULL,
	priority    TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tasks (
	id                UUID PRIMARY KEY,
	seq               BIGSERIAL,
	note_id           UUID NOT NULL,
	description       TEXT NOT NULL,
	priority          TEXT NOT NULL,
	deadline          TIMESTAMPTZ,
	search_prompt     TEXT NOT NULL DEFAULT '',
	assistant_prompt  TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS tasks_note_id_idx ON tasks (note_id);
`

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() {
	s.pool.Close()
}

func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Postgres) CreateNote(ctx context.Context, n *Note) error {
	prepareNote(n)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notes (id, title, summary, transcript, priority, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.Title, n.Summary, n.Transcript, n.Priority, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// CreateTask does not check that the owning note exists.
func (s *Postgres) CreateTask(ctx context.Context, t *Task) error {
	prepareTask(t)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (id, note_id, description, priority, deadline, search_prompt, assistant_prompt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.NoteID, t.Description, t.Priority, t.Deadline, t.SearchPrompt, t.AssistantPrompt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *Postgres) GetNote(ctx context.Context, id uuid.UUID) (*Note, error) {
	var n Note
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, summary, transcript, priority, created_at
		FROM notes WHERE id = $1`, id,
	).Scan(&n.ID, &n.Title, &n.Summary, &n.Transcript, &n.Priority, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return &n, nil
}

func (s *Postgres) ListNotes(ctx context.Context, limit int) ([]Note, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, summary, transcript, priority, created_at
		FROM notes
		ORDER BY created_at DESC
		LIMIT $1`, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.Title, &n.Summary, &n.Transcript, &n.Priority, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// TasksForNote returns a note's tasks in insertion order.
func (s *Postgres) TasksForNote(ctx context.Context, noteID uuid.UUID) ([]Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, note_id, description, priority, deadline, search_prompt, assistant_prompt, created_at
		FROM tasks
		WHERE note_id = $1
		ORDER BY seq ASC`, noteID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.NoteID, &t.Description, &t.Priority, &t.Deadline,
			&t.SearchPrompt, &t.AssistantPrompt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
