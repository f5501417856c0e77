package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/scribe/internal/chunker"
	"github.com/MikeSquared-Agency/scribe/internal/extractor"
	"github.com/MikeSquared-Agency/scribe/internal/hermes"
	"github.com/MikeSquared-Agency/scribe/internal/reconcile"
	"github.com/MikeSquared-Agency/scribe/internal/status"
	"github.com/MikeSquared-Agency/scribe/internal/store"
)

type chunkResult struct {
	text string
	err  error
}

// run is the background half of a session. Temporary chunks are always
// removed and the controller always returns to idle, including after a panic.
func (c *Controller) run(s *activeSession) {
	var chunks []chunker.Chunk
	state, label := status.Error, "Unexpected error"

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("pipeline panic", "session_id", s.id, "panic", r)
			state, label = status.Error, fmt.Sprintf("Unexpected error: %v", r)
		}
		if err := chunker.RemoveTemporary(chunks); err != nil {
			c.logger.Warn("failed to remove temporary chunks", "session_id", s.id, "error", err)
		}
		c.finish(s, state, label)
	}()

	state, label = c.process(s, &chunks)
}

func (c *Controller) process(s *activeSession, chunks *[]chunker.Chunk) (status.State, string) {
	ctx := s.ctx
	log := c.logger.With("session_id", s.id)

	var err error
	*chunks, err = chunker.Split(s.path, c.cfg.ChunkThreshold)
	if err != nil {
		log.Error("failed to split recording", "error", err)
		c.status.Append("Could not read recording: " + err.Error())
		return status.Error, "Recording could not be processed"
	}

	if !c.transition(s, status.Transcribing, fmt.Sprintf("Transcribing %d chunk(s)...", len(*chunks))) {
		return cancelled(log)
	}

	fragments := c.transcribeAll(ctx, s, *chunks)
	if ctx.Err() != nil {
		return cancelled(log)
	}
	if len(fragments) == 0 {
		log.Info("no speech detected", "chunks", len(*chunks))
		c.status.Append("No speech detected")
		return status.Idle, "No speech detected"
	}
	for _, f := range fragments {
		c.status.Append(f)
	}

	if !c.transition(s, status.Extracting, "Extracting note...") {
		return cancelled(log)
	}

	now := c.cfg.Now().In(c.cfg.Location)
	res, err := c.deps.Extractor.Extract(ctx, fragments, now)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(log)
		}
		log.Error("extraction failed", "error", err)
		if errors.Is(err, extractor.ErrEmptyResult) {
			c.status.Append("Nothing to save: the model returned no content")
			return status.Error, "Extraction returned nothing"
		}
		c.status.Append("Extraction failed: " + err.Error())
		return status.Error, "Extraction failed"
	}

	outcome := reconcile.Reconcile(res, c.cfg.Location)

	if !c.transition(s, status.Persisting, "Saving note...") {
		return cancelled(log)
	}
	// Cancellation is not honored past this point.
	return c.persist(context.WithoutCancel(ctx), s, res, outcome, fragments)
}

// transcribeAll transcribes chunks with bounded concurrency and returns the
// non-blank texts in chunk order. Failed chunks are skipped.
func (c *Controller) transcribeAll(ctx context.Context, s *activeSession, chunks []chunker.Chunk) []string {
	results := make([]chunkResult, len(chunks))
	var completed atomic.Int32

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, ch := range chunks {
		i, ch := i, ch
		g.Go(func() error {
			text, err := c.deps.Transcriber.Transcribe(ctx, ch)
			results[i] = chunkResult{text: text, err: err}
			n := completed.Add(1)
			if ctx.Err() == nil {
				c.status.SetLabel(fmt.Sprintf("Transcribed %d/%d chunk(s)", n, len(chunks)))
			}
			return nil
		})
	}
	_ = g.Wait()

	var fragments []string
	for i, r := range results {
		if r.err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("chunk skipped", "session_id", s.id, "chunk", i, "error", r.err)
				c.status.Append(fmt.Sprintf("Chunk %d could not be transcribed", i+1))
			}
			continue
		}
		if strings.TrimSpace(r.text) == "" {
			continue
		}
		fragments = append(fragments, r.text)
	}
	return fragments
}

// persist creates the note, then each task in order, then the side effects
// for tasks with a future deadline. Failures are logged and skipped.
func (c *Controller) persist(ctx context.Context, s *activeSession, res *extractor.Result, outcome reconcile.Outcome, fragments []string) (status.State, string) {
	log := c.logger.With("session_id", s.id)

	transcript := res.Transcript
	if strings.TrimSpace(transcript) == "" {
		transcript = strings.Join(fragments, "\n")
	}
	title := strings.TrimSpace(res.Title)
	if title == "" {
		title = "Voice note " + s.startedAt.In(c.cfg.Location).Format("2006-01-02 15:04")
	}

	note := &store.Note{
		Title:      title,
		Summary:    res.Summary,
		Transcript: transcript,
		Priority:   outcome.NotePriority.String(),
	}
	if err := c.deps.Store.CreateNote(ctx, note); err != nil {
		log.Error("failed to save note", "error", err)
		c.status.Append("Failed to save note: " + err.Error())
		return status.Idle, "Note could not be saved"
	}
	log.Info("note saved", "note_id", note.ID, "priority", note.Priority, "tasks", len(outcome.Tasks))

	now := c.cfg.Now()
	saved := 0
	for i, t := range outcome.Tasks {
		if t.Deadline == nil && strings.TrimSpace(t.DeadlineText) != "" {
			log.Warn("unreadable task deadline ignored", "task", i, "deadline", t.DeadlineText)
			c.status.Append(fmt.Sprintf("Deadline %q for %q could not be read", t.DeadlineText, t.Description))
		}
		task := &store.Task{
			NoteID:          note.ID,
			Description:     t.Description,
			Priority:        t.Priority.String(),
			Deadline:        t.Deadline,
			SearchPrompt:    t.SearchPrompt,
			AssistantPrompt: t.AssistantPrompt,
		}
		if err := c.deps.Store.CreateTask(ctx, task); err != nil {
			log.Error("failed to save task", "task", i, "error", err)
			c.status.Append(fmt.Sprintf("Failed to save task %q", t.Description))
			continue
		}
		saved++
		c.publish(hermes.SubjectTaskCreated, hermes.TaskCreated{
			TaskID:      task.ID.String(),
			NoteID:      note.ID.String(),
			Description: task.Description,
			Priority:    task.Priority,
			Deadline:    task.Deadline,
		})

		if task.Deadline != nil && task.Deadline.After(now) {
			c.scheduleReminders(ctx, note, task)
		}
	}

	c.publish(hermes.SubjectNoteCreated, hermes.NoteCreated{
		NoteID:    note.ID.String(),
		Title:     note.Title,
		Priority:  note.Priority,
		Tasks:     saved,
		CreatedAt: note.CreatedAt,
	})

	c.status.Append(fmt.Sprintf("Saved %q with %d task(s)", note.Title, saved))
	return status.Idle, fmt.Sprintf("Saved %q", note.Title)
}

// scheduleReminders creates the calendar entry, then the alarm, for one task.
// Both are best-effort.
func (c *Controller) scheduleReminders(ctx context.Context, note *store.Note, task *store.Task) {
	deadline := task.Deadline.In(c.cfg.Location)

	if c.deps.Calendar != nil {
		err := c.deps.Calendar.CreateEvent(ctx, hermes.CalendarEvent{
			Title:           task.Description,
			Description:     note.Title,
			Start:           deadline,
			DurationMinutes: int(c.cfg.EventDuration / time.Minute),
		})
		if err != nil {
			c.logger.Warn("calendar event failed", "task_id", task.ID, "error", err)
			c.status.Append("Calendar entry failed for " + task.Description)
		}
	}

	if c.deps.Alarms != nil {
		err := c.deps.Alarms.Schedule(ctx, hermes.Alarm{
			Message: task.Description,
			Hour:    deadline.Hour(),
			Minute:  deadline.Minute(),
		})
		if err != nil {
			c.logger.Warn("alarm scheduling failed", "task_id", task.ID, "error", err)
			c.status.Append("Alarm failed for " + task.Description)
		}
	}
}

func (c *Controller) publish(subject string, payload any) {
	if c.deps.Events == nil {
		return
	}
	if err := c.deps.Events.Publish(subject, payload); err != nil {
		c.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}

func cancelled(log *slog.Logger) (status.State, string) {
	log.Info("session cancelled before persisting")
	return status.Idle, "Cancelled"
}
