// Package session owns the recording lifecycle and drives the
// transcribe, extract and persist pipeline for each finished recording.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/chunker"
	"github.com/MikeSquared-Agency/scribe/internal/extractor"
	"github.com/MikeSquared-Agency/scribe/internal/hermes"
	"github.com/MikeSquared-Agency/scribe/internal/recorder"
	"github.com/MikeSquared-Agency/scribe/internal/status"
	"github.com/MikeSquared-Agency/scribe/internal/store"
)

var (
	ErrNoActiveSession = errors.New("no active recording session")
	ErrPersisting      = errors.New("session is persisting and can no longer be cancelled")
	ErrClosed          = errors.New("session controller is closed")
)

type Recorder interface {
	Start(ctx context.Context, path string) (recorder.Recording, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, chunk chunker.Chunk) (string, error)
}

type Extractor interface {
	Extract(ctx context.Context, fragments []string, now time.Time) (*extractor.Result, error)
}

type Store interface {
	CreateNote(ctx context.Context, n *store.Note) error
	CreateTask(ctx context.Context, t *store.Task) error
}

type Calendar interface {
	CreateEvent(ctx context.Context, ev hermes.CalendarEvent) error
}

type AlarmScheduler interface {
	Schedule(ctx context.Context, alarm hermes.Alarm) error
}

// Deps are the controller's collaborators. Calendar, Alarms and Events may be
// nil, which disables that side effect.
type Deps struct {
	Recorder    Recorder
	Transcriber Transcriber
	Extractor   Extractor
	Store       Store
	Calendar    Calendar
	Alarms      AlarmScheduler
	Events      hermes.Publisher
	Status      *status.Channel
	Logger      *slog.Logger
}

type Config struct {
	RecordingsDir  string
	ChunkThreshold int64
	Concurrency    int
	EventDuration  time.Duration
	Location       *time.Location
	Now            func() time.Time
}

// Controller enforces at most one session at a time.
type Controller struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	status *status.Channel

	mu      sync.Mutex
	current *activeSession
	closed  bool
}

type activeSession struct {
	id        uuid.UUID
	path      string
	startedAt time.Time
	rec       recorder.Recording

	ctx    context.Context
	cancel context.CancelFunc

	// guarded by Controller.mu
	state status.State

	done     chan struct{}
	doneOnce sync.Once
}

func New(deps Deps, cfg Config) *Controller {
	if cfg.ChunkThreshold <= 0 {
		cfg.ChunkThreshold = 20 * 1024 * 1024
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.EventDuration <= 0 {
		cfg.EventDuration = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RecordingsDir == "" {
		cfg.RecordingsDir = os.TempDir()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Status == nil {
		deps.Status = status.New(50)
	}
	return &Controller{
		deps:   deps,
		cfg:    cfg,
		logger: deps.Logger,
		status: deps.Status,
	}
}

// Start begins recording. It is a no-op while any session is in progress.
// A recorder failure leaves the controller idle and is returned.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.current != nil {
		c.logger.Info("start ignored, session already active",
			"session_id", c.current.id,
			"state", c.current.state,
		)
		return nil
	}

	if err := os.MkdirAll(c.cfg.RecordingsDir, 0o755); err != nil {
		c.status.SetState(status.Idle, "Could not start recording")
		return fmt.Errorf("create recordings dir: %w", err)
	}

	id := uuid.New()
	path := filepath.Join(c.cfg.RecordingsDir, "recording-"+id.String()+".mp3")

	rec, err := c.deps.Recorder.Start(ctx, path)
	if err != nil {
		c.logger.Error("failed to start recording", "session_id", id, "error", err)
		c.status.SetState(status.Idle, "Could not start recording: microphone unavailable")
		c.status.Append("Recording failed to start: " + err.Error())
		return fmt.Errorf("start recording: %w", err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &activeSession{
		id:        id,
		path:      rec.Path(),
		startedAt: c.cfg.Now(),
		rec:       rec,
		ctx:       sessionCtx,
		cancel:    cancel,
		state:     status.Recording,
		done:      make(chan struct{}),
	}
	c.current = s

	c.status.SetRecording(s.path, s.startedAt)
	c.status.SetState(status.Recording, "Recording...")
	c.logger.Info("recording started", "session_id", id, "path", s.path)
	return nil
}

// Stop releases the recorder and hands the finished file to the background
// pipeline. It returns once the pipeline has been started.
func (c *Controller) Stop() error {
	c.mu.Lock()
	s := c.current
	if s == nil || s.state != status.Recording {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	s.state = status.Stopping
	c.status.SetState(status.Stopping, "Stopping recording...")
	c.mu.Unlock()

	if err := s.rec.Stop(); err != nil {
		c.logger.Error("failed to release recorder", "session_id", s.id, "error", err)
		c.status.Append("Recording could not be finalized: " + err.Error())
		c.finish(s, status.Error, "Recording failed")
		return fmt.Errorf("stop recording: %w", err)
	}

	c.logger.Info("recording stopped", "session_id", s.id,
		"duration", c.cfg.Now().Sub(s.startedAt).Round(time.Second).String(),
	)
	go c.run(s)
	return nil
}

// Cancel stops the session without processing. In-flight remote calls are
// cancelled, partial results discarded and temporary chunks removed. Once
// the session is persisting it returns ErrPersisting.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	s := c.current
	if s == nil {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	if s.state == status.Persisting {
		c.mu.Unlock()
		return ErrPersisting
	}
	s.cancel()
	recording := s.state == status.Recording
	if recording {
		s.state = status.Stopping
	}
	c.mu.Unlock()

	c.logger.Info("session cancelled", "session_id", s.id)
	if recording {
		if err := s.rec.Stop(); err != nil {
			c.logger.Warn("recorder stop after cancel", "session_id", s.id, "error", err)
		}
		c.finish(s, status.Idle, "Recording discarded")
	}
	return nil
}

// Wait blocks until the current session, if any, has fully finished.
func (c *Controller) Wait() {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s != nil {
		<-s.done
	}
}

// Close refuses further Starts, cancels the current session unless it is
// already persisting, and waits for it to finish.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if err := c.Cancel(); err != nil && !errors.Is(err, ErrNoActiveSession) {
		c.logger.Info("waiting for session to finish", "reason", err)
	}
	c.Wait()
}

func (c *Controller) Status() status.Snapshot {
	return c.status.Snapshot()
}

// HandleCommand handles a remote {"action": "..."} session command.
func (c *Controller) HandleCommand(subject string, data []byte) {
	var cmd hermes.SessionCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.logger.Warn("invalid session command", "subject", subject, "error", err)
		return
	}

	var err error
	switch cmd.Action {
	case "start":
		err = c.Start(context.Background())
	case "stop":
		err = c.Stop()
	case "cancel":
		err = c.Cancel()
	default:
		c.logger.Warn("unknown session command", "subject", subject, "action", cmd.Action)
		return
	}
	if err != nil {
		c.logger.Warn("session command failed", "action", cmd.Action, "error", err)
		return
	}
	c.logger.Info("session command handled", "action", cmd.Action)
}

// transition moves s to state unless it has been cancelled.
func (c *Controller) transition(s *activeSession, state status.State, label string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.ctx.Err() != nil || c.current != s {
		return false
	}
	s.state = state
	c.status.SetState(state, label)
	return true
}

// finish releases the controller for the next session and publishes the
// terminal status. Error is terminal for display only; a new session can
// start immediately.
func (c *Controller) finish(s *activeSession, state status.State, label string) {
	c.mu.Lock()
	if c.current == s {
		c.current = nil
		c.status.SetState(state, label)
	}
	c.mu.Unlock()

	s.cancel()
	s.doneOnce.Do(func() { close(s.done) })
}
