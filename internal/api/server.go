// Package api exposes session control, saved notes and the live status
// stream over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/recorder"
	"github.com/MikeSquared-Agency/scribe/internal/session"
	"github.com/MikeSquared-Agency/scribe/internal/status"
	"github.com/MikeSquared-Agency/scribe/internal/store"
)

type Sessions interface {
	Start(ctx context.Context) error
	Stop() error
	Cancel() error
	Status() status.Snapshot
}

type Notes interface {
	GetNote(ctx context.Context, id uuid.UUID) (*store.Note, error)
	ListNotes(ctx context.Context, limit int) ([]store.Note, error)
	TasksForNote(ctx context.Context, noteID uuid.UUID) ([]store.Task, error)
}

type StatusFeed interface {
	Subscribe(buffer int) (<-chan status.Snapshot, func())
}

type Server struct {
	router   *chi.Mux
	port     int
	srv      *http.Server
	sessions Sessions
	notes    Notes
	feed     StatusFeed
	origins  []string
	logger   *slog.Logger
}

// NewServer builds the router. originPatterns lists the extra hosts allowed to
// open the status WebSocket; same-host requests are always accepted.
func NewServer(port int, apiToken string, originPatterns []string, sessions Sessions, notes Notes, feed StatusFeed, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		sessions: sessions,
		notes:    notes,
		feed:     feed,
		origins:  originPatterns,
		logger:   logger,
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	router.Get("/health", s.health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/scribe/status", s.scribeStatus)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuthMiddleware(apiToken))

			r.Route("/session", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Post("/start", s.startSession)
				r.Post("/stop", s.stopSession)
				r.Post("/cancel", s.cancelSession)
				r.Get("/events", s.sessionEvents)
			})

			r.Route("/notes", func(r chi.Router) {
				r.Get("/", s.listNotes)
				r.Get("/{id}", s.getNote)
				r.Get("/{id}/tasks", s.noteTasks)
			})
		})
	})

	return s
}

func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) scribeStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.sessions.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":  "scribe",
		"state":  snap.State,
		"active": snap.Active,
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.Status())
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Start(r.Context()); err != nil {
		s.sessionError(w, "start", err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.sessions.Status())
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Stop(); err != nil {
		s.sessionError(w, "stop", err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.sessions.Status())
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Cancel(); err != nil {
		s.sessionError(w, "cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.Status())
}

func (s *Server) sessionError(w http.ResponseWriter, action string, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNoActiveSession), errors.Is(err, session.ErrPersisting):
		code = http.StatusConflict
	case errors.Is(err, recorder.ErrDeviceBusy), errors.Is(err, session.ErrClosed):
		code = http.StatusServiceUnavailable
	}
	s.logger.Warn("session request failed", "action", action, "error", err)
	writeError(w, code, fmt.Sprintf("%s failed: %v", action, err))
}

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	notes, err := s.notes.ListNotes(r.Context(), limit)
	if err != nil {
		s.logger.Error("list notes failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list notes failed")
		return
	}
	if notes == nil {
		notes = []store.Note{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes, "count": len(notes)})
}

func (s *Server) getNote(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	note, err := s.notes.GetNote(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "note not found")
		return
	}
	if err != nil {
		s.logger.Error("get note failed", "note_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "get note failed")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) noteTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	tasks, err := s.notes.TasksForNote(r.Context(), id)
	if err != nil {
		s.logger.Error("list tasks failed", "note_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "list tasks failed")
		return
	}
	if tasks == nil {
		tasks = []store.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid note id")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
