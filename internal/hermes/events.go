package hermes

import (
	"context"
	"time"
)

const (
	SubjectCalendarCreate = "scribe.calendar.create"
	SubjectAlarmSchedule  = "scribe.alarm.schedule"
	SubjectNoteCreated    = "scribe.note.created"
	SubjectTaskCreated    = "scribe.task.created"
	SubjectStatus         = "scribe.status"
	SubjectSessionCommand = "scribe.session.command"
)

// CalendarEvent asks the calendar service to create an entry.
type CalendarEvent struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
}

// Alarm asks the device to ring at a local time of day.
type Alarm struct {
	Message string `json:"message"`
	Hour    int    `json:"hour"`
	Minute  int    `json:"minute"`
}

type NoteCreated struct {
	NoteID    string    `json:"note_id"`
	Title     string    `json:"title"`
	Priority  string    `json:"priority"`
	Tasks     int       `json:"tasks"`
	CreatedAt time.Time `json:"created_at"`
}

type TaskCreated struct {
	TaskID      string     `json:"task_id"`
	NoteID      string     `json:"note_id"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

// SessionCommand drives the session controller remotely.
// Action is one of "start", "stop", "cancel".
type SessionCommand struct {
	Action string `json:"action"`
}

// Calendar publishes calendar entry requests.
type Calendar struct {
	pub Publisher
}

func NewCalendar(pub Publisher) *Calendar {
	return &Calendar{pub: pub}
}

func (c *Calendar) CreateEvent(ctx context.Context, ev CalendarEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.pub.Publish(SubjectCalendarCreate, ev)
}

// Alarms publishes alarm scheduling requests.
type Alarms struct {
	pub Publisher
}

func NewAlarms(pub Publisher) *Alarms {
	return &Alarms{pub: pub}
}

func (a *Alarms) Schedule(ctx context.Context, alarm Alarm) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.pub.Publish(SubjectAlarmSchedule, alarm)
}
