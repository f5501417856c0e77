package hermes

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type published struct {
	subject string
	payload []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(subject string, data any) error {
	if f.err != nil {
		return f.err
	}
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	f.msgs = append(f.msgs, published{subject: subject, payload: b})
	return nil
}

func TestCalendar_CreateEvent(t *testing.T) {
	pub := &fakePublisher{}
	cal := NewCalendar(pub)

	start := time.Date(2030, time.January, 1, 9, 0, 0, 0, time.UTC)
	err := cal.CreateEvent(context.Background(), CalendarEvent{
		Title:           "Call the dentist",
		Description:     "dentist near me",
		Start:           start,
		DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(pub.msgs))
	}
	if pub.msgs[0].subject != "scribe.calendar.create" {
		t.Errorf("unexpected subject %q", pub.msgs[0].subject)
	}

	var got map[string]any
	if err := json.Unmarshal(pub.msgs[0].payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got["title"] != "Call the dentist" || got["start"] != "2030-01-01T09:00:00Z" || got["duration_minutes"] != float64(60) {
		t.Errorf("unexpected payload: %v", got)
	}
}

func TestAlarms_Schedule(t *testing.T) {
	pub := &fakePublisher{}
	alarms := NewAlarms(pub)

	if err := alarms.Schedule(context.Background(), Alarm{Message: "Call the dentist", Hour: 9, Minute: 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.msgs) != 1 || pub.msgs[0].subject != "scribe.alarm.schedule" {
		t.Fatalf("unexpected messages: %+v", pub.msgs)
	}
	var got Alarm
	if err := json.Unmarshal(pub.msgs[0].payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.Hour != 9 || got.Minute != 0 || got.Message != "Call the dentist" {
		t.Errorf("unexpected alarm: %+v", got)
	}
}

func TestSideEffects_PropagateErrors(t *testing.T) {
	boom := errors.New("nats down")
	pub := &fakePublisher{err: boom}

	if err := NewCalendar(pub).CreateEvent(context.Background(), CalendarEvent{}); !errors.Is(err, boom) {
		t.Errorf("calendar: expected publish error, got %v", err)
	}
	if err := NewAlarms(pub).Schedule(context.Background(), Alarm{}); !errors.Is(err, boom) {
		t.Errorf("alarms: expected publish error, got %v", err)
	}
}

func TestSideEffects_CancelledContext(t *testing.T) {
	pub := &fakePublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewCalendar(pub).CreateEvent(ctx, CalendarEvent{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(pub.msgs) != 0 {
		t.Errorf("nothing should be published after cancellation")
	}
}

func TestSessionCommandParsing(t *testing.T) {
	var cmd SessionCommand
	if err := json.Unmarshal([]byte(`{"action":"stop"}`), &cmd); err != nil {
		t.Fatalf("failed to parse SessionCommand: %v", err)
	}
	if cmd.Action != "stop" {
		t.Errorf("expected action 'stop', got %q", cmd.Action)
	}
}
