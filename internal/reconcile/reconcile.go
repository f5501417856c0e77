// Package reconcile derives final priorities and absolute deadlines from
// extraction output.
package reconcile

import (
	"strings"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/extractor"
)

// Priority is ordinal: lower is more urgent.
type Priority int

const (
	High Priority = iota
	Medium
	Low
)

func (p Priority) String() string {
	switch p {
	case High:
		return "High"
	case Low:
		return "Low"
	default:
		return "Medium"
	}
}

// ParsePriority maps a model-supplied priority string onto Priority.
// Anything other than high, medium, or low (any case) is Medium.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return High
	case "low":
		return Low
	default:
		return Medium
	}
}

// MoreUrgent returns whichever of a and b is more urgent.
func MoreUrgent(a, b Priority) Priority {
	if b < a {
		return b
	}
	return a
}

const DeadlineLayout = "2006-01-02 15:04"

// ParseDeadline parses "YYYY-MM-DD HH:mm" in loc. ok is false for blank or
// malformed text.
func ParseDeadline(text string, loc *time.Location) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DeadlineLayout, text, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

type Task struct {
	Description     string
	Priority        Priority
	Deadline        *time.Time
	DeadlineText    string
	SearchPrompt    string
	AssistantPrompt string
}

type Outcome struct {
	NotePriority Priority
	Tasks        []Task
}

// Reconcile resolves the note priority to the most urgent of the model's note
// priority and every task priority, and parses each task deadline. Tasks keep
// their extraction order; an unparseable deadline leaves Deadline nil.
func Reconcile(res *extractor.Result, loc *time.Location) Outcome {
	var out Outcome
	if res == nil {
		out.NotePriority = Medium
		return out
	}

	out.NotePriority = ParsePriority(res.Priority)
	out.Tasks = make([]Task, 0, len(res.Tasks))
	for _, et := range res.Tasks {
		t := Task{
			Description:     et.Description,
			Priority:        ParsePriority(et.Priority),
			DeadlineText:    et.Deadline,
			SearchPrompt:    et.SearchPrompt,
			AssistantPrompt: et.AssistantPrompt,
		}
		if d, ok := ParseDeadline(et.Deadline, loc); ok {
			t.Deadline = &d
		}
		out.NotePriority = MoreUrgent(out.NotePriority, t.Priority)
		out.Tasks = append(out.Tasks, t)
	}
	return out
}
