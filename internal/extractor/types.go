package extractor

import (
	"encoding/json"
	"strings"
)

// Result is the structured note document returned by the language model.
// Every field is model-produced; wrong types decode as empty values.
type Result struct {
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	Priority   string `json:"priority"`
	Transcript string `json:"transcript"` // speaker-labelled
	Tasks      []Task `json:"tasks"`
}

// Task is one actionable item found in the transcript.
type Task struct {
	Description     string `json:"description"`
	Priority        string `json:"priority"`
	Deadline        string `json:"deadline"` // "YYYY-MM-DD HH:mm" or empty
	SearchPrompt    string `json:"googlePrompt"`
	AssistantPrompt string `json:"aiPrompt"`
}

// IsEmpty reports whether the model returned nothing usable.
func (r *Result) IsEmpty() bool {
	return r == nil ||
		(strings.TrimSpace(r.Title) == "" &&
			strings.TrimSpace(r.Summary) == "" &&
			strings.TrimSpace(r.Transcript) == "" &&
			len(r.Tasks) == 0)
}

type rawTask struct {
	Description     json.RawMessage `json:"description"`
	Priority        json.RawMessage `json:"priority"`
	Deadline        json.RawMessage `json:"deadline"`
	SearchPrompt    json.RawMessage `json:"googlePrompt"`
	AssistantPrompt json.RawMessage `json:"aiPrompt"`
}

type rawResult struct {
	Title      json.RawMessage `json:"title"`
	Summary    json.RawMessage `json:"summary"`
	Priority   json.RawMessage `json:"priority"`
	Transcript json.RawMessage `json:"transcript"`
	Tasks      json.RawMessage `json:"tasks"`
}

// decodeResult parses the model output. Only a document that is not a JSON
// object is an error: wrong-typed fields become "", and a tasks value that is
// not an array (or an element that is not an object) is dropped.
func decodeResult(data []byte) (*Result, error) {
	var raw rawResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	res := &Result{
		Title:      scalar(raw.Title),
		Summary:    scalar(raw.Summary),
		Priority:   scalar(raw.Priority),
		Transcript: scalar(raw.Transcript),
	}

	var items []json.RawMessage
	if len(raw.Tasks) > 0 && json.Unmarshal(raw.Tasks, &items) != nil {
		items = nil
	}
	for _, item := range items {
		var t rawTask
		if err := json.Unmarshal(item, &t); err != nil {
			continue
		}
		res.Tasks = append(res.Tasks, Task{
			Description:     scalar(t.Description),
			Priority:        scalar(t.Priority),
			Deadline:        scalar(t.Deadline),
			SearchPrompt:    scalar(t.SearchPrompt),
			AssistantPrompt: scalar(t.AssistantPrompt),
		})
	}
	return res, nil
}

func scalar(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}
