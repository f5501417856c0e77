package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/credentials"
	"github.com/MikeSquared-Agency/scribe/internal/openai"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []openai.Message `json:"messages"`
}

// completionServer replies with content as the first choice and records the
// last request it saw.
func completionServer(t *testing.T, content string, got *chatRequest) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func newExtractor(serverURL string, keys ...string) (*Extractor, *credentials.Pool) {
	llm := openai.NewClient("")
	llm.SetTestTransport(serverURL)
	pool := credentials.New(keys, discardLogger())
	return New(llm, pool, "test-model", discardLogger()), pool
}

func TestExtract_Success(t *testing.T) {
	doc := Result{
		Title:      "Dentist and groceries",
		Summary:    "Need to book the dentist.",
		Priority:   "Low",
		Transcript: "Speaker 1: call the dentist",
		Tasks: []Task{
			{
				Description:     "Call the dentist",
				Priority:        "High",
				Deadline:        "2030-01-01 09:00",
				SearchPrompt:    "dentist near me",
				AssistantPrompt: "Draft a call script",
			},
		},
	}
	body, _ := json.Marshal(doc)

	var req chatRequest
	server := completionServer(t, string(body), &req)
	ext, pool := newExtractor(server.URL, "k1", "k2")

	now := time.Date(2029, time.December, 31, 18, 30, 0, 0, time.UTC)
	res, err := ext.Extract(context.Background(), []string{"F1", "F3"}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Title != doc.Title || res.Priority != "Low" {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(res.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(res.Tasks))
	}
	task := res.Tasks[0]
	if task.Deadline != "2030-01-01 09:00" || task.SearchPrompt != "dentist near me" || task.AssistantPrompt != "Draft a call script" {
		t.Errorf("unexpected task: %+v", task)
	}

	if req.Model != "test-model" {
		t.Errorf("expected model test-model, got %q", req.Model)
	}
	if len(req.Messages) != 3 {
		t.Fatalf("expected system + 2 fragment messages, got %d", len(req.Messages))
	}
	if req.Messages[0].Role != "system" || !strings.Contains(req.Messages[0].Content, "2029-12-31 18:30") {
		t.Errorf("system message should embed the time reference: %q", req.Messages[0].Content)
	}
	if req.Messages[1].Content != "F1" || req.Messages[2].Content != "F3" {
		t.Errorf("fragments out of order: %+v", req.Messages[1:])
	}
	if req.Messages[1].Role != "user" {
		t.Errorf("fragments should be user messages, got %q", req.Messages[1].Role)
	}
	if pool.Index() != 0 {
		t.Errorf("success must not rotate, index = %d", pool.Index())
	}
}

func TestExtract_EmptyResponses(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty body", ""},
		{"whitespace", "  \n"},
		{"literal braces", "{}"},
		{"fenced braces", "```json\n{}\n```"},
		{"null", "null"},
		{"all fields blank", `{"title":"","summary":"","transcript":"","tasks":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := completionServer(t, tt.content, nil)
			ext, pool := newExtractor(server.URL, "k1", "k2")

			_, err := ext.Extract(context.Background(), []string{"hello"}, time.Now())
			if !errors.Is(err, ErrEmptyResult) {
				t.Fatalf("expected ErrEmptyResult, got %v", err)
			}
			if pool.Index() != 0 {
				t.Errorf("empty result must not rotate, index = %d", pool.Index())
			}
		})
	}
}

func TestExtract_InvalidJSONRotates(t *testing.T) {
	server := completionServer(t, "this is not json", nil)
	ext, pool := newExtractor(server.URL, "k1", "k2")

	_, err := ext.Extract(context.Background(), []string{"hello"}, time.Now())
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	if pool.Index() != 1 {
		t.Errorf("parse failure should rotate once, index = %d", pool.Index())
	}
}

func TestExtract_ParseFailureKeepsTranscriptOutOfLogs(t *testing.T) {
	secret := "Speaker 1: my bank PIN is 4821"
	server := completionServer(t, `{"transcript": "`+secret+`", "tasks": [`, nil)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	llm := openai.NewClient("")
	llm.SetTestTransport(server.URL)
	ext := New(llm, credentials.New([]string{"k1"}, logger), "test-model", logger)

	if _, err := ext.Extract(context.Background(), []string{"hello"}, time.Now()); !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	if strings.Contains(buf.String(), "4821") {
		t.Errorf("model output leaked into logs: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "failed to parse extraction response") {
		t.Errorf("expected parse failure to be logged, got %s", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"abcdefghijkl", 5, "abcde..."},
		{"héllo", 2, "h..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestExtract_TransportErrorRotates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ext, pool := newExtractor(server.URL, "k1", "k2", "k3")

	_, err := ext.Extract(context.Background(), []string{"hello"}, time.Now())
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
	if errors.Is(err, ErrEmptyResult) || errors.Is(err, ErrParse) {
		t.Errorf("transport failure misclassified: %v", err)
	}
	if pool.Index() != 1 {
		t.Errorf("transport failure should rotate once, index = %d", pool.Index())
	}
}

func TestExtract_StripsFences(t *testing.T) {
	server := completionServer(t, "```json\n{\"title\":\"Fenced\",\"tasks\":[]}\n```", nil)
	ext, _ := newExtractor(server.URL, "k1")

	res, err := ext.Extract(context.Background(), []string{"hello"}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Title != "Fenced" {
		t.Errorf("expected fenced title, got %q", res.Title)
	}
}

func TestExtract_LenientFields(t *testing.T) {
	content := `{
		"title": "Mixed",
		"priority": 3,
		"summary": null,
		"tasks": [
			{"description": "ok", "priority": true, "deadline": 20300101},
			"not an object",
			{"description": "second", "priority": "Low", "googlePrompt": "q", "aiPrompt": "a"}
		]
	}`
	server := completionServer(t, content, nil)
	ext, _ := newExtractor(server.URL, "k1")

	res, err := ext.Extract(context.Background(), []string{"hello"}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Priority != "" || res.Summary != "" {
		t.Errorf("wrong-typed fields should decode as empty: %+v", res)
	}
	if len(res.Tasks) != 2 {
		t.Fatalf("expected 2 object tasks, got %d", len(res.Tasks))
	}
	if res.Tasks[0].Priority != "" || res.Tasks[0].Deadline != "" {
		t.Errorf("wrong-typed task fields should decode as empty: %+v", res.Tasks[0])
	}
	if res.Tasks[1].SearchPrompt != "q" || res.Tasks[1].AssistantPrompt != "a" {
		t.Errorf("unexpected second task: %+v", res.Tasks[1])
	}
}

func TestExtract_NoCredentials(t *testing.T) {
	ext, _ := newExtractor("http://127.0.0.1:0")

	_, err := ext.Extract(context.Background(), []string{"hello"}, time.Now())
	if !errors.Is(err, credentials.ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
}
