package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestComplete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected bearer test-key, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type application/json, got %q", r.Header.Get("Content-Type"))
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("expected model test-model, got %q", req.Model)
		}
		if req.ResponseFormat.Type != "json_object" {
			t.Errorf("expected json_object response format, got %q", req.ResponseFormat.Type)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "hello" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `{"title":"x"}`}, "finish_reason": "stop"},
			},
		})
	}))
	defer server.Close()

	c := NewClient("")
	c.SetTestTransport(server.URL)

	result, err := c.Complete(context.Background(), "test-key", "test-model", []Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != `{"title":"x"}` {
		t.Errorf("unexpected content %q", result)
	}
}

func TestComplete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"type":    "rate_limit_exceeded",
				"message": "slow down",
			},
		})
	}))
	defer server.Close()

	c := NewClient("")
	c.SetTestTransport(server.URL)

	_, err := c.Complete(context.Background(), "k", "m", []Message{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatal("expected error for API error response")
	}
	if !strings.Contains(err.Error(), "rate_limit_exceeded") {
		t.Errorf("expected error type in message, got %v", err)
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	c := NewClient("")
	c.SetTestTransport(server.URL)

	if _, err := c.Complete(context.Background(), "k", "m", nil); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestTranscribe_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("expected /audio/transcriptions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer stt-key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-large-v3" {
			t.Errorf("expected model field, got %q", got)
		}
		if got := r.FormValue("response_format"); got != "text" {
			t.Errorf("expected text response format, got %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "chunk-0.mp3" {
			t.Errorf("unexpected filename %q", hdr.Filename)
		}
		data, _ := io.ReadAll(f)
		if string(data) != "audio-bytes" {
			t.Errorf("unexpected audio payload %q", data)
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("buy milk tomorrow\n"))
	}))
	defer server.Close()

	c := NewClient("")
	c.SetTestTransport(server.URL + "/")

	text, err := c.Transcribe(context.Background(), "stt-key", "whisper-large-v3", "chunk-0.mp3", strings.NewReader("audio-bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "buy milk tomorrow\n" {
		t.Errorf("unexpected transcript %q", text)
	}
}

func TestTranscribe_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid key"))
	}))
	defer server.Close()

	c := NewClient("")
	c.SetTestTransport(server.URL)

	_, err := c.Transcribe(context.Background(), "bad", "m", "a.mp3", strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("expected status code in error, got %v", err)
	}
}
