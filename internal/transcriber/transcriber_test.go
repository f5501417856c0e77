package transcriber

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/MikeSquared-Agency/scribe/internal/chunker"
	"github.com/MikeSquared-Agency/scribe/internal/credentials"
	"github.com/MikeSquared-Agency/scribe/internal/openai"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeChunk(t *testing.T) chunker.Chunk {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunk.mp3")
	if err := os.WriteFile(path, []byte("fake-audio"), 0o644); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	return chunker.Chunk{Index: 2, Path: path, Size: 10}
}

func newTranscriber(t *testing.T, handler http.HandlerFunc, keys ...string) (*Transcriber, *credentials.Pool) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	api := openai.NewClient("")
	api.SetTestTransport(server.URL)
	pool := credentials.New(keys, discardLogger())
	return New(api, pool, "whisper-large-v3", discardLogger()), pool
}

func TestTranscribe_Success(t *testing.T) {
	var gotAuth string
	tr, pool := newTranscriber(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("  call the dentist  \n"))
	}, "k1", "k2")

	text, err := tr.Transcribe(context.Background(), writeChunk(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "call the dentist" {
		t.Errorf("expected trimmed text, got %q", text)
	}
	if gotAuth != "Bearer k1" {
		t.Errorf("expected first credential, got %q", gotAuth)
	}
	if pool.Index() != 0 {
		t.Errorf("success must not rotate, index = %d", pool.Index())
	}
}

func TestTranscribe_BlankIsNotAnError(t *testing.T) {
	tr, pool := newTranscriber(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(" \n\t"))
	}, "k1", "k2")

	text, err := tr.Transcribe(context.Background(), writeChunk(t))
	if err != nil {
		t.Fatalf("blank transcript should not fail: %v", err)
	}
	if text != "" {
		t.Errorf("expected empty text, got %q", text)
	}
	if pool.Index() != 0 {
		t.Errorf("blank transcript must not rotate, index = %d", pool.Index())
	}
}

func TestTranscribe_FailureRotates(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"server error", http.StatusInternalServerError},
		{"unauthorized", http.StatusUnauthorized},
		{"rate limited", http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			tr, pool := newTranscriber(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.status)
			}, "k1", "k2", "k3")

			_, err := tr.Transcribe(context.Background(), writeChunk(t))
			if !errors.Is(err, ErrTranscription) {
				t.Fatalf("expected ErrTranscription, got %v", err)
			}
			if pool.Index() != 1 {
				t.Errorf("expected one rotation, index = %d", pool.Index())
			}
			if calls != 1 {
				t.Errorf("chunk must not be retried, got %d calls", calls)
			}
		})
	}
}

func TestTranscribe_EmptyPool(t *testing.T) {
	tr, _ := newTranscriber(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without credentials")
	})

	_, err := tr.Transcribe(context.Background(), writeChunk(t))
	if !errors.Is(err, ErrTranscription) || !errors.Is(err, credentials.ErrNoCredentials) {
		t.Errorf("expected ErrTranscription wrapping ErrNoCredentials, got %v", err)
	}
}

func TestTranscribe_MissingChunkFile(t *testing.T) {
	tr, _ := newTranscriber(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for a missing chunk")
	}, "k1")

	_, err := tr.Transcribe(context.Background(), chunker.Chunk{Path: filepath.Join(t.TempDir(), "gone.mp3")})
	if !errors.Is(err, ErrTranscription) {
		t.Errorf("expected ErrTranscription, got %v", err)
	}
}

func TestTranscribe_CancelledDoesNotRotate(t *testing.T) {
	release := make(chan struct{})
	tr, pool := newTranscriber(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	}, "k1", "k2")
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Transcribe(ctx, writeChunk(t))
	if !errors.Is(err, ErrTranscription) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled transcription error, got %v", err)
	}
	if pool.Index() != 0 {
		t.Errorf("cancellation must not rotate, index = %d", pool.Index())
	}
}
