// Package transcriber turns audio chunks into text through the remote
// speech-to-text endpoint, rotating the shared credential pool on failure.
package transcriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MikeSquared-Agency/scribe/internal/chunker"
	"github.com/MikeSquared-Agency/scribe/internal/credentials"
	"github.com/MikeSquared-Agency/scribe/internal/openai"
)

var ErrTranscription = errors.New("transcription failed")

type Transcriber struct {
	api    *openai.Client
	pool   *credentials.Pool
	model  string
	logger *slog.Logger
}

func New(api *openai.Client, pool *credentials.Pool, model string, logger *slog.Logger) *Transcriber {
	return &Transcriber{api: api, pool: pool, model: model, logger: logger}
}

// Transcribe sends one chunk and returns its trimmed text. Blank text means no
// speech was detected and is not an error. A failed call rotates the pool once
// (cancellation does not) and is returned wrapped in ErrTranscription; the
// chunk is not retried.
func (t *Transcriber) Transcribe(ctx context.Context, chunk chunker.Chunk) (string, error) {
	key, err := t.pool.Current()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranscription, err)
	}

	f, err := os.Open(chunk.Path)
	if err != nil {
		return "", fmt.Errorf("%w: open chunk %d: %w", ErrTranscription, chunk.Index, err)
	}
	defer f.Close()

	text, err := t.api.Transcribe(ctx, key, t.model, filepath.Base(chunk.Path), f)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: chunk %d: %w", ErrTranscription, chunk.Index, ctx.Err())
		}
		idx := t.pool.Rotate()
		t.logger.Warn("chunk transcription failed",
			"chunk", chunk.Index,
			"next_credential", idx,
			"error", err,
		)
		return "", fmt.Errorf("%w: chunk %d: %w", ErrTranscription, chunk.Index, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		t.logger.Info("no speech detected in chunk", "chunk", chunk.Index)
		return "", nil
	}

	t.logger.Debug("chunk transcribed", "chunk", chunk.Index, "chars", len(text))
	return text, nil
}
