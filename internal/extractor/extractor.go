package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MikeSquared-Agency/scribe/internal/credentials"
	"github.com/MikeSquared-Agency/scribe/internal/openai"
)

var (
	ErrEmptyResult = errors.New("extraction returned no content")
	ErrParse       = errors.New("extraction response is not a JSON object")
)

type Extractor struct {
	llm    *openai.Client
	pool   *credentials.Pool
	model  string
	logger *slog.Logger
}

func New(llm *openai.Client, pool *credentials.Pool, model string, logger *slog.Logger) *Extractor {
	return &Extractor{llm: llm, pool: pool, model: model, logger: logger}
}

// Extract sends the ordered transcript fragments to the language model and
// returns the parsed note document. now is embedded in the instruction so the
// model can resolve relative deadlines.
//
// Transport failures and unparseable output rotate the credential pool. An
// empty or "{}" response returns ErrEmptyResult without rotating.
func (e *Extractor) Extract(ctx context.Context, fragments []string, now time.Time) (*Result, error) {
	key, err := e.pool.Current()
	if err != nil {
		return nil, fmt.Errorf("llm extraction: %w", err)
	}

	messages := make([]openai.Message, 0, len(fragments)+1)
	messages = append(messages, openai.Message{
		Role:    "system",
		Content: fmt.Sprintf(systemPrompt, now.Format(timeReferenceLayout)),
	})
	for _, f := range fragments {
		messages = append(messages, openai.Message{Role: "user", Content: f})
	}

	e.logger.Info("extracting note from transcript",
		"fragments", len(fragments),
		"model", e.model,
	)

	raw, err := e.llm.Complete(ctx, key, e.model, messages)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("llm extraction: %w", ctx.Err())
		}
		e.rotate(err)
		return nil, fmt.Errorf("llm extraction: %w", err)
	}

	body := stripFences(raw)
	if body == "" || body == "{}" {
		e.logger.Warn("extraction returned no content")
		return nil, ErrEmptyResult
	}

	res, err := decodeResult([]byte(body))
	if err != nil {
		e.logger.Error("failed to parse extraction response",
			"error", err,
			"raw_bytes", len(raw),
		)
		e.logger.Debug("unparsable extraction response", "raw", truncate(raw, maxLoggedRaw))
		e.rotate(err)
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if res.IsEmpty() {
		return nil, ErrEmptyResult
	}

	e.logger.Info("extraction complete",
		"title", res.Title,
		"priority", res.Priority,
		"tasks", len(res.Tasks),
	)
	return res, nil
}

func (e *Extractor) rotate(cause error) {
	idx := e.pool.Rotate()
	e.logger.Warn("extraction call failed, rotated credential", "next_credential", idx, "error", cause)
}

// maxLoggedRaw bounds how much model output reaches the logs; it echoes the
// user's transcript.
const maxLoggedRaw = 200

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// stripFences removes a ```json ... ``` wrapper some models add despite
// being told not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
