// Package credentials holds the shared API key pool used by the remote clients.
package credentials

import (
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
)

var ErrNoCredentials = errors.New("credential pool is empty")

// Pool is an ordered, immutable list of API keys with a shared cursor.
// Both the transcription and extraction clients read from the same Pool and
// advance it after a failed call.
type Pool struct {
	keys   []string
	index  atomic.Int64
	logger *slog.Logger
}

func New(keys []string, logger *slog.Logger) *Pool {
	p := &Pool{logger: logger}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			p.keys = append(p.keys, k)
		}
	}
	return p
}

// Current returns the key under the cursor.
func (p *Pool) Current() (string, error) {
	if len(p.keys) == 0 {
		return "", ErrNoCredentials
	}
	return p.keys[p.index.Load()], nil
}

// Rotate advances the cursor by one with wraparound and returns the new index.
// Concurrent callers each get their own increment; none are lost.
func (p *Pool) Rotate() int {
	n := int64(len(p.keys))
	if n == 0 {
		return 0
	}
	for {
		cur := p.index.Load()
		next := (cur + 1) % n
		if p.index.CompareAndSwap(cur, next) {
			if p.logger != nil {
				p.logger.Warn("rotated api credential", "index", next, "pool_size", n)
			}
			return int(next)
		}
	}
}

func (p *Pool) Index() int {
	return int(p.index.Load())
}

func (p *Pool) Len() int {
	return len(p.keys)
}
