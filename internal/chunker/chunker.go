// Package chunker splits finished recordings into size-bounded segments for transcription.
package chunker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var ErrInvalidThreshold = errors.New("chunk threshold must be positive")

// Chunk is one size-bounded slice of a recording.
type Chunk struct {
	Index    int    // position in the original file; transcripts are joined in this order
	Path     string // file holding the chunk's bytes
	Offset   int64  // byte offset of the chunk within the original recording
	Size     int64
	Original bool // true when Path is the recording itself and must not be deleted
}

// Split returns the recording as a single original chunk when it fits within
// threshold bytes, otherwise copies it into threshold-sized temporary segment
// files in file order. The caller owns the temporary files; see RemoveTemporary.
func Split(path string, threshold int64) ([]Chunk, error) {
	if threshold <= 0 {
		return nil, ErrInvalidThreshold
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat recording: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("recording %s is a directory", path)
	}

	if info.Size() <= threshold {
		return []Chunk{{Index: 0, Path: path, Offset: 0, Size: info.Size(), Original: true}}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	pattern := "scribe-chunk-*" + filepath.Ext(path)
	var chunks []Chunk
	var offset int64
	for idx := 0; offset < info.Size(); idx++ {
		c, err := writeWindow(f, pattern, idx, offset, threshold)
		if err != nil {
			_ = RemoveTemporary(chunks)
			return nil, err
		}
		if c.Size == 0 {
			_ = os.Remove(c.Path)
			break
		}
		chunks = append(chunks, c)
		offset += c.Size
	}

	return chunks, nil
}

func writeWindow(src io.Reader, pattern string, idx int, offset, threshold int64) (Chunk, error) {
	out, err := os.CreateTemp("", pattern)
	if err != nil {
		return Chunk{}, fmt.Errorf("create chunk %d: %w", idx, err)
	}

	n, copyErr := io.CopyN(out, src, threshold)
	closeErr := out.Close()
	if copyErr != nil && !errors.Is(copyErr, io.EOF) {
		_ = os.Remove(out.Name())
		return Chunk{}, fmt.Errorf("write chunk %d: %w", idx, copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(out.Name())
		return Chunk{}, fmt.Errorf("close chunk %d: %w", idx, closeErr)
	}

	return Chunk{Index: idx, Path: out.Name(), Offset: offset, Size: n}, nil
}

// RemoveTemporary deletes every non-original chunk file. Missing files are ignored.
func RemoveTemporary(chunks []Chunk) error {
	var errs []error
	for _, c := range chunks {
		if c.Original {
			continue
		}
		if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove chunk %d: %w", c.Index, err))
		}
	}
	return errors.Join(errs...)
}
