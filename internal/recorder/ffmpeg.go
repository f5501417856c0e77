// Package recorder captures microphone audio to a file with ffmpeg.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// ErrDeviceBusy means the capture process could not acquire the input device.
var ErrDeviceBusy = errors.New("recording device busy or unavailable")

const (
	startupWindow = 250 * time.Millisecond
	stopGrace     = 1200 * time.Millisecond
)

// Recording is an in-progress capture.
type Recording interface {
	Path() string
	Stop() error
}

type Options struct {
	Command     string
	InputFormat string
	InputDevice string
	SampleRate  int
	Channels    int
	Bitrate     string
}

// FFMPEG records mono MP3 files. MP3 is used so that byte-window chunks of a
// finished recording are still decodable frame streams.
type FFMPEG struct {
	opts Options
}

func NewFFMPEG(opts Options) *FFMPEG {
	if opts.Command == "" {
		opts.Command = "ffmpeg"
	}
	if opts.InputFormat == "" {
		opts.InputFormat = "pulse"
	}
	if opts.InputDevice == "" {
		opts.InputDevice = "default"
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	if opts.Bitrate == "" {
		opts.Bitrate = "64k"
	}
	return &FFMPEG{opts: opts}
}

func (f *FFMPEG) args(path string) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", f.opts.InputFormat,
		"-i", f.opts.InputDevice,
		"-ac", strconv.Itoa(f.opts.Channels),
		"-ar", strconv.Itoa(f.opts.SampleRate),
		"-c:a", "libmp3lame",
		"-b:a", f.opts.Bitrate,
		"-y",
		path,
	}
}

// Start launches ffmpeg writing to path. The process outlives ctx, which only
// bounds the startup check; an exit during the startup window is reported as
// ErrDeviceBusy.
func (f *FFMPEG) Start(ctx context.Context, path string) (Recording, error) {
	cmd := exec.Command(f.opts.Command, f.args(path)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("%w: ffmpeg exited before capture started: %v: %s", ErrDeviceBusy, err, trimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%w: ffmpeg exited before capture started", ErrDeviceBusy)
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		return nil, ctx.Err()
	case <-time.After(startupWindow):
	}

	return &ffmpegRecording{
		path:    path,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

type ffmpegRecording struct {
	path   string
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (r *ffmpegRecording) Path() string { return r.path }

// Stop interrupts ffmpeg so it can finalize the file, killing it after a
// grace period.
func (r *ffmpegRecording) Stop() error {
	r.stopOnce.Do(func() {
		if r.process != nil {
			_ = r.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-r.waitErr:
			if ok {
				r.stopErr = normalizeStopErr(err)
			}
		case <-time.After(stopGrace):
			if r.process != nil {
				_ = r.process.Kill()
			}
			err, ok := <-r.waitErr
			if ok {
				r.stopErr = normalizeStopErr(err)
			}
		}

		if r.stopErr == nil {
			if _, err := os.Stat(r.path); err != nil {
				r.stopErr = fmt.Errorf("recording file missing: %w", err)
			}
		}

		if r.stopErr != nil && r.stderr != nil && r.stderr.Len() > 0 {
			r.stopErr = fmt.Errorf("%w: %s", r.stopErr, trimSpace(r.stderr.String()))
		}
	})

	return r.stopErr
}

// normalizeStopErr treats a non-zero exit after an interrupt as a clean stop.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimSpace(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
