// Package audio captures microphone audio and cuts it into utterances.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	. "github.com/waseemjarad3-bot/nova/internal/logging"
)

const (
	// DefaultStartTimeout bounds the wait for the first PCM bytes from ffmpeg.
	DefaultStartTimeout = 3 * time.Second

	stopGrace   = 1200 * time.Millisecond
	stderrLimit = 2048
	firstRead   = 4096
)

// CaptureConfig describes how the microphone should be captured.
type CaptureConfig struct {
	SampleRate  int
	InputFormat string // ffmpeg input format: pulse, alsa, avfoundation, dshow
	InputDevice string
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = TargetSampleRate
	}
	if c.InputFormat == "" {
		c.InputFormat = "pulse"
	}
	if c.InputDevice == "" {
		c.InputDevice = "default"
	}
	return c
}

// ffmpegArgs asks for mono s16le on stdout at the capture rate.
func (c CaptureConfig) ffmpegArgs() []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", c.InputFormat,
		"-i", c.InputDevice,
		"-ac", "1",
		"-ar", strconv.Itoa(c.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// Session is a live capture session producing mono s16le PCM.
type Session interface {
	io.ReadCloser
	Stop() error
}

// Capture opens capture sessions.
type Capture interface {
	Start(ctx context.Context, cfg CaptureConfig) (Session, error)
}

// FFMPEGCapture records the microphone by running ffmpeg and reading PCM from its stdout.
type FFMPEGCapture struct {
	command string

	// StartTimeout is how long Start waits for the first audio bytes.
	StartTimeout time.Duration
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command, StartTimeout: DefaultStartTimeout}
}

// Start launches ffmpeg and returns once the microphone delivered audio.
// A device that fails to open makes ffmpeg exit first; that error carries ffmpeg's stderr.
func (c *FFMPEGCapture) Start(ctx context.Context, cfg CaptureConfig) (Session, error) {
	cfg = cfg.withDefaults()

	// #nosec G204 - command and device come from operator settings
	cmd := exec.CommandContext(ctx, c.command, cfg.ffmpegArgs()...)
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.command, err)
	}

	s := &ffmpegSession{cmd: cmd, stderr: stderr, done: make(chan struct{})}
	go func() {
		s.waitErr = cmd.Wait()
		close(s.done)
	}()

	timeout := c.StartTimeout
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}

	type result struct {
		data []byte
		err  error
	}
	got := make(chan result, 1)
	go func() {
		data, err := readFirst(stdout)
		got <- result{data, err}
	}()

	select {
	case r := <-got:
		if r.err != nil {
			return nil, s.earlyExit()
		}
		s.pcm = io.MultiReader(bytes.NewReader(r.data), stdout)
	case <-ctx.Done():
		_ = s.Stop()
		return nil, ctx.Err()
	case <-time.After(timeout):
		_ = s.Stop()
		return nil, fmt.Errorf("no audio from ffmpeg within %s (device %s:%s)", timeout, cfg.InputFormat, cfg.InputDevice)
	}

	L_debug("audio: capture started", "pid", cmd.Process.Pid, "format", cfg.InputFormat, "device", cfg.InputDevice, "rate", cfg.SampleRate)
	return s, nil
}

// readFirst blocks until r yields at least one byte; empty reads are retried.
func readFirst(r io.Reader) ([]byte, error) {
	buf := make([]byte, firstRead)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			return buf[:n], nil
		}
		if err != nil {
			return nil, err
		}
	}
}

type ffmpegSession struct {
	cmd    *exec.Cmd
	stderr *tailBuffer
	pcm    io.Reader

	done    chan struct{}
	waitErr error // valid once done is closed

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Read(p []byte) (int, error) {
	return s.pcm.Read(p)
}

func (s *ffmpegSession) Close() error {
	return s.Stop()
}

// Stop interrupts ffmpeg so it can release the device, and kills it after a grace period.
func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		_ = s.cmd.Process.Signal(os.Interrupt)

		select {
		case <-s.done:
		case <-time.After(stopGrace):
			L_warn("audio: ffmpeg ignored interrupt, killing", "pid", s.cmd.Process.Pid)
			_ = s.cmd.Process.Kill()
			<-s.done
		}

		// Any exit status after our signal counts as a clean stop.
		var exitErr *exec.ExitError
		if s.waitErr != nil && !errors.As(s.waitErr, &exitErr) {
			s.stopErr = s.withStderr(s.waitErr)
		}
	})
	return s.stopErr
}

// earlyExit waits for ffmpeg after its stdout closed without audio and describes why it quit.
func (s *ffmpegSession) earlyExit() error {
	select {
	case <-s.done:
	case <-time.After(stopGrace):
		_ = s.cmd.Process.Kill()
		<-s.done
	}
	s.stopOnce.Do(func() {})

	if s.waitErr == nil {
		return s.withStderr(errors.New("ffmpeg exited before capture started"))
	}
	return s.withStderr(fmt.Errorf("ffmpeg exited before capture started: %w", s.waitErr))
}

func (s *ffmpegSession) withStderr(err error) error {
	if tail := s.stderr.String(); tail != "" {
		return fmt.Errorf("%w: %s", err, tail)
	}
	return err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
