package wakeword

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/waseemjarad3-bot/nova/internal/audio"
	"github.com/waseemjarad3-bot/nova/internal/logging"
	"github.com/waseemjarad3-bot/nova/internal/monitor"
	"github.com/waseemjarad3-bot/nova/internal/stt"
)

// MicrophoneInitialized is announced before the microphone is opened and tuned.
const MicrophoneInitialized = "Microphone initialized. Tuning ambient noise..."

var errNotStarted = errors.New("wakeword: capture not started")

// Config tunes the microphone path.
type Config struct {
	Capture     audio.CaptureConfig
	Recognizer  audio.RecognizerConfig
	Calibration time.Duration // ambient noise sampling at startup
}

// Source captures one utterance per Poll and transcribes it.
// It owns the capture session for the life of the process.
type Source struct {
	capture     audio.Capture
	transcriber stt.Transcriber
	cfg         Config

	recognizer *audio.Recognizer
	session    audio.Session
}

func NewSource(capture audio.Capture, transcriber stt.Transcriber, cfg Config) *Source {
	if cfg.Recognizer.SampleRate <= 0 {
		cfg.Recognizer.SampleRate = cfg.Capture.SampleRate
	}
	return &Source{
		capture:     capture,
		transcriber: transcriber,
		cfg:         cfg,
		recognizer:  audio.NewRecognizer(cfg.Recognizer),
	}
}

func (s *Source) Name() string { return "Microphone" }

func (s *Source) Banner() string {
	return fmt.Sprintf("Microphone ready (energy threshold %.0f).", math.Round(s.recognizer.Threshold()))
}

// RequestAccess opens the microphone and calibrates against ambient noise.
// There is no permission prompt to answer: if capture starts, access is allowed.
func (s *Source) RequestAccess(ctx context.Context) (monitor.Access, error) {
	session, err := s.capture.Start(ctx, s.cfg.Capture)
	if err != nil {
		return monitor.AccessUnknown, fmt.Errorf("start microphone: %w", err)
	}
	s.session = session

	if s.cfg.Calibration > 0 {
		if err := s.recognizer.Calibrate(session, s.cfg.Calibration); err != nil {
			_ = session.Stop()
			s.session = nil
			return monitor.AccessUnknown, fmt.Errorf("tune ambient noise: %w", err)
		}
	}
	return monitor.AccessAllowed, nil
}

// Poll blocks for one utterance. Silence and unintelligible speech return no events.
func (s *Source) Poll(ctx context.Context) ([]monitor.RawEvent, error) {
	if s.session == nil {
		return nil, monitor.Fatal("Microphone not initialized", errNotStarted)
	}

	utt, err := s.recognizer.Listen(ctx, s.session)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, audio.ErrListenTimeout) {
			return nil, nil
		}
		return nil, monitor.Fatal("Microphone stream ended", err)
	}

	text, err := s.transcriber.Transcribe(ctx, utt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		switch {
		case errors.Is(err, stt.ErrUnrecognized):
			logging.L_trace("wakeword: utterance not recognized", "duration", utt.Duration())
			return nil, nil
		case stt.IsRequestError(err):
			return nil, monitor.Reportable(connectionIssue(s.transcriber.Name()), err)
		default:
			return nil, monitor.Reportable(err.Error(), err)
		}
	}

	text = strings.ToLower(strings.TrimSpace(text))
	logging.L_debug("wakeword: heard", "text", text)
	return []monitor.RawEvent{{Transcript: text}}, nil
}

// Close stops the capture session.
func (s *Source) Close() error {
	var errs []error
	if s.session != nil {
		errs = append(errs, s.session.Stop())
		s.session = nil
	}
	errs = append(errs, s.transcriber.Close())
	return errors.Join(errs...)
}

var providerTitles = map[string]string{
	"google":   "Google",
	"openai":   "OpenAI",
	"groq":     "Groq",
	"deepgram": "Deepgram",
}

func connectionIssue(provider string) string {
	title, ok := providerTitles[provider]
	if !ok {
		title = provider
	}
	return strings.TrimSpace(title + " Speech API Connection Issue")
}
