package wakeword

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/waseemjarad3-bot/nova/internal/audio"
	"github.com/waseemjarad3-bot/nova/internal/monitor"
	"github.com/waseemjarad3-bot/nova/internal/protocol"
	"github.com/waseemjarad3-bot/nova/internal/stt"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		word, text string
		want       bool
	}{
		{"nova", "nova turn on the lights", true},
		{"nova", "hey nova", true},
		{"nova", "hey nova, what's the weather", true},
		{"jarvis", "hey nova", false},
		{"nova", "", false},
		{"", "nova", false},
		// Substring fallback: an embedded word still matches.
		{"nova", "open novation launchpad", true},
		{"hey nova", "ok hey nova play music", true},
	}
	for _, tt := range tests {
		if got := Match(tt.word, tt.text); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.word, tt.text, got, tt.want)
		}
	}
}

func TestCommandRemovesFirstOccurrenceOnly(t *testing.T) {
	tests := []struct {
		word, text, want string
	}{
		{"nova", "nova nova turn off lights", "nova turn off lights"},
		{"nova", "hey nova turn on lights", "hey  turn on lights"},
		{"nova", "nova", ""},
		{"nova", "open novation", "open tion"},
	}
	for _, tt := range tests {
		if got := Command(tt.word, tt.text); got != tt.want {
			t.Errorf("Command(%q, %q) = %q, want %q", tt.word, tt.text, got, tt.want)
		}
	}
}

func TestMapperIsCaseInsensitive(t *testing.T) {
	ev, ok := Mapper(monitor.RawEvent{Transcript: "hey NOVA turn on lights"}, "nova")
	if !ok {
		t.Fatal("expected a match")
	}
	ww, isWake := ev.(protocol.WakeWord)
	if !isWake {
		t.Fatalf("event = %T, want WakeWord", ev)
	}
	if ww.Text != "hey nova turn on lights" || ww.Command != "hey  turn on lights" {
		t.Fatalf("event = %+v", ww)
	}

	if _, ok := Mapper(monitor.RawEvent{Transcript: "what time is it"}, "nova"); ok {
		t.Fatal("transcript without the wake word must not map")
	}
	if _, ok := Mapper(monitor.RawEvent{}, "nova"); ok {
		t.Fatal("empty transcript must not map")
	}
}

// fakeCapture serves a fixed PCM stream.
type fakeCapture struct {
	pcm     []byte
	err     error
	stopped bool
}

type fakeSession struct {
	*bytes.Reader
	owner *fakeCapture
}

func (s *fakeSession) Close() error { return s.Stop() }
func (s *fakeSession) Stop() error  { s.owner.stopped = true; return nil }

func (c *fakeCapture) Start(ctx context.Context, cfg audio.CaptureConfig) (audio.Session, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &fakeSession{Reader: bytes.NewReader(c.pcm), owner: c}, nil
}

// fakeTranscriber replays results in order.
type fakeTranscriber struct {
	results []result
	calls   int
	closed  bool
}

type result struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, u audio.Utterance) (string, error) {
	if f.calls >= len(f.results) {
		return "", stt.ErrUnrecognized
	}
	r := f.results[f.calls]
	f.calls++
	return r.text, r.err
}

func (f *fakeTranscriber) Name() string { return "google" }
func (f *fakeTranscriber) Close() error { f.closed = true; return nil }

func pcm(d time.Duration, amplitude int16) []byte {
	n := int(16 * d / time.Millisecond)
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := amplitude
		if i%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// phrases builds n spoken phrases separated by silence.
func phrases(n int) []byte {
	var parts [][]byte
	parts = append(parts, pcm(500*time.Millisecond, 0))
	for i := 0; i < n; i++ {
		parts = append(parts, pcm(600*time.Millisecond, 6000), pcm(time.Second, 0))
	}
	return bytes.Join(parts, nil)
}

func testConfig() Config {
	return Config{
		Capture:     audio.CaptureConfig{SampleRate: audio.TargetSampleRate},
		Recognizer:  audio.RecognizerConfig{EnergyThreshold: 300},
		Calibration: 200 * time.Millisecond,
	}
}

func TestSourceRequestAccess(t *testing.T) {
	src := NewSource(&fakeCapture{pcm: phrases(1)}, &fakeTranscriber{}, testConfig())
	access, err := src.RequestAccess(context.Background())
	if err != nil || access != monitor.AccessAllowed {
		t.Fatalf("RequestAccess = %v, %v", access, err)
	}
	if !strings.HasPrefix(src.Banner(), "Microphone ready") {
		t.Fatalf("banner = %q", src.Banner())
	}

	failing := NewSource(&fakeCapture{err: errors.New("no such device")}, &fakeTranscriber{}, testConfig())
	if _, err := failing.RequestAccess(context.Background()); err == nil || !strings.Contains(err.Error(), "no such device") {
		t.Fatalf("expected capture error, got %v", err)
	}

	capture := &fakeCapture{pcm: pcm(50*time.Millisecond, 0)}
	short := NewSource(capture, &fakeTranscriber{}, testConfig())
	if _, err := short.RequestAccess(context.Background()); err == nil {
		t.Fatal("expected calibration error on a truncated stream")
	}
	if !capture.stopped {
		t.Fatal("session should be stopped after a failed calibration")
	}
}

func TestSourcePollOutcomes(t *testing.T) {
	apiErr := &stt.RequestError{Provider: "google", Err: errors.New("dial tcp: connection refused")}
	tr := &fakeTranscriber{results: []result{
		{text: " Nova Play Music "},
		{err: stt.ErrUnrecognized},
		{err: apiErr},
		{err: errors.New("marshal request: boom")},
	}}
	src := NewSource(&fakeCapture{pcm: phrases(4)}, tr, testConfig())
	ctx := context.Background()
	if _, err := src.RequestAccess(ctx); err != nil {
		t.Fatal(err)
	}

	events, err := src.Poll(ctx)
	if err != nil || len(events) != 1 || events[0].Transcript != "nova play music" {
		t.Fatalf("poll 1 = %+v, %v", events, err)
	}

	events, err = src.Poll(ctx)
	if err != nil || len(events) != 0 {
		t.Fatalf("unrecognized: %+v, %v", events, err)
	}

	_, err = src.Poll(ctx)
	if sev, msg := monitor.Classify(err); sev != monitor.SeverityReport || msg != "Google Speech API Connection Issue" {
		t.Fatalf("request error classified %v %q", sev, msg)
	}

	_, err = src.Poll(ctx)
	if sev, msg := monitor.Classify(err); sev != monitor.SeverityReport || msg != "marshal request: boom" {
		t.Fatalf("other error classified %v %q", sev, msg)
	}

	_, err = src.Poll(ctx)
	if sev, _ := monitor.Classify(err); sev != monitor.SeverityFatal {
		t.Fatalf("end of stream classified %v (%v)", sev, err)
	}

	if err := src.Close(); err != nil || !tr.closed {
		t.Fatalf("Close = %v, transcriber closed = %v", err, tr.closed)
	}
}

func TestSourcePollBeforeAccess(t *testing.T) {
	src := NewSource(&fakeCapture{}, &fakeTranscriber{}, testConfig())
	if _, err := src.Poll(context.Background()); !errors.Is(err, errNotStarted) {
		t.Fatalf("Poll before access = %v", err)
	}
}

func TestSourceListenTimeoutIsQuiet(t *testing.T) {
	cfg := testConfig()
	cfg.Recognizer.ListenTimeout = 300 * time.Millisecond
	src := NewSource(&fakeCapture{pcm: pcm(2*time.Second, 0)}, &fakeTranscriber{}, cfg)
	if _, err := src.RequestAccess(context.Background()); err != nil {
		t.Fatal(err)
	}
	events, err := src.Poll(context.Background())
	if err != nil || len(events) != 0 {
		t.Fatalf("timeout poll = %+v, %v", events, err)
	}
}

type bufferEmitter struct{ events []protocol.Event }

func (b *bufferEmitter) Emit(ev protocol.Event) error {
	b.events = append(b.events, ev)
	return nil
}

func TestLoopEmitsWakeWordEvents(t *testing.T) {
	tr := &fakeTranscriber{results: []result{
		{text: "Nova nova turn off lights"},
		{text: "what is the weather"},
		{err: &stt.RequestError{Provider: "google", Err: errors.New("timeout")}},
	}}
	src := NewSource(&fakeCapture{pcm: phrases(3)}, tr, testConfig())
	out := &bufferEmitter{}

	loop := &monitor.Loop{
		Source:   src,
		Map:      Mapper,
		Emitter:  out,
		WakeWord: func() string { return "nova" },
	}
	err := loop.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Microphone stream ended") {
		t.Fatalf("Run = %v, want end-of-stream failure", err)
	}

	want := []protocol.Event{
		protocol.Info{Msg: src.Banner()},
		protocol.Info{Msg: "Wake word engine active. Listening for 'nova'..."},
		protocol.WakeWord{Text: "nova nova turn off lights", Command: "nova turn off lights"},
		protocol.Error{Msg: "Google Speech API Connection Issue"},
		protocol.Error{Msg: "Microphone stream ended"},
	}
	if len(out.events) != len(want) {
		t.Fatalf("events = %+v", out.events)
	}
	for i := range want {
		if out.events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, out.events[i], want[i])
		}
	}
}
