package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"
)

const testRate = 16000

func pcm(d time.Duration, amplitude int16) []byte {
	n := int(int64(testRate) * int64(d) / int64(time.Second))
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

func silence(d time.Duration) []byte { return pcm(d, 0) }
func speech(d time.Duration) []byte  { return pcm(d, 5000) }

func stream(parts ...[]byte) *bytes.Reader {
	return bytes.NewReader(bytes.Join(parts, nil))
}

func fixedRecognizer() *Recognizer {
	return NewRecognizer(RecognizerConfig{SampleRate: testRate, EnergyThreshold: 300})
}

func loudSamples(u Utterance) int {
	n := 0
	for _, s := range u.Samples {
		if s != 0 {
			n++
		}
	}
	return n
}

func TestCalibrateLowersThresholdInQuietRoom(t *testing.T) {
	r := fixedRecognizer()
	if err := r.Calibrate(stream(silence(time.Second)), 500*time.Millisecond); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if got := r.Threshold(); got <= 0 || got >= 300 {
		t.Fatalf("threshold = %v, want between 0 and 300", got)
	}
}

func TestCalibrateRaisesThresholdInNoisyRoom(t *testing.T) {
	r := fixedRecognizer()
	if err := r.Calibrate(stream(pcm(time.Second, 1000)), time.Second); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if got := r.Threshold(); got <= 300 {
		t.Fatalf("threshold = %v, want above 300", got)
	}
}

func TestCalibrateShortStream(t *testing.T) {
	r := fixedRecognizer()
	if err := r.Calibrate(stream(silence(100*time.Millisecond)), time.Second); !errors.Is(err, io.EOF) {
		t.Fatalf("Calibrate error = %v, want EOF", err)
	}
}

func TestListenCapturesPhrase(t *testing.T) {
	r := fixedRecognizer()
	src := stream(silence(200*time.Millisecond), speech(600*time.Millisecond), silence(time.Second))

	u, err := r.Listen(context.Background(), src)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if u.SampleRate != TargetSampleRate {
		t.Fatalf("sample rate = %d", u.SampleRate)
	}
	// 200ms pre-roll + 600ms speech + pause just over 800ms
	if got, want := u.Duration(), 1620*time.Millisecond; got != want {
		t.Fatalf("duration = %v, want %v", got, want)
	}
	if got := loudSamples(u); got != 600*testRate/1000 {
		t.Fatalf("speech samples = %d", got)
	}
}

func TestListenDiscardsShortNoise(t *testing.T) {
	r := fixedRecognizer()
	src := stream(
		speech(100*time.Millisecond), silence(time.Second),
		speech(600*time.Millisecond), silence(time.Second),
	)

	u, err := r.Listen(context.Background(), src)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if got := loudSamples(u); got != 600*testRate/1000 {
		t.Fatalf("speech samples = %d, want only the second phrase", got)
	}
}

func TestListenPhraseLimit(t *testing.T) {
	r := NewRecognizer(RecognizerConfig{SampleRate: testRate, EnergyThreshold: 300, PhraseLimit: 500 * time.Millisecond})

	u, err := r.Listen(context.Background(), stream(speech(3*time.Second)))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if d := u.Duration(); d < 500*time.Millisecond || d > 600*time.Millisecond {
		t.Fatalf("duration = %v, want about the phrase limit", d)
	}
}

func TestListenTimeout(t *testing.T) {
	r := NewRecognizer(RecognizerConfig{SampleRate: testRate, ListenTimeout: 200 * time.Millisecond})
	if _, err := r.Listen(context.Background(), stream(silence(time.Second))); !errors.Is(err, ErrListenTimeout) {
		t.Fatalf("Listen error = %v, want ErrListenTimeout", err)
	}
}

func TestListenEndOfStream(t *testing.T) {
	r := fixedRecognizer()
	if _, err := r.Listen(context.Background(), stream(silence(100*time.Millisecond))); !errors.Is(err, io.EOF) {
		t.Fatalf("Listen error = %v, want EOF", err)
	}
}

func TestListenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fixedRecognizer().Listen(ctx, stream(speech(time.Second))); !errors.Is(err, context.Canceled) {
		t.Fatalf("Listen error = %v, want context.Canceled", err)
	}
}

func TestUtteranceWAV(t *testing.T) {
	u := Utterance{Samples: []int16{1, -1, 300}, SampleRate: 16000}
	wav := u.WAV()

	if len(wav) != 44+6 {
		t.Fatalf("len = %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("bad chunk ids: %q", wav[:40])
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Fatalf("rate = %d", rate)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); size != 6 {
		t.Fatalf("data size = %d", size)
	}
	if !bytes.Equal(wav[44:], u.PCM()) {
		t.Fatal("payload does not match PCM")
	}
}

func TestResampleDownsamples(t *testing.T) {
	in := make([]int16, 48000)
	out, rate := resampleInt16(in, 48000, 16000)
	if len(out) < 15000 || len(out) > 17000 || rate != 16000 {
		t.Fatalf("resampled %d samples at %d Hz, want about 16000 at 16000", len(out), rate)
	}
	if same, rate := resampleInt16(in, 16000, 16000); len(same) != len(in) || rate != 16000 {
		t.Fatal("same-rate resample should be a no-op")
	}
}

func TestResampleFailureKeepsSourceRate(t *testing.T) {
	in := []int16{1, 2, 3, 4}
	out, rate := resampleInt16(in, -8000, 16000)
	if rate != -8000 || len(out) != len(in) {
		t.Fatalf("got %d samples labelled %d Hz, want the input untouched at its own rate", len(out), rate)
	}
}
