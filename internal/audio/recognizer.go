package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	. "github.com/waseemjarad3-bot/nova/internal/logging"
)

// ErrListenTimeout is returned by Listen when no speech started within ListenTimeout.
var ErrListenTimeout = errors.New("audio: listening timed out waiting for speech")

const (
	chunkDuration  = 20 * time.Millisecond
	dynamicDamping = 0.15 // fraction of the old threshold left after one second
	dynamicRatio   = 1.5  // speech must be this much louder than ambient noise
	minPhrase      = 300 * time.Millisecond
	preRoll        = 500 * time.Millisecond
)

// RecognizerConfig tunes the energy-based phrase detector.
type RecognizerConfig struct {
	SampleRate      int // rate of the incoming PCM
	EnergyThreshold float64
	DynamicEnergy   bool
	PauseThreshold  time.Duration // trailing silence that ends a phrase
	PhraseLimit     time.Duration // 0 = unbounded
	ListenTimeout   time.Duration // 0 = wait forever for speech to start
}

func (c RecognizerConfig) withDefaults() RecognizerConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = TargetSampleRate
	}
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = 300
	}
	if c.PauseThreshold <= 0 {
		c.PauseThreshold = 800 * time.Millisecond
	}
	return c
}

// Recognizer cuts a continuous PCM stream into utterances by energy.
// Not safe for concurrent use.
type Recognizer struct {
	cfg       RecognizerConfig
	threshold float64
	chunk     int // samples per chunk
}

func NewRecognizer(cfg RecognizerConfig) *Recognizer {
	cfg = cfg.withDefaults()
	chunk := int(int64(cfg.SampleRate) * int64(chunkDuration) / int64(time.Second))
	if chunk < 1 {
		chunk = 1
	}
	return &Recognizer{cfg: cfg, threshold: cfg.EnergyThreshold, chunk: chunk}
}

// Threshold returns the current energy threshold.
func (r *Recognizer) Threshold() float64 { return r.threshold }

// Calibrate listens to d of ambient audio and moves the threshold toward it.
func (r *Recognizer) Calibrate(src io.Reader, d time.Duration) error {
	chunks := int(d / chunkDuration)
	for i := 0; i < chunks; i++ {
		samples, err := r.readChunk(src)
		if err != nil {
			return fmt.Errorf("calibrate: %w", err)
		}
		r.adjust(rms(samples))
	}
	L_debug("audio: calibrated", "threshold", math.Round(r.threshold), "duration", d)
	return nil
}

// adjust blends the threshold toward energy*dynamicRatio at a per-second damping rate.
func (r *Recognizer) adjust(energy float64) {
	damping := math.Pow(dynamicDamping, chunkDuration.Seconds())
	target := energy * dynamicRatio
	r.threshold = r.threshold*damping + target*(1-damping)
}

// Listen blocks until one phrase has been spoken and returns it resampled to
// TargetSampleRate. Phrases shorter than minPhrase are discarded as noise.
func (r *Recognizer) Listen(ctx context.Context, src io.Reader) (Utterance, error) {
	var waited time.Duration

	for {
		pre, err := r.waitForSpeech(ctx, src, &waited)
		if err != nil {
			return Utterance{}, err
		}

		phrase, spoken, err := r.record(ctx, src, pre)
		if err != nil {
			return Utterance{}, err
		}
		if spoken < minPhrase {
			L_trace("audio: phrase too short, discarding", "spoken", spoken)
			continue
		}

		L_debug("audio: phrase captured", "samples", len(phrase), "spoken", spoken)
		samples, rate := resampleInt16(phrase, r.cfg.SampleRate, TargetSampleRate)
		return Utterance{Samples: samples, SampleRate: rate}, nil
	}
}

// waitForSpeech consumes silence and returns the pre-roll plus the first loud chunk.
func (r *Recognizer) waitForSpeech(ctx context.Context, src io.Reader, waited *time.Duration) ([]int16, error) {
	maxPre := int(preRoll / chunkDuration)
	var ring [][]int16

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		samples, err := r.readChunk(src)
		if err != nil {
			return nil, err
		}
		*waited += chunkDuration
		if r.cfg.ListenTimeout > 0 && *waited > r.cfg.ListenTimeout {
			return nil, ErrListenTimeout
		}

		energy := rms(samples)
		if energy > r.threshold {
			out := make([]int16, 0, (len(ring)+1)*r.chunk)
			for _, c := range ring {
				out = append(out, c...)
			}
			return append(out, samples...), nil
		}
		if r.cfg.DynamicEnergy {
			r.adjust(energy)
		}

		ring = append(ring, samples)
		if len(ring) > maxPre {
			ring = ring[1:]
		}
	}
}

// record appends chunks to phrase until a long enough pause or the phrase limit.
func (r *Recognizer) record(ctx context.Context, src io.Reader, phrase []int16) ([]int16, time.Duration, error) {
	spoken := chunkDuration
	var length, pause time.Duration

	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		samples, err := r.readChunk(src)
		if err != nil {
			if errors.Is(err, io.EOF) && len(phrase) > 0 {
				// Stream ended mid-phrase: surface what we have, the next read reports EOF.
				return phrase, spoken, nil
			}
			return nil, 0, err
		}
		phrase = append(phrase, samples...)
		length += chunkDuration

		if rms(samples) > r.threshold {
			pause = 0
			spoken += chunkDuration
		} else {
			pause += chunkDuration
			if pause > r.cfg.PauseThreshold {
				return phrase, spoken, nil
			}
		}
		if r.cfg.PhraseLimit > 0 && length >= r.cfg.PhraseLimit {
			return phrase, spoken, nil
		}
	}
}

func (r *Recognizer) readChunk(src io.Reader) ([]int16, error) {
	buf := make([]byte, r.chunk*2)
	if _, err := io.ReadFull(src, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return bytesToInt16(buf), nil
}
