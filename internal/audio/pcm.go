package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	. "github.com/waseemjarad3-bot/nova/internal/logging"
	"github.com/zeozeozeo/gomplerate"
)

// TargetSampleRate is the rate utterances are delivered at; speech APIs expect 16kHz.
const TargetSampleRate = 16000

// Utterance is one captured phrase as mono 16-bit PCM.
type Utterance struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the length of the utterance.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// PCM returns the samples as little-endian bytes (LINEAR16).
func (u Utterance) PCM() []byte {
	out := make([]byte, len(u.Samples)*2)
	for i, s := range u.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s)) // #nosec G115 - bit pattern preserved
	}
	return out
}

// WAV wraps the samples in a canonical 44-byte RIFF header.
func (u Utterance) WAV() []byte {
	data := u.PCM()
	var buf bytes.Buffer
	buf.Grow(44 + len(data))

	// #nosec G115 - utterances are bounded by the phrase limit
	dataLen := uint32(len(data))
	rate := uint32(u.SampleRate) // #nosec G115

	write := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }
	buf.WriteString("RIFF")
	write(36 + dataLen)
	buf.WriteString("WAVE")

	// fmt chunk: PCM, mono, 16-bit
	buf.WriteString("fmt ")
	write(uint32(16))
	write(uint16(1))
	write(uint16(1))
	write(rate)
	write(rate * 2)
	write(uint16(2))
	write(uint16(16))

	buf.WriteString("data")
	write(dataLen)
	buf.Write(data)
	return buf.Bytes()
}

// bytesToInt16 converts little-endian 16-bit PCM to samples. A trailing odd byte is dropped.
func bytesToInt16(buf []byte) []int16 {
	samples := make([]int16, len(buf)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:])) // #nosec G115 - safe: uint16 to int16 for audio samples
	}
	return samples
}

// rms is the root-mean-square energy of a chunk, on the int16 scale.
func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// resampleInt16 converts audio from one sample rate to another using gomplerate.
// It returns the rate the result is actually at, which is fromRate when
// resampling was not possible.
func resampleInt16(samples []int16, fromRate, toRate int) ([]int16, int) {
	if fromRate == toRate || len(samples) == 0 {
		return samples, fromRate
	}

	resampler, err := gomplerate.NewResampler(1, fromRate, toRate)
	if err != nil {
		L_warn("audio: resampler creation failed, keeping capture rate", "from", fromRate, "to", toRate, "error", err)
		return samples, fromRate
	}
	return resampler.ResampleInt16(samples), toRate
}
