package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/waseemjarad3-bot/nova/internal/audio"
	. "github.com/waseemjarad3-bot/nova/internal/logging"
	"github.com/waseemjarad3-bot/nova/internal/paths"
	"github.com/waseemjarad3-bot/nova/internal/stt"
)

// Settings holds monitor tuning. It is loaded once at startup; the wake word
// itself lives in the assistant config and is resolved every iteration.
type Settings struct {
	Notify   NotifySettings   `json:"notify" yaml:"notify" toml:"notify"`
	WakeWord WakeWordSettings `json:"wakeword" yaml:"wakeword" toml:"wakeword"`
	Metrics  MetricsSettings  `json:"metrics" yaml:"metrics" toml:"metrics"`
}

type NotifySettings struct {
	App       string   `json:"app" yaml:"app" toml:"app"`                   // case-insensitive substring of the sender app name
	Interval  Duration `json:"interval" yaml:"interval" toml:"interval"`    // poll cadence
	MaxQueued int      `json:"maxQueued" yaml:"maxQueued" toml:"maxQueued"` // notifications kept by the bus store
}

type WakeWordSettings struct {
	STT        stt.Config         `json:"stt" yaml:"stt" toml:"stt"`
	Capture    CaptureSettings    `json:"capture" yaml:"capture" toml:"capture"`
	Recognizer RecognizerSettings `json:"recognizer" yaml:"recognizer" toml:"recognizer"`
}

type CaptureSettings struct {
	Command     string `json:"command" yaml:"command" toml:"command"`
	InputFormat string `json:"inputFormat" yaml:"inputFormat" toml:"inputFormat"`
	InputDevice string `json:"inputDevice" yaml:"inputDevice" toml:"inputDevice"`
	SampleRate  int    `json:"sampleRate" yaml:"sampleRate" toml:"sampleRate"`
}

type RecognizerSettings struct {
	EnergyThreshold float64  `json:"energyThreshold" yaml:"energyThreshold" toml:"energyThreshold"`
	FixedEnergy     bool     `json:"fixedEnergy" yaml:"fixedEnergy" toml:"fixedEnergy"`
	Calibration     Duration `json:"calibration" yaml:"calibration" toml:"calibration"`
	PauseThreshold  Duration `json:"pauseThreshold" yaml:"pauseThreshold" toml:"pauseThreshold"`
	PhraseLimit     Duration `json:"phraseLimit" yaml:"phraseLimit" toml:"phraseLimit"`
	ListenTimeout   Duration `json:"listenTimeout" yaml:"listenTimeout" toml:"listenTimeout"`
}

type MetricsSettings struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"` // empty disables the /metrics listener
}

// Duration is a time.Duration written as "1s", "800ms", ... in settings files.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DefaultSettings returns the built-in tuning.
func DefaultSettings() Settings {
	return Settings{
		Notify: NotifySettings{
			App:       "whatsapp",
			Interval:  Duration(time.Second),
			MaxQueued: 64,
		},
		WakeWord: WakeWordSettings{
			STT: stt.Config{
				Provider: "google",
				Google:   stt.GoogleConfig{LanguageCode: "en-US"},
				OpenAI:   stt.OpenAIConfig{Model: "whisper-1"},
				Groq:     stt.GroqConfig{Model: "whisper-large-v3-turbo"},
				Deepgram: stt.DeepgramConfig{Model: "nova-2"},
			},
			Capture: CaptureSettings{
				Command:     "ffmpeg",
				InputFormat: "pulse",
				InputDevice: "default",
				SampleRate:  48000,
			},
			Recognizer: RecognizerSettings{
				EnergyThreshold: 300,
				Calibration:     Duration(500 * time.Millisecond),
				PauseThreshold:  Duration(800 * time.Millisecond),
				PhraseLimit:     Duration(10 * time.Second),
			},
		},
	}
}

// LoadSettings reads the settings file at path (or the default location when path
// is empty), fills unset fields from DefaultSettings and applies environment secrets.
// A missing default file is not an error; a missing explicit file is.
func LoadSettings(path string) (Settings, error) {
	var s Settings

	if path == "" {
		found, err := paths.SettingsPath()
		if err != nil {
			return Settings{}, err
		}
		path = found
	}

	if path != "" {
		expanded, err := paths.ExpandTilde(path)
		if err != nil {
			return Settings{}, err
		}
		if err := decodeFile(expanded, &s); err != nil {
			return Settings{}, err
		}
		L_debug("config: settings loaded", "path", expanded)
	}

	if err := mergo.Merge(&s, DefaultSettings()); err != nil {
		return Settings{}, fmt.Errorf("merge default settings: %w", err)
	}
	applyEnv(&s)
	return s, nil
}

func decodeFile(path string, out *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, out)
	case ".toml":
		err = toml.Unmarshal(data, out)
	case ".json":
		err = json.Unmarshal(data, out)
	default:
		return fmt.Errorf("settings %s: unsupported format (want .yaml, .toml or .json)", path)
	}
	if err != nil {
		return fmt.Errorf("parse settings %s: %w", path, err)
	}
	return nil
}

// applyEnv fills API keys from the environment when the file left them empty.
func applyEnv(s *Settings) {
	cfg := &s.WakeWord.STT
	cfg.Google.APIKey = firstNonEmpty(cfg.Google.APIKey, os.Getenv("NOVA_GOOGLE_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
	cfg.OpenAI.APIKey = firstNonEmpty(cfg.OpenAI.APIKey, os.Getenv("OPENAI_API_KEY"))
	cfg.Groq.APIKey = firstNonEmpty(cfg.Groq.APIKey, os.Getenv("GROQ_API_KEY"))
	cfg.Deepgram.APIKey = firstNonEmpty(cfg.Deepgram.APIKey, os.Getenv("DEEPGRAM_API_KEY"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// CaptureConfig converts capture settings for the audio package.
func (c CaptureSettings) CaptureConfig() audio.CaptureConfig {
	return audio.CaptureConfig{
		SampleRate:  c.SampleRate,
		InputFormat: c.InputFormat,
		InputDevice: c.InputDevice,
	}
}

// RecognizerConfig converts recognizer settings for the audio package.
func (r RecognizerSettings) RecognizerConfig(captureRate int) audio.RecognizerConfig {
	return audio.RecognizerConfig{
		SampleRate:      captureRate,
		EnergyThreshold: r.EnergyThreshold,
		DynamicEnergy:   !r.FixedEnergy,
		PauseThreshold:  r.PauseThreshold.Std(),
		PhraseLimit:     r.PhraseLimit.Std(),
		ListenTimeout:   r.ListenTimeout.Std(),
	}
}
