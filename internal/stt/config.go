package stt

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/waseemjarad3-bot/nova/internal/logging"
)

// requestTimeout bounds a single recognition call.
const requestTimeout = 30 * time.Second

// Config holds STT configuration.
type Config struct {
	Provider string         `json:"provider" yaml:"provider" toml:"provider"` // "google", "openai", "groq", "deepgram"
	Google   GoogleConfig   `json:"google" yaml:"google" toml:"google"`       // Google Cloud STT
	OpenAI   OpenAIConfig   `json:"openai" yaml:"openai" toml:"openai"`       // OpenAI Whisper API
	Groq     GroqConfig     `json:"groq" yaml:"groq" toml:"groq"`             // Groq Whisper API
	Deepgram DeepgramConfig `json:"deepgram" yaml:"deepgram" toml:"deepgram"` // Deepgram live websocket
}

// GoogleConfig holds Google Cloud STT configuration.
type GoogleConfig struct {
	APIKey       string `json:"apiKey" yaml:"apiKey" toml:"apiKey"`
	LanguageCode string `json:"languageCode" yaml:"languageCode" toml:"languageCode"` // e.g., "en-US", "en-ZA"
	BaseURL      string `json:"baseURL,omitempty" yaml:"baseURL,omitempty" toml:"baseURL,omitempty"`
}

// OpenAIConfig holds OpenAI Whisper configuration.
type OpenAIConfig struct {
	APIKey   string `json:"apiKey" yaml:"apiKey" toml:"apiKey"`
	Model    string `json:"model" yaml:"model" toml:"model"`          // "whisper-1"
	Language string `json:"language" yaml:"language" toml:"language"` // ISO-639-1, empty = detect
	BaseURL  string `json:"baseURL,omitempty" yaml:"baseURL,omitempty" toml:"baseURL,omitempty"`
}

// GroqConfig holds Groq Whisper configuration.
type GroqConfig struct {
	APIKey   string `json:"apiKey" yaml:"apiKey" toml:"apiKey"`
	Model    string `json:"model" yaml:"model" toml:"model"` // "whisper-large-v3", "whisper-large-v3-turbo"
	Language string `json:"language" yaml:"language" toml:"language"`
	BaseURL  string `json:"baseURL,omitempty" yaml:"baseURL,omitempty" toml:"baseURL,omitempty"`
}

// DeepgramConfig holds Deepgram configuration.
type DeepgramConfig struct {
	APIKey      string `json:"apiKey" yaml:"apiKey" toml:"apiKey"`
	Model       string `json:"model" yaml:"model" toml:"model"` // "nova-2"
	Language    string `json:"language" yaml:"language" toml:"language"`
	SmartFormat bool   `json:"smartFormat" yaml:"smartFormat" toml:"smartFormat"`
	BaseURL     string `json:"baseURL,omitempty" yaml:"baseURL,omitempty" toml:"baseURL,omitempty"`
}

// New builds the transcriber selected by cfg.Provider.
func New(cfg Config) (Transcriber, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "google"
	}

	var (
		t   Transcriber
		err error
	)
	switch provider {
	case "google":
		t, err = NewGoogleProvider(cfg.Google)
	case "openai":
		t, err = NewOpenAIProvider(cfg.OpenAI)
	case "groq":
		t, err = NewGroqProvider(cfg.Groq)
	case "deepgram":
		t, err = NewDeepgramProvider(cfg.Deepgram)
	default:
		return nil, fmt.Errorf("stt: unknown provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("stt: failed to initialize %s: %w", provider, err)
	}

	logging.L_info("stt: provider initialized", "provider", t.Name())
	return t, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}
