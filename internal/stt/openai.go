package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/waseemjarad3-bot/nova/internal/audio"
	"github.com/waseemjarad3-bot/nova/internal/logging"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// WhisperProvider implements STT against an OpenAI-compatible
// /audio/transcriptions endpoint. OpenAI and Groq both speak it.
type WhisperProvider struct {
	name     string
	model    string
	language string
	client   *openai.Client
}

// NewOpenAIProvider creates a new OpenAI Whisper STT provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*WhisperProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key not configured")
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	return newWhisperProvider("openai", cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Language), nil
}

// NewGroqProvider creates a new Groq Whisper STT provider.
func NewGroqProvider(cfg GroqConfig) (*WhisperProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("groq API key not configured")
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-large-v3-turbo"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = groqBaseURL
	}
	return newWhisperProvider("groq", cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Language), nil
}

func newWhisperProvider(name, apiKey, baseURL, model, language string) *WhisperProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}
	config.HTTPClient = newHTTPClient()

	return &WhisperProvider{
		name:     name,
		model:    model,
		language: language,
		client:   openai.NewClientWithConfig(config),
	}
}

// Transcribe uploads the utterance as a WAV file.
func (w *WhisperProvider) Transcribe(ctx context.Context, u audio.Utterance) (string, error) {
	logging.L_debug("stt: sending to "+w.name, "model", w.model, "duration", u.Duration())

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "utterance.wav",
		Reader:   bytes.NewReader(u.WAV()),
		Language: w.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &RequestError{Provider: w.name, Status: statusOf(err), Err: err}
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrUnrecognized
	}
	logging.L_debug("stt: "+w.name+" transcription complete", "length", len(text))
	return text, nil
}

// statusOf extracts the HTTP status from a go-openai error.
func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// Name returns the provider name.
func (w *WhisperProvider) Name() string {
	return w.name
}

// Close releases any resources (none for HTTP client).
func (w *WhisperProvider) Close() error {
	return nil
}
