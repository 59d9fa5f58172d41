package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/waseemjarad3-bot/nova/internal/audio"
	"github.com/waseemjarad3-bot/nova/internal/logging"
)

const googleBaseURL = "https://speech.googleapis.com"

// GoogleProvider implements STT using Google Cloud Speech-to-Text API.
type GoogleProvider struct {
	config GoogleConfig
	client *http.Client
}

// NewGoogleProvider creates a new Google Cloud STT provider.
func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google API key not configured")
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = googleBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &GoogleProvider{config: cfg, client: newHTTPClient()}, nil
}

type googleRequest struct {
	Config googleRecognitionConfig `json:"config"`
	Audio  struct {
		Content string `json:"content"`
	} `json:"audio"`
}

type googleRecognitionConfig struct {
	Encoding                   string `json:"encoding"`
	SampleRateHertz            int    `json:"sampleRateHertz"`
	LanguageCode               string `json:"languageCode"`
	EnableAutomaticPunctuation bool   `json:"enableAutomaticPunctuation"`
}

type googleResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
}

// Transcribe sends the utterance as LINEAR16 to speech:recognize.
func (g *GoogleProvider) Transcribe(ctx context.Context, u audio.Utterance) (string, error) {
	var reqBody googleRequest
	reqBody.Config = googleRecognitionConfig{
		Encoding:                   "LINEAR16",
		SampleRateHertz:            u.SampleRate,
		LanguageCode:               g.config.LanguageCode,
		EnableAutomaticPunctuation: true,
	}
	reqBody.Audio.Content = base64.StdEncoding.EncodeToString(u.PCM())

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := g.config.BaseURL + "/v1/speech:recognize?key=" + url.QueryEscape(g.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	logging.L_debug("stt: sending to google", "language", g.config.LanguageCode, "duration", u.Duration())

	resp, err := g.client.Do(req)
	if err != nil {
		// The key is in the URL; keep it out of the error text.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return "", &RequestError{Provider: "google", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &RequestError{Provider: "google", Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		logging.L_debug("stt: google request failed", "status", resp.StatusCode, "body", string(body))

		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			return "", &RequestError{Provider: "google", Status: resp.StatusCode, Err: errors.New(errResp.Error.Message)}
		}
		return "", &RequestError{Provider: "google", Status: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	var result googleResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &RequestError{Provider: "google", Status: resp.StatusCode, Err: fmt.Errorf("parse response: %w", err)}
	}

	var transcripts []string
	for _, r := range result.Results {
		if len(r.Alternatives) > 0 {
			if t := strings.TrimSpace(r.Alternatives[0].Transcript); t != "" {
				transcripts = append(transcripts, t)
			}
		}
	}
	if len(transcripts) == 0 {
		return "", ErrUnrecognized
	}

	transcript := strings.Join(transcripts, " ")
	logging.L_debug("stt: google transcription complete", "length", len(transcript))
	return transcript, nil
}

// Name returns the provider name.
func (g *GoogleProvider) Name() string {
	return "google"
}

// Close releases any resources (none for HTTP client).
func (g *GoogleProvider) Close() error {
	return nil
}
