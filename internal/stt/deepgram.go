package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/waseemjarad3-bot/nova/internal/audio"
	"github.com/waseemjarad3-bot/nova/internal/logging"
)

const (
	deepgramBaseURL = "https://api.deepgram.com/v1"
	deepgramChunk   = 8192 // bytes per binary frame
)

// DeepgramProvider streams each utterance over Deepgram's live websocket.
type DeepgramProvider struct {
	cfg    DeepgramConfig
	dialer *websocket.Dialer
}

func NewDeepgramProvider(cfg DeepgramConfig) (*DeepgramProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("deepgram API key not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = deepgramBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	return &DeepgramProvider{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: requestTimeout},
	}, nil
}

type deepgramResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	IsFinal bool   `json:"is_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (r deepgramResponse) transcript() string {
	if len(r.Channel.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Channel.Alternatives[0].Transcript)
}

// Transcribe sends the utterance, closes the stream, and joins the final results.
func (d *DeepgramProvider) Transcribe(ctx context.Context, u audio.Utterance) (string, error) {
	wsURL, err := buildListenURL(d.cfg, u.SampleRate)
	if err != nil {
		return "", err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.cfg.APIKey)

	conn, resp, err := d.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		status := 0
		if resp != nil {
			status = resp.StatusCode
			resp.Body.Close()
		}
		return "", &RequestError{Provider: "deepgram", Status: status, Err: fmt.Errorf("connect: %w", err)}
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	logging.L_debug("stt: streaming to deepgram", "model", d.cfg.Model, "duration", u.Duration())

	pcm := u.PCM()
	for start := 0; start < len(pcm); start += deepgramChunk {
		end := min(start+deepgramChunk, len(pcm))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[start:end]); err != nil {
			return "", d.streamErr(ctx, fmt.Errorf("send audio: %w", err))
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		return "", d.streamErr(ctx, fmt.Errorf("close stream: %w", err))
	}

	var parts []string
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				break
			}
			return "", d.streamErr(ctx, fmt.Errorf("read result: %w", err))
		}

		var msg deepgramResponse
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}

		switch {
		case strings.EqualFold(msg.Type, "Error"):
			message := strings.TrimSpace(msg.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			return "", &RequestError{Provider: "deepgram", Err: errors.New(message)}
		case strings.EqualFold(msg.Type, "Metadata"):
			// Sent once the stream is fully processed.
			return d.joined(parts)
		case msg.IsFinal:
			if t := msg.transcript(); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return d.joined(parts)
}

func (d *DeepgramProvider) joined(parts []string) (string, error) {
	if len(parts) == 0 {
		return "", ErrUnrecognized
	}
	text := strings.Join(parts, " ")
	logging.L_debug("stt: deepgram transcription complete", "length", len(text))
	return text, nil
}

func (d *DeepgramProvider) streamErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &RequestError{Provider: "deepgram", Err: err}
}

func buildListenURL(cfg DeepgramConfig, sampleRate int) (string, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = deepgramBaseURL
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}
	if sampleRate <= 0 {
		sampleRate = audio.TargetSampleRate
	}

	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", strconv.Itoa(sampleRate))
	query.Set("channels", "1")
	query.Set("smart_format", strconv.FormatBool(cfg.SmartFormat))
	if cfg.Language != "" {
		query.Set("language", cfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}

// Name returns the provider name.
func (d *DeepgramProvider) Name() string {
	return "deepgram"
}

// Close releases any resources (connections are per utterance).
func (d *DeepgramProvider) Close() error {
	return nil
}
