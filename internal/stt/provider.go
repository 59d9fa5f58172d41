// Package stt provides speech-to-text transcription for captured utterances.
package stt

import (
	"context"
	"errors"
	"fmt"

	"github.com/waseemjarad3-bot/nova/internal/audio"
)

// ErrUnrecognized means the service answered but found no intelligible speech.
var ErrUnrecognized = errors.New("stt: speech not recognized")

// Transcriber is the interface for STT implementations.
type Transcriber interface {
	// Transcribe converts one utterance to text.
	Transcribe(ctx context.Context, u audio.Utterance) (string, error)

	// Name returns the provider name (e.g., "google", "groq")
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// RequestError is a transport or service failure talking to a provider.
// Status is the HTTP status when one was received, 0 otherwise.
type RequestError struct {
	Provider string
	Status   int
	Err      error
}

func (e *RequestError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s API error (status %d): %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s API error: %v", e.Provider, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsRequestError reports whether err is a provider connectivity or service failure.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}
