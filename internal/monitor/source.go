// Package monitor runs an event source in a resilient polling loop and maps what it
// observes onto protocol events.
package monitor

import (
	"context"
	"errors"
	"fmt"
)

// Access is the result of asking the OS for permission to read a source.
type Access int

const (
	AccessUnknown Access = iota
	AccessAllowed
	AccessDenied
)

func (a Access) String() string {
	switch a {
	case AccessAllowed:
		return "allowed"
	case AccessDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// RawEvent is one unprocessed observation from a source.
// Notification sources fill ID/App/Title/Body; audio sources fill Transcript.
type RawEvent struct {
	ID         int64
	App        string
	Title      string
	Body       string
	Extracted  bool // title/body could be read from the notification
	Transcript string
}

// Source is an external signal source polled by the loop.
type Source interface {
	Name() string
	// RequestAccess is called once before the first poll.
	RequestAccess(ctx context.Context) (Access, error)
	// Poll returns the currently available observations in source order.
	Poll(ctx context.Context) ([]RawEvent, error)
}

// Banner is implemented by sources that announce themselves with a custom INFO message.
type Banner interface {
	Banner() string
}

// Severity decides what the loop does with a failed poll.
type Severity int

const (
	// SeverityIgnore drops the failure silently; the next iteration retries.
	SeverityIgnore Severity = iota
	// SeverityReport emits one ERROR event and keeps polling.
	SeverityReport
	// SeverityFatal emits one ERROR event and stops the loop.
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityReport:
		return "report"
	case SeverityFatal:
		return "fatal"
	default:
		return "ignore"
	}
}

// PollError is a classified poll failure.
type PollError struct {
	Severity Severity
	Msg      string // text of the ERROR event, if any
	Err      error
}

func (e *PollError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// Transient marks err as per-iteration noise.
func Transient(err error) error {
	return &PollError{Severity: SeverityIgnore, Err: err}
}

// Reportable marks err as recoverable but worth telling the parent about.
func Reportable(msg string, err error) error {
	return &PollError{Severity: SeverityReport, Msg: msg, Err: err}
}

// Fatal marks err as terminal for the loop.
func Fatal(msg string, err error) error {
	return &PollError{Severity: SeverityFatal, Msg: msg, Err: err}
}

// Classify returns the severity of a poll error. Unclassified errors are transient.
func Classify(err error) (Severity, string) {
	if err == nil {
		return SeverityIgnore, ""
	}
	var pe *PollError
	if errors.As(err, &pe) {
		msg := pe.Msg
		if msg == "" && pe.Err != nil {
			msg = pe.Err.Error()
		}
		return pe.Severity, msg
	}
	return SeverityIgnore, err.Error()
}
