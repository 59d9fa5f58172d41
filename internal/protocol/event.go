// Package protocol defines the line-delimited JSON events the monitors write to stdout.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Type is the value of the mandatory "type" field of every record.
type Type string

const (
	TypeInfo         Type = "INFO"
	TypeError        Type = "ERROR"
	TypeNotification Type = "NOTIFICATION"
	TypeWakeWord     Type = "WAKE_WORD"
)

// Event is one outbound record. The set of implementations is closed.
type Event interface {
	Type() Type
	isEvent()
}

// Info is a status message for the parent process.
type Info struct {
	Msg string
}

// Error reports an actionable or terminal failure.
type Error struct {
	Msg string
}

// Notification is a new notification from the watched application.
type Notification struct {
	App     string
	Contact string
	Content string
	ID      int64
}

// WakeWord is an utterance that contained the wake word.
type WakeWord struct {
	Text    string
	Command string
}

func (Info) Type() Type         { return TypeInfo }
func (Error) Type() Type        { return TypeError }
func (Notification) Type() Type { return TypeNotification }
func (WakeWord) Type() Type     { return TypeWakeWord }

func (Info) isEvent()         {}
func (Error) isEvent()        {}
func (Notification) isEvent() {}
func (WakeWord) isEvent()     {}

// Infof builds an Info event.
func Infof(format string, args ...any) Info {
	return Info{Msg: fmt.Sprintf(format, args...)}
}

// Errorf builds an Error event.
func Errorf(format string, args ...any) Error {
	return Error{Msg: fmt.Sprintf(format, args...)}
}

type messageRecord struct {
	Type Type   `json:"type"`
	Msg  string `json:"msg"`
}

type notificationRecord struct {
	Type    Type   `json:"type"`
	App     string `json:"app"`
	Contact string `json:"contact"`
	Content string `json:"content"`
	ID      int64  `json:"id"`
}

type wakeWordRecord struct {
	Type    Type   `json:"type"`
	Text    string `json:"text"`
	Command string `json:"command"`
}

// Encode serializes an event into a single JSON object without a trailing newline.
// Every field of the variant is always present, including empty strings.
func Encode(ev Event) ([]byte, error) {
	var rec any
	switch e := ev.(type) {
	case Info:
		rec = messageRecord{Type: TypeInfo, Msg: e.Msg}
	case Error:
		rec = messageRecord{Type: TypeError, Msg: e.Msg}
	case Notification:
		rec = notificationRecord{Type: TypeNotification, App: e.App, Contact: e.Contact, Content: e.Content, ID: e.ID}
	case WakeWord:
		rec = wakeWordRecord{Type: TypeWakeWord, Text: e.Text, Command: e.Command}
	case nil:
		return nil, fmt.Errorf("encode: nil event")
	default:
		return nil, fmt.Errorf("encode: unsupported event %T", ev)
	}
	return json.Marshal(rec)
}
