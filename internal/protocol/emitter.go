package protocol

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// Observer is told about every event that reached the output channel.
type Observer interface {
	EventEmitted(t Type)
}

// Emitter writes events to the output channel, one record per line, flushing after each.
type Emitter struct {
	mu       sync.Mutex
	w        *bufio.Writer
	observer Observer
}

// NewEmitter wraps w. Callers normally pass os.Stdout.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: bufio.NewWriter(w)}
}

// SetObserver installs an observer; nil disables observation.
func (e *Emitter) SetObserver(o Observer) {
	e.mu.Lock()
	e.observer = o
	e.mu.Unlock()
}

// Emit encodes ev and writes it followed by a newline and an explicit flush.
// Write errors are sticky on the underlying bufio.Writer; callers treat them as fatal.
func (e *Emitter) Emit(ev Event) error {
	line, err := Encode(ev)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.w.Write(line); err != nil {
		return fmt.Errorf("emit %s: %w", ev.Type(), err)
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", ev.Type(), err)
	}
	if e.observer != nil {
		e.observer.EventEmitted(ev.Type())
	}
	return nil
}
