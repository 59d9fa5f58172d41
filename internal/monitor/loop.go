package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/waseemjarad3-bot/nova/internal/logging"
	"github.com/waseemjarad3-bot/nova/internal/protocol"
)

// ErrAccessDenied is returned by Run when the source refused access at startup.
var ErrAccessDenied = errors.New("monitor: access denied")

// Poll outcomes reported to the Observer.
const (
	PollOK       = "ok"
	PollIgnored  = "ignored"
	PollReported = "reported"
	PollFatal    = "fatal"
)

// Mapper turns a fresh RawEvent into an outbound event, or rejects it.
// wakeWord is the value resolved for the current iteration ("" when unused).
type Mapper func(ev RawEvent, wakeWord string) (protocol.Event, bool)

// Emitter is the output channel.
type Emitter interface {
	Emit(ev protocol.Event) error
}

// Observer receives loop progress, typically to feed metrics.
type Observer interface {
	PollCompleted(result string)
	CursorAdvanced(id int64)
	WakeWordChanged(word string)
}

// Loop polls one Source forever and emits what its Mapper produces.
// It is single-goroutine: the only suspension points are Poll and the inter-iteration sleep.
type Loop struct {
	Source  Source
	Map     Mapper
	Emitter Emitter

	// Cadence is the target period between iteration starts. Zero polls back to back,
	// which suits sources whose Poll blocks on its own.
	Cadence time.Duration

	// Dedup enables the id cursor and the priming poll.
	Dedup bool

	// WakeWord, when set, is resolved at the top of every iteration.
	WakeWord func() string

	Observer Observer

	// Sleep waits between iterations; defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	cursor   Cursor
	lastWord string
	wordSeen bool
}

// Run blocks until ctx is cancelled (returns nil), access is denied (ErrAccessDenied),
// or a fatal failure occurs (returns the error after reporting it once).
func (l *Loop) Run(ctx context.Context) (err error) {
	if l.Source == nil || l.Map == nil || l.Emitter == nil {
		return errors.New("monitor: loop needs a source, a mapper and an emitter")
	}
	name := l.Source.Name()

	defer func() {
		if r := recover(); r != nil {
			L_error("monitor: loop panic", "source", name, "panic", r)
			err = fmt.Errorf("monitor: %s: panic: %v", name, r)
			if emitErr := l.Emitter.Emit(protocol.Error{Msg: fmt.Sprint(r)}); emitErr != nil {
				L_error("monitor: could not report panic", "error", emitErr)
			}
		}
	}()

	access, err := l.Source.RequestAccess(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return l.fatal(name, err.Error(), fmt.Errorf("monitor: %s: request access: %w", name, err))
	}
	L_debug("monitor: access checked", "source", name, "access", access)

	if access == AccessDenied {
		if err := l.Emitter.Emit(protocol.Errorf("Access to %s denied. Please enable it in system settings.", name)); err != nil {
			return err
		}
		return ErrAccessDenied
	}

	if err := l.Emitter.Emit(protocol.Info{Msg: bannerFor(l.Source)}); err != nil {
		return err
	}

	if l.Dedup {
		l.prime(ctx)
	}

	for {
		if ctx.Err() != nil {
			L_info("monitor: stopping", "source", name, "reason", ctx.Err())
			return nil
		}
		start := time.Now()
		if err := l.iterate(ctx); err != nil {
			return err
		}
		if l.Cadence <= 0 {
			continue
		}
		wait := l.Cadence - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		if err := l.sleep(ctx, wait); err != nil {
			L_info("monitor: stopping", "source", name, "reason", err)
			return nil
		}
	}
}

// Cursor exposes the dedup cursor, mainly for tests and diagnostics.
func (l *Loop) Cursor() Cursor { return l.cursor }

func bannerFor(src Source) string {
	if b, ok := src.(Banner); ok {
		if msg := b.Banner(); msg != "" {
			return msg
		}
	}
	return src.Name() + " active..."
}

// prime seeds the cursor from the events that already exist; failures start it at 0.
func (l *Loop) prime(ctx context.Context) {
	events, err := l.Source.Poll(ctx)
	if err != nil {
		L_debug("monitor: priming poll failed, starting at 0", "source", l.Source.Name(), "error", err)
		l.cursor.Prime(nil)
		return
	}
	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	l.cursor.Prime(ids)
	L_debug("monitor: cursor primed", "source", l.Source.Name(), "last", l.cursor.Last(), "existing", len(events))
	if l.Observer != nil {
		l.Observer.CursorAdvanced(l.cursor.Last())
	}
}

func (l *Loop) iterate(ctx context.Context) error {
	name := l.Source.Name()

	var word string
	if l.WakeWord != nil {
		word = l.WakeWord()
		if !l.wordSeen || word != l.lastWord {
			if err := l.Emitter.Emit(protocol.Infof("Wake word engine active. Listening for '%s'...", word)); err != nil {
				return err
			}
			L_info("monitor: wake word set", "word", word)
			l.lastWord, l.wordSeen = word, true
			if l.Observer != nil {
				l.Observer.WakeWordChanged(word)
			}
		}
	}

	events, err := l.Source.Poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return l.handlePollError(name, err)
	}
	l.observe(PollOK)

	for _, ev := range events {
		if l.Dedup && !l.cursor.Fresh(ev.ID) {
			continue
		}
		if out, ok := l.Map(ev, word); ok {
			if err := l.Emitter.Emit(out); err != nil {
				return err
			}
		}
		if l.Dedup {
			l.cursor.Advance(ev.ID)
			if l.Observer != nil {
				l.Observer.CursorAdvanced(l.cursor.Last())
			}
		}
	}
	return nil
}

func (l *Loop) handlePollError(name string, err error) error {
	severity, msg := Classify(err)
	switch severity {
	case SeverityReport:
		L_warn("monitor: poll failed", "source", name, "error", err)
		l.observe(PollReported)
		return l.Emitter.Emit(protocol.Error{Msg: msg})
	case SeverityFatal:
		l.observe(PollFatal)
		return l.fatal(name, msg, fmt.Errorf("monitor: %s: %w", name, err))
	default:
		L_trace("monitor: poll failed, ignoring", "source", name, "error", err)
		l.observe(PollIgnored)
		return nil
	}
}

// fatal reports msg once and returns err so the process can exit.
func (l *Loop) fatal(name, msg string, err error) error {
	L_error("monitor: fatal", "source", name, "error", err)
	if emitErr := l.Emitter.Emit(protocol.Error{Msg: msg}); emitErr != nil {
		return errors.Join(err, emitErr)
	}
	return err
}

func (l *Loop) observe(result string) {
	if l.Observer != nil {
		l.Observer.PollCompleted(result)
	}
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) error {
	if l.Sleep != nil {
		return l.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
