package notify

import (
	"context"
	"strings"

	. "github.com/waseemjarad3-bot/nova/internal/logging"
	"github.com/waseemjarad3-bot/nova/internal/monitor"
	"github.com/waseemjarad3-bot/nova/internal/protocol"
)

const unknownContact = "Unknown Contact"

// Source adapts a Store to the poll loop.
type Source struct {
	store Store
	app   string
}

// NewSource watches store for notifications from app.
func NewSource(store Store, app string) *Source {
	return &Source{store: store, app: app}
}

func (s *Source) Name() string { return "notifications" }

func (s *Source) Banner() string {
	return "Notification listener active. Watching for " + s.app + "..."
}

func (s *Source) RequestAccess(ctx context.Context) (monitor.Access, error) {
	return s.store.RequestAccess(ctx)
}

// Poll returns every queued notification. Entries whose texts could not be
// read come back with Extracted unset so the cursor still moves past them.
func (s *Source) Poll(ctx context.Context) ([]monitor.RawEvent, error) {
	items, err := s.store.Notifications(ctx)
	if err != nil {
		return nil, err
	}

	events := make([]monitor.RawEvent, 0, len(items))
	for _, n := range items {
		ev := monitor.RawEvent{ID: n.ID, App: n.AppName}
		if n.Err != nil || n.Texts == nil {
			L_trace("notify: texts unavailable", "id", n.ID, "app", n.AppName, "error", n.Err)
			events = append(events, ev)
			continue
		}
		ev.Extracted = true
		ev.Title = unknownContact
		if len(n.Texts) > 0 {
			ev.Title = n.Texts[0]
		}
		if len(n.Texts) > 1 {
			ev.Body = n.Texts[1]
		}
		events = append(events, ev)
	}
	return events, nil
}

// Mapper emits NOTIFICATION for readable notifications whose app name
// contains target, ignoring case.
func Mapper(target string) monitor.Mapper {
	needle := strings.ToLower(target)
	return func(ev monitor.RawEvent, _ string) (protocol.Event, bool) {
		if !ev.Extracted || !strings.Contains(strings.ToLower(ev.App), needle) {
			return nil, false
		}
		return protocol.Notification{App: ev.App, Contact: ev.Title, Content: ev.Body, ID: ev.ID}, true
	}
}
