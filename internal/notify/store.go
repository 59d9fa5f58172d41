// Package notify watches desktop notifications for one application.
package notify

import (
	"context"
	"sync"

	"github.com/waseemjarad3-bot/nova/internal/monitor"
)

// Notification is one entry in the OS notification queue.
type Notification struct {
	ID      int64
	AppName string
	Texts   []string // visual text elements: title first, then body
	Err     error    // set when the texts could not be extracted
}

// Store is the OS notification queue.
type Store interface {
	RequestAccess(ctx context.Context) (monitor.Access, error)
	Notifications(ctx context.Context) ([]Notification, error)
}

// Ring keeps the most recent notifications with increasing ids.
type Ring struct {
	mu     sync.Mutex
	max    int
	nextID int64
	items  []Notification
}

func NewRing(max int) *Ring {
	if max <= 0 {
		max = 64
	}
	return &Ring{max: max, nextID: 1}
}

// Add stores a notification and returns it with its assigned id.
func (r *Ring) Add(app string, texts []string, err error) Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := Notification{ID: r.nextID, AppName: app, Texts: texts, Err: err}
	r.nextID++
	r.items = append(r.items, n)
	if over := len(r.items) - r.max; over > 0 {
		r.items = append(r.items[:0], r.items[over:]...)
	}
	return n
}

// List returns a snapshot, oldest first.
func (r *Ring) List() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}
