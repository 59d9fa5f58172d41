package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	. "github.com/waseemjarad3-bot/nova/internal/logging"
	"github.com/waseemjarad3-bot/nova/internal/monitor"
)

const (
	notificationsInterface = "org.freedesktop.Notifications"
	becomeMonitorMethod    = "org.freedesktop.DBus.Monitoring.BecomeMonitor"
	accessDeniedError      = "org.freedesktop.DBus.Error.AccessDenied"

	notifyRule = "type='method_call',interface='org.freedesktop.Notifications',member='Notify'"
)

var errNotMonitoring = errors.New("notify: not monitoring the session bus")

// DBusStore collects org.freedesktop.Notifications.Notify calls from the
// session bus. The bus keeps no history, so the queue starts empty and only
// holds what arrived while the store was monitoring.
type DBusStore struct {
	ring *Ring

	// connect opens the bus connection; replaced in tests.
	connect func(ctx context.Context) (*dbus.Conn, error)

	mu   sync.Mutex
	conn *dbus.Conn
}

func NewDBusStore(maxQueued int) *DBusStore {
	return &DBusStore{
		ring: NewRing(maxQueued),
		connect: func(ctx context.Context) (*dbus.Conn, error) {
			return dbus.ConnectSessionBus(dbus.WithContext(ctx))
		},
	}
}

// RequestAccess turns a private session bus connection into a monitor.
// A bus policy refusing BecomeMonitor is reported as AccessDenied.
func (s *DBusStore) RequestAccess(ctx context.Context) (monitor.Access, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return monitor.AccessUnknown, fmt.Errorf("connect session bus: %w", err)
	}

	call := conn.BusObject().CallWithContext(ctx, becomeMonitorMethod, 0, []string{notifyRule}, uint32(0))
	if call.Err != nil {
		conn.Close()
		if isAccessDenied(call.Err) {
			L_warn("notify: bus refused monitoring", "error", call.Err)
			return monitor.AccessDenied, nil
		}
		return monitor.AccessUnknown, fmt.Errorf("become monitor: %w", call.Err)
	}

	msgs := make(chan *dbus.Message, 64)
	conn.Eavesdrop(msgs)

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go s.collect(ctx, msgs)
	L_info("notify: monitoring session bus", "rule", notifyRule)
	return monitor.AccessAllowed, nil
}

func (s *DBusStore) collect(ctx context.Context, msgs <-chan *dbus.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			s.record(msg)
		}
	}
}

// record stores msg if it is a Notify call.
func (s *DBusStore) record(msg *dbus.Message) {
	if !isNotifyCall(msg) {
		return
	}
	app, texts, err := decodeNotify(msg.Body)
	n := s.ring.Add(app, texts, err)
	L_debug("notify: notification queued", "id", n.ID, "app", app, "error", err)
}

func (s *DBusStore) Notifications(ctx context.Context) ([]Notification, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil, errNotMonitoring
	}
	if !conn.Connected() {
		return nil, monitor.Fatal("Lost connection to the notification bus", errNotMonitoring)
	}
	return s.ring.List(), nil
}

// Close drops the bus connection.
func (s *DBusStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func isNotifyCall(msg *dbus.Message) bool {
	if msg == nil || msg.Type != dbus.TypeMethodCall {
		return false
	}
	iface, _ := msg.Headers[dbus.FieldInterface].Value().(string)
	member, _ := msg.Headers[dbus.FieldMember].Value().(string)
	return iface == notificationsInterface && member == "Notify"
}

// decodeNotify reads (app_name, replaces_id, app_icon, summary, body, ...).
func decodeNotify(body []interface{}) (string, []string, error) {
	var app string
	if len(body) > 0 {
		app, _ = body[0].(string)
	}
	if len(body) < 5 {
		return app, nil, fmt.Errorf("notify: short Notify body (%d args)", len(body))
	}
	summary, ok := body[3].(string)
	if !ok {
		return app, nil, fmt.Errorf("notify: summary is %T", body[3])
	}
	text, ok := body[4].(string)
	if !ok {
		return app, nil, fmt.Errorf("notify: body is %T", body[4])
	}
	return app, []string{summary, text}, nil
}

func isAccessDenied(err error) bool {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name == accessDeniedError
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return dbusErrPtr.Name == accessDeniedError
	}
	return false
}
