package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/waseemjarad3-bot/nova/internal/monitor"
	"github.com/waseemjarad3-bot/nova/internal/protocol"
)

var (
	_ monitor.Observer  = (*Collector)(nil)
	_ protocol.Observer = (*Collector)(nil)
)

func TestCollectorCounts(t *testing.T) {
	c := New("notify")

	c.PollCompleted(monitor.PollOK)
	c.PollCompleted(monitor.PollOK)
	c.PollCompleted(monitor.PollIgnored)
	c.EventEmitted(protocol.TypeInfo)
	c.EventEmitted(protocol.TypeNotification)
	c.EventEmitted(protocol.TypeNotification)
	c.CursorAdvanced(12)
	c.CursorAdvanced(15)
	c.WakeWordChanged("nova")
	c.ConfigChanged()

	if got := testutil.ToFloat64(c.polls.WithLabelValues("notify", monitor.PollOK)); got != 2 {
		t.Errorf("ok polls = %v", got)
	}
	if got := testutil.ToFloat64(c.polls.WithLabelValues("notify", monitor.PollIgnored)); got != 1 {
		t.Errorf("ignored polls = %v", got)
	}
	if got := testutil.ToFloat64(c.events.WithLabelValues("notify", "NOTIFICATION")); got != 2 {
		t.Errorf("notification events = %v", got)
	}
	if got := testutil.ToFloat64(c.cursor.WithLabelValues("notify")); got != 15 {
		t.Errorf("cursor = %v", got)
	}
	if got := testutil.ToFloat64(c.wakeWordChanges); got != 1 {
		t.Errorf("wake word changes = %v", got)
	}
	if got := testutil.ToFloat64(c.configChanges); got != 1 {
		t.Errorf("config changes = %v", got)
	}
}

func TestServeExposesMetrics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New("wakeword")
	c.EventEmitted(protocol.TypeWakeWord)

	addr, err := c.Serve(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	want := `nova_events_emitted_total{monitor="wakeword",type="WAKE_WORD"} 1`
	if !strings.Contains(string(body), want) {
		t.Fatalf("metrics output missing %q:\n%s", want, body)
	}

	health, err := http.Get("http://" + addr.String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", health.StatusCode)
	}
}

func TestServeBindError(t *testing.T) {
	if _, err := New("notify").Serve(context.Background(), "256.0.0.1:bad"); err == nil {
		t.Fatal("expected bind error")
	}
}
