// Package metrics exposes monitor activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	. "github.com/waseemjarad3-bot/nova/internal/logging"
	"github.com/waseemjarad3-bot/nova/internal/protocol"
)

// Collector counts polls, emitted events and config changes for one monitor.
// It satisfies monitor.Observer and protocol.Observer.
type Collector struct {
	monitor  string
	registry *prometheus.Registry

	polls           *prometheus.CounterVec
	events          *prometheus.CounterVec
	cursor          *prometheus.GaugeVec
	wakeWordChanges prometheus.Counter
	configChanges   prometheus.Counter
}

// New creates a collector on its own registry, labelled with the monitor name.
func New(monitor string) *Collector {
	c := &Collector{
		monitor:  monitor,
		registry: prometheus.NewRegistry(),
	}
	c.polls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nova",
		Name:      "polls_total",
		Help:      "Poll iterations by outcome",
	}, []string{"monitor", "result"})
	c.events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nova",
		Name:      "events_emitted_total",
		Help:      "Protocol events written to stdout by type",
	}, []string{"monitor", "type"})
	c.cursor = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nova",
		Name:      "dedup_cursor",
		Help:      "Highest source event id already processed",
	}, []string{"monitor"})
	c.wakeWordChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nova",
		Name:      "wake_word_changes_total",
		Help:      "Times the resolved wake word changed, including the first resolution",
	})
	c.configChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "nova",
		Name:      "config_file_changes_total",
		Help:      "Change notifications for the assistant config file",
	})

	c.registry.MustRegister(
		c.polls, c.events, c.cursor, c.wakeWordChanges, c.configChanges,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) PollCompleted(result string) {
	c.polls.WithLabelValues(c.monitor, result).Inc()
}

func (c *Collector) CursorAdvanced(id int64) {
	c.cursor.WithLabelValues(c.monitor).Set(float64(id))
}

func (c *Collector) WakeWordChanged(string) {
	c.wakeWordChanges.Inc()
}

func (c *Collector) EventEmitted(t protocol.Type) {
	c.events.WithLabelValues(c.monitor, string(t)).Inc()
}

// ConfigChanged is wired to the config file watcher.
func (c *Collector) ConfigChanged() {
	c.configChanges.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve listens on addr and serves /metrics and /healthz until ctx is done.
// Bind errors are returned immediately; later server errors are logged.
func (c *Collector) Serve(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L_error("metrics: server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	L_info("metrics: serving", "addr", ln.Addr().String(), "monitor", c.monitor)
	return ln.Addr(), nil
}
