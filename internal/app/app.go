// Package app holds the startup plumbing shared by the monitor binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/waseemjarad3-bot/nova/internal/config"
	. "github.com/waseemjarad3-bot/nova/internal/logging"
	"github.com/waseemjarad3-bot/nova/internal/metrics"
	"github.com/waseemjarad3-bot/nova/internal/monitor"
	"github.com/waseemjarad3-bot/nova/internal/paths"
	"github.com/waseemjarad3-bot/nova/internal/protocol"
)

// Common are the flags every monitor accepts.
type Common struct {
	Settings    string `help:"Monitor settings file (.yaml, .toml or .json). Defaults to ./nova.yaml, then ~/.nova/monitors.yaml." type:"path" placeholder:"FILE"`
	LogLevel    string `help:"Log level on stderr (${enum})." default:"info" enum:"trace,debug,info,warn,error"`
	LogFormat   string `help:"Log format on stderr (${enum})." default:"auto" enum:"auto,text,logfmt,json"`
	MetricsAddr string `help:"Serve Prometheus metrics on this address; overrides the settings file." placeholder:"HOST:PORT"`

	InitSettings bool `help:"Write the default settings, with any flags given, to --settings (or ~/.nova/monitors.yaml) and exit."`
}

// Runtime is what a monitor needs once startup succeeded.
type Runtime struct {
	RunID    string
	Settings config.Settings
	Emitter  *protocol.Emitter
	Metrics  *metrics.Collector
}

// Start initializes logging, loads settings, wires the stdout emitter to the
// metrics collector and starts the metrics listener when an address is set.
func Start(ctx context.Context, name string, c Common, stdout io.Writer) (*Runtime, error) {
	runID, err := initLogging(name, c)
	if err != nil {
		return nil, err
	}

	settings, err := config.LoadSettings(c.Settings)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		RunID:    runID,
		Settings: settings,
		Emitter:  protocol.NewEmitter(stdout),
		Metrics:  metrics.New(name),
	}
	rt.Emitter.SetObserver(rt.Metrics)

	if addr := strings.TrimSpace(c.MetricsAddr); addr != "" {
		rt.Settings.Metrics.Addr = addr
	}
	if addr := rt.Settings.Metrics.Addr; addr != "" {
		if _, err := rt.Metrics.Serve(ctx, addr); err != nil {
			return nil, fmt.Errorf("metrics listener: %w", err)
		}
	}

	L_info("monitor starting", "run_id", runID)
	return rt, nil
}

// InitSettings writes DefaultSettings, adjusted by override, to the --settings
// path or ~/.nova/monitors.yaml and returns the path written. API keys are
// never written; they stay in the environment.
func InitSettings(name string, c Common, override func(*config.Settings)) (string, error) {
	if _, err := initLogging(name, c); err != nil {
		return "", err
	}

	path := c.Settings
	if path == "" {
		p, err := paths.DataPath("monitors.yaml")
		if err != nil {
			return "", err
		}
		path = p
	}
	path, err := paths.ExpandTilde(path)
	if err != nil {
		return "", err
	}

	s := config.DefaultSettings()
	if addr := strings.TrimSpace(c.MetricsAddr); addr != "" {
		s.Metrics.Addr = addr
	}
	if override != nil {
		override(&s)
	}
	if err := config.WriteSettings(path, s); err != nil {
		return "", err
	}
	L_info("settings written", "path", path)
	return path, nil
}

func initLogging(name string, c Common) (string, error) {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return "", err
	}
	runID := uuid.NewString()
	Init(&Config{
		Level:      level,
		Format:     c.LogFormat,
		TimeFormat: "15:04:05",
		Fields:     []interface{}{"monitor", name, "run", runID[:8]},
	})
	return runID, nil
}

// ExitCode maps the result of monitor.Loop.Run to a process exit status.
// A denied permission was already reported on stdout and is a normal stop.
func ExitCode(err error) int {
	if err == nil || errors.Is(err, monitor.ErrAccessDenied) {
		return 0
	}
	return 1
}
