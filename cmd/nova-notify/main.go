// nova-notify reports new desktop notifications from one application as
// line-delimited JSON on stdout.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/waseemjarad3-bot/nova/internal/app"
	"github.com/waseemjarad3-bot/nova/internal/config"
	. "github.com/waseemjarad3-bot/nova/internal/logging"
	"github.com/waseemjarad3-bot/nova/internal/monitor"
	"github.com/waseemjarad3-bot/nova/internal/notify"
	"github.com/waseemjarad3-bot/nova/internal/protocol"
)

const version = "0.3.0"

type CLI struct {
	app.Common

	App       string        `help:"Report notifications whose sender app name contains this (case-insensitive)." placeholder:"NAME"`
	Interval  time.Duration `help:"Poll interval." placeholder:"1s"`
	MaxQueued int           `help:"Notifications kept in memory between polls." placeholder:"64"`

	Version kong.VersionFlag `help:"Print version and exit."`
}

// apply lets explicit flags override the settings file.
func (c *CLI) apply(settings *config.Settings) {
	s := &settings.Notify
	if c.App != "" {
		s.App = c.App
	}
	if c.Interval > 0 {
		s.Interval = config.Duration(c.Interval)
	}
	if c.MaxQueued > 0 {
		s.MaxQueued = c.MaxQueued
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	cancel()
	os.Exit(code)
}

func newParser(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("nova-notify"),
		kong.Description("Watch desktop notifications and report new ones from one app as JSON lines."),
		kong.Vars{"version": version},
	}, options...)
	return kong.New(cli, options...)
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		panic(err)
	}
	if _, err := parser.Parse(args); err != nil {
		parser.Errorf("%s", err)
		return 2
	}

	if cli.InitSettings {
		if _, err := app.InitSettings("notify", cli.Common, cli.apply); err != nil {
			L_error("init settings failed", "error", err)
			return 1
		}
		return 0
	}

	rt, err := app.Start(ctx, "notify", cli.Common, stdout)
	if err != nil {
		L_error("startup failed", "error", err)
		_ = protocol.NewEmitter(stdout).Emit(protocol.Error{Msg: err.Error()})
		return 1
	}
	cli.apply(&rt.Settings)
	s := rt.Settings.Notify

	store := notify.NewDBusStore(s.MaxQueued)
	defer store.Close()

	loop := &monitor.Loop{
		Source:   notify.NewSource(store, s.App),
		Map:      notify.Mapper(s.App),
		Emitter:  rt.Emitter,
		Cadence:  s.Interval.Std(),
		Dedup:    true,
		Observer: rt.Metrics,
	}
	L_info("watching notifications", "app", s.App, "interval", s.Interval.Std())

	err = loop.Run(ctx)
	if err != nil {
		L_warn("monitor stopped", "error", err)
	}
	return app.ExitCode(err)
}
