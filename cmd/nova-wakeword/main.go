// nova-wakeword listens to the microphone and reports utterances that contain
// the assistant's wake word as line-delimited JSON on stdout.
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
	"github.com/waseemjarad3-bot/nova/internal/audio"
	"github.com/waseemjarad3-bot/nova/internal/config"
	. "github.com/waseemjarad3-bot/nova/internal/logging"
	"github.com/waseemjarad3-bot/nova/internal/monitor"
	"github.com/waseemjarad3-bot/nova/internal/protocol"
	"github.com/waseemjarad3-bot/nova/internal/stt"
	"github.com/waseemjarad3-bot/nova/internal/wakeword"
)

const version = "0.3.0"

type CLI struct {
	app.Common

	ConfigPath string `arg:"" optional:"" name:"config-path" help:"Assistant config file holding the wakeWord field. Re-read before every utterance." type:"path"`

	Provider      string        `help:"Speech-to-text provider (google, openai, groq, deepgram)." placeholder:"NAME"`
	InputDevice   string        `help:"ffmpeg capture device." placeholder:"DEVICE"`
	PhraseLimit   time.Duration `help:"Longest utterance to record." placeholder:"10s"`
	ListenTimeout time.Duration `help:"Give up waiting for speech after this long and re-check the wake word (0 waits forever)." placeholder:"0s"`

	Version kong.VersionFlag `help:"Print version and exit."`
}

// apply lets explicit flags override the settings file.
func (c *CLI) apply(settings *config.Settings) {
	s := &settings.WakeWord
	if c.Provider != "" {
		s.STT.Provider = c.Provider
	}
	if c.InputDevice != "" {
		s.Capture.InputDevice = c.InputDevice
	}
	if c.PhraseLimit > 0 {
		s.Recognizer.PhraseLimit = config.Duration(c.PhraseLimit)
	}
	if c.ListenTimeout > 0 {
		s.Recognizer.ListenTimeout = config.Duration(c.ListenTimeout)
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
		kong.Name("nova-wakeword"),
		kong.Description("Listen for the assistant wake word and report spoken commands as JSON lines."),
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
		if _, err := app.InitSettings("wakeword", cli.Common, cli.apply); err != nil {
			L_error("init settings failed", "error", err)
			return 1
		}
		return 0
	}

	rt, err := app.Start(ctx, "wakeword", cli.Common, stdout)
	if err != nil {
		L_error("startup failed", "error", err)
		_ = protocol.NewEmitter(stdout).Emit(protocol.Error{Msg: err.Error()})
		return 1
	}
	cli.apply(&rt.Settings)
	s := rt.Settings.WakeWord

	transcriber, err := stt.New(s.STT)
	if err != nil {
		L_error("speech provider unavailable", "error", err)
		_ = rt.Emitter.Emit(protocol.Error{Msg: err.Error()})
		return 1
	}

	source := wakeword.NewSource(
		audio.NewFFMPEGCapture(s.Capture.Command),
		transcriber,
		wakeword.Config{
			Capture:     s.Capture.CaptureConfig(),
			Recognizer:  s.Recognizer.RecognizerConfig(s.Capture.SampleRate),
			Calibration: s.Recognizer.Calibration.Std(),
		},
	)
	defer source.Close()

	if cli.ConfigPath != "" {
		err := config.Watch(ctx, cli.ConfigPath, rt.Metrics.ConfigChanged)
		if err != nil {
			L_warn("config watch unavailable, wake word still re-read every utterance", "error", err)
		}
	}

	if err := rt.Emitter.Emit(protocol.Info{Msg: wakeword.MicrophoneInitialized}); err != nil {
		return 1
	}

	loop := &monitor.Loop{
		Source:   source,
		Map:      wakeword.Mapper,
		Emitter:  rt.Emitter,
		WakeWord: func() string { return config.ResolveWakeWord(cli.ConfigPath) },
		Observer: rt.Metrics,
	}
	L_info("listening", "provider", transcriber.Name(), "config", cli.ConfigPath)

	err = loop.Run(ctx)
	if err != nil {
		L_warn("monitor stopped", "error", err)
	}
	return app.ExitCode(err)
}
