// Package logging provides the process-wide diagnostic logger for the nova monitors.
// Diagnostics always go to stderr; stdout is reserved for the event protocol.
// Use dot import to access L_info, L_error, etc. directly.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/term"
)

// Log levels
const (
	LevelFatal = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// Output formats
const (
	FormatAuto   = "auto"
	FormatText   = "text"
	FormatLogfmt = "logfmt"
	FormatJSON   = "json"
)

var (
	logger *log.Logger
	mu     sync.Mutex
)

// Config holds logging configuration
type Config struct {
	Level      int
	Format     string
	TimeFormat string
	ShowCaller bool
	Output     io.Writer     // defaults to os.Stderr
	Fields     []interface{} // key/value pairs attached to every line
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatAuto,
		TimeFormat: "15:04:05",
	}
}

// ParseLevel maps a level name to one of the Level constants.
func ParseLevel(name string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// Init (re)initializes the global logger.
func Init(cfg *Config) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	l := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		ReportCaller:    cfg.ShowCaller,
		CallerOffset:    2, // Skip two frames (logMsg -> L_* -> caller)
		Formatter:       formatterFor(cfg.Format, out),
	})
	l.SetLevel(charmLevel(cfg.Level))
	if len(cfg.Fields) > 0 {
		l = l.With(cfg.Fields...)
	}

	mu.Lock()
	logger = l
	mu.Unlock()
}

// formatterFor resolves "auto" to text on a terminal and logfmt when piped,
// which is the usual case when a parent process captures stderr.
func formatterFor(format string, out io.Writer) log.Formatter {
	switch strings.ToLower(format) {
	case FormatText:
		return log.TextFormatter
	case FormatLogfmt:
		return log.LogfmtFormatter
	case FormatJSON:
		return log.JSONFormatter
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return log.TextFormatter
	}
	return log.LogfmtFormatter
}

func charmLevel(level int) log.Level {
	switch level {
	case LevelTrace, LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError, LevelFatal:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// current returns the global logger, initializing it with defaults if needed
func current() *log.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l != nil {
		return l
	}
	Init(nil)
	return current()
}

// hasFmtVerb checks if a string contains printf-style format verbs
func hasFmtVerb(s string) bool {
	for i := 0; i < len(s)-1; i++ {
		if s[i] == '%' {
			next := s[i+1]
			if next != '%' && strings.ContainsRune("vsdtfgeopqxXbcUT+#", rune(next)) {
				return true
			}
		}
	}
	return false
}

// logMsg handles the flexible logging format:
// - logMsg(level, "message") -> simple
// - logMsg(level, "value is %d", 42) -> printf
// - logMsg(level, "loaded", "key", val, ...) -> structured
func logMsg(level log.Level, msg string, args ...interface{}) {
	l := current()

	var keyvals []interface{}
	switch {
	case len(args) == 0:
	case hasFmtVerb(msg):
		msg = fmt.Sprintf(msg, args...)
	default:
		keyvals = args
	}

	switch level {
	case log.DebugLevel:
		l.Debug(msg, keyvals...)
	case log.InfoLevel:
		l.Info(msg, keyvals...)
	case log.WarnLevel:
		l.Warn(msg, keyvals...)
	case log.ErrorLevel:
		l.Error(msg, keyvals...)
	case log.FatalLevel:
		l.Fatal(msg, keyvals...)
	}
}

// L_trace logs at trace level (mapped to debug)
func L_trace(msg string, args ...interface{}) {
	logMsg(log.DebugLevel, msg, args...)
}

// L_debug logs at debug level
func L_debug(msg string, args ...interface{}) {
	logMsg(log.DebugLevel, msg, args...)
}

// L_info logs at info level
func L_info(msg string, args ...interface{}) {
	logMsg(log.InfoLevel, msg, args...)
}

// L_warn logs at warn level
func L_warn(msg string, args ...interface{}) {
	logMsg(log.WarnLevel, msg, args...)
}

// L_error logs at error level
func L_error(msg string, args ...interface{}) {
	logMsg(log.ErrorLevel, msg, args...)
}

// L_fatal logs at fatal level and exits
func L_fatal(msg string, args ...interface{}) {
	logMsg(log.FatalLevel, msg, args...)
}

// SetLevel changes the log level at runtime
func SetLevel(level int) {
	current().SetLevel(charmLevel(level))
}
