// Package logging provides structured logging for the CLI, the folder
// server and the navigation engine.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rescale/rescale-foldernav/internal/constants"
	"github.com/rescale/rescale-foldernav/internal/events"
)

// Logger wraps zerolog with a component name and an optional event bus
// that receives warnings and errors.
type Logger struct {
	zlog      zerolog.Logger
	component string
	eventBus  *events.EventBus
	output    io.Writer // current output writer
	sink      io.Writer // what zerolog actually writes to
	nop       bool
}

// FileOptions enables a rotating log file next to console output.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// NewLogger creates a console logger on stderr for the named component.
// Stdout is left to command output.
func NewLogger(component string, eventBus *events.EventBus) *Logger {
	return newLogger(component, eventBus, consoleWriter(os.Stderr))
}

// NewFileLogger is NewLogger plus a rotating file written in JSON.
// An empty path behaves like NewLogger.
func NewFileLogger(component string, eventBus *events.EventBus, opts FileOptions) *Logger {
	if opts.Path == "" {
		return NewLogger(component, eventBus)
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = constants.DefaultLogMaxSizeMB
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = constants.DefaultLogMaxBackups
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
	return newLogger(component, eventBus, zerolog.MultiLevelWriter(consoleWriter(os.Stderr), rotator))
}

// NewNopLogger discards everything. Used by tests and library callers that
// don't care about logs.
func NewNopLogger() *Logger {
	return &Logger{zlog: zerolog.Nop(), output: io.Discard, sink: io.Discard, nop: true}
}

// NewDefaultCLILogger creates a default CLI logger.
func NewDefaultCLILogger() *Logger {
	return NewLogger(constants.AppName, nil)
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}
}

func newLogger(component string, eventBus *events.EventBus, output io.Writer) *Logger {
	l := &Logger{
		component: component,
		eventBus:  eventBus,
		output:    output,
		sink:      output,
	}
	l.zlog = l.build(output)
	return l
}

func (l *Logger) build(w io.Writer) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp()
	if l.component != "" {
		ctx = ctx.Str("component", l.component)
	}
	zl := ctx.Logger()
	if l.eventBus != nil {
		zl = zl.Hook(busHook{bus: l.eventBus, component: l.component})
	}
	return zl
}

// busHook forwards warnings and errors to the event bus so subscribers
// can surface them without parsing log output.
type busHook struct {
	bus       *events.EventBus
	component string
}

func (h busHook) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	switch {
	case level >= zerolog.ErrorLevel:
		h.bus.PublishLog(events.ErrorLevel, msg, h.component)
	case level == zerolog.WarnLevel:
		h.bus.PublishLog(events.WarnLevel, msg, h.component)
	}
}

// Named returns a child logger for a sub-component sharing output and bus.
func (l *Logger) Named(component string) *Logger {
	child := &Logger{
		component: component,
		eventBus:  l.eventBus,
		output:    l.output,
		sink:      l.sink,
		nop:       l.nop,
	}
	if l.nop {
		child.zlog = zerolog.Nop()
		return child
	}
	child.zlog = child.build(l.sink)
	return child
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// With creates a child logger with additional context.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// Zerolog exposes the underlying logger for libraries that take one
// directly (request logging middleware).
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// SetOutput changes the output writer for the logger.
// This is useful for redirecting logs through progress bars.
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	l.nop = false
	l.sink = consoleWriter(w)
	l.zlog = l.build(l.sink)
}

// Output returns the current output writer.
func (l *Logger) Output() io.Writer {
	return l.output
}

// Debugf logs a debug message with printf-style formatting.
// This is only shown when debug/verbose mode is enabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Infof logs an info message with printf-style formatting.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Errorf logs an error message with printf-style formatting.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}
