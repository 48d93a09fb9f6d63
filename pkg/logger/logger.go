// Package logger provides component-scoped structured logging for clawcord.
//
// Every call names the component emitting it ("gateway", "bot", "api", ...)
// and optionally carries a field map:
//
//	logger.InfoCF("bot", "Greeting sent", map[string]interface{}{"channel_id": id})
//
// The backend is zerolog; Configure swaps the level, format and sink at
// startup. Until Configure is called, output goes to stderr at info level.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Format selects the encoder used for log lines.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Options configures the process-wide logger.
type Options struct {
	Level  string
	Format Format
	Output io.Writer
}

var (
	mu      sync.RWMutex
	current = build(os.Stderr, FormatConsole, zerolog.InfoLevel)

	// osExit is replaced in tests so FatalCF can be exercised.
	osExit = os.Exit
)

// Configure replaces the process-wide logger.
func Configure(opts Options) error {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return fmt.Errorf("logger: invalid level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	format := opts.Format
	switch format {
	case "":
		format = FormatConsole
	case FormatConsole, FormatJSON:
	default:
		return fmt.Errorf("logger: unknown format %q", format)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	mu.Lock()
	current = build(out, format, level)
	mu.Unlock()
	return nil
}

func build(out io.Writer, format Format, level zerolog.Level) zerolog.Logger {
	if format == FormatConsole {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: !isTerminal(out)}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func emit(level zerolog.Level, component, message string, fields map[string]interface{}) {
	mu.RLock()
	l := current
	mu.RUnlock()

	ev := l.WithLevel(level)
	if ev == nil {
		return
	}
	if component != "" {
		ev = ev.Str("component", component)
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(message)
}

func DebugC(component, message string) { emit(zerolog.DebugLevel, component, message, nil) }

func DebugCF(component, message string, fields map[string]interface{}) {
	emit(zerolog.DebugLevel, component, message, fields)
}

func InfoC(component, message string) { emit(zerolog.InfoLevel, component, message, nil) }

func InfoCF(component, message string, fields map[string]interface{}) {
	emit(zerolog.InfoLevel, component, message, fields)
}

func WarnC(component, message string) { emit(zerolog.WarnLevel, component, message, nil) }

func WarnCF(component, message string, fields map[string]interface{}) {
	emit(zerolog.WarnLevel, component, message, fields)
}

func ErrorC(component, message string) { emit(zerolog.ErrorLevel, component, message, nil) }

func ErrorCF(component, message string, fields map[string]interface{}) {
	emit(zerolog.ErrorLevel, component, message, fields)
}

// FatalCF logs at fatal level and terminates the process with exit code 1.
func FatalCF(component, message string, fields map[string]interface{}) {
	emit(zerolog.FatalLevel, component, message, fields)
	osExit(1)
}
