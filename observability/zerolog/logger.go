// Package zerolog provides a core.Logger backed by github.com/rs/zerolog.
package zerolog

import (
	"io"
	"os"
	"time"

	"github.com/Swind/go-interaction-manager/core"
	"github.com/rs/zerolog"
)

// Logger writes core.Logger calls as zerolog events.
type Logger struct {
	Z zerolog.Logger
}

// compile time assertion
var _ core.Logger = (*Logger)(nil)

// New returns a JSON logger writing to w at or above level.
func New(w io.Writer, level core.LogLevel) *Logger {
	return &Logger{Z: zerolog.New(w).Level(toZerologLevel(level)).With().Timestamp().Logger()}
}

// NewConsole returns a human readable logger writing to w.
func NewConsole(w io.Writer, level core.LogLevel) *Logger {
	if w == nil {
		w = os.Stderr
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return New(out, level)
}

// Wrap adapts an existing zerolog.Logger.
func Wrap(z zerolog.Logger) *Logger {
	return &Logger{Z: z}
}

func (l *Logger) Debug(msg string, fields ...core.Field) { write(l.Z.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...core.Field)  { write(l.Z.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...core.Field)  { write(l.Z.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...core.Field) { write(l.Z.Error(), msg, fields) }

func write(e *zerolog.Event, msg string, fields []core.Field) {
	// nil when the level is disabled
	if e == nil {
		return
	}
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			e.Str(f.Key, v)
		case int:
			e.Int(f.Key, v)
		case uint64:
			e.Uint64(f.Key, v)
		case bool:
			e.Bool(f.Key, v)
		case time.Duration:
			e.Dur(f.Key, v)
		case error:
			e.AnErr(f.Key, v)
		case fmtStringer:
			e.Stringer(f.Key, v)
		default:
			e.Interface(f.Key, v)
		}
	}
	e.Msg(msg)
}

type fmtStringer interface{ String() string }

func toZerologLevel(level core.LogLevel) zerolog.Level {
	switch level {
	case core.LogLevelDebug:
		return zerolog.DebugLevel
	case core.LogLevelWarn:
		return zerolog.WarnLevel
	case core.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
