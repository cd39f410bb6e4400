// Package obslog centralizes the terse, component-prefixed logging style
// used throughout this codebase into one small wrapper around the standard
// logger, instead of scattering bare fmt.Printf calls.
package obslog

import (
	"io"
	"log"
	"os"
)

// Level selects which messages a Logger actually emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger wraps a standard log.Logger with a component name and minimum level.
type Logger struct {
	component string
	min       Level
	out       *log.Logger
}

// New creates a Logger that writes to w, tagging every line with component.
func New(w io.Writer, component string, min Level) *Logger {
	return &Logger{
		component: component,
		min:       min,
		out:       log.New(w, "", log.LstdFlags),
	}
}

// Default returns a Logger writing to stderr at LevelInfo: Info, Warn and
// Error lines are written, Debug lines are dropped.
func Default(component string) *Logger {
	return New(os.Stderr, component, LevelInfo)
}

func (l *Logger) log(level Level, format string, args ...any) {
	if level < l.min {
		return
	}
	l.out.Printf("["+level.String()+"] "+l.component+": "+format, args...)
}

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, format, args...) }

// With returns a child Logger for a sub-component, e.g. "controller.dispatcher".
func (l *Logger) With(subComponent string) *Logger {
	return &Logger{
		component: l.component + "." + subComponent,
		min:       l.min,
		out:       l.out,
	}
}
