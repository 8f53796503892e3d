package spindle

import (
	"io"
	"log"
	"os"
)

// Logger prints diagnostics at or below a verbosity level. The zero value is
// silent except for level-0 messages, which go to stderr.
type Logger struct {
	Verbosity int
	out       *log.Logger
}

// NewLogger creates a Logger writing to `w` with the given verbosity. If `w`
// is nil, messages go to stderr.
func NewLogger(w io.Writer, verbosity int) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		Verbosity: verbosity,
		out:       log.New(w, "", 0),
	}
}

// Logf prints the message if `level` doesn't exceed the logger's verbosity.
// A nil Logger discards everything.
func (l *Logger) Logf(level int, format string, args ...any) {
	if l == nil || level > l.Verbosity {
		return
	}
	if l.out == nil {
		l.out = log.New(os.Stderr, "", 0)
	}
	l.out.Printf(format, args...)
}

// Enabled reports whether messages at `level` would be printed.
func (l *Logger) Enabled(level int) bool {
	return l != nil && level <= l.Verbosity
}
