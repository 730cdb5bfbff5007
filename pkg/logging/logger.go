package logging

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/fatih/color"
)

// lineWriter is an io.Writer that splits its input stream into lines and
// hands each complete line to callback.
type lineWriter struct {
	callback func(string)
	buffer   []byte
}

func trimCarriageReturn(buffer []byte) []byte {
	if len(buffer) > 0 && buffer[len(buffer)-1] == '\r' {
		return buffer[:len(buffer)-1]
	}
	return buffer
}

func (w *lineWriter) Write(buffer []byte) (int, error) {
	w.buffer = append(w.buffer, buffer...)

	var processed int
	remaining := w.buffer
	for {
		index := bytes.IndexByte(remaining, '\n')
		if index == -1 {
			break
		}
		w.callback(string(trimCarriageReturn(remaining[:index])))
		processed += index + 1
		remaining = remaining[index+1:]
	}

	if processed > 0 {
		leftover := len(w.buffer) - processed
		if leftover > 0 {
			copy(w.buffer[:leftover], w.buffer[processed:])
		}
		w.buffer = w.buffer[:leftover]
	}

	return len(buffer), nil
}

// Logger is the main logger type. Like the teacher's, it still functions if
// nil (every method is a no-op on a nil receiver), so components can be
// constructed without a logger in tests. It is safe for concurrent use.
type Logger struct {
	prefix string
}

// RootLogger is the root logger from which all other loggers derive.
var RootLogger = &Logger{}

// Sublogger creates a new logger with name appended to this logger's
// prefix, dot-separated.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{prefix: prefix}
}

func (l *Logger) output(calldepth int, level Level, line string) {
	if level > CurrentLevel() {
		return
	}
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}
	mu.Lock()
	logger := stdlogger
	mu.Unlock()
	logger.Output(calldepth, line)
}

// Info logs operational information.
func (l *Logger) Info(v ...interface{}) {
	if l != nil {
		l.output(3, LevelInfo, fmt.Sprint(v...))
	}
}

// Infof logs operational information with fmt.Printf semantics.
func (l *Logger) Infof(format string, v ...interface{}) {
	if l != nil {
		l.output(3, LevelInfo, fmt.Sprintf(format, v...))
	}
}

// Debug logs detailed information, only if the current level permits it.
func (l *Logger) Debug(v ...interface{}) {
	if l != nil {
		l.output(3, LevelDebug, fmt.Sprint(v...))
	}
}

// Debugf logs detailed information with fmt.Printf semantics.
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l != nil {
		l.output(3, LevelDebug, fmt.Sprintf(format, v...))
	}
}

// DebugWriter returns an io.Writer that logs each line it receives at
// LevelDebug. If the logger is nil or debug logging is disabled, the
// returned writer discards its input without the line-splitting overhead.
func (l *Logger) DebugWriter() io.Writer {
	if l == nil || LevelDebug > CurrentLevel() {
		return ioutil.Discard
	}
	return &lineWriter{callback: func(s string) { l.Debug(s) }}
}

// Warn logs a warning, colorized in yellow when attached to a terminal.
func (l *Logger) Warn(err error) {
	if l != nil {
		l.output(3, LevelWarn, color.YellowString("warning: %v", err))
	}
}

// Error logs an error, colorized in red when attached to a terminal.
func (l *Logger) Error(err error) {
	if l != nil {
		l.output(3, LevelError, color.RedString("error: %v", err))
	}
}
