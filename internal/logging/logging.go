// Package logging provides the structured logger used across the engine.
// It emits one line per event, as JSON or human-readable text.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

// Level is the severity of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	default:
		return "error"
	}
}

// Format selects the output encoding.
type Format string

const (
	JSONFormat  Format = "json"
	HumanFormat Format = "human"
)

// Fields carries structured key/value context for one log event.
type Fields map[string]any

// Logger writes leveled, structured log lines. Safe for concurrent use.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	level  Level
	format Format
}

// New creates a Logger writing to out at the given level. A nil out
// defaults to stderr.
func New(out io.Writer, level Level, format Format) *Logger {
	if out == nil {
		out = os.Stderr
	}
	if format == "" {
		format = HumanFormat
	}
	return &Logger{out: out, level: level, format: format}
}

// Discard returns a logger that drops everything, for callers that did not
// configure one.
func Discard() *Logger {
	return New(io.Discard, ErrorLevel+1, HumanFormat)
}

type entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Fields    Fields `json:"fields,omitempty"`
}

func (l *Logger) log(level Level, msg string, fields Fields) {
	if level < l.level {
		return
	}
	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level.String(),
		Message:   msg,
		Fields:    fields,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.format == JSONFormat {
		data, err := json.Marshal(e)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: marshal entry: %v\n", err)
			return
		}
		fmt.Fprintln(l.out, string(data))
		return
	}

	fmt.Fprintf(l.out, "%s [%s] %s", e.Timestamp, e.Level, e.Message)
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i == 0 {
				fmt.Fprint(l.out, " | ")
			} else {
				fmt.Fprint(l.out, ", ")
			}
			fmt.Fprintf(l.out, "%s=%v", k, fields[k])
		}
	}
	fmt.Fprintln(l.out)
}

func (l *Logger) Debug(msg string, fields Fields) { l.log(DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields Fields)  { l.log(InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields Fields)  { l.log(WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields Fields) { l.log(ErrorLevel, msg, fields) }
