// Package applog implements the append-only JSON-lines logger described in
// spec.md §4.2: every entry is written off the request scheduler so a slow
// disk never stalls an HTTP handler or the maintenance loop. It is built the
// way the teacher's pkg/logger wraps slog around a lumberjack rotating
// writer, except entries here are serialized by hand onto a single writer
// goroutine rather than handed to slog directly, since the log line shape
// (ts/type/msg plus arbitrary fields) is fixed by the spec rather than left
// to slog's attribute model.
package applog

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity is the fixed set of log levels spec.md §4.2 requires.
type Severity string

const (
	Info  Severity = "info"
	Error Severity = "error"
)

// Fields carries arbitrary structured context (session id, pid, db name, cause, ...).
type Fields map[string]any

type entry struct {
	ts     time.Time
	sev    Severity
	msg    string
	fields Fields
}

// Logger appends JSON lines to a durable log file from a single writer
// goroutine, decoupling callers from disk latency.
type Logger struct {
	entries chan entry
	done    chan struct{}
	writer  *lumberjack.Logger
}

// Config mirrors the teacher's LogConfig rotation knobs.
type Config struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New starts the background writer goroutine and returns a ready Logger.
func New(cfg Config) *Logger {
	l := &Logger{
		entries: make(chan entry, 4096),
		done:    make(chan struct{}),
		writer: &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   false,
		},
	}
	go l.run()
	return l
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.entries {
		l.writeEntry(e)
	}
	_ = l.writer.Close()
}

func (l *Logger) writeEntry(e entry) {
	obj := make(map[string]any, len(e.fields)+3)
	for k, v := range e.fields {
		obj[k] = v
	}
	obj["ts"] = e.ts.UTC().Format("2006-01-02T15:04:05.000Z")
	obj["type"] = string(e.sev)
	obj["msg"] = e.msg

	line, err := json.Marshal(obj)
	if err != nil {
		l.reportFailure(err, "failed to marshal log entry")
		return
	}
	line = append(line, '\n')
	if _, err := l.writer.Write(line); err != nil {
		l.reportFailure(err, "failed to write log entry")
	}
}

// reportFailure satisfies spec.md §4.2: write failures are reported to
// stderr as a JSON object and never raise into the caller.
func (l *Logger) reportFailure(cause error, msg string) {
	fallback := map[string]any{
		"ts":    time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		"type":  string(Error),
		"msg":   msg,
		"cause": cause.Error(),
	}
	data, err := json.Marshal(fallback)
	if err != nil {
		fmt.Fprintf(os.Stderr, `{"type":"error","msg":%q}`+"\n", msg)
		return
	}
	fmt.Fprintln(os.Stderr, string(data))
}

// Info enqueues an informational entry.
func (l *Logger) Info(msg string, fields Fields) { l.enqueue(Info, msg, fields) }

// Err enqueues an error entry.
func (l *Logger) Err(msg string, fields Fields) { l.enqueue(Error, msg, fields) }

func (l *Logger) enqueue(sev Severity, msg string, fields Fields) {
	l.entries <- entry{ts: time.Now(), sev: sev, msg: msg, fields: fields}
}

// Close drains pending entries and stops the writer goroutine. Safe to call
// once during shutdown.
func (l *Logger) Close() {
	close(l.entries)
	<-l.done
}
