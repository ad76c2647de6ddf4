package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pi-agent/pi-exthost/internal/hostcall"
)

// Source identifies the process that emitted an EventRecord.
type Source struct {
	Host string `json:"host"`
	PID  int    `json:"pid"`
}

// EventRecord is one line of the JSONL event log, matching the shape
// internal/conform.Record parses: {schema, ts, level, event, message,
// correlation, source, data}.
type EventRecord struct {
	Schema      string             `json:"schema"`
	TS          time.Time          `json:"ts"`
	Level       string             `json:"level"`
	Event       string             `json:"event"`
	Message     string             `json:"message"`
	Correlation hostcall.Correlation `json:"correlation"`
	Source      Source             `json:"source"`
	Data        json.RawMessage    `json:"data,omitempty"`
}

// Logger writes EventRecords as JSONL, with an optional human-readable
// console mirror, splitting file (machine-
// readable) and console (operator-readable) output the way internal/logging's
// original RequestLog.Log.
type Logger struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	console bool
	schema  string
}

var defaultLogger = &Logger{enabled: true, console: true, schema: "v1"}

// Default returns the default event logger (logging.Default()).
func Default() *Logger {
	return defaultLogger
}

// SetOutput sets the JSONL log output file.
func (l *Logger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// SetConsole enables/disables console mirroring.
func (l *Logger) SetConsole(enabled bool) {
	l.mu.Lock()
	l.console = enabled
	l.mu.Unlock()
}

// Log writes one event record: level, event name, message, correlation IDs,
// and an optional data payload.
func (l *Logger) Log(level, event, message string, correlation hostcall.Correlation, data any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	var raw json.RawMessage
	if data != nil {
		raw, _ = json.Marshal(data)
	}

	entry := EventRecord{
		Schema:      l.schema,
		TS:          time.Now().UTC(),
		Level:       level,
		Event:       event,
		Message:     message,
		Correlation: correlation,
		Source:      Source{Host: hostname(), PID: os.Getpid()},
		Data:        raw,
	}

	if l.console {
		fmt.Printf("[%s] %s %s %s\n", entry.Level, entry.TS.Format(time.RFC3339), entry.Event, entry.Message)
	}

	if l.file != nil {
		b, err := json.Marshal(entry)
		if err != nil {
			return
		}
		l.file.Write(append(b, '\n'))
	}
}

// Close closes the log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

var cachedHostname string

func hostname() string {
	if cachedHostname != "" {
		return cachedHostname
	}
	h, err := os.Hostname()
	if err != nil {
		h = "unknown"
	}
	cachedHostname = h
	return cachedHostname
}
