//go:build unix

// Package cliutil renders session events as structured log records.
package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/vigil-lock/vigil/internal/session"
)

// LogRecord represents a structured log event ready for JSON encoding.
type LogRecord struct {
	Timestamp time.Time `json:"ts"`
	Level     string    `json:"level"`
	Event     string    `json:"event"`
	Slot      int       `json:"slot"`
	Attempt   string    `json:"attempt,omitempty"`
	Message   string    `json:"msg"`
	Signal    int       `json:"signal,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// NewLogRecord converts a session event into a structured log record.
func NewLogRecord(event session.Event) LogRecord {
	record := LogRecord{
		Timestamp: event.Timestamp,
		Level:     levelFor(event.Type),
		Event:     string(event.Type),
		Slot:      event.Slot,
		Attempt:   event.Attempt,
		Message:   event.Message,
		Signal:    event.Signal,
	}
	if event.Err != nil {
		record.Error = event.Err.Error()
	}
	return record
}

func levelFor(t session.EventType) string {
	switch t {
	case session.EventTypeError:
		return "error"
	case session.EventTypeAnomaly, session.EventTypeAuthSignaled, session.EventTypeInputDropped:
		return "warn"
	default:
		return "info"
	}
}

// EncodeLogEvent encodes a session event to JSON, reporting encoder errors
// to stderr if needed.
func EncodeLogEvent(enc *json.Encoder, stderr io.Writer, event session.Event) {
	if enc == nil {
		return
	}
	record := NewLogRecord(event)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if err := enc.Encode(&record); err != nil {
		fmt.Fprintf(stderr, "error: encode log: %v\n", err)
	}
}
