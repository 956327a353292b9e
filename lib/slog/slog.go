// Package slog is the logging interface used by the coordinator and
// worker: a small Logger interface over a LogRecord struct, backed by
// github.com/rs/zerolog for structured JSON output.
package slog

import (
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fleetrun/lib/core"
)

// LogRecord holds data for a single log record.
type LogRecord struct {
	Msg      string        `json:"msg,omitempty"`
	Error    error         `json:"error,omitempty"`
	Details  any           `json:"details,omitempty"`
	TaskUID  *core.Uid     `json:"task_uid,omitempty"`
	TaskGuid *core.Guid    `json:"task_guid,omitempty"`
	Command  *core.Command `json:"command,omitempty"`
	ConnID   uuid.UUID     `json:"conn_id,omitempty"`
}

// Logger is an abstract log interface for the coordinator and worker.
//
// Multiple goroutines may invoke methods on a Logger simultaneously.
type Logger interface {
	Info(record *LogRecord)
	Warn(record *LogRecord)
	Error(record *LogRecord)
}

// zerologShim backs Logger with a zerolog.Logger.
type zerologShim struct {
	z zerolog.Logger
}

func logEvent(e *zerolog.Event, record *LogRecord) {
	if record == nil {
		e.Msg("")
		return
	}
	if record.Error != nil {
		e = e.Err(record.Error)
	}
	if record.Details != nil {
		e = e.Interface("details", record.Details)
	}
	if record.TaskUID != nil {
		e = e.Uint64("task_uid", uint64(*record.TaskUID))
	}
	if record.TaskGuid != nil {
		e = e.Uint64("task_guid", uint64(*record.TaskGuid))
	}
	if record.Command != nil {
		e = e.Str("command", record.Command.String())
	}
	if record.ConnID != uuid.Nil {
		e = e.Str("conn_id", record.ConnID.String())
	}
	e.Msg(record.Msg)
}

func (s *zerologShim) Info(record *LogRecord)  { logEvent(s.z.Info(), record) }
func (s *zerologShim) Warn(record *LogRecord)  { logEvent(s.z.Warn(), record) }
func (s *zerologShim) Error(record *LogRecord) { logEvent(s.z.Error(), record) }

// GetDefaultLogger returns a Logger writing structured JSON to stderr.
func GetDefaultLogger() Logger {
	z := zerolog.New(os.Stderr).With().Timestamp().Logger()
	return &zerologShim{z: z}
}

// NewConsoleLogger returns a Logger writing human-readable, colorized
// output to stderr, for interactive use of cmd/worker and cmd/dispatchd.
func NewConsoleLogger() Logger {
	z := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	return &zerologShim{z: z}
}

// RecordingLogger captures all logged events in memory. It is designed
// for use as a test fixture.
type RecordingLogger struct {
	mu     sync.Mutex
	Events []Event
}

type Event struct {
	Level string
	*LogRecord
}

func (l *RecordingLogger) record(level string, record *LogRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Events = append(l.Events, Event{Level: level, LogRecord: record})
}

func (l *RecordingLogger) Info(record *LogRecord) {
	l.record("info", record)
}

func (l *RecordingLogger) Warn(record *LogRecord) {
	l.record("warn", record)
}

func (l *RecordingLogger) Error(record *LogRecord) {
	l.record("error", record)
}

var _ Logger = (*RecordingLogger)(nil)
var _ Logger = (*zerologShim)(nil)
