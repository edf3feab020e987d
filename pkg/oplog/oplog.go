// Package oplog implements the per-invocation operation log: leveled,
// timestamped entries written to the console and to a log file named after
// the command, and retained in memory for the caller to inspect.
package oplog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

const outcomeField = "outcome"

type Entry struct {
	At      time.Time      `json:"at"`
	Level   Level          `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Log is owned by exactly one invocation.
type Log struct {
	logger zerolog.Logger
	path   string
	file   *os.File
	rec    *recorder
}

// New returns a Log writing to w (nil discards) and recording entries in memory.
func New(w io.Writer) *Log {
	rec := &recorder{}
	writers := []io.Writer{rec}
	if w != nil {
		writers = append(writers, w)
	}
	return &Log{
		logger: zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger(),
		rec:    rec,
	}
}

// Nop returns a Log that only records in memory.
func Nop() *Log { return New(nil) }

// Open creates <dir>/<command>_<timestamp>.log and returns a Log mirroring
// every entry to console (human format) and to the file (JSON lines).
func Open(dir, command string, console io.Writer, now time.Time) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "mkdir logs dir")
	}
	name := fmt.Sprintf("%s_%s.log", command, now.Format("20060102_150405"))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open operation log")
	}

	rec := &recorder{}
	writers := []io.Writer{rec, f}
	if console != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05"})
	}
	l := &Log{
		logger: zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Str("command", command).Logger(),
		path:   path,
		file:   f,
		rec:    rec,
	}
	return l, nil
}

// Logger exposes the underlying zerolog logger.
func (l *Log) Logger() zerolog.Logger { return l.logger }

// Path is the log file path, empty for in-memory logs.
func (l *Log) Path() string { return l.path }

func (l *Log) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *Log) Info() *zerolog.Event  { return l.logger.Info() }

// Success is an info-level event tagged as a successful outcome.
func (l *Log) Success() *zerolog.Event {
	return l.logger.Info().Str(outcomeField, string(LevelSuccess))
}

func (l *Log) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *Log) Error() *zerolog.Event { return l.logger.Error() }

// Entries returns a copy of every entry written so far.
func (l *Log) Entries() []Entry {
	return l.rec.snapshot()
}

// Count returns how many entries were written at level.
func (l *Log) Count(level Level) int {
	n := 0
	for _, e := range l.rec.snapshot() {
		if e.Level == level {
			n++
		}
	}
	return n
}

func (l *Log) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// recorder decodes the JSON lines zerolog emits back into entries.
type recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *recorder) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		return len(p), nil
	}

	e := Entry{Fields: map[string]any{}}
	for k, v := range raw {
		switch k {
		case zerolog.LevelFieldName:
			e.Level = mapLevel(fmt.Sprint(v))
		case zerolog.MessageFieldName:
			e.Message = fmt.Sprint(v)
		case zerolog.TimestampFieldName:
			if s, ok := v.(string); ok {
				if t, err := time.Parse(zerolog.TimeFieldFormat, s); err == nil {
					e.At = t
				}
			}
		default:
			e.Fields[k] = v
		}
	}
	if e.Level == LevelInfo && e.Fields[outcomeField] == string(LevelSuccess) {
		e.Level = LevelSuccess
	}

	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	return len(p), nil
}

func (r *recorder) snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry{}, r.entries...)
}

func mapLevel(s string) Level {
	switch s {
	case zerolog.WarnLevel.String():
		return LevelWarning
	case zerolog.ErrorLevel.String(), zerolog.FatalLevel.String(), zerolog.PanicLevel.String():
		return LevelError
	default:
		return LevelInfo
	}
}
