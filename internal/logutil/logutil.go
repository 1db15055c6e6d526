// Package logutil configures zerolog and provides start/finish operation logging
// with durations.
package logutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. Console output is key=value text; json=true
// writes one JSON object per line.
func New(w io.Writer, level string, json bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if !json {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Component returns a child logger tagged with a component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Op logs the start and end of one operation.
type Op struct {
	logger    zerolog.Logger
	operation string
	start     time.Time
	fields    map[string]any
}

// StartOp logs a debug "start" record and returns the running operation.
func StartOp(l zerolog.Logger, operation string, fields map[string]any) *Op {
	op := &Op{logger: l, operation: operation, start: time.Now(), fields: map[string]any{}}
	for k, v := range fields {
		op.fields[k] = v
	}
	l.Debug().Fields(op.fields).Str("operation", operation).Str("op", "start").Send()
	return op
}

// Set adds fields to the finishing record.
func (o *Op) Set(key string, value any) {
	o.fields[key] = value
}

// Done logs the finishing record: debug on success, error when err is set.
// It returns err unchanged so callers can write `return op.Done(err)`.
func (o *Op) Done(err error) error {
	var ev *zerolog.Event
	if err != nil {
		ev = o.logger.Error().Err(err).Str("status", "error")
	} else {
		ev = o.logger.Debug().Str("status", "finish")
	}
	ev.Fields(o.fields).
		Str("operation", o.operation).
		Int64("duration_ms", time.Since(o.start).Milliseconds()).
		Send()
	return err
}
