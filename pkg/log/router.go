package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogEvent is a decoded log line routed to sinks.
type LogEvent struct {
	Level     Level
	Message   string
	Fields    map[string]any
	Timestamp time.Time
}

// Sink is a log output destination.
type Sink interface {
	Write(event *LogEvent) error
	io.Closer
}

// Redactor scrubs secret values from strings before they reach sinks.
type Redactor interface {
	Redact(s string) string
}

// Router implements io.Writer for zerolog and fans each decoded event
// out to its sinks, redacting string values first.
type Router struct {
	sinks    []Sink
	redactor Redactor
}

func NewRouter(sinks ...Sink) *Router {
	return &Router{sinks: sinks}
}

func (r *Router) AddSink(sink Sink) {
	r.sinks = append(r.sinks, sink)
}

func (r *Router) SetRedactor(red Redactor) {
	r.redactor = red
}

func (r *Router) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		fmt.Fprintf(os.Stderr, "log router: undecodable line: %v: %s\n", err, string(p))
		return len(p), nil
	}

	evt := &LogEvent{Fields: make(map[string]any)}

	if lvlStr, ok := raw[zerolog.LevelFieldName].(string); ok {
		if zl, err := zerolog.ParseLevel(lvlStr); err == nil {
			evt.Level = convertZerologLevel(zl)
		}
	}
	if msg, ok := raw[zerolog.MessageFieldName].(string); ok {
		evt.Message = msg
	}
	if tsStr, ok := raw[zerolog.TimestampFieldName].(string); ok {
		evt.Timestamp, _ = time.Parse(time.RFC3339Nano, tsStr)
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if errField, ok := raw[zerolog.ErrorFieldName].(string); ok {
		evt.Fields[zerolog.ErrorFieldName] = errField
	}

	reserved := map[string]struct{}{
		zerolog.LevelFieldName:     {},
		zerolog.MessageFieldName:   {},
		zerolog.TimestampFieldName: {},
		zerolog.ErrorFieldName:     {},
	}
	for k, v := range raw {
		if _, skip := reserved[k]; !skip {
			evt.Fields[k] = v
		}
	}

	if r.redactor != nil {
		evt.Message = r.redactor.Redact(evt.Message)
		for k, v := range evt.Fields {
			if s, ok := v.(string); ok {
				evt.Fields[k] = r.redactor.Redact(s)
			}
		}
	}

	for _, sink := range r.sinks {
		if err := sink.Write(evt); err != nil {
			fmt.Fprintf(os.Stderr, "log router: sink write failed: %v\n", err)
		}
	}

	return len(p), nil
}

func (r *Router) Close() error {
	var firstErr error
	for _, sink := range r.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func convertZerologLevel(zl zerolog.Level) Level {
	switch zl {
	case zerolog.DebugLevel:
		return DebugLevel
	case zerolog.InfoLevel:
		return InfoLevel
	case zerolog.WarnLevel:
		return WarnLevel
	case zerolog.ErrorLevel:
		return ErrorLevel
	case zerolog.FatalLevel:
		return FatalLevel
	default:
		return InfoLevel
	}
}
