package log

import "time"

// Level is the severity of a log event.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	default:
		return "unknown"
	}
}

// Event defines a single log event.
type Event interface {
	Msg(msg string)
	Msgf(format string, v ...any)
	Err(err error) Event
	Str(key, value string) Event
	Int(key string, value int) Event
	Bool(key string, value bool) Event
	Dur(key string, value time.Duration) Event
	Interface(key string, value any) Event
}

// Context builds a child logger with bound fields.
type Context interface {
	Str(key, value string) Context
	Int(key string, value int) Context
	Timestamp() Context
	Logger() Logger
}

// Logger is the logging interface threaded through the engine.
type Logger interface {
	Debug() Event
	Info() Event
	Warn() Event
	Error() Event
	Fatal() Event
	With() Context
}
