package log

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admitflow/admitflow/pkg/security"
)

// memorySink captures routed events for assertions.
type memorySink struct {
	events []*LogEvent
	closed bool
}

func (m *memorySink) Write(event *LogEvent) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memorySink) Close() error {
	m.closed = true
	return nil
}

func newRoutedLogger(sink Sink, red Redactor) Logger {
	router := NewRouter(sink)
	if red != nil {
		router.SetRedactor(red)
	}
	return NewZerologAdapter(zerolog.New(router).With().Timestamp().Logger())
}

func TestRouter_DecodesZerologEvents(t *testing.T) {
	sink := &memorySink{}
	logger := newRoutedLogger(sink, nil)

	logger.Info().
		Str("phase", "login").
		Int("attempt", 2).
		Bool("success", true).
		Msg("Step succeeded")

	require.Len(t, sink.events, 1)
	evt := sink.events[0]
	assert.Equal(t, InfoLevel, evt.Level)
	assert.Equal(t, "Step succeeded", evt.Message)
	assert.Equal(t, "login", evt.Fields["phase"])
	assert.Equal(t, float64(2), evt.Fields["attempt"], "JSON numbers decode as float64")
	assert.Equal(t, true, evt.Fields["success"])
	assert.False(t, evt.Timestamp.IsZero())
}

func TestRouter_LevelsSurvive(t *testing.T) {
	sink := &memorySink{}
	logger := newRoutedLogger(sink, nil)

	logger.Debug().Msg("d")
	logger.Warn().Msg("w")
	logger.Error().Msg("e")

	require.Len(t, sink.events, 3)
	assert.Equal(t, DebugLevel, sink.events[0].Level)
	assert.Equal(t, WarnLevel, sink.events[1].Level)
	assert.Equal(t, ErrorLevel, sink.events[2].Level)
}

func TestRouter_RedactsSecretsEverywhere(t *testing.T) {
	sink := &memorySink{}
	logger := newRoutedLogger(sink, security.NewRedactor("hunter2"))

	logger.Info().
		Str("value", "typing hunter2 into the form").
		Msg("credentials are hunter2")

	require.Len(t, sink.events, 1)
	evt := sink.events[0]
	assert.Equal(t, "credentials are ********", evt.Message)
	assert.Equal(t, "typing ******** into the form", evt.Fields["value"])
}

func TestRouter_FansOutToAllSinks(t *testing.T) {
	first := &memorySink{}
	second := &memorySink{}
	router := NewRouter(first)
	router.AddSink(second)
	logger := NewZerologAdapter(zerolog.New(router).With().Timestamp().Logger())

	logger.Info().Msg("hello")

	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)

	require.NoError(t, router.Close())
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}

func TestRouter_UndecodableLineDoesNotError(t *testing.T) {
	router := NewRouter(&memorySink{})
	n, err := router.Write([]byte("not json"))
	require.NoError(t, err)
	assert.Equal(t, len("not json"), n)
}

func TestZerologAdapter_WithCarriesContext(t *testing.T) {
	sink := &memorySink{}
	logger := newRoutedLogger(sink, nil)

	child := logger.With().Str("phase", "download").Int("step", 1).Logger()
	child.Info().Msg("bound context")

	require.Len(t, sink.events, 1)
	assert.Equal(t, "download", sink.events[0].Fields["phase"])
	assert.Equal(t, float64(1), sink.events[0].Fields["step"])
}
