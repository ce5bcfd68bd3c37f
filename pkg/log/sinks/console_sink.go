package sinks

import (
	"fmt"
	"strings"
	"time"

	"github.com/admitflow/admitflow/pkg/log"
	"github.com/fatih/color"
)

// ConsoleSink renders run progress for a terminal. Step-scoped events
// carry site/phase/step fields bound by the engine.
type ConsoleSink struct{}

func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{}
}

func (c *ConsoleSink) Write(event *log.LogEvent) error {
	phase := getStringField(event.Fields, "phase")
	step := getStringField(event.Fields, "step")
	errorMsg := getStringField(event.Fields, "error")

	levelColorMap := map[log.Level]*color.Color{
		log.DebugLevel: color.New(color.FgCyan),
		log.InfoLevel:  color.New(color.FgGreen),
		log.WarnLevel:  color.New(color.FgYellow),
		log.ErrorLevel: color.New(color.FgRed),
		log.FatalLevel: color.New(color.FgRed, color.Bold),
	}

	levelFmt := color.New(color.FgWhite).SprintFunc()
	if lc, ok := levelColorMap[event.Level]; ok {
		levelFmt = lc.SprintFunc()
	}

	scope := phase
	if step != "" {
		scope = fmt.Sprintf("%s/%s", phase, step)
	}
	if scope == "" {
		scope = "run"
	}

	prefix := fmt.Sprintf("[%s %s] %s: ",
		levelFmt(strings.ToUpper(event.Level.String())),
		event.Timestamp.Format(time.RFC3339),
		color.CyanString(scope),
	)

	msg := event.Message
	if msg == "" && errorMsg != "" {
		msg = errorMsg
	} else if errorMsg != "" {
		msg = fmt.Sprintf("%s: %s", msg, errorMsg)
	}

	if tier := getStringField(event.Fields, "tier"); tier != "" {
		msg = fmt.Sprintf("%s (tier=%s)", msg, tier)
	}
	if attempt, ok := event.Fields["attempt"]; ok {
		msg = fmt.Sprintf("%s (attempt=%v)", msg, attempt)
	}

	fmt.Println(prefix + msg)
	return nil
}

func (c *ConsoleSink) Close() error {
	return nil
}

func getStringField(fields map[string]any, key string) string {
	if val, ok := fields[key]; ok {
		if s, isStr := val.(string); isStr {
			return s
		}
	}
	return ""
}
