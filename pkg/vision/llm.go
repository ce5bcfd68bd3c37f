package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/admitflow/admitflow/pkg/log"
)

// LLMLocator implements Locator on a multimodal langchaingo model.
type LLMLocator struct {
	model  llms.Model
	logger log.Logger
}

func NewLLMLocator(model llms.Model, logger log.Logger) *LLMLocator {
	return &LLMLocator{model: model, logger: logger}
}

const locatePromptFmt = `You are a browser automation assistant. The attached image is a screenshot of a web page.

Find the element a user would %s, described by these hints: %s.

Respond with ONLY a JSON object, no prose:
{"found": true, "x": <0.0-1.0>, "y": <0.0-1.0>}
where x and y are the element center as fractions of image width and height.
If no matching element is visible, respond with {"found": false}.`

type locateReply struct {
	Found bool    `json:"found"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

func (l *LLMLocator) Locate(ctx context.Context, screenshot []byte, hints []string, action string) (Point, error) {
	prompt := fmt.Sprintf(locatePromptFmt, action, strings.Join(hints, ", "))

	resp, err := l.model.GenerateContent(ctx, []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(prompt),
				llms.BinaryPart("image/png", screenshot),
			},
		},
	})
	if err != nil {
		return Point{}, fmt.Errorf("visual locate call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Point{}, fmt.Errorf("visual locate call: empty response")
	}

	reply, err := parseLocateReply(resp.Choices[0].Content)
	if err != nil {
		return Point{}, fmt.Errorf("visual locate reply: %w", err)
	}
	if !reply.Found {
		return Point{}, ErrNotFound
	}
	if reply.X < 0 || reply.X > 1 || reply.Y < 0 || reply.Y > 1 {
		return Point{}, fmt.Errorf("visual locate reply: coordinates out of range (%.3f, %.3f)", reply.X, reply.Y)
	}

	l.logger.Debug().
		Str("action", action).
		Msgf("Visual locate hit at (%.3f, %.3f)", reply.X, reply.Y)

	return Point{X: reply.X, Y: reply.Y}, nil
}

// parseLocateReply tolerates markdown code fences around the JSON body.
func parseLocateReply(content string) (locateReply, error) {
	body := strings.TrimSpace(content)
	if i := strings.Index(body, "{"); i >= 0 {
		if j := strings.LastIndex(body, "}"); j > i {
			body = body[i : j+1]
		}
	}

	var reply locateReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return locateReply{}, fmt.Errorf("decoding %q: %w", content, err)
	}
	return reply, nil
}
