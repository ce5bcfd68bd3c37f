// Package vision is the visual-locate capability: given a screenshot and
// the hints of a step, it returns normalized page coordinates for the
// target element, or a definitive not-found. It is the last and most
// expensive resolution tier, and is injected as a narrow interface so
// tests never depend on a live model.
package vision

import (
	"context"
	"errors"
)

// ErrNotFound is the definitive miss: the model inspected the screenshot
// and could not locate the described element.
var ErrNotFound = errors.New("vision: element not found")

// Point is a location in normalized page coordinates (0..1 of the
// viewport, origin top-left).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Locator turns a screenshot plus hint text into coordinates.
type Locator interface {
	Locate(ctx context.Context, screenshot []byte, hints []string, action string) (Point, error)
}

// Disabled is a Locator that always misses. Used when no model is
// configured, so resolution degrades to the first two tiers.
type Disabled struct{}

func (Disabled) Locate(context.Context, []byte, []string, string) (Point, error) {
	return Point{}, ErrNotFound
}
