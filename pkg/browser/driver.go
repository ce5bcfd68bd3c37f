// Package browser defines the page-driver primitives the engine issues
// steps against, and provides the chromedp-backed implementation.
package browser

import (
	"context"
	"time"
)

// TargetID identifies one open page (tab) in the browser session.
type TargetID string

// Download is a step-scoped capture handle. It must be armed before the
// triggering action so the event cannot be missed, and is discarded when
// the step ends.
type Download interface {
	// Wait blocks until the download completes or the timeout elapses.
	// It returns the path of the stored file and its suggested filename.
	Wait(ctx context.Context, timeout time.Duration) (path, filename string, err error)
	// Close detaches the listener. Safe to call after Wait.
	Close()
}

// Driver is the primitive surface of the underlying page-automation
// session. One driver owns one browser session; a run owns its driver
// exclusively for its full duration.
type Driver interface {
	// Navigation and settling.
	Navigate(ctx context.Context, url string) error
	WaitReady(ctx context.Context, timeout time.Duration) error

	// Page inspection.
	PageText(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)

	// QueryUnique evaluates a CSS selector and, when it matches exactly
	// one visible interactable element, returns a stable selector for it.
	// Zero matches, multiple matches, non-interactable matches, and
	// malformed selectors all return "" with a nil error.
	QueryUnique(ctx context.Context, selector string) (string, error)

	// FindByText scans interactable candidates in document order for
	// visible text or accessible label containing hint (case-insensitive)
	// and returns a stable selector for the first match, or "" when none.
	// deep widens the scan to overlay containers and text-node ancestry.
	FindByText(ctx context.Context, hint string, deep bool) (string, error)

	// Element actions.
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	// ClickAt clicks at normalized page coordinates (0..1 of the viewport).
	ClickAt(ctx context.Context, x, y float64) error
	// TypeText sends text to the focused element.
	TypeText(ctx context.Context, text string) error
	PressKey(ctx context.Context, key string) error
	ScrollToBottom(ctx context.Context) error

	// Tab tracking.
	Targets(ctx context.Context) ([]TargetID, error)
	SwitchTo(ctx context.Context, id TargetID) error

	// ArmDownload registers a download listener on the active page.
	ArmDownload(ctx context.Context) (Download, error)
}
