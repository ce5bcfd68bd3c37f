package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/admitflow/admitflow/pkg/browser"
	"github.com/admitflow/admitflow/pkg/log"
	"github.com/admitflow/admitflow/pkg/vision"
)

func testLogger() log.Logger {
	return log.NewZerologAdapter(zerolog.Nop())
}

// fakeDriver is a scripted in-memory page. Element lookups go through
// the query/byText maps; action failures are popped off per-method error
// queues so tests can script "fail twice, then succeed".
type fakeDriver struct {
	mu sync.Mutex

	query  map[string]string // selector -> marked selector
	byText map[string]string // lowercased hint -> marked selector

	pageText string

	navErr    error
	clickErrs []error
	fillErrs  []error

	// targetSnapshots is consumed per Targets call; the last entry
	// repeats once the script runs out.
	targetSnapshots [][]browser.TargetID

	download *fakeDownload

	clicked    []string
	clickedAt  []vision.Point
	filled     map[string]string
	typed      []string
	keys       []string
	switched   []browser.TargetID
	navigated  []string
	queryCalls int
	textCalls  int
	shotCalls  int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		query:  map[string]string{},
		byText: map[string]string{},
		filled: map[string]string{},
	}
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigated = append(d.navigated, url)
	return d.navErr
}

func (d *fakeDriver) WaitReady(context.Context, time.Duration) error { return nil }

func (d *fakeDriver) PageText(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pageText, nil
}

func (d *fakeDriver) Screenshot(context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shotCalls++
	return []byte("png-bytes"), nil
}

func (d *fakeDriver) QueryUnique(_ context.Context, selector string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queryCalls++
	return d.query[selector], nil
}

func (d *fakeDriver) FindByText(_ context.Context, hint string, _ bool) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.textCalls++
	return d.byText[hint], nil
}

func (d *fakeDriver) Fill(_ context.Context, selector, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := pop(&d.fillErrs); err != nil {
		return err
	}
	d.filled[selector] = value
	return nil
}

func (d *fakeDriver) Click(_ context.Context, selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := pop(&d.clickErrs); err != nil {
		return err
	}
	d.clicked = append(d.clicked, selector)
	return nil
}

func (d *fakeDriver) ClickAt(_ context.Context, x, y float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clickedAt = append(d.clickedAt, vision.Point{X: x, Y: y})
	return nil
}

func (d *fakeDriver) TypeText(_ context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.typed = append(d.typed, text)
	return nil
}

func (d *fakeDriver) PressKey(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = append(d.keys, key)
	return nil
}

func (d *fakeDriver) ScrollToBottom(context.Context) error { return nil }

func (d *fakeDriver) Targets(context.Context) ([]browser.TargetID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.targetSnapshots) == 0 {
		return []browser.TargetID{"main"}, nil
	}
	snap := d.targetSnapshots[0]
	if len(d.targetSnapshots) > 1 {
		d.targetSnapshots = d.targetSnapshots[1:]
	}
	return snap, nil
}

func (d *fakeDriver) SwitchTo(_ context.Context, id browser.TargetID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.switched = append(d.switched, id)
	return nil
}

func (d *fakeDriver) ArmDownload(context.Context) (browser.Download, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.download == nil {
		return nil, fmt.Errorf("no download scripted")
	}
	return d.download, nil
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

type fakeDownload struct {
	path     string
	filename string
	err      error
	closed   bool
}

func (f *fakeDownload) Wait(context.Context, time.Duration) (string, string, error) {
	return f.path, f.filename, f.err
}

func (f *fakeDownload) Close() { f.closed = true }

// fakeVision scripts the third resolution tier.
type fakeVision struct {
	point vision.Point
	err   error
	calls int
}

func (v *fakeVision) Locate(context.Context, []byte, []string, string) (vision.Point, error) {
	v.calls++
	if v.err != nil {
		return vision.Point{}, v.err
	}
	return v.point, nil
}

// fakeStore records persistence calls without touching the filesystem.
type fakeStore struct {
	mu          sync.Mutex
	offers      []string
	metadata    []RunMetadata
	screenshots []string
	offerErr    error
}

func (s *fakeStore) SaveOffer(_, _, srcPath, filename string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offerErr != nil {
		return "", s.offerErr
	}
	stored := "/stored/" + filename
	s.offers = append(s.offers, stored)
	_ = srcPath
	return stored, nil
}

func (s *fakeStore) SaveMetadata(_, _ string, meta RunMetadata) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = append(s.metadata, meta)
	return "/stored/meta.json", nil
}

func (s *fakeStore) SaveScreenshot(prefix string, _ []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screenshots = append(s.screenshots, prefix)
	return "/stored/" + prefix + ".png", nil
}

func newRunContext(driver browser.Driver) *RunContext {
	return &RunContext{
		RunID:  "test-run",
		Site:   "Test University",
		Driver: driver,
		Params: map[string]string{
			"username":       "student",
			"password":       "hunter2",
			"application_id": "APP-42",
		},
	}
}

// fastPolicy retries without real delays.
func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, Delay: time.Millisecond, Multiplier: 1.0}
}
