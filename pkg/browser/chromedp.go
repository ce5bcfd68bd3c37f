package browser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/admitflow/admitflow/pkg/log"
)

// Options configures the Chrome session.
type Options struct {
	Headless bool
	// DownloadDir is where the browser stores captured downloads. Files
	// land under their download GUID; the suggested filename travels on
	// the Download handle.
	DownloadDir string
	UserAgent   string
}

// Chrome implements Driver on a chromedp-managed browser session. The
// session is exclusively owned by one run; all methods are issued
// sequentially by the executor.
type Chrome struct {
	opts Options

	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc

	// page is the active tab's context. SwitchTo repoints it.
	page       context.Context
	tabCancels []context.CancelFunc

	logger log.Logger
}

func NewChrome(opts Options, logger log.Logger) *Chrome {
	return &Chrome{opts: opts, logger: logger}
}

// Start launches the browser, opens the initial tab, and enables named
// download capture into the configured directory.
func (c *Chrome) Start(ctx context.Context) error {
	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", c.opts.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if c.opts.UserAgent != "" {
		execOpts = append(execOpts, chromedp.UserAgent(c.opts.UserAgent))
	}

	c.allocCtx, c.allocCancel = chromedp.NewExecAllocator(ctx, execOpts...)
	c.browserCtx, c.browserStop = chromedp.NewContext(c.allocCtx)
	c.page = c.browserCtx

	if err := chromedp.Run(c.browserCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(c.opts.DownloadDir).
			WithEventsEnabled(true),
	); err != nil {
		c.Close()
		return fmt.Errorf("starting browser: %w", err)
	}

	c.logger.Info().Bool("headless", c.opts.Headless).Msg("Browser session started")
	return nil
}

// Close releases every tab context and the browser itself. Safe on every
// exit path; subsequent calls are no-ops.
func (c *Chrome) Close() {
	for _, cancel := range c.tabCancels {
		cancel()
	}
	c.tabCancels = nil
	if c.browserStop != nil {
		c.browserStop()
		c.browserStop = nil
	}
	if c.allocCancel != nil {
		c.allocCancel()
		c.allocCancel = nil
	}
}

// op derives an operation context from the active tab that is also
// cancelled when the caller's context ends, so run-level timeouts abort
// suspended browser waits.
func (c *Chrome) op(ctx context.Context) (context.Context, context.CancelFunc) {
	var opCtx context.Context
	var cancel context.CancelFunc
	if d, ok := ctx.Deadline(); ok {
		opCtx, cancel = context.WithDeadline(c.page, d)
	} else {
		opCtx, cancel = context.WithCancel(c.page)
	}
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	opCtx, cancel := c.op(ctx)
	defer cancel()
	return chromedp.Run(opCtx, chromedp.Navigate(url))
}

func (c *Chrome) WaitReady(ctx context.Context, timeout time.Duration) error {
	opCtx, cancel := c.op(ctx)
	defer cancel()
	tctx, tcancel := context.WithTimeout(opCtx, timeout)
	defer tcancel()

	for {
		var state string
		if err := chromedp.Run(tctx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
			return err
		}
		if state == "complete" {
			// Let late XHR-driven rerenders settle.
			select {
			case <-tctx.Done():
				return tctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
			return nil
		}
		select {
		case <-tctx.Done():
			return tctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (c *Chrome) PageText(ctx context.Context) (string, error) {
	opCtx, cancel := c.op(ctx)
	defer cancel()
	var text string
	err := chromedp.Run(opCtx, chromedp.Evaluate(`document.body ? document.body.innerText : ''`, &text))
	return text, err
}

func (c *Chrome) Screenshot(ctx context.Context) ([]byte, error) {
	opCtx, cancel := c.op(ctx)
	defer cancel()
	var buf []byte
	err := chromedp.Run(opCtx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (c *Chrome) QueryUnique(ctx context.Context, selector string) (string, error) {
	opCtx, cancel := c.op(ctx)
	defer cancel()
	js := fmt.Sprintf(queryUniqueJS, jsString(selector))
	var marked string
	if err := chromedp.Run(opCtx, chromedp.Evaluate(js, &marked)); err != nil {
		return "", err
	}
	return marked, nil
}

func (c *Chrome) FindByText(ctx context.Context, hint string, deep bool) (string, error) {
	opCtx, cancel := c.op(ctx)
	defer cancel()
	js := fmt.Sprintf(findByTextJS, jsString(hint), deep)
	var marked string
	if err := chromedp.Run(opCtx, chromedp.Evaluate(js, &marked)); err != nil {
		return "", err
	}
	return marked, nil
}

func (c *Chrome) Fill(ctx context.Context, selector, value string) error {
	opCtx, cancel := c.op(ctx)
	defer cancel()
	return chromedp.Run(opCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (c *Chrome) Click(ctx context.Context, selector string) error {
	opCtx, cancel := c.op(ctx)
	defer cancel()
	return chromedp.Run(opCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

func (c *Chrome) ClickAt(ctx context.Context, x, y float64) error {
	opCtx, cancel := c.op(ctx)
	defer cancel()

	var size []float64
	if err := chromedp.Run(opCtx, chromedp.Evaluate(`[window.innerWidth, window.innerHeight]`, &size)); err != nil {
		return err
	}
	if len(size) != 2 {
		return fmt.Errorf("viewport size unavailable")
	}
	return chromedp.Run(opCtx, chromedp.MouseClickXY(x*size[0], y*size[1]))
}

func (c *Chrome) TypeText(ctx context.Context, text string) error {
	opCtx, cancel := c.op(ctx)
	defer cancel()
	return chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.InsertText(text).Do(ctx)
	}))
}

// keyAliases maps config-friendly key names onto chromedp's keyboard
// runes. Single characters pass through unchanged.
var keyAliases = map[string]string{
	"enter":     kb.Enter,
	"tab":       kb.Tab,
	"escape":    kb.Escape,
	"backspace": kb.Backspace,
	"arrowup":   kb.ArrowUp,
	"arrowdown": kb.ArrowDown,
	"pageup":    kb.PageUp,
	"pagedown":  kb.PageDown,
	"end":       kb.End,
	"home":      kb.Home,
}

func (c *Chrome) PressKey(ctx context.Context, key string) error {
	opCtx, cancel := c.op(ctx)
	defer cancel()
	seq := key
	if alias, ok := keyAliases[strings.ToLower(key)]; ok {
		seq = alias
	}
	return chromedp.Run(opCtx, chromedp.KeyEvent(seq))
}

func (c *Chrome) ScrollToBottom(ctx context.Context) error {
	opCtx, cancel := c.op(ctx)
	defer cancel()
	return chromedp.Run(opCtx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
}

func (c *Chrome) Targets(ctx context.Context) ([]TargetID, error) {
	infos, err := chromedp.Targets(c.browserCtx)
	if err != nil {
		return nil, err
	}
	var ids []TargetID
	for _, info := range infos {
		if info.Type == "page" {
			ids = append(ids, TargetID(info.TargetID))
		}
	}
	return ids, nil
}

func (c *Chrome) SwitchTo(ctx context.Context, id TargetID) error {
	tabCtx, cancel := chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(target.ID(id)))
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return fmt.Errorf("attaching to target %s: %w", id, err)
	}
	c.tabCancels = append(c.tabCancels, cancel)
	c.page = tabCtx
	c.logger.Debug().Str("target", string(id)).Msg("Switched active tab")
	return nil
}

// chromeDownload listens for download lifecycle events on the active tab.
type chromeDownload struct {
	dir string

	mu       sync.Mutex
	armed    bool
	guid     string
	filename string
	failed   error
	done     chan struct{}
	closed   bool
}

func (c *Chrome) ArmDownload(ctx context.Context) (Download, error) {
	d := &chromeDownload{
		dir:   c.opts.DownloadDir,
		armed: true,
		done:  make(chan struct{}),
	}

	chromedp.ListenTarget(c.page, func(ev any) {
		switch e := ev.(type) {
		case *browser.EventDownloadWillBegin:
			d.mu.Lock()
			if d.armed && d.guid == "" {
				d.guid = e.GUID
				d.filename = e.SuggestedFilename
			}
			d.mu.Unlock()
		case *browser.EventDownloadProgress:
			d.mu.Lock()
			if d.armed && !d.closed && (d.guid == "" || d.guid == e.GUID) {
				switch e.State {
				case browser.DownloadProgressStateCompleted:
					if d.guid == "" {
						d.guid = e.GUID
					}
					d.closed = true
					close(d.done)
				case browser.DownloadProgressStateCanceled:
					d.failed = fmt.Errorf("download %s canceled by browser", e.GUID)
					d.closed = true
					close(d.done)
				}
			}
			d.mu.Unlock()
		}
	})

	return d, nil
}

func (d *chromeDownload) Wait(ctx context.Context, timeout time.Duration) (string, string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-d.done:
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.failed != nil {
			return "", "", d.failed
		}
		return filepath.Join(d.dir, d.guid), d.filename, nil
	case <-timer.C:
		return "", "", fmt.Errorf("waiting for download: %w", context.DeadlineExceeded)
	case <-ctx.Done():
		return "", "", ctx.Err()
	}
}

func (d *chromeDownload) Close() {
	d.mu.Lock()
	d.armed = false
	d.mu.Unlock()
}
