// Package headless captures screenshots with headless Chrome via chromedp.
package headless

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/webshot/internal/capture"
	"github.com/JakeFAU/webshot/internal/screenshot"
	"github.com/JakeFAU/webshot/internal/target"
)

// Capturer implements screenshot.Capturer using chromedp. All tabs share one
// browser process.
type Capturer struct {
	cfg           capture.Settings
	store         screenshot.BlobStore
	clock         screenshot.Clock
	logger        *zap.Logger
	allocator     context.Context
	allocCancel   context.CancelFunc
	browser       context.Context
	browserCancel context.CancelFunc

	startOnce sync.Once
	startErr  error
	closeOnce sync.Once
}

// New creates a chromedp-backed capturer. The browser starts lazily with the
// first capture.
func New(cfg capture.Settings, store screenshot.BlobStore, clock screenshot.Clock, logger *zap.Logger) (*Capturer, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.WithDefaults()

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return &Capturer{
		cfg:           cfg,
		store:         store,
		clock:         clock,
		logger:        logger,
		allocator:     allocCtx,
		allocCancel:   allocCancel,
		browser:       browserCtx,
		browserCancel: browserCancel,
	}, nil
}

func allocatorOptions(cfg capture.Settings) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.BrowserPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.BrowserPath))
	}
	return append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(cfg.Width, cfg.Height),
		chromedp.UserAgent(cfg.UserAgent),
	)
}

// Close shuts down the browser. Calls after the first are no-ops.
func (c *Capturer) Close() {
	c.closeOnce.Do(func() {
		c.browserCancel()
		c.allocCancel()
	})
}

// startBrowser launches the shared browser on first use. A failed launch is
// reported to every later capture.
func (c *Capturer) startBrowser() error {
	c.startOnce.Do(func() {
		if err := chromedp.Run(c.browser); err != nil {
			c.startErr = fmt.Errorf("start browser: %w", err)
			return
		}
		c.logger.Debug("browser started")
	})
	return c.startErr
}

// newTab opens a tab in the shared browser.
func (c *Capturer) newTab() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(c.browser)
}

// Capture loads t in a fresh tab, waits for it to settle, optionally draws the
// address bar and stores a PNG of the full page.
func (c *Capturer) Capture(ctx context.Context, t target.Target) (screenshot.Artifact, error) {
	if err := c.startBrowser(); err != nil {
		return screenshot.Artifact{}, fmt.Errorf("%w: %w", screenshot.ErrCapture, err)
	}
	tabCtx, cancelTab := c.newTab()
	tabCancel := sync.OnceFunc(cancelTab)
	defer tabCancel()

	// The tab context descends from the browser, so cancellation of the
	// caller's ctx is linked in by hand.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	tabCtx, cancel := context.WithTimeout(tabCtx, c.cfg.NavigationTimeout+c.cfg.Settle+capture.AddressBarDelay)
	defer cancel()

	status := &documentStatus{}
	chromedp.ListenTarget(tabCtx, status.captureEvent)

	var png []byte
	if err := chromedp.Run(tabCtx, c.actions(t, &png)...); err != nil {
		if ctx.Err() != nil {
			return screenshot.Artifact{}, fmt.Errorf("%w: %s: %w", screenshot.ErrCapture, t.URL, ctx.Err())
		}
		return screenshot.Artifact{}, fmt.Errorf("%w: %s: %w", screenshot.ErrCapture, t.URL, err)
	}
	if code := status.code(); code >= 400 {
		c.logger.Debug("page returned error status", zap.String("url", t.URL), zap.Int("status", code))
	}

	path := capture.ObjectPath(c.cfg.Prefix, t, c.clock.Now())
	artifact, err := capture.Persist(ctx, c.store, path, png)
	if err != nil {
		return screenshot.Artifact{}, fmt.Errorf("%w: %w", screenshot.ErrCapture, err)
	}
	return artifact, nil
}

func (c *Capturer) actions(t target.Target, png *[]byte) []chromedp.Action {
	actions := []chromedp.Action{
		c.emulationAction(),
		network.Enable(),
		c.navigateAction(t.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(c.cfg.Settle),
	}
	if c.cfg.AddressBar {
		var injected bool
		actions = append(actions,
			chromedp.Evaluate(capture.AddressBarStatements(t.URL), &injected),
			chromedp.Sleep(capture.AddressBarDelay),
		)
	}
	return append(actions, screenshotAction(png))
}

func (c *Capturer) emulationAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		err := emulation.SetDeviceMetricsOverride(int64(c.cfg.Width), int64(c.cfg.Height), 1, true).Do(ctx)
		if err != nil {
			return fmt.Errorf("set device metrics: %w", err)
		}
		return nil
	})
}

func (c *Capturer) navigateAction(url string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		navCtx, cancel := context.WithTimeout(ctx, c.cfg.NavigationTimeout)
		defer cancel()
		if err := chromedp.Navigate(url).Do(navCtx); err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
		return nil
	})
}

func screenshotAction(png *[]byte) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		buf, err := page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithFromSurface(true).
			WithCaptureBeyondViewport(true).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("capture screenshot: %w", err)
		}
		*png = buf
		return nil
	})
}

// documentStatus records the HTTP status of the main document response.
type documentStatus struct {
	mu     sync.Mutex
	status int64
}

func (d *documentStatus) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	d.mu.Lock()
	d.status = resp.Response.Status
	d.mu.Unlock()
}

func (d *documentStatus) code() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(d.status)
}
