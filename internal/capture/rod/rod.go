// Package rodcapture captures screenshots with go-rod.
package rodcapture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/JakeFAU/webshot/internal/capture"
	"github.com/JakeFAU/webshot/internal/screenshot"
	"github.com/JakeFAU/webshot/internal/target"
)

// Capturer implements screenshot.Capturer on a single rod browser. Each
// capture opens its own page.
type Capturer struct {
	cfg    capture.Settings
	store  screenshot.BlobStore
	clock  screenshot.Clock
	logger *zap.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// New creates a rod-backed capturer. The browser is launched on first use.
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
	return &Capturer{
		cfg:    cfg.WithDefaults(),
		store:  store,
		clock:  clock,
		logger: logger,
	}, nil
}

func newLauncher(cfg capture.Settings) *launcher.Launcher {
	l := launcher.New().
		Headless(cfg.Headless).
		Set("disable-gpu").
		Set("hide-scrollbars").
		Set("disable-dev-shm-usage").
		Set("window-size", fmt.Sprintf("%d,%d", cfg.Width, cfg.Height))
	if cfg.BrowserPath != "" {
		l = l.Bin(cfg.BrowserPath)
	}
	return l
}

func (c *Capturer) ensureBrowser() (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser != nil {
		return c.browser, nil
	}
	l := newLauncher(c.cfg)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	c.launcher = l
	c.browser = browser
	c.logger.Debug("browser launched", zap.String("control_url", controlURL))
	return browser, nil
}

// Close shuts down the browser if it was started.
func (c *Capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser == nil {
		return nil
	}
	err := c.browser.Close()
	c.launcher.Cleanup()
	c.browser = nil
	c.launcher = nil
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// Capture loads t in a new page, waits for it to settle, optionally draws
// the address bar and stores a PNG of the full page.
func (c *Capturer) Capture(ctx context.Context, t target.Target) (screenshot.Artifact, error) {
	browser, err := c.ensureBrowser()
	if err != nil {
		return screenshot.Artifact{}, fmt.Errorf("%w: %w", screenshot.ErrCapture, err)
	}
	png, err := c.shoot(ctx, browser, t)
	if err != nil {
		return screenshot.Artifact{}, fmt.Errorf("%w: %s: %w", screenshot.ErrCapture, t.URL, err)
	}
	path := capture.ObjectPath(c.cfg.Prefix, t, c.clock.Now())
	artifact, err := capture.Persist(ctx, c.store, path, png)
	if err != nil {
		return screenshot.Artifact{}, fmt.Errorf("%w: %w", screenshot.ErrCapture, err)
	}
	return artifact, nil
}

func (c *Capturer) shoot(ctx context.Context, browser *rod.Browser, t target.Target) ([]byte, error) {
	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			c.logger.Debug("failed to close page", zap.String("url", t.URL), zap.Error(closeErr))
		}
	}()

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: c.cfg.UserAgent}); err != nil {
		return nil, fmt.Errorf("set user-agent: %w", err)
	}
	if err := page.SetViewport(viewport(c.cfg)); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	nav := page.Timeout(c.cfg.NavigationTimeout)
	if err := nav.Navigate(t.URL); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := nav.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}
	nav.CancelTimeout()

	if err := sleep(ctx, c.cfg.Settle); err != nil {
		return nil, err
	}
	if c.cfg.AddressBar {
		if _, err := page.Eval(addressBarFunc(t.URL)); err != nil {
			return nil, fmt.Errorf("inject address bar: %w", err)
		}
		if err := sleep(ctx, capture.AddressBarDelay); err != nil {
			return nil, err
		}
	}

	png, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format:      proto.PageCaptureScreenshotFormatPng,
		FromSurface: true,
	})
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return png, nil
}

func viewport(cfg capture.Settings) *proto.EmulationSetDeviceMetricsOverride {
	return &proto.EmulationSetDeviceMetricsOverride{
		Width:             cfg.Width,
		Height:            cfg.Height,
		DeviceScaleFactor: 1,
		Mobile:            true,
	}
}

// addressBarFunc wraps the injection statements in the arrow function form
// rod's Eval expects.
func addressBarFunc(url string) string {
	body := strings.TrimSuffix(capture.AddressBarStatements(url), "true;")
	return "() => { " + body + " return true; }"
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("settle wait: %w", ctx.Err())
	}
}
