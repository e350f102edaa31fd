// Package capture holds the browser-independent parts of taking a screenshot:
// page settings, the injected address bar, artifact naming and persistence.
// Backends live in subpackages.
package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/JakeFAU/webshot/internal/checksum"
	"github.com/JakeFAU/webshot/internal/screenshot"
	"github.com/JakeFAU/webshot/internal/target"
)

// DefaultUserAgent is the mobile Safari user agent pages are loaded with.
const DefaultUserAgent = "Mozilla/5.0 (iPhone; U; CPU iPhone OS 4_3_3 like Mac OS X; en-us) " +
	"AppleWebKit/533.17.9 (KHTML, like Gecko) Version/5.0.2 Mobile/8J2 Safari/6533.18.5"

const (
	// AddressBarHeight is the height in CSS pixels of the injected bar.
	AddressBarHeight = 44
	// AddressBarDelay is how long to wait for the injected bar to paint.
	AddressBarDelay = 500 * time.Millisecond

	// ContentType of every stored artifact.
	ContentType = "image/png"

	// userAgentHeaderPrefix is stripped from configured user agents.
	userAgentHeaderPrefix = "User-Agent,"

	defaultWidth      = 414
	defaultHeight     = 896
	defaultNavTimeout = 30 * time.Second
)

// ErrEmptyScreenshot is returned when the browser produced no image data.
var ErrEmptyScreenshot = errors.New("browser returned an empty screenshot")

// Settings control how a page is loaded and captured.
type Settings struct {
	UserAgent         string
	Width             int
	Height            int
	Headless          bool
	Settle            time.Duration
	NavigationTimeout time.Duration
	AddressBar        bool
	// BrowserPath overrides the Chrome/Chromium binary. Empty means autodetect.
	BrowserPath string
	// Prefix is prepended to every object path in the blob store.
	Prefix string
}

// WithDefaults fills zero values.
func (s Settings) WithDefaults() Settings {
	s.UserAgent = strings.TrimSpace(strings.TrimPrefix(s.UserAgent, userAgentHeaderPrefix))
	if s.UserAgent == "" {
		s.UserAgent = DefaultUserAgent
	}
	if s.Width <= 0 {
		s.Width = defaultWidth
	}
	if s.Height <= 0 {
		s.Height = defaultHeight
	}
	if s.Settle < 0 {
		s.Settle = 0
	}
	if s.NavigationTimeout <= 0 {
		s.NavigationTimeout = defaultNavTimeout
	}
	return s
}

const addressBarTemplate = `<div id="webshot-address-bar" style="position: fixed; top: 0; left: 0; width: 100%%; ` +
	`height: %dpx; background: linear-gradient(to bottom, #f8f8f8, #e8e8e8); border-bottom: 1px solid #b2b2b2; ` +
	`display: flex; align-items: center; padding: 0 12px; box-sizing: border-box; z-index: 999999; ` +
	`font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', 'Roboto', sans-serif; font-size: 14px;">` +
	`<div style="background: white; border: 1px solid #b2b2b2; border-radius: 18px; padding: 8px 12px; ` +
	`width: 100%%; color: #333; overflow: hidden; text-overflow: ellipsis; white-space: nowrap; ` +
	`box-shadow: 0 1px 3px rgba(0,0,0,0.1);">%s</div></div>`

// AddressBarHTML renders the fake browser address bar showing url.
func AddressBarHTML(url string) string {
	return fmt.Sprintf(addressBarTemplate, AddressBarHeight, html.EscapeString(url))
}

// AddressBarStatements returns JavaScript that inserts the address bar at the
// top of the document and pushes the page content down by its height.
// The statements evaluate to true.
func AddressBarStatements(url string) string {
	markup, _ := json.Marshal(AddressBarHTML(url))
	var b strings.Builder
	fmt.Fprintf(&b, "document.documentElement.insertAdjacentHTML('afterbegin', %s);", markup)
	fmt.Fprintf(&b, "if (document.body) { document.body.style.paddingTop = '%dpx'; }", AddressBarHeight)
	fmt.Fprintf(&b, "document.documentElement.style.paddingTop = '%dpx';", AddressBarHeight)
	b.WriteString("true;")
	return b.String()
}

// ObjectPath names the artifact for t captured at now:
// <prefix>/<clean name>_<unix seconds>.png.
func ObjectPath(prefix string, t target.Target, now time.Time) string {
	name := fmt.Sprintf("%s_%d.png", t.CleanName(), now.Unix())
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Persist stores png at path and describes the stored artifact.
func Persist(ctx context.Context, store screenshot.BlobStore, path string, png []byte) (screenshot.Artifact, error) {
	if len(png) == 0 {
		return screenshot.Artifact{}, ErrEmptyScreenshot
	}
	uri, err := store.PutObject(ctx, path, ContentType, bytes.NewReader(png))
	if err != nil {
		return screenshot.Artifact{}, fmt.Errorf("store screenshot: %w", err)
	}
	return screenshot.Artifact{Path: uri, Bytes: len(png), SHA256: checksum.SHA256(png)}, nil
}
