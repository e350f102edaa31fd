// Package placeholder provides a browserless Capturer that stores a blank
// PNG of the configured viewport. It backs dry runs and end-to-end tests.
package placeholder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/JakeFAU/webshot/internal/capture"
	"github.com/JakeFAU/webshot/internal/screenshot"
	"github.com/JakeFAU/webshot/internal/target"
)

// Capturer writes a solid-colour image for every target.
type Capturer struct {
	cfg   capture.Settings
	store screenshot.BlobStore
	clock screenshot.Clock
	image []byte
}

// New creates a placeholder capturer.
func New(cfg capture.Settings, store screenshot.BlobStore, clock screenshot.Clock) (*Capturer, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	cfg = cfg.WithDefaults()
	encoded, err := blankPNG(cfg.Width, cfg.Height)
	if err != nil {
		return nil, err
	}
	return &Capturer{cfg: cfg, store: store, clock: clock, image: encoded}, nil
}

// Capture stores the placeholder image under the target's artifact name.
func (c *Capturer) Capture(ctx context.Context, t target.Target) (screenshot.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return screenshot.Artifact{}, fmt.Errorf("%w: %w", screenshot.ErrCapture, err)
	}
	path := capture.ObjectPath(c.cfg.Prefix, t, c.clock.Now())
	artifact, err := capture.Persist(ctx, c.store, path, c.image)
	if err != nil {
		return screenshot.Artifact{}, fmt.Errorf("%w: %w", screenshot.ErrCapture, err)
	}
	return artifact, nil
}

func blankPNG(width, height int) ([]byte, error) {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode placeholder png: %w", err)
	}
	return buf.Bytes(), nil
}
