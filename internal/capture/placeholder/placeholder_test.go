package placeholder

import (
	"bytes"
	"context"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/webshot/internal/capture"
	"github.com/JakeFAU/webshot/internal/clock/fixed"
	"github.com/JakeFAU/webshot/internal/screenshot"
	"github.com/JakeFAU/webshot/internal/storage/memory"
	"github.com/JakeFAU/webshot/internal/target"
)

func TestCaptureStoresViewportSizedPNG(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	c, err := New(capture.Settings{Width: 40, Height: 30, Prefix: "shots"}, store, fixed.New(time.Unix(1700000000, 0)))
	require.NoError(t, err)

	tgt, err := target.New(0, "example.com")
	require.NoError(t, err)
	art, err := c.Capture(context.Background(), tgt)
	require.NoError(t, err)
	assert.Equal(t, "memory://shots/example.com_1700000000.png", art.Path)

	obj, ok := store.Get("shots/example.com_1700000000.png")
	require.True(t, ok)
	assert.Equal(t, art.Bytes, len(obj.Data))
	img, err := png.Decode(bytes.NewReader(obj.Data))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 30, img.Bounds().Dy())
	r, g, b, _ := img.At(20, 15).RGBA()
	assert.Equal(t, []uint32{0xffff, 0xffff, 0xffff}, []uint32{r, g, b})
}

func TestCaptureCancelled(t *testing.T) {
	t.Parallel()

	c, err := New(capture.Settings{}, memory.NewBlobStore(), fixed.New(time.Time{}))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tgt, err := target.New(0, "example.com")
	require.NoError(t, err)
	_, err = c.Capture(ctx, tgt)
	assert.ErrorIs(t, err, screenshot.ErrCapture)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(capture.Settings{}, nil, fixed.New(time.Time{}))
	assert.Error(t, err)
	_, err = New(capture.Settings{}, memory.NewBlobStore(), nil)
	assert.Error(t, err)
}
