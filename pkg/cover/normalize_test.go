package cover

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testJPEG renders a gradient so the bytes are a realistic photo-like
// image rather than a flat fill.
func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	return encodeTestImage(t, w, h, func(buf *bytes.Buffer, img image.Image) error {
		return jpeg.Encode(buf, img, &jpeg.Options{Quality: 90})
	})
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	return encodeTestImage(t, w, h, func(buf *bytes.Buffer, img image.Image) error {
		return png.Encode(buf, img)
	})
}

func encodeTestImage(t *testing.T, w, h int, encode func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: uint8((x + y) * 3), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, encode(&buf, img))
	return buf.Bytes()
}

func decodeDimsFromBytes(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestNormalizeKeepsModestImages(t *testing.T) {
	n := NewNormalizer()

	out, err := n.Normalize(testJPEG(t, 400, 600))
	require.NoError(t, err)

	assert.Equal(t, ".jpg", out.Ext)
	assert.Equal(t, "image/jpeg", out.MIME)
	assert.Equal(t, 400, out.Width)
	assert.Equal(t, 600, out.Height)

	w, h := decodeDimsFromBytes(t, out.Bytes)
	assert.Equal(t, 400, w)
	assert.Equal(t, 600, h)
}

func TestNormalizeDownsizesWideImages(t *testing.T) {
	n := NewNormalizer()

	out, err := n.Normalize(testJPEG(t, 1600, 2400))
	require.NoError(t, err)

	assert.Equal(t, TargetWidthPx, out.Width)
	assert.Equal(t, 1200, out.Height, "aspect ratio preserved")

	w, h := decodeDimsFromBytes(t, out.Bytes)
	assert.Equal(t, TargetWidthPx, w)
	assert.Equal(t, 1200, h)
}

func TestNormalizeNeverUpscales(t *testing.T) {
	n := NewNormalizer()

	out, err := n.Normalize(testJPEG(t, 120, 180))
	require.NoError(t, err)
	assert.Equal(t, 120, out.Width)
	assert.Equal(t, 180, out.Height)
}

func TestNormalizeConvertsPNG(t *testing.T) {
	n := NewNormalizer()

	out, err := n.Normalize(testPNG(t, 300, 450))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", out.MIME, "everything re-encodes to jpeg")

	_, err = jpeg.Decode(bytes.NewReader(out.Bytes))
	assert.NoError(t, err)
}

func TestNormalizeRejectsTinyImages(t *testing.T) {
	n := NewNormalizer()

	_, err := n.Normalize(testJPEG(t, 40, 600))
	assert.ErrorIs(t, err, ErrImageTooSmall)

	_, err = n.Normalize(testJPEG(t, 600, 40))
	assert.ErrorIs(t, err, ErrImageTooSmall)
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	n := NewNormalizer()

	_, err := n.Normalize([]byte("<html>not an image</html>"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	_, err = n.Normalize(nil)
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestNormalizeRejectHook(t *testing.T) {
	n := NewNormalizerWithReject(func(img image.Image) error {
		return errors.New("looks wrong")
	})

	_, err := n.Normalize(testJPEG(t, 400, 600))
	var rej *RejectError
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Reason, "looks wrong")
}

func TestDominantColorReject(t *testing.T) {
	screen := DominantColorReject(0.92)

	flat := image.NewRGBA(image.Rect(0, 0, 200, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 200; x++ {
			flat.Set(x, y, color.RGBA{R: 230, G: 230, B: 230, A: 255})
		}
	}
	assert.Error(t, screen(flat), "a flat fill is not a cover")

	gradient := image.NewRGBA(image.Rect(0, 0, 200, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 200; x++ {
			gradient.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x + y), A: 255})
		}
	}
	assert.NoError(t, screen(gradient))
}
