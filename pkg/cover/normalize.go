package cover

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	// Register decoders for every format the providers actually serve.
	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Normalizer failure sentinels. Callers downgrade all of them to the
// placeholder; the distinction only feeds provenance outcomes.
var (
	ErrUnsupportedImage = errors.New("unsupported or corrupt image")
	ErrImageTooSmall    = errors.New("image below minimum acceptable size")
)

// RejectError reports a content screen rejecting an otherwise decodable
// image.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string {
	return "image rejected: " + e.Reason
}

// RejectFunc inspects a decoded image and returns a non-nil error to
// reject it. Used to screen provider responses that decode fine but are
// not covers (solid-color fills, for instance).
type RejectFunc func(img image.Image) error

// Normalized is the canonical cover artifact: JPEG bytes plus the
// metadata the gateway needs to store them.
type Normalized struct {
	Bytes  []byte
	Ext    string
	MIME   string
	Width  int
	Height int
}

// Normalizer converts arbitrary downloaded images into canonical cover
// JPEGs.
type Normalizer struct {
	reject RejectFunc
}

// NewNormalizer creates a normalizer without a content screen.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NewNormalizerWithReject creates a normalizer with an extra content
// screen applied after decode.
func NewNormalizerWithReject(fn RejectFunc) *Normalizer {
	return &Normalizer{reject: fn}
}

// Normalize decodes, bounds-checks, optionally downsizes, and re-encodes
// the image. Images wider than TargetWidthPx are scaled down to it;
// nothing is ever upscaled.
func (n *Normalizer) Normalize(data []byte) (*Normalized, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: zero dimensions", ErrUnsupportedImage)
	}
	if width < MinAcceptablePx || height < MinAcceptablePx {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooSmall, width, height)
	}

	if n.reject != nil {
		if err := n.reject(img); err != nil {
			var rej *RejectError
			if errors.As(err, &rej) {
				return nil, err
			}
			return nil, &RejectError{Reason: err.Error()}
		}
	}

	if width > TargetWidthPx {
		img = imaging.Resize(img, TargetWidthPx, 0, imaging.Lanczos)
		bounds = img.Bounds()
		width, height = bounds.Dx(), bounds.Dy()
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding cover jpeg: %w", err)
	}

	return &Normalized{
		Bytes:  buf.Bytes(),
		Ext:    ".jpg",
		MIME:   "image/jpeg",
		Width:  width,
		Height: height,
	}, nil
}

// DominantColorReject returns a content screen that rejects images where
// a single quantized color fills more than the given fraction of a sample
// grid. Provider "no cover" cards are near-uniform fills; real covers are
// not. A threshold around 0.92 keeps flat-art covers safe.
func DominantColorReject(threshold float64) RejectFunc {
	return func(img image.Image) error {
		bounds := img.Bounds()
		stepX := bounds.Dx() / 32
		if stepX < 1 {
			stepX = 1
		}
		stepY := bounds.Dy() / 32
		if stepY < 1 {
			stepY = 1
		}

		counts := make(map[uint32]int)
		samples := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
			for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
				r, g, b, _ := img.At(x, y).RGBA()
				// Quantize to 4 bits per channel so JPEG noise around a
				// flat fill still lands in one bucket.
				key := (r>>12)<<8 | (g>>12)<<4 | b>>12
				counts[key]++
				samples++
			}
		}
		if samples == 0 {
			return nil
		}

		max := 0
		for _, c := range counts {
			if c > max {
				max = c
			}
		}
		if frac := float64(max) / float64(samples); frac > threshold {
			return &RejectError{Reason: fmt.Sprintf("dominant color covers %.0f%% of image", frac*100)}
		}
		return nil
	}
}
