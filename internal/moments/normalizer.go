package moments

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	maxWidth  = 1080
	maxHeight = 1920

	// Payloads above the soft limit get a second, harder compression
	// pass before being accepted.
	softLimitBytes = 500 * 1024
	maxPayloadIn   = 10 << 20

	qualityPrimary  = 85
	qualityFallback = 70
)

// Normalizer bounds a raw photo payload to the service's size and
// format limits.
type Normalizer interface {
	Normalize(payload []byte) ([]byte, error)
}

// JPEGNormalizer decodes the incoming image, scales it to fit within
// 1080x1920 without enlargement, and re-encodes it as JPEG.
type JPEGNormalizer struct{}

// NewJPEGNormalizer constructs a JPEGNormalizer.
func NewJPEGNormalizer() *JPEGNormalizer {
	return &JPEGNormalizer{}
}

// Normalize returns the bounded JPEG payload or an InvalidPayloadError.
func (n *JPEGNormalizer) Normalize(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, &InvalidPayloadError{Reason: "empty payload"}
	}
	if len(payload) > maxPayloadIn {
		return nil, &InvalidPayloadError{Reason: "payload exceeds input limit"}
	}

	src, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, &InvalidPayloadError{Reason: "undecodable image"}
	}

	scaled := fitInside(src, maxWidth, maxHeight)

	out, err := encodeJPEG(scaled, qualityPrimary)
	if err != nil {
		return nil, &InvalidPayloadError{Reason: "encode failed"}
	}
	if len(out) > softLimitBytes {
		out, err = encodeJPEG(scaled, qualityFallback)
		if err != nil {
			return nil, &InvalidPayloadError{Reason: "encode failed"}
		}
	}
	return out, nil
}

// fitInside scales the image down to fit the bounds, preserving aspect
// ratio. Images already within bounds are returned unscaled.
func fitInside(src image.Image, width, height int) image.Image {
	b := src.Bounds()
	if b.Dx() <= width && b.Dy() <= height {
		return src
	}

	ratioW := float64(width) / float64(b.Dx())
	ratioH := float64(height) / float64(b.Dy())
	ratio := ratioW
	if ratioH < ratio {
		ratio = ratioH
	}

	dst := image.NewRGBA(image.Rect(0, 0, int(float64(b.Dx())*ratio), int(float64(b.Dy())*ratio)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
