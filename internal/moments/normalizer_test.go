package moments

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngPayload(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x += 7 {
		for y := 0; y < height; y += 7 {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNormalizeReencodesAsJPEG(t *testing.T) {
	normalizer := NewJPEGNormalizer()

	out, err := normalizer.Normalize(pngPayload(t, 100, 200))
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

func TestNormalizeScalesDownOversizedImage(t *testing.T) {
	normalizer := NewJPEGNormalizer()

	out, err := normalizer.Normalize(pngPayload(t, 2160, 3840))
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.LessOrEqual(t, img.Bounds().Dx(), 1080)
	assert.LessOrEqual(t, img.Bounds().Dy(), 1920)
}

func TestNormalizePreservesAspectRatio(t *testing.T) {
	normalizer := NewJPEGNormalizer()

	// Wide image: width is the binding constraint.
	out, err := normalizer.Normalize(pngPayload(t, 2160, 1080))
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 1080, img.Bounds().Dx())
	assert.Equal(t, 540, img.Bounds().Dy())
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	normalizer := NewJPEGNormalizer()

	_, err := normalizer.Normalize([]byte("not an image at all"))
	var payloadErr *InvalidPayloadError
	require.ErrorAs(t, err, &payloadErr)
}

func TestNormalizeRejectsEmptyPayload(t *testing.T) {
	normalizer := NewJPEGNormalizer()

	_, err := normalizer.Normalize(nil)
	var payloadErr *InvalidPayloadError
	require.ErrorAs(t, err, &payloadErr)
}
