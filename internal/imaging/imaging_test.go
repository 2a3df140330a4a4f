package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

var (
	red  = color.NRGBA{R: 255, A: 255}
	blue = color.NRGBA{B: 255, A: 255}
)

func twoPixel() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, red)
	img.SetNRGBA(1, 0, blue)
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solid(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{G: 200, A: 255})
		}
	}
	return img
}

func TestRotateQuarterTurns(t *testing.T) {
	src := twoPixel()

	r90 := Rotate(src, 90).(*image.NRGBA)
	assert.Equal(t, image.Rect(0, 0, 1, 2), r90.Bounds())
	assert.Equal(t, red, r90.NRGBAAt(0, 0))
	assert.Equal(t, blue, r90.NRGBAAt(0, 1))

	r180 := Rotate(src, 180).(*image.NRGBA)
	assert.Equal(t, image.Rect(0, 0, 2, 1), r180.Bounds())
	assert.Equal(t, blue, r180.NRGBAAt(0, 0))
	assert.Equal(t, red, r180.NRGBAAt(1, 0))

	r270 := Rotate(src, 270).(*image.NRGBA)
	assert.Equal(t, image.Rect(0, 0, 1, 2), r270.Bounds())
	assert.Equal(t, blue, r270.NRGBAAt(0, 0))
	assert.Equal(t, red, r270.NRGBAAt(0, 1))

	assert.Same(t, src, Rotate(src, 0))
	assert.Same(t, src, Rotate(src, 360))
}

func TestRotateSubImageBounds(t *testing.T) {
	base := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	base.SetNRGBA(2, 2, red)
	base.SetNRGBA(3, 2, blue)
	sub := base.SubImage(image.Rect(2, 2, 4, 3))

	out := Rotate(sub, 90).(*image.NRGBA)
	assert.Equal(t, image.Rect(0, 0, 1, 2), out.Bounds())
	assert.Equal(t, red, out.NRGBAAt(0, 0))
	assert.Equal(t, blue, out.NRGBAAt(0, 1))
}

func TestTransformResizesAndRotates(t *testing.T) {
	engine := New(Config{Interpolation: "bilinear"})
	src := encodePNG(t, solid(40, 20))

	rc, err := engine.Transform(bytes.NewReader(src), Options{Width: 10, Height: 5, Rotate: 90, Format: "png"})
	require.NoError(t, err)
	defer rc.Close()

	out, err := png.Decode(rc)
	require.NoError(t, err)
	assert.Equal(t, 5, out.Bounds().Dx())
	assert.Equal(t, 10, out.Bounds().Dy())
}

func TestTransformKeepsNativeSizeWhenUnset(t *testing.T) {
	engine := New(Config{})
	src := encodePNG(t, solid(7, 3))

	rc, err := engine.Transform(bytes.NewReader(src), Options{Format: ".jpg"})
	require.NoError(t, err)
	defer rc.Close()

	out, err := jpeg.Decode(rc)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 7, 3), out.Bounds())
}

func TestTransformDecodesBMPSource(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, solid(6, 6)))

	rc, err := New(Config{}).Transform(&buf, Options{Width: 3, Height: 3, Format: "bmp"})
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	out, err := bmp.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 3, out.Bounds().Dx())
}

func TestTransformRejectsInputs(t *testing.T) {
	engine := New(Config{})
	pngData := encodePNG(t, solid(2, 2))

	_, err := engine.Transform(bytes.NewReader(pngData), Options{Format: "webp"})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = engine.Transform(bytes.NewReader(pngData), Options{Format: "ico"})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	svgDoc := `<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"></svg>`
	_, err = engine.Transform(strings.NewReader(svgDoc), Options{Format: "png"})
	assert.ErrorIs(t, err, ErrVectorImage)

	_, err = engine.Transform(strings.NewReader("plain text, not pixels"), Options{Format: "png"})
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = engine.Transform(bytes.NewReader(nil), Options{Format: "png"})
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestTransformEncoderStopsWhenReaderClosed(t *testing.T) {
	rc, err := New(Config{}).Transform(bytes.NewReader(encodePNG(t, solid(64, 64))), Options{Format: "png"})
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	_, err = rc.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestProbeReadsDimensions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, solid(12, 34)), 0o644))

	dims, err := New(Config{}).Probe(path)
	require.NoError(t, err)
	assert.Equal(t, Dimensions{Width: 12, Height: 34}, dims)

	txt := filepath.Join(dir, "notes.png")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0o644))
	_, err = New(Config{}).Probe(txt)
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = New(Config{}).Probe(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCanEncode(t *testing.T) {
	engine := New(Config{})
	for _, ext := range []string{"png", ".PNG", "jpg", "jpeg", "gif", "bmp", "tif", "tiff"} {
		assert.True(t, engine.CanEncode(ext), ext)
	}
	for _, ext := range []string{"webp", "ico", "svg", ""} {
		assert.False(t, engine.CanEncode(ext), ext)
		assert.False(t, SupportsOutput(ext), ext)
	}
	assert.True(t, SupportsOutput("jpeg"))
}
