package cruncher

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"imgcruncher/datauri"
	"imgcruncher/pool"
)

const (
	mimePNG  = "image/png"
	mimeJPEG = "image/jpeg"
)

var pngEncoder = png.Encoder{
	CompressionLevel: png.DefaultCompression,
	BufferPool:       &pool.PNGBuffers{},
}

// newSurface allocates the drawing target, or reports false when the target
// has no area or exceeds the pixel budget.
func newSurface(width, height int, maxPixels int64) (*image.RGBA, bool) {
	if width <= 0 || height <= 0 {
		return nil, false
	}

	if maxPixels > 0 && int64(width)*int64(height) > maxPixels {
		return nil, false
	}

	return image.NewRGBA(image.Rect(0, 0, width, height)), true
}

// drawImage paints src onto the whole surface, resampling when sizes differ.
func drawImage(surface draw.Image, src image.Image, interpolation resize.InterpolationFunction) {
	b := surface.Bounds()

	if src.Bounds().Dx() != b.Dx() || src.Bounds().Dy() != b.Dy() {
		src = resize.Resize(uint(b.Dx()), uint(b.Dy()), src, interpolation)
	}

	draw.Draw(surface, b, src, src.Bounds().Min, draw.Src)
}

// outputType picks PNG for PNG data URIs and JPEG for everything else.
func outputType(b64 string) string {
	if datauri.HasMediaType(b64, mimePNG) {
		return mimePNG
	}
	return mimeJPEG
}

func jpegQuality(quality float64) int {
	q := int(math.Round(quality * 100))
	return min(max(q, 1), 100)
}

// encodeSurface re-encodes img as a data URI. Encoder panics are reported as
// errors.
func encodeSurface(img image.Image, mimeType string, quality float64) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("encoder panic: %v", r)
		}
	}()

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	switch mimeType {
	case mimePNG:
		err = pngEncoder.Encode(buf, img)
	case mimeJPEG:
		err = jpeg.Encode(buf, img, &jpeg.Options{Quality: jpegQuality(quality)})
	default:
		err = fmt.Errorf("unsupported output format: %q", mimeType)
	}
	if err != nil {
		return "", err
	}

	return datauri.Encode(mimeType, buf.Bytes()), nil
}
