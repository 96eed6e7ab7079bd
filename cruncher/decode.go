package cruncher

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/webp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	xwebp "golang.org/x/image/webp"

	"imgcruncher/datauri"
)

// ErrTooManyPixels is returned when the image header declares more pixels than
// the decoder is allowed to allocate.
var ErrTooManyPixels = errors.New("image exceeds pixel budget")

type decoded struct {
	img         image.Image
	contentType string
}

func readImage(r io.Reader, contentType string) (image.Image, error) {
	switch contentType {
	case "image/jpeg":
		return jpeg.Decode(r)

	case "image/png":
		return png.Decode(r)

	case "image/gif":
		return gif.Decode(r)

	case "image/bmp":
		return bmp.Decode(r)

	case "image/tiff":
		return tiff.Decode(r)

	case "image/webp":
		return webp.Decode(r, &decoder.Options{})

	default:
		return nil, fmt.Errorf("unsupported image format: %q", contentType)
	}
}

// readConfig reads only the image header.
func readConfig(r io.Reader, contentType string) (image.Config, error) {
	switch contentType {
	case "image/jpeg":
		return jpeg.DecodeConfig(r)

	case "image/png":
		return png.DecodeConfig(r)

	case "image/gif":
		return gif.DecodeConfig(r)

	case "image/bmp":
		return bmp.DecodeConfig(r)

	case "image/tiff":
		return tiff.DecodeConfig(r)

	case "image/webp":
		return xwebp.DecodeConfig(r)

	default:
		return image.Config{}, fmt.Errorf("unsupported image format: %q", contentType)
	}
}

// decodeImage loads pixel data from a base64 string or data URI. The content
// type is sniffed from the payload; the declared header type is only used when
// sniffing finds nothing. Images whose header declares more than maxPixels
// pixels are rejected before any pixel data is allocated.
func decodeImage(b64 string, maxPixels int64) (decoded, error) {
	uri := datauri.Parse(b64)

	data, err := uri.Bytes()
	if err != nil {
		return decoded{}, err
	}

	contentType := datauri.Sniff(data)
	if contentType == "" {
		contentType = uri.MediaType
	}

	if maxPixels > 0 {
		cfg, err := readConfig(bytes.NewReader(data), contentType)
		if err != nil {
			return decoded{}, fmt.Errorf("failed to read %s header: %w", contentType, err)
		}
		if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
			return decoded{}, fmt.Errorf("%dx%d: %w", cfg.Width, cfg.Height, ErrTooManyPixels)
		}
	}

	img, err := readImage(bytes.NewReader(data), contentType)
	if err != nil {
		return decoded{}, fmt.Errorf("failed to decode %s: %w", contentType, err)
	}

	return decoded{img: img, contentType: contentType}, nil
}
