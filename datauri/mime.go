package datauri

import (
	"bytes"
	"net/http"
	"strings"
)

var imageMimeTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/gif",
	"image/bmp",
	"image/tiff",
}

// IsImageMime reports whether mimeType is one of the decodable image types.
func IsImageMime(mimeType string) bool {
	for _, imageMimeType := range imageMimeTypes {
		if mimeType == imageMimeType {
			return true
		}
	}

	return false
}

var (
	tiffLittleEndian = []byte("II*\x00")
	tiffBigEndian    = []byte("MM\x00*")
)

// Sniff returns the image type detected from the leading bytes of data, or ""
// when the content is not a recognized image.
func Sniff(data []byte) string {
	if bytes.HasPrefix(data, tiffLittleEndian) || bytes.HasPrefix(data, tiffBigEndian) {
		return "image/tiff"
	}

	detected := http.DetectContentType(data)
	if idx := strings.IndexByte(detected, ';'); idx != -1 {
		detected = detected[:idx]
	}

	if IsImageMime(detected) {
		return detected
	}

	return ""
}
