package cruncher

import "math"

// FitDimensions scales width x height down to fit inside maxWidth x maxHeight,
// keeping the aspect ratio. Images that already fit are left alone. The side
// that overshoots its bound the most is clamped to that bound and the other is
// derived from the aspect ratio, rounded to the nearest pixel.
func FitDimensions(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= 0 || height <= 0 || maxWidth <= 0 || maxHeight <= 0 {
		return width, height
	}

	if width <= maxWidth && height <= maxHeight {
		return width, height
	}

	aspectRatio := float64(width) / float64(height)

	if float64(width)/float64(maxWidth) >= float64(height)/float64(maxHeight) {
		return maxWidth, max(1, int(math.Round(float64(maxWidth)/aspectRatio)))
	}

	return max(1, int(math.Round(float64(maxHeight)*aspectRatio))), maxHeight
}
