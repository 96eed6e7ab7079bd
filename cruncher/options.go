package cruncher

import (
	"math"

	"github.com/nfnt/resize"
)

// browserDefaultQuality is what canvas encoders use when the requested quality
// is outside [0, 1].
const browserDefaultQuality = 0.92

type options struct {
	quality       float64
	maxWidth      int
	maxHeight     int
	interpolation resize.InterpolationFunction
}

// Option adjusts a single Crunch call.
type Option func(*options)

// WithQuality sets the JPEG quality factor in [0, 1]. PNG output ignores it.
func WithQuality(quality float64) Option {
	return func(o *options) {
		if math.IsNaN(quality) || quality < 0 || quality > 1 {
			quality = browserDefaultQuality
		}
		o.quality = quality
	}
}

// WithMaxSize sets the bounding box. Non-positive values keep the default.
func WithMaxSize(maxWidth, maxHeight int) Option {
	return func(o *options) {
		if maxWidth > 0 {
			o.maxWidth = maxWidth
		}
		if maxHeight > 0 {
			o.maxHeight = maxHeight
		}
	}
}

// WithInterpolation selects the resampling filter used when downscaling.
func WithInterpolation(interpolation resize.InterpolationFunction) Option {
	return func(o *options) {
		if interpolation >= resize.NearestNeighbor && interpolation <= resize.Lanczos3 {
			o.interpolation = interpolation
		}
	}
}
