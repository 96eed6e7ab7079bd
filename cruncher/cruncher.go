// Package cruncher estimates and shrinks base64 encoded images.
//
// Crunch never fails: when an image cannot be processed the original string is
// handed back, with the reason recorded in Result.Fallback.
package cruncher

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"imgcruncher/metrics"
)

type Fallback int

const (
	FallbackNone Fallback = iota
	FallbackTooLarge
	FallbackDecode
	FallbackSurface
	FallbackEncode
	FallbackCanceled
)

func (f Fallback) String() string {
	switch f {
	case FallbackNone:
		return "none"
	case FallbackTooLarge:
		return "too_large"
	case FallbackDecode:
		return "decode"
	case FallbackSurface:
		return "surface"
	case FallbackEncode:
		return "encode"
	case FallbackCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("fallback(%d)", int(f))
	}
}

// Result always carries a usable string in Data: the re-encoded data URI, or
// the untouched input when Fallback is set.
type Result struct {
	Data     string
	Crunched bool
	Fallback Fallback

	MIMEType string
	Width    int
	Height   int

	SourceWidth  int
	SourceHeight int
}

type Config struct {
	Quality   float64
	MaxWidth  int
	MaxHeight int

	// MaxInputBytes is compared against the estimated decoded size.
	MaxInputBytes int
	// MaxSourcePixels bounds width*height of the decoded input, checked
	// against the image header before decoding.
	MaxSourcePixels int64
	// MaxSurfacePixels bounds width*height of the drawing surface.
	MaxSurfacePixels int64
	// DecodeTimeout of zero waits for the decoder indefinitely.
	DecodeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Quality:          0.6,
		MaxWidth:         1920,
		MaxHeight:        1080,
		MaxInputBytes:    20 * 1024 * 1024,
		MaxSourcePixels:  50_000_000,
		MaxSurfacePixels: 16384 * 16384,
	}
}

type Cruncher struct {
	logger   *zap.Logger
	config   Config
	perf     *metrics.PerformanceMetrics
	counters *metrics.Metrics
}

// New creates a Cruncher. logger and both metric sets may be nil. Zero size
// and pixel limits take their DefaultConfig values; a negative or out of range
// Quality does too.
func New(logger *zap.Logger, config Config, perf *metrics.PerformanceMetrics, counters *metrics.Metrics) *Cruncher {
	if logger == nil {
		logger = zap.NewNop()
	}

	defaults := DefaultConfig()
	if config.Quality < 0 || config.Quality > 1 || math.IsNaN(config.Quality) {
		config.Quality = defaults.Quality
	}
	if config.MaxWidth <= 0 {
		config.MaxWidth = defaults.MaxWidth
	}
	if config.MaxHeight <= 0 {
		config.MaxHeight = defaults.MaxHeight
	}
	if config.MaxInputBytes <= 0 {
		config.MaxInputBytes = defaults.MaxInputBytes
	}
	if config.MaxSourcePixels <= 0 {
		config.MaxSourcePixels = defaults.MaxSourcePixels
	}
	if config.MaxSurfacePixels <= 0 {
		config.MaxSurfacePixels = defaults.MaxSurfacePixels
	}

	return &Cruncher{
		logger:   logger,
		config:   config,
		perf:     perf,
		counters: counters,
	}
}

var defaultCruncher = New(nil, DefaultConfig(), nil, nil)

// Crunch shrinks b64 with the default configuration and returns the new data
// URI, or b64 itself if it could not be processed.
func Crunch(ctx context.Context, b64 string, opts ...Option) string {
	return defaultCruncher.Crunch(ctx, b64, opts...).Data
}

func (c *Cruncher) resolve(opts []Option) options {
	o := options{
		quality:       c.config.Quality,
		maxWidth:      c.config.MaxWidth,
		maxHeight:     c.config.MaxHeight,
		interpolation: resize.Lanczos3,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Crunch decodes b64, scales it down to fit the configured bounds and
// re-encodes it as PNG (for PNG data URIs) or JPEG. Decoding runs on its own
// goroutine; ctx cancellation or the decode timeout abandons the wait.
func (c *Cruncher) Crunch(ctx context.Context, b64 string, opts ...Option) Result {
	o := c.resolve(opts)
	result := Result{Data: b64}

	inputBytes := DecodedBytes(b64)
	if inputBytes > c.config.MaxInputBytes {
		c.logger.Warn("image too large to compress", zap.Int("size_bytes", inputBytes), zap.Int("max_bytes", c.config.MaxInputBytes))
		return c.fallback(result, FallbackTooLarge)
	}
	c.perf.ObserveSize("input", inputBytes)

	if c.config.DecodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.DecodeTimeout)
		defer cancel()
	}

	if err := ctx.Err(); err != nil {
		c.logger.Warn("image decode abandoned", zap.Error(err))
		return c.fallback(result, FallbackCanceled)
	}

	type loadResult struct {
		source decoded
		err    error
	}

	// Buffered so an abandoned decode can still finish and exit.
	loaded := make(chan loadResult, 1)
	go func() {
		source, err := metrics.TimeFunction(func() (decoded, error) {
			return decodeImage(b64, c.config.MaxSourcePixels)
		}, "decode", c.perf)
		loaded <- loadResult{source: source, err: err}
	}()

	var source decoded
	select {
	case <-ctx.Done():
		c.logger.Warn("image decode abandoned", zap.Error(ctx.Err()))
		return c.fallback(result, FallbackCanceled)
	case l := <-loaded:
		if l.err != nil {
			c.logger.Error("image load error", zap.Error(l.err))
			return c.fallback(result, FallbackDecode)
		}
		source = l.source
	}

	bounds := source.img.Bounds()
	result.SourceWidth, result.SourceHeight = bounds.Dx(), bounds.Dy()

	width, height := FitDimensions(result.SourceWidth, result.SourceHeight, o.maxWidth, o.maxHeight)

	surface, ok := newSurface(width, height, c.config.MaxSurfacePixels)
	if !ok {
		return c.fallback(result, FallbackSurface)
	}

	mimeType := outputType(b64)

	out, err := metrics.TimeFunction(func() (string, error) {
		return c.render(surface, source, mimeType, o)
	}, "encode", c.perf)
	if err != nil {
		c.logger.Error("compression failed", zap.Error(err), zap.String("source_type", source.contentType), zap.String("output_type", mimeType))
		return c.fallback(result, FallbackEncode)
	}

	result.Data = out
	result.Crunched = true
	result.MIMEType = mimeType
	result.Width, result.Height = width, height

	c.perf.ObserveSize("output", DecodedBytes(out))
	if c.counters != nil {
		c.counters.Crunched.WithLabelValues("crunched", mimeType).Inc()
	}

	c.logger.Debug("image crunched",
		zap.String("source_type", source.contentType),
		zap.String("output_type", mimeType),
		zap.Int("source_width", result.SourceWidth),
		zap.Int("source_height", result.SourceHeight),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Float64("quality", o.quality),
	)

	return result
}

// CrunchAsync runs Crunch on its own goroutine. The channel receives exactly
// one Result.
func (c *Cruncher) CrunchAsync(ctx context.Context, b64 string, opts ...Option) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		out <- c.Crunch(ctx, b64, opts...)
	}()
	return out
}

func (c *Cruncher) render(surface *image.RGBA, source decoded, mimeType string, o options) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("draw panic: %v", r)
		}
	}()

	drawImage(surface, source.img, o.interpolation)

	return encodeSurface(surface, mimeType, o.quality)
}

func (c *Cruncher) fallback(result Result, reason Fallback) Result {
	result.Fallback = reason
	if c.counters != nil {
		c.counters.Crunched.WithLabelValues(reason.String(), "").Inc()
	}
	return result
}
