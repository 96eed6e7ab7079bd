package cruncher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/nfnt/resize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"imgcruncher/datauri"
	"imgcruncher/metrics"
)

func testImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func pngDataURI(t *testing.T, width, height int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(width, height)); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func jpegDataURI(t *testing.T, width, height int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(width, height), &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func decodeConfig(t *testing.T, s string) (image.Config, string) {
	t.Helper()
	data, err := datauri.Parse(s).Bytes()
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	return cfg, format
}

func newTestCruncher(config Config) *Cruncher {
	return New(zap.NewNop(), config, nil, nil)
}

func TestCrunch_DownscalesPreservingAspectRatio(t *testing.T) {
	c := newTestCruncher(DefaultConfig())
	input := pngDataURI(t, 400, 200)

	result := c.Crunch(context.Background(), input, WithMaxSize(192, 108))

	if !result.Crunched || result.Fallback != FallbackNone {
		t.Fatalf("expected crunched result, got fallback %s", result.Fallback)
	}
	if result.Width != 192 || result.Height != 96 {
		t.Fatalf("expected 192x96, got %dx%d", result.Width, result.Height)
	}
	if result.SourceWidth != 400 || result.SourceHeight != 200 {
		t.Fatalf("expected source 400x200, got %dx%d", result.SourceWidth, result.SourceHeight)
	}

	cfg, format := decodeConfig(t, result.Data)
	if cfg.Width != 192 || cfg.Height != 96 || format != "png" {
		t.Fatalf("unexpected output %dx%d %s", cfg.Width, cfg.Height, format)
	}
}

func TestCrunch_LeavesSmallImagesAtOriginalSize(t *testing.T) {
	c := newTestCruncher(DefaultConfig())
	input := jpegDataURI(t, 64, 48)

	result := c.Crunch(context.Background(), input)

	if !result.Crunched {
		t.Fatalf("expected crunched result, got fallback %s", result.Fallback)
	}
	cfg, _ := decodeConfig(t, result.Data)
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Fatalf("expected 64x48, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestCrunch_OutputTypeFollowsInputPrefix(t *testing.T) {
	c := newTestCruncher(DefaultConfig())

	pngResult := c.Crunch(context.Background(), pngDataURI(t, 10, 10))
	if !strings.HasPrefix(pngResult.Data, "data:image/png;base64,") || pngResult.MIMEType != "image/png" {
		t.Fatalf("expected png output, got %q", pngResult.Data[:30])
	}

	jpegResult := c.Crunch(context.Background(), jpegDataURI(t, 10, 10))
	if !strings.HasPrefix(jpegResult.Data, "data:image/jpeg;base64,") {
		t.Fatalf("expected jpeg output, got %q", jpegResult.Data[:30])
	}

	// PNG bytes without the png header are re-encoded as JPEG.
	bare := strings.TrimPrefix(pngDataURI(t, 10, 10), "data:image/png;base64,")
	bareResult := c.Crunch(context.Background(), bare)
	if !bareResult.Crunched || bareResult.MIMEType != "image/jpeg" {
		t.Fatalf("expected bare png payload to become jpeg, got %+v", bareResult.Fallback)
	}
	if _, format := decodeConfig(t, bareResult.Data); format != "jpeg" {
		t.Fatalf("expected jpeg bytes, got %s", format)
	}
}

func TestCrunch_QualityAffectsJPEGSize(t *testing.T) {
	c := newTestCruncher(DefaultConfig())
	input := jpegDataURI(t, 256, 256)

	low := c.Crunch(context.Background(), input, WithQuality(0.1))
	high := c.Crunch(context.Background(), input, WithQuality(1))

	if !low.Crunched || !high.Crunched {
		t.Fatal("expected both crunches to succeed")
	}
	if len(low.Data) >= len(high.Data) {
		t.Fatalf("expected lower quality to be smaller: %d >= %d", len(low.Data), len(high.Data))
	}
}

func TestCrunch_TooLargeReturnsInput(t *testing.T) {
	c := newTestCruncher(DefaultConfig())
	input := "data:image/jpeg;base64," + strings.Repeat("A", 28*1024*1024)

	result := c.Crunch(context.Background(), input)

	if result.Data != input {
		t.Fatal("expected original input to be returned")
	}
	if result.Crunched || result.Fallback != FallbackTooLarge {
		t.Fatalf("expected too_large fallback, got %s", result.Fallback)
	}
}

func TestCrunch_DecodeFailureReturnsInput(t *testing.T) {
	c := newTestCruncher(DefaultConfig())

	for _, input := range []string{
		"data:image/png;base64,bm90IGFuIGltYWdl",
		"not base64 at all!",
		"",
		"data:image/png;base64",
	} {
		result := c.Crunch(context.Background(), input)
		if result.Data != input || result.Fallback != FallbackDecode {
			t.Errorf("input %q: expected decode fallback, got %s", input, result.Fallback)
		}
	}
}

func TestCrunch_SurfaceBudgetFallsBackSilently(t *testing.T) {
	config := DefaultConfig()
	config.MaxSurfacePixels = 100
	c := newTestCruncher(config)
	input := pngDataURI(t, 20, 20)

	result := c.Crunch(context.Background(), input)

	if result.Data != input || result.Fallback != FallbackSurface {
		t.Fatalf("expected surface fallback, got %s", result.Fallback)
	}
	if result.SourceWidth != 20 || result.SourceHeight != 20 {
		t.Fatalf("expected source dimensions to be reported, got %dx%d", result.SourceWidth, result.SourceHeight)
	}
}

// pngHeaderOnly builds a PNG holding only a signature and an IHDR chunk, so
// its declared size costs nothing to transmit.
func pngHeaderOnly(width, height uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	chunk := make([]byte, 0, 17)
	chunk = append(chunk, "IHDR"...)
	chunk = binary.BigEndian.AppendUint32(chunk, width)
	chunk = binary.BigEndian.AppendUint32(chunk, height)
	chunk = append(chunk, 8, 0, 0, 0, 0) // 8-bit grayscale

	buf.Write(binary.BigEndian.AppendUint32(nil, 13))
	buf.Write(chunk)
	buf.Write(binary.BigEndian.AppendUint32(nil, crc32.ChecksumIEEE(chunk)))
	return buf.Bytes()
}

func TestDecodeImage_RejectsOversizedHeaderBeforeDecoding(t *testing.T) {
	input := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeaderOnly(20000, 20000))

	_, err := decodeImage(input, DefaultConfig().MaxSourcePixels)
	if !errors.Is(err, ErrTooManyPixels) {
		t.Fatalf("expected ErrTooManyPixels, got %v", err)
	}
}

func TestCrunch_SourcePixelBudget(t *testing.T) {
	huge := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeaderOnly(20000, 20000))

	result := newTestCruncher(DefaultConfig()).Crunch(context.Background(), huge)
	if result.Data != huge || result.Fallback != FallbackDecode {
		t.Fatalf("expected decode fallback for oversized header, got %s", result.Fallback)
	}

	config := DefaultConfig()
	config.MaxSourcePixels = 100
	input := pngDataURI(t, 20, 20)

	result = newTestCruncher(config).Crunch(context.Background(), input)
	if result.Data != input || result.Fallback != FallbackDecode {
		t.Fatalf("expected decode fallback over budget, got %s", result.Fallback)
	}

	config.MaxSourcePixels = 400
	result = newTestCruncher(config).Crunch(context.Background(), input)
	if !result.Crunched {
		t.Fatalf("expected image at the budget to be crunched, got %s", result.Fallback)
	}
}

func TestNew_KeepsZeroQuality(t *testing.T) {
	config := DefaultConfig()
	config.Quality = 0
	if o := newTestCruncher(config).resolve(nil); o.quality != 0 {
		t.Fatalf("expected configured quality 0 to be kept, got %f", o.quality)
	}

	config.Quality = -1
	if o := newTestCruncher(config).resolve(nil); o.quality != 0.6 {
		t.Fatalf("expected negative quality to take the default, got %f", o.quality)
	}
}

func TestCrunch_CanceledContextReturnsInput(t *testing.T) {
	c := newTestCruncher(DefaultConfig())
	input := pngDataURI(t, 10, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := c.Crunch(ctx, input)
	if result.Data != input || result.Fallback != FallbackCanceled {
		t.Fatalf("expected canceled fallback, got %s", result.Fallback)
	}
}

func TestCrunchAsync_DeliversOneResult(t *testing.T) {
	c := newTestCruncher(DefaultConfig())
	input := pngDataURI(t, 30, 30)

	select {
	case result := <-c.CrunchAsync(context.Background(), input):
		if !result.Crunched {
			t.Fatalf("expected crunched result, got %s", result.Fallback)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestCrunch_ConcurrentCallsDoNotInterfere(t *testing.T) {
	c := newTestCruncher(DefaultConfig())
	small := pngDataURI(t, 40, 20)
	large := jpegDataURI(t, 300, 100)

	results := make([]<-chan Result, 0, 8)
	for i := 0; i < 4; i++ {
		results = append(results, c.CrunchAsync(context.Background(), small, WithMaxSize(20, 20)))
		results = append(results, c.CrunchAsync(context.Background(), large, WithMaxSize(150, 150)))
	}

	for i, ch := range results {
		r := <-ch
		if i%2 == 0 && (r.Width != 20 || r.Height != 10 || r.MIMEType != "image/png") {
			t.Errorf("result %d: expected 20x10 png, got %dx%d %s", i, r.Width, r.Height, r.MIMEType)
		}
		if i%2 == 1 && (r.Width != 150 || r.Height != 50 || r.MIMEType != "image/jpeg") {
			t.Errorf("result %d: expected 150x50 jpeg, got %dx%d %s", i, r.Width, r.Height, r.MIMEType)
		}
	}
}

func TestCrunch_PackageLevelDefault(t *testing.T) {
	input := pngDataURI(t, 8, 8)
	out := Crunch(context.Background(), input, WithInterpolation(resize.Bilinear))
	if out == input || !strings.HasPrefix(out, "data:image/png;base64,") {
		t.Fatal("expected re-encoded png output")
	}

	if got := Crunch(context.Background(), "garbage"); got != "garbage" {
		t.Fatalf("expected fallback to input, got %q", got)
	}
}

func TestCrunch_CountsOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	counters := metrics.InitializeMetrics(registry, nil)
	perf := metrics.InitializePerformanceMetrics(registry, nil)
	c := New(zap.NewNop(), DefaultConfig(), perf, counters)

	c.Crunch(context.Background(), pngDataURI(t, 4, 4))
	c.Crunch(context.Background(), "garbage")

	if v := testutil.ToFloat64(counters.Crunched.WithLabelValues("crunched", "image/png")); v != 1 {
		t.Errorf("expected 1 crunched png, got %f", v)
	}
	if v := testutil.ToFloat64(counters.Crunched.WithLabelValues("decode", "")); v != 1 {
		t.Errorf("expected 1 decode fallback, got %f", v)
	}
}

func TestOptions(t *testing.T) {
	c := newTestCruncher(DefaultConfig())

	o := c.resolve(nil)
	if o.quality != 0.6 || o.maxWidth != 1920 || o.maxHeight != 1080 || o.interpolation != resize.Lanczos3 {
		t.Fatalf("unexpected defaults: %+v", o)
	}

	o = c.resolve([]Option{WithQuality(1.5), WithMaxSize(0, 500), WithInterpolation(resize.InterpolationFunction(42))})
	if o.quality != browserDefaultQuality {
		t.Errorf("expected out-of-range quality to become %f, got %f", browserDefaultQuality, o.quality)
	}
	if o.maxWidth != 1920 || o.maxHeight != 500 {
		t.Errorf("expected 1920x500, got %dx%d", o.maxWidth, o.maxHeight)
	}
	if o.interpolation != resize.Lanczos3 {
		t.Errorf("expected invalid interpolation to be ignored")
	}

	if jpegQuality(0) != 1 || jpegQuality(0.6) != 60 || jpegQuality(1) != 100 {
		t.Error("unexpected jpeg quality mapping")
	}
}

func TestFallbackString(t *testing.T) {
	if FallbackTooLarge.String() != "too_large" || FallbackNone.String() != "none" {
		t.Fatal("unexpected fallback names")
	}
	if Fallback(99).String() != "fallback(99)" {
		t.Fatal("unexpected name for unknown fallback")
	}
}
