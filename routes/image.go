package routes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"imgcruncher/client"
	"imgcruncher/config"
	"imgcruncher/cruncher"
	"imgcruncher/datauri"
	"imgcruncher/metrics"
	"imgcruncher/storage"
	"imgcruncher/validation"
)

const (
	cachePlaceResponseHandler = "response-handler"
	cachePlaceS3Cache         = "s3cache"
)

// Handler bundles what the image routes share.
type Handler struct {
	Logger   *zap.Logger
	Config   *config.Config
	Cruncher *cruncher.Cruncher
	Cache    *storage.ResultCache
	S3Cache  *storage.S3Cache
	Counters *metrics.Metrics
	Perf     *metrics.PerformanceMetrics
}

// CrunchResponse is the JSON answer of POST /crunch.
type CrunchResponse struct {
	Image        string  `json:"image"`
	Crunched     bool    `json:"crunched"`
	Fallback     string  `json:"fallback,omitempty"`
	Type         string  `json:"type,omitempty"`
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
	SourceWidth  int     `json:"sourceWidth,omitempty"`
	SourceHeight int     `json:"sourceHeight,omitempty"`
	SizeBefore   float64 `json:"sizeBefore"`
	SizeAfter    float64 `json:"sizeAfter"`
}

// SizeResponse is the JSON answer of POST /size.
type SizeResponse struct {
	Size float64 `json:"size"`
	Unit string  `json:"unit"`
}

// RegisterImageRoutes sets up crunch and size routes
func RegisterImageRoutes(app *fiber.App, h *Handler) {
	app.Post("/crunch", h.handleCrunch)
	app.Post("/size", h.handleSize)

	// Path-based proxy route: /images/q:60/w:1920/h:1080/{base64url-encoded-url}
	app.Get("/images/*", h.handleImageRequest)

	// Upload route: multipart "image" file, options in the path
	app.Post("/images/*", h.handleImageUpload)
}

//#region handleCrunch

func (h *Handler) handleCrunch(c *fiber.Ctx) error {
	h.Logger.Info("crunch request received", zap.String("remote_ip", c.IP()), zap.Int("body_size", len(c.Body())))

	ok, status, params, err := validation.ProcessCrunchRequest(h.Logger, c, h.Config)
	if !ok {
		h.Logger.Error("failed to process crunch request", zap.Int("status", status), zap.Error(err))
		return c.Status(status).SendString(err.Error())
	}

	h.Logger.Debug("processed crunch parameters", zap.Stringer("params", params), zap.String("url", params.Url))

	input := params.Image
	if params.Url != "" {
		input, status, err = h.fetch(c.UserContext(), params)
		if err != nil {
			return c.Status(status).SendString(err.Error())
		}
	}

	value, place := h.crunch(c.UserContext(), params, input)
	if place != "" {
		c.Set("X-Cache-Place", place)
	}

	output := string(value.Body)

	return c.JSON(CrunchResponse{
		Image:        output,
		Crunched:     value.Crunched,
		Fallback:     fallbackLabel(value),
		Type:         value.ContentType,
		Width:        value.Width,
		Height:       value.Height,
		SourceWidth:  value.SourceWidth,
		SourceHeight: value.SourceHeight,
		SizeBefore:   cruncher.Base64Size(input, cruncher.UnitKB),
		SizeAfter:    cruncher.Base64Size(output, cruncher.UnitKB),
	})
}

//#endregion

//#region handleSize

func (h *Handler) handleSize(c *fiber.Ctx) error {
	ok, status, params, err := validation.ProcessSizeRequest(c)
	if !ok {
		h.Logger.Error("failed to process size request", zap.Int("status", status), zap.Error(err))
		return c.Status(status).SendString(err.Error())
	}

	return c.JSON(SizeResponse{
		Size: cruncher.Base64Size(params.Image, params.Unit),
		Unit: params.Unit,
	})
}

//#endregion

//#region handleImageRequest

// handleImageRequest fetches a remote image, crunches it and answers with the
// encoded bytes. Images that fall back are served as fetched.
func (h *Handler) handleImageRequest(c *fiber.Ctx) error {
	pathParams := c.Params("*")
	h.Logger.Info("image request received", zap.String("pathParams", pathParams), zap.String("remote_ip", c.IP()))

	ok, status, params, err := validation.ProcessCrunchContextFromPath(h.Logger, pathParams, h.Config)
	if !ok {
		h.Logger.Error("failed to process image context from path", zap.String("pathParams", pathParams), zap.Int("status", status), zap.Error(err))
		return c.Status(status).SendString(err.Error())
	}

	input, status, err := h.fetch(c.UserContext(), params)
	if err != nil {
		return c.Status(status).SendString(err.Error())
	}

	value, place := h.crunch(c.UserContext(), params, input)
	if place != "" {
		c.Set("X-Cache-Place", place)
	}

	return h.sendImage(c, value, params)
}

//#endregion

//#region handleImageUpload

// handleImageUpload crunches a multipart "image" file and answers with the
// encoded bytes, like handleImageRequest.
func (h *Handler) handleImageUpload(c *fiber.Ctx) error {
	h.Logger.Info("image upload request received", zap.String("remote_ip", c.IP()))

	pathParams := c.Params("*")
	body, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("failed to get image file")
	}

	contentType := body.Header.Get("Content-Type")
	if contentType == "" {
		return c.Status(fiber.StatusForbidden).SendString("no content type received")
	}

	parsedContentType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("failed to parse content type")
	}

	if !datauri.IsImageMime(parsedContentType) {
		return c.Status(fiber.StatusForbidden).SendString(fmt.Sprintf("content type '%s' is not allowed", parsedContentType))
	}

	imageFile, err := body.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("failed to open image file")
	}
	defer imageFile.Close()

	data, err := io.ReadAll(imageFile)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("failed to read image file")
	}

	input := datauri.Encode(parsedContentType, data)

	ok, status, params, err := validation.ProcessCrunchUploadFromPath(h.Logger, pathParams, input, h.Config)
	if !ok {
		h.Logger.Error("failed to process image upload from path", zap.String("pathParams", pathParams), zap.Int("status", status), zap.Error(err))
		return c.Status(status).SendString(err.Error())
	}

	value, place := h.crunch(c.UserContext(), params, input)
	if place != "" {
		c.Set("X-Cache-Place", place)
	}

	return h.sendImage(c, value, params)
}

// sendImage answers with the raw bytes behind a cached data URI.
func (h *Handler) sendImage(c *fiber.Ctx, value storage.CacheValue, params *validation.CrunchContext) error {
	uri := datauri.Parse(string(value.Body))
	body, err := uri.Bytes()
	if err != nil {
		h.Logger.Error("failed to decode crunched image", zap.Error(err), zap.String("url", params.Url))
		return c.Status(fiber.StatusInternalServerError).SendString("failed to decode image")
	}

	c.Set("Content-Type", uri.MediaType)
	c.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", h.Config.HTTPCacheTTL))
	return c.Send(body)
}

//#endregion

//#region crunch

// fetch downloads params.Url as a data URI. The returned status is only
// meaningful when err is set.
func (h *Handler) fetch(ctx context.Context, params *validation.CrunchContext) (string, int, error) {
	done := metrics.TimeHTTPRequest(metrics.CleanHostname(params.Hostname), h.Perf)
	defer done()

	maxBytes := int64(h.Config.Crunch.MaxInputMB) * 1024 * 1024
	if maxBytes <= 0 {
		maxBytes = int64(cruncher.DefaultConfig().MaxInputBytes)
	}

	input, err := client.FetchImage(ctx, params.Url, maxBytes)
	if err != nil {
		h.Logger.Error("failed to fetch image", zap.Error(err), zap.String("url", params.Url), zap.String("hostname", params.Hostname))
		if errors.Is(err, client.ErrTooLarge) {
			return "", fiber.StatusRequestEntityTooLarge, errors.New("image too large")
		}
		return "", fiber.StatusBadGateway, errors.New("failed to fetch image")
	}

	return input, fiber.StatusOK, nil
}

// crunch serves a result from the memory cache, then the S3 tier, and only
// then runs the cruncher. It reports where a cached value came from.
func (h *Handler) crunch(ctx context.Context, params *validation.CrunchContext, input string) (storage.CacheValue, string) {
	source := input
	if params.Url != "" {
		source = params.Url
	}
	key := cacheKey(source, params)
	s3Key := metrics.HashInput(key)

	if value, ok := h.Cache.Get(key); ok {
		h.countCached(cachePlaceResponseHandler)
		return value, cachePlaceResponseHandler
	}

	if h.S3Cache != nil && h.S3Cache.Enabled {
		value, err := h.S3Cache.Get(ctx, s3Key)
		if err != nil {
			h.Logger.Error("failed to read S3 cache", zap.Error(err), zap.String("cache_key", s3Key))
		} else if value != nil {
			h.Cache.Set(key, *value)
			h.countCached(cachePlaceS3Cache)
			return *value, cachePlaceS3Cache
		}
	}

	result := h.Cruncher.Crunch(ctx, input, params.Options()...)

	value := storage.CacheValue{
		Body:         []byte(result.Data),
		ContentType:  result.MIMEType,
		Width:        result.Width,
		Height:       result.Height,
		SourceWidth:  result.SourceWidth,
		SourceHeight: result.SourceHeight,
		Crunched:     result.Crunched,
		Fallback:     result.Fallback.String(),
	}
	if !result.Crunched {
		value.ContentType = datauri.Parse(input).MediaType
	}

	// A canceled crunch says nothing about the image itself.
	if result.Fallback == cruncher.FallbackCanceled {
		return value, ""
	}

	h.Cache.Set(key, value)

	if h.S3Cache != nil && h.S3Cache.Enabled {
		stored := value
		stored.Body = make([]byte, len(value.Body))
		copy(stored.Body, value.Body)
		go func() {
			if err := h.S3Cache.Put(context.Background(), s3Key, stored); err != nil {
				h.Logger.Error("failed to store image in S3 cache", zap.Error(err), zap.String("cache_key", s3Key))
			}
		}()
	}

	h.Logger.Info("image crunched",
		zap.Bool("crunched", result.Crunched),
		zap.String("fallback", result.Fallback.String()),
		zap.String("content_type", value.ContentType),
		zap.String("url", params.Url),
	)

	return value, ""
}

func (h *Handler) countCached(place string) {
	if h.Counters != nil {
		h.Counters.ServedCached.WithLabelValues(place).Inc()
	}
}

func fallbackLabel(value storage.CacheValue) string {
	if value.Crunched || value.Fallback == cruncher.FallbackNone.String() {
		return ""
	}
	return value.Fallback
}

//#endregion
