package validation

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"imgcruncher/config"
	"imgcruncher/cruncher"
)

// CrunchContext is a validated crunch request. Exactly one of Image and Url is
// set.
type CrunchContext struct {
	Image string
	Url   string

	Quality float64

	MaxWidth  int
	MaxHeight int

	Interpolation resize.InterpolationFunction

	Hostname string
}

func (c *CrunchContext) String() string {
	return fmt.Sprintf("quality=%g;maxWidth=%d;maxHeight=%d;interpolation=%d", c.Quality, c.MaxWidth, c.MaxHeight, c.Interpolation)
}

// Options converts the context into cruncher options.
func (c *CrunchContext) Options() []cruncher.Option {
	return []cruncher.Option{
		cruncher.WithQuality(c.Quality),
		cruncher.WithMaxSize(c.MaxWidth, c.MaxHeight),
		cruncher.WithInterpolation(c.Interpolation),
	}
}

// CrunchRequest is the JSON body of POST /crunch.
type CrunchRequest struct {
	Image         string   `json:"image"`
	Url           string   `json:"url"`
	Quality       *float64 `json:"quality"`
	MaxWidth      int      `json:"maxWidth"`
	MaxHeight     int      `json:"maxHeight"`
	Interpolation *int     `json:"interpolation"`
}

// SizeRequest is the JSON body of POST /size.
type SizeRequest struct {
	Image string `json:"image"`
	Unit  string `json:"unit"`
}

// SizeContext is a validated size request; Unit is already normalized.
type SizeContext struct {
	Image string
	Unit  string
}

// ProcessCrunchRequest parses and validates a POST /crunch body.
func ProcessCrunchRequest(logger *zap.Logger, c *fiber.Ctx, config *config.Config) (ok bool, status int, params *CrunchContext, err error) {
	var request CrunchRequest
	if err := c.BodyParser(&request); err != nil {
		return false, fiber.StatusBadRequest, nil, fmt.Errorf("invalid request body: %w", err)
	}

	return ValidateCrunchRequest(logger, &request, config)
}

// ValidateCrunchRequest applies configured defaults and range checks.
func ValidateCrunchRequest(logger *zap.Logger, request *CrunchRequest, config *config.Config) (ok bool, status int, params *CrunchContext, err error) {
	if (request.Image == "") == (request.Url == "") {
		return false, fiber.StatusBadRequest, nil, fmt.Errorf("exactly one of image or url is required")
	}

	params = &CrunchContext{
		Image:         request.Image,
		Quality:       config.Crunch.Quality,
		MaxWidth:      config.Crunch.MaxWidth,
		MaxHeight:     config.Crunch.MaxHeight,
		Interpolation: resize.Lanczos3,
	}

	if request.Url != "" {
		valid, hostname := ValidateUrl(logger, request.Url, config.AllowedOrigins)
		if !valid {
			return false, fiber.StatusForbidden, nil, fmt.Errorf("url is not allowed")
		}
		params.Url = request.Url
		params.Hostname = hostname
	}

	if request.Quality != nil {
		if *request.Quality < 0 || *request.Quality > 1 {
			return false, fiber.StatusBadRequest, nil, fmt.Errorf("quality must be between 0 and 1")
		}
		params.Quality = *request.Quality
	}

	if request.MaxWidth < 0 || request.MaxHeight < 0 {
		return false, fiber.StatusBadRequest, nil, fmt.Errorf("maxWidth and maxHeight must not be negative")
	}
	if request.MaxWidth > 0 {
		params.MaxWidth = request.MaxWidth
	}
	if request.MaxHeight > 0 {
		params.MaxHeight = request.MaxHeight
	}

	if request.Interpolation != nil {
		if *request.Interpolation < 0 || *request.Interpolation > 5 {
			return false, fiber.StatusBadRequest, nil, fmt.Errorf("interpolation must be between 0 and 5")
		}
		params.Interpolation = resize.InterpolationFunction(*request.Interpolation)
	}

	return true, fiber.StatusOK, params, nil
}

// ProcessSizeRequest parses and validates a POST /size body. Any unit is
// accepted; unknown units are answered in megabytes.
func ProcessSizeRequest(c *fiber.Ctx) (ok bool, status int, params *SizeContext, err error) {
	var request SizeRequest
	if err := c.BodyParser(&request); err != nil {
		return false, fiber.StatusBadRequest, nil, fmt.Errorf("invalid request body: %w", err)
	}

	if request.Image == "" {
		return false, fiber.StatusBadRequest, nil, fmt.Errorf("image is required")
	}

	return true, fiber.StatusOK, &SizeContext{
		Image: request.Image,
		Unit:  cruncher.NormalizeUnit(request.Unit),
	}, nil
}

// PathParams holds the parsed parameters from the URL path
type PathParams struct {
	Quality       int
	MaxWidth      int
	MaxHeight     int
	Interpolation resize.InterpolationFunction
	EncodedURL    string
}

// ParsePathParams extracts parameters from the URL path. Quality is a
// percentage; zero values mean "use the configured default".
// Expected format: q:60/w:1920/h:1080/i:3/{base64-url}
func ParsePathParams(pathParams string) (*PathParams, error) {
	params := &PathParams{
		Interpolation: resize.Lanczos3,
	}

	parts := strings.Split(strings.Trim(pathParams, "/"), "/")
	if len(parts) == 0 || parts[len(parts)-1] == "" {
		return nil, fmt.Errorf("no path parameters found")
	}

	lastPart := parts[len(parts)-1]
	if strings.Contains(lastPart, ":") {
		return nil, fmt.Errorf("encoded url is required")
	}
	params.EncodedURL = lastPart
	parseOptionParts(params, parts[:len(parts)-1])

	return params, nil
}

// ParseUploadPathParams extracts crunch options from an upload path. Every
// segment is an option; the path may be empty.
// Expected format: q:60/w:1920/h:1080/i:3
func ParseUploadPathParams(pathParams string) *PathParams {
	params := &PathParams{
		Interpolation: resize.Lanczos3,
	}

	trimmed := strings.Trim(pathParams, "/")
	if trimmed != "" {
		parseOptionParts(params, strings.Split(trimmed, "/"))
	}

	return params
}

// parseOptionParts applies key:value segments; unknown keys and invalid
// values are ignored.
func parseOptionParts(params *PathParams, parts []string) {
	for _, part := range parts {
		key, value, found := strings.Cut(part, ":")
		if !found {
			continue
		}

		switch key {
		case "q", "quality":
			if q, err := strconv.Atoi(value); err == nil && q >= 1 && q <= 100 {
				params.Quality = q
			}
		case "w", "width":
			if w, err := strconv.Atoi(value); err == nil && w > 0 {
				params.MaxWidth = w
			}
		case "h", "height":
			if h, err := strconv.Atoi(value); err == nil && h > 0 {
				params.MaxHeight = h
			}
		case "i", "interpolation":
			if i, err := strconv.Atoi(value); err == nil && i >= 0 && i <= 5 {
				params.Interpolation = resize.InterpolationFunction(i)
			}
		}
	}
}

// DecodeURL decodes a base64 URL-safe encoded URL, padded or not.
func DecodeURL(encodedURL string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encodedURL, "="))
	if err != nil {
		return "", fmt.Errorf("failed to decode URL: %w", err)
	}
	return string(decoded), nil
}

// ProcessCrunchContextFromPath validates a GET /images/* request.
func ProcessCrunchContextFromPath(logger *zap.Logger, pathParams string, config *config.Config) (ok bool, status int, params *CrunchContext, err error) {
	parsed, err := ParsePathParams(pathParams)
	if err != nil {
		return false, fiber.StatusBadRequest, nil, fmt.Errorf("invalid path parameters: %w", err)
	}

	urlParam, err := DecodeURL(parsed.EncodedURL)
	if err != nil {
		return false, fiber.StatusBadRequest, nil, err
	}

	request := pathRequest(parsed)
	request.Url = urlParam

	return ValidateCrunchRequest(logger, request, config)
}

// ProcessCrunchUploadFromPath validates a POST /images/* upload. image is the
// uploaded file as a data URI.
func ProcessCrunchUploadFromPath(logger *zap.Logger, pathParams string, image string, config *config.Config) (ok bool, status int, params *CrunchContext, err error) {
	request := pathRequest(ParseUploadPathParams(pathParams))
	request.Image = image

	return ValidateCrunchRequest(logger, request, config)
}

func pathRequest(parsed *PathParams) *CrunchRequest {
	request := &CrunchRequest{
		MaxWidth:  parsed.MaxWidth,
		MaxHeight: parsed.MaxHeight,
	}
	if parsed.Quality > 0 {
		quality := float64(parsed.Quality) / 100
		request.Quality = &quality
	}
	interpolation := int(parsed.Interpolation)
	request.Interpolation = &interpolation

	return request
}
