package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"imgcruncher/datauri"
)

var httpClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,              // Maximum number of idle connections
		MaxIdleConnsPerHost: 10,               // Maximum idle connections per host
		IdleConnTimeout:     90 * time.Second, // How long to keep idle connections
		TLSHandshakeTimeout: 10 * time.Second, // TLS handshake timeout
		ForceAttemptHTTP2:   true,             // Enable HTTP/2
	},
	Timeout: 30 * time.Second, // Overall request timeout
}

// GetHTTPClient returns the shared HTTP client
func GetHTTPClient() *http.Client {
	return httpClient
}

// ErrTooLarge is returned when a remote body exceeds the byte limit.
var ErrTooLarge = errors.New("remote image exceeds size limit")

// FetchImage downloads an image and returns it as a base64 data URI. Only
// image content types are accepted and at most maxBytes are read.
func FetchImage(ctx context.Context, url string, maxBytes int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	response, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", response.StatusCode)
	}

	contentType, _, err := mime.ParseMediaType(response.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("failed to parse content type: %w", err)
	}

	if !datauri.IsImageMime(contentType) {
		return "", fmt.Errorf("content type '%s' is not allowed", contentType)
	}

	// Read one byte past the limit to detect oversized bodies
	body, err := io.ReadAll(io.LimitReader(response.Body, maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return "", ErrTooLarge
	}

	return datauri.Encode(contentType, body), nil
}
