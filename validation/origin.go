package validation

import (
	"net/url"
	"strings"
	"sync"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"go.uber.org/zap"
)

// Parsed source URLs are memoized; the map is dropped wholesale once full.
var (
	parsedUrls      = make(map[string]*url.URL)
	parsedUrlsMux   sync.RWMutex
	parsedUrlsLimit = 1000 // Limit cache size
)

// ValidateUrl checks urlStr against the allowed origins. Origins may be exact
// hostnames or wildcard patterns such as "*.example.com". An empty origin list
// allows any http(s) URL.
func ValidateUrl(logger *zap.Logger, urlStr string, origins []string) (valid bool, hostname string) {
	// Check cache first
	parsedUrlsMux.RLock()
	parsedUrl, exists := parsedUrls[urlStr]
	parsedUrlsMux.RUnlock()

	if !exists {
		// Parse URL if not in cache
		var err error
		parsedUrl, err = url.Parse(urlStr)
		if err != nil {
			return false, ""
		}

		// Cache the parsed URL
		parsedUrlsMux.Lock()
		if len(parsedUrls) >= parsedUrlsLimit {
			// Simple eviction: clear cache when it gets too large
			parsedUrls = make(map[string]*url.URL)
		}
		parsedUrls[urlStr] = parsedUrl
		parsedUrlsMux.Unlock()
	}

	return ValidateHostname(logger, parsedUrl, origins)
}

func ValidateHostname(logger *zap.Logger, parsedUrl *url.URL, origins []string) (valid bool, hostname string) {
	if parsedUrl.Scheme != "http" && parsedUrl.Scheme != "https" {
		return false, ""
	}

	hostname = parsedUrl.Hostname()
	if hostname == "" {
		return false, ""
	}

	// No allow-list configured
	if len(origins) == 0 {
		return true, hostname
	}

	// Early return for exact matches
	for _, origin := range origins {
		if origin == hostname {
			logger.Debug("origin matched", zap.String("origin", origin), zap.String("hostname", hostname))
			return true, hostname
		}
	}

	// Check wildcard patterns only if no exact match found
	for _, origin := range origins {
		if strings.Contains(origin, "*") && wildcard.Match(origin, hostname) {
			logger.Debug("origin matched", zap.String("origin", origin), zap.String("hostname", hostname))
			return true, hostname
		}
	}

	return false, ""
}
