package metrics

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Crunched     *prometheus.CounterVec
	ServedCached *prometheus.CounterVec
}

func InitializeMetrics(registry prometheus.Registerer, constLabels prometheus.Labels) *Metrics {
	metrics := &Metrics{
		Crunched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "crunched_total",
			Help:        "Number of crunch operations by outcome",
			ConstLabels: constLabels,
		}, []string{"result", "type"}),
		ServedCached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "served_cached",
			Help:        "Number of served responses from cache",
			ConstLabels: constLabels,
		}, []string{"place"}),
	}

	// Register the custom metrics with the Prometheus registry
	registry.MustRegister(metrics.Crunched)
	registry.MustRegister(metrics.ServedCached)

	return metrics
}

// HashInput creates a short hash of an input string, used for cache keys and
// low-cardinality log fields.
func HashInput(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16]) // First 16 bytes keep keys short
}

// CleanHostname removes port numbers and normalizes hostname for metrics
func CleanHostname(hostname string) string {
	if hostname == "" {
		return "unknown"
	}

	// Remove port if present
	if idx := strings.Index(hostname, ":"); idx != -1 {
		hostname = hostname[:idx]
	}

	// Limit hostname length
	if len(hostname) > 50 {
		hostname = hostname[:50]
	}

	return hostname
}
