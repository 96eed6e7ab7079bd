package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PerformanceMetrics struct {
	ImageProcessTime *prometheus.HistogramVec
	ImageSizeBytes   *prometheus.HistogramVec
	HTTPRequestTime  *prometheus.HistogramVec
}

func InitializePerformanceMetrics(registry prometheus.Registerer, constLabels prometheus.Labels) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		ImageProcessTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "image_process_time_seconds",
			Help:        "Image processing time in seconds",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"operation"}),

		ImageSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "image_size_bytes",
			Help:        "Decoded image size in bytes",
			ConstLabels: constLabels,
			Buckets:     []float64{1024, 10240, 102400, 1048576, 10485760, 104857600}, // 1KB to 100MB
		}, []string{"direction"}),

		HTTPRequestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_time_seconds",
			Help:        "HTTP request time in seconds",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"hostname"}),
	}

	// Register all metrics
	registry.MustRegister(
		metrics.ImageProcessTime,
		metrics.ImageSizeBytes,
		metrics.HTTPRequestTime,
	)

	return metrics
}

// TimeFunction measures the execution time of a function
func TimeFunction[T any](fn func() (T, error), operation string, metrics *PerformanceMetrics) (T, error) {
	start := time.Now()
	result, err := fn()
	duration := time.Since(start).Seconds()

	if metrics != nil {
		metrics.ImageProcessTime.WithLabelValues(operation).Observe(duration)
	}

	return result, err
}

// ObserveSize records a decoded payload size.
func (m *PerformanceMetrics) ObserveSize(direction string, bytes int) {
	if m == nil || bytes < 0 {
		return
	}
	// direction is "input" or "output"
	m.ImageSizeBytes.WithLabelValues(direction).Observe(float64(bytes))
}

// TimeHTTPRequest measures HTTP request duration
func TimeHTTPRequest(hostname string, metrics *PerformanceMetrics) func() {
	start := time.Now()
	return func() {
		duration := time.Since(start).Seconds()
		if metrics != nil {
			metrics.HTTPRequestTime.WithLabelValues(hostname).Observe(duration)
		}
	}
}
