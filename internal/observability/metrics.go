package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Direction labels frame traffic relative to the proxy.
const (
	ClientToServer = "client_to_server"
	ServerToClient = "server_to_client"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amqpwire",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "amqpwire",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amqpwire",
			Subsystem: "tap",
			Name:      "frames_total",
			Help:      "Decoded frames by direction and frame type.",
		},
		[]string{"direction", "type"},
	)
	frameBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amqpwire",
			Subsystem: "tap",
			Name:      "bytes_total",
			Help:      "Relayed bytes by direction.",
		},
		[]string{"direction"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "amqpwire",
			Subsystem: "tap",
			Name:      "decode_errors_total",
			Help:      "Frame decode failures by direction and reason.",
		},
		[]string{"direction", "reason"},
	)
	connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "amqpwire",
			Subsystem: "tap",
			Name:      "connections",
			Help:      "Currently proxied connections.",
		},
	)
	connectionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "amqpwire",
			Subsystem: "tap",
			Name:      "connection_duration_seconds",
			Help:      "Lifetime of proxied connections in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, frames, frameBytes, decodeErrors, connections, connectionDuration)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordFrame(direction, frameType string) {
	RegisterMetrics()
	frames.WithLabelValues(direction, frameType).Inc()
}

func RecordBytes(direction string, n int) {
	RegisterMetrics()
	frameBytes.WithLabelValues(direction).Add(float64(n))
}

func RecordDecodeError(direction, reason string) {
	RegisterMetrics()
	decodeErrors.WithLabelValues(direction, reason).Inc()
}

func ConnectionOpened() {
	RegisterMetrics()
	connections.Inc()
}

func ConnectionClosed(lifetime time.Duration) {
	RegisterMetrics()
	connections.Dec()
	connectionDuration.Observe(lifetime.Seconds())
}
