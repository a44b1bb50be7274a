package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "urigallery"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served by the metrics endpoint.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "frames_sent_total",
			Help:      "Frames written to the transport.",
		},
		[]string{"kind"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "frames_received_total",
			Help:      "Inbound transport messages that decoded into a frame.",
		},
		[]string{"kind"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "frames_dropped_total",
			Help:      "Inbound messages discarded by the router.",
		},
		[]string{"reason"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "request_header_seconds",
			Help:      "Time from request send to response header.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "outcome"},
	)
	pendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "pending_requests",
			Help:      "Requests registered with a router and not yet ended.",
		},
	)
	downloadBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gallery",
			Name:      "download_bytes_total",
			Help:      "Image bytes streamed to callers.",
		},
		[]string{"success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			framesSent,
			framesReceived,
			framesDropped,
			requestDuration,
			pendingRequests,
			downloadBytes,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordFrameSent takes a frame kind name, e.g. "HEADER".
func RecordFrameSent(kind string) {
	RegisterMetrics()
	framesSent.WithLabelValues(kind).Inc()
}

func RecordFrameReceived(kind string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(kind).Inc()
}

func RecordFrameDropped(reason string) {
	RegisterMetrics()
	framesDropped.WithLabelValues(reason).Inc()
}

func RecordRequest(method, outcome string, duration time.Duration) {
	RegisterMetrics()
	requestDuration.WithLabelValues(method, outcome).Observe(duration.Seconds())
}

func AddPendingRequests(delta int) {
	RegisterMetrics()
	pendingRequests.Add(float64(delta))
}

func RecordDownload(bytes int64, success bool) {
	RegisterMetrics()
	downloadBytes.WithLabelValues(strconv.FormatBool(success)).Add(float64(bytes))
}
