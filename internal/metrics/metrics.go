// Package metrics exposes Prometheus collectors for ingestion, input
// injection, the queue relay and live streams.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "screenrelay"

// Registry holds every collector in this package.
var Registry = prometheus.NewRegistry()

var (
	framesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "frames_total",
			Help:      "Frames decoded from the capture daemon.",
		},
	)
	bytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "bytes_total",
			Help:      "Frame payload bytes decoded from the capture daemon.",
		},
	)
	frameSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "frame_size_bytes",
			Help:      "Size of decoded frames.",
			Buckets:   prometheus.ExponentialBuckets(4<<10, 2, 10),
		},
	)
	fps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "fps",
			Help:      "Frames counted in the last completed one-second window.",
		},
	)
	inputCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "commands_total",
			Help:      "Input commands received, by action and result.",
		},
		[]string{"action", "result"},
	)
	queueRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "requests_total",
			Help:      "Queue service relay requests, by endpoint and result.",
		},
		[]string{"endpoint", "result"},
	)
	streamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected MJPEG and websocket clients.",
		},
	)
)

var registerMetrics sync.Once

// Register adds all collectors to Registry. Safe to call more than once.
func Register() {
	registerMetrics.Do(func() {
		Registry.MustRegister(
			framesTotal,
			bytesTotal,
			frameSize,
			fps,
			inputCommands,
			queueRequests,
			streamClients,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	Register()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordFrame counts one decoded frame of n bytes.
func RecordFrame(n int) {
	framesTotal.Inc()
	bytesTotal.Add(float64(n))
	frameSize.Observe(float64(n))
}

// SetFPS publishes the count of the last completed window.
func SetFPS(count uint32) {
	fps.Set(float64(count))
}

// RecordInputCommand counts an input command outcome.
func RecordInputCommand(action, result string) {
	inputCommands.WithLabelValues(action, result).Inc()
}

// RecordQueueRequest counts a queue relay outcome.
func RecordQueueRequest(endpoint, result string) {
	queueRequests.WithLabelValues(endpoint, result).Inc()
}

// StreamClientConnected and StreamClientDisconnected track live stream viewers.
func StreamClientConnected()    { streamClients.Inc() }
func StreamClientDisconnected() { streamClients.Dec() }
