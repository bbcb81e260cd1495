// Package metrics exposes Prometheus counters and histograms for the
// formatting pipelines and the upload collaborator.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is the process-wide metrics set served by the web channel.
var Collector = NewMetricsCollector(prometheus.NewRegistry())

// MetricsCollector groups every chatfmt metric on one registry.
type MetricsCollector struct {
	registry  *prometheus.Registry
	startTime time.Time

	Responses        *prometheus.CounterVec
	ChunksSent       *prometheus.CounterVec
	InvalidResponses prometheus.Counter
	Uploads          prometheus.Counter
	UploadFailures   prometheus.Counter
	RenderLatency    prometheus.Histogram
}

// NewMetricsCollector registers the chatfmt metrics on reg.
func NewMetricsCollector(reg *prometheus.Registry) *MetricsCollector {
	c := &MetricsCollector{
		registry:  reg,
		startTime: time.Now(),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatfmt_responses_total",
			Help: "Responses dispatched, by pipeline",
		}, []string{"pipeline"}),
		ChunksSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatfmt_chunks_sent_total",
			Help: "Chunks and segments emitted or sent, by pipeline",
		}, []string{"pipeline"}),
		InvalidResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatfmt_invalid_responses_total",
			Help: "Responses with neither a message nor attachments",
		}),
		Uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatfmt_uploads_total",
			Help: "File uploads attempted",
		}),
		UploadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatfmt_upload_failures_total",
			Help: "File uploads that failed",
		}),
		RenderLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatfmt_render_seconds",
			Help:    "Time spent formatting one response",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}
	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "chatfmt_uptime_seconds",
		Help: "Time since start in seconds",
	}, func() float64 { return c.Uptime().Seconds() })

	reg.MustRegister(c.Responses, c.ChunksSent, c.InvalidResponses,
		c.Uploads, c.UploadFailures, c.RenderLatency, uptime)
	return c
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// ObserveRender records the duration since start.
func (c *MetricsCollector) ObserveRender(start time.Time) {
	c.RenderLatency.Observe(time.Since(start).Seconds())
}

// Handler renders the registry in Prometheus text format.
func (c *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
