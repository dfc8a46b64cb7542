// internal/gateway/metrics/collector.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Skip reasons
const (
	SkipUnroutable = "unroutable"
	SkipStatus     = "status"
	SkipMalformed  = "malformed"
	SkipPanic      = "panic"
)

// Lookup outcomes
const (
	LookupOK     = "ok"
	LookupFailed = "failed"
)

// Publish results
const (
	PublishOK      = "ok"
	PublishError   = "error"
	PublishTimeout = "timeout"
)

// Collector holds the notifier's Prometheus metrics on a private registry.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	eventsPublished *prometheus.CounterVec
	eventsSkipped   *prometheus.CounterVec
	lookupsTotal    *prometheus.CounterVec
	publishTotal    *prometheus.CounterVec
	publishDropped  prometheus.Counter
	queueDepth      prometheus.Gauge

	registry  *prometheus.Registry
	startTime time.Time
}

// NewCollector creates and registers all metrics.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_requests_total",
				Help: "Total number of proxied storage requests",
			},
			[]string{"method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifier_request_duration_seconds",
				Help:    "Storage request latency in seconds, including notification work",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_events_published_total",
				Help: "Events handed to the publisher",
			},
			[]string{"event_type"},
		),
		eventsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_events_skipped_total",
				Help: "Notifiable requests that produced no event",
			},
			[]string{"reason"},
		),
		lookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_lookups_total",
				Help: "Metadata lookup probes issued against the downstream handler",
			},
			[]string{"outcome"},
		),
		publishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_publish_total",
				Help: "Notifications sent through a bus driver",
			},
			[]string{"driver", "result"},
		),
		publishDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "notifier_publish_dropped_total",
				Help: "Notifications dropped because the send buffer was full or closed",
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "notifier_queue_depth",
				Help: "Notifications waiting to be sent",
			},
		),
		registry:  registry,
		startTime: time.Now(),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.eventsPublished,
		c.eventsSkipped,
		c.lookupsTotal,
		c.publishTotal,
		c.publishDropped,
		c.queueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// RecordRequest records metrics for a proxied request
func (c *Collector) RecordRequest(method string, status int, duration time.Duration) {
	c.requestsTotal.WithLabelValues(method, statusClass(status)).Inc()
	c.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (c *Collector) RecordPublished(eventType string) {
	c.eventsPublished.WithLabelValues(eventType).Inc()
}

func (c *Collector) RecordSkipped(reason string) {
	c.eventsSkipped.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordLookup(outcome string) {
	c.lookupsTotal.WithLabelValues(outcome).Inc()
}

// RecordSend records the result of one driver send.
func (c *Collector) RecordSend(driver, result string) {
	c.publishTotal.WithLabelValues(driver, result).Inc()
}

func (c *Collector) RecordDropped() {
	c.publishDropped.Inc()
}

// SetQueueDepth reports the publisher's buffer occupancy.
func (c *Collector) SetQueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

// Uptime returns the uptime duration
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Handler returns the Prometheus metrics handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// SkippedCounter exposes the skip counter for one reason.
func (c *Collector) SkippedCounter(reason string) prometheus.Counter {
	return c.eventsSkipped.WithLabelValues(reason)
}

// LookupCounter exposes the lookup counter for one outcome.
func (c *Collector) LookupCounter(outcome string) prometheus.Counter {
	return c.lookupsTotal.WithLabelValues(outcome)
}

// SendCounter exposes the send counter for one driver and result.
func (c *Collector) SendCounter(driver, result string) prometheus.Counter {
	return c.publishTotal.WithLabelValues(driver, result)
}

// DroppedCounter exposes the dropped-notification counter.
func (c *Collector) DroppedCounter() prometheus.Counter {
	return c.publishDropped
}

// QueueDepthGauge exposes the buffer occupancy gauge.
func (c *Collector) QueueDepthGauge() prometheus.Gauge {
	return c.queueDepth
}
