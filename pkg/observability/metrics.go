package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. A nil
// *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Event pipeline
	EventsSubmitted  *prometheus.CounterVec
	EventsLogged     *prometheus.CounterVec
	ReducerOutcomes  *prometheus.CounterVec
	PublishFailures  prometheus.Counter
	FanoutDeliveries *prometheus.CounterVec

	// Websocket
	Subscribers prometheus.Gauge
}

// NewCollector creates a collector with its own registry, so several can
// coexist in one process.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		EventsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_submitted_total",
			Help:      "Events accepted for broadcast, by type",
		}, []string{"type"}),
		EventsLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_logged_total",
			Help:      "Event log writes, by result (created or duplicate)",
		}, []string{"result"}),
		ReducerOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reducer_outcomes_total",
			Help:      "Snapshot reductions, by outcome",
		}, []string{"outcome"}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Failed attempts to publish to the broadcast channel",
		}),
		FanoutDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_deliveries_total",
			Help:      "Per-subscriber deliveries, by result",
		}, []string{"result"}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_subscribers",
			Help:      "Currently connected websocket subscribers",
		}),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.EventsSubmitted,
		c.EventsLogged,
		c.ReducerOutcomes,
		c.PublishFailures,
		c.FanoutDeliveries,
		c.Subscribers,
	)
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, route, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordSubmitted counts an accepted submission.
func (c *Collector) RecordSubmitted(eventType string) {
	if c == nil {
		return
	}
	c.EventsSubmitted.WithLabelValues(eventType).Inc()
}

// RecordLogged counts a log append, split by created or duplicate.
func (c *Collector) RecordLogged(created bool) {
	if c == nil {
		return
	}
	result := "duplicate"
	if created {
		result = "created"
	}
	c.EventsLogged.WithLabelValues(result).Inc()
}

// RecordReduction counts a reducer outcome.
func (c *Collector) RecordReduction(outcome string) {
	if c == nil {
		return
	}
	c.ReducerOutcomes.WithLabelValues(outcome).Inc()
}

// RecordPublishFailure counts a failed publish or topic check.
func (c *Collector) RecordPublishFailure() {
	if c == nil {
		return
	}
	c.PublishFailures.Inc()
}

// RecordDelivery counts one fan-out delivery attempt by result.
func (c *Collector) RecordDelivery(result string) {
	if c == nil {
		return
	}
	c.FanoutDeliveries.WithLabelValues(result).Inc()
}

// SubscriberConnected and SubscriberDisconnected track open subscriptions.
func (c *Collector) SubscriberConnected() {
	if c == nil {
		return
	}
	c.Subscribers.Inc()
}

func (c *Collector) SubscriberDisconnected() {
	if c == nil {
		return
	}
	c.Subscribers.Dec()
}
