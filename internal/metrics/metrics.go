// Package metrics provides Prometheus collectors for the transfer client.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the client's Prometheus metrics. A nil *Collector is a
// valid no-op recorder, so callers never need to branch on whether metrics
// are enabled.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	bytesUploaded   prometheus.Counter
	partsTotal      *prometheus.CounterVec
	uploadsTotal    *prometheus.CounterVec
}

// NewCollector creates a Collector with its own private registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tencos",
			Name:      "requests_total",
			Help:      "COS requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tencos",
			Name:      "request_duration_seconds",
			Help:      "COS request latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		bytesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tencos",
			Name:      "uploaded_bytes_total",
			Help:      "Total object bytes sent, simple and multipart.",
		}),
		partsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tencos",
			Name:      "parts_total",
			Help:      "Multipart part uploads by outcome.",
		}, []string{"outcome"}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tencos",
			Name:      "uploads_total",
			Help:      "Whole-object uploads by route and outcome.",
		}, []string{"route", "outcome"}),
	}

	c.registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.bytesUploaded,
		c.partsTotal,
		c.uploadsTotal,
	)
	return c
}

// Registry returns the private registry for exposition.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// outcomeLabel maps an error presence to a label value.
func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveRequest records one HTTP exchange.
func (c *Collector) ObserveRequest(operation string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(operation, outcomeLabel(err)).Inc()
	c.requestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// AddUploadedBytes records object payload bytes sent.
func (c *Collector) AddUploadedBytes(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.bytesUploaded.Add(float64(n))
}

// ObservePart records one part upload attempt.
func (c *Collector) ObservePart(err error) {
	if c == nil {
		return
	}
	c.partsTotal.WithLabelValues(outcomeLabel(err)).Inc()
}

// ObserveUpload records one whole-object upload.
func (c *Collector) ObserveUpload(route string, err error) {
	if c == nil {
		return
	}
	c.uploadsTotal.WithLabelValues(route, outcomeLabel(err)).Inc()
}
