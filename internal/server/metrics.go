// Package server contains HTTP handlers for the store API.
// This file declares the Prometheus collectors of the ingress pipeline.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter for total HTTP requests by method, route pattern, and status code
	requestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests made.",
		},
		[]string{"method", "route", "code"},
	)

	// Histogram for HTTP request duration by method and route pattern
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	corsRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cors_rejections_total",
			Help: "Total number of requests rejected by the origin guard.",
		},
	)

	bodyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "body_parse_failures_total",
			Help: "Total number of request bodies the interpreter refused, by kind.",
		},
		[]string{"kind"}, // body_parse, payload_too_large
	)

	faultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faults_total",
			Help: "Total number of failures answered by the fault boundary, by kind.",
		},
		[]string{"kind"},
	)
)

// NewMetricsHandler creates a standalone HTTP handler for Prometheus metrics,
// served on its own listener so scraping stays off the public port.
func NewMetricsHandler() http.Handler {
	return promhttp.Handler()
}
