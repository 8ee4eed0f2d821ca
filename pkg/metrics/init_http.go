package metrics

import "github.com/prometheus/client_golang/prometheus"

func (r *Registry) initHTTPMetrics() {
	r.HTTPRequestsTotal = r.counterVec("http_requests_total",
		"Total number of HTTP requests to the ops endpoint",
		"method", "path", "status")

	r.HTTPRequestDuration = r.histogramVec("http_request_duration_seconds",
		"Ops endpoint request latency in seconds",
		prometheus.DefBuckets,
		"method", "path", "status")

	r.HTTPRequestsInFlight = r.gauge("http_requests_in_flight",
		"Current number of ops endpoint requests being processed")
}
