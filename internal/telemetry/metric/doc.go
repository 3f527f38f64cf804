// Package metric provides Prometheus metrics for servus.
//
// This package implements request latency collection and exposition:
//
//   - prometheus.go: Registry, the request duration histogram and its text snapshot
//   - collector.go: collector that keeps the histogram visible before the first request
//
// The registry holds exactly one histogram, servus_http_request_duration_seconds,
// labeled by method, route template and response status. Label values never
// carry the raw request path, so cardinality stays bounded by the route table.
//
// Metrics are exposed at GET /metrics on the metrics listener.
package metric
