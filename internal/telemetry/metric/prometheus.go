// Package metric provides Prometheus metrics for servus.
package metric

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Metric identity.
const (
	Namespace = "servus"

	// RequestDurationName is the fully qualified histogram name.
	RequestDurationName = Namespace + "_http_request_duration_seconds"

	requestDurationHelp = "HTTP request duration in seconds as a histogram, by method, path, and status"
)

// Label names of the request duration histogram. The set is closed.
var requestLabels = []string{"method", "path", "status"}

// Registry holds the request duration histogram.
//
// All methods are safe for concurrent use.
type Registry struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	buckets         []float64
}

// Option configures a Registry.
type Option func(*Registry)

// WithBuckets sets the histogram bucket upper bounds. The bounds are fixed
// for the lifetime of the registry.
func WithBuckets(buckets []float64) Option {
	return func(r *Registry) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// NewRegistry creates a registry with its own Prometheus registry, so tests
// and embedded hosts stay isolated from each other.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		buckets:  prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    RequestDurationName,
			Help:    requestDurationHelp,
			Buckets: r.buckets,
		},
		requestLabels,
	)
	r.registry.MustRegister(newRequestDurationCollector(r.requestDuration, r.buckets))

	return r
}

var (
	globalOnce     sync.Once
	globalRegistry *Registry
)

// Global returns the process-wide registry, creating it on first use.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// Observe records one request duration sample.
func (r *Registry) Observe(method, path string, status int, seconds float64) {
	r.requestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(seconds)
}

// Buckets returns a copy of the histogram bucket upper bounds.
func (r *Registry) Buckets() []float64 {
	return append([]float64(nil), r.buckets...)
}

// Gatherer exposes the underlying registry for callers that encode metrics themselves.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Snapshot encodes the current histogram state in the Prometheus text
// exposition format.
func (r *Registry) Snapshot() ([]byte, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}

// Handler returns an HTTP handler exposing the registry. The response format
// and compression follow the request's Accept and Accept-Encoding headers.
//
// A gather or encoding failure means the registry itself is malformed, so the
// handler panics instead of returning an error response.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.PanicOnError,
	})
}
