// Package metric provides Prometheus metrics for servus.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// requestDurationCollector wraps the request duration histogram vector.
//
// A HistogramVec exports nothing until its first observation. Scrapers and
// dashboards expect the series to exist from process start, so while the
// vector is empty the collector emits one zero-valued histogram with empty
// label values.
type requestDurationCollector struct {
	vec     *prometheus.HistogramVec
	desc    *prometheus.Desc
	buckets []float64
}

func newRequestDurationCollector(vec *prometheus.HistogramVec, buckets []float64) *requestDurationCollector {
	return &requestDurationCollector{
		vec:     vec,
		desc:    prometheus.NewDesc(RequestDurationName, requestDurationHelp, requestLabels, nil),
		buckets: buckets,
	}
}

// Describe implements prometheus.Collector.
func (c *requestDurationCollector) Describe(ch chan<- *prometheus.Desc) {
	c.vec.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *requestDurationCollector) Collect(ch chan<- prometheus.Metric) {
	inner := make(chan prometheus.Metric)
	go func() {
		c.vec.Collect(inner)
		close(inner)
	}()

	n := 0
	for m := range inner {
		n++
		ch <- m
	}
	if n > 0 {
		return
	}

	empty := make(map[float64]uint64, len(c.buckets))
	for _, upper := range c.buckets {
		empty[upper] = 0
	}
	ch <- prometheus.MustNewConstHistogram(c.desc, 0, 0, empty, "", "", "")
}
