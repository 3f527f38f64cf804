package handler

import (
	"net/http"

	"github.com/yndnr/servus-go/internal/telemetry/metric"
)

// MetricsPath is where Metrics is mounted on the auxiliary listener.
const MetricsPath = "/metrics"

// Metrics handles GET /metrics with the text exposition of reg.
// A nil registry serves the process-wide one.
func Metrics(reg *metric.Registry) http.Handler {
	if reg == nil {
		reg = metric.Global()
	}
	return reg.Handler()
}
