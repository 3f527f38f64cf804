package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yndnr/servus-go/internal/server/httpserver/handler"
	"github.com/yndnr/servus-go/internal/telemetry/metric"
)

// NewAuxRouter returns the auxiliary router: GET /metrics and GET /health.
// Every other request gets chi's 404 or 405.
func NewAuxRouter(reg *metric.Registry) http.Handler {
	mux := chi.NewRouter()
	mux.Method(http.MethodGet, handler.MetricsPath, handler.Metrics(reg))
	mux.Method(http.MethodGet, handler.HealthPath, handler.Health())
	return mux
}
