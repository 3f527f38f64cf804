// Package handler provides the auxiliary HTTP handlers and small JSON
// helpers shared by servus applications.
//
//   - health.go: GET /health, a constant liveness signal
//   - metrics.go: GET /metrics, the request duration histogram
//   - json.go: JSON request decoding and response writing
package handler
