// Package httpserver hosts an application route table next to an optional
// auxiliary metrics and health listener.
//
// A Host binds both listeners, runs each in its own goroutine, times every
// request that matched a declared route, and drains both listeners when the
// shutdown token fires:
//
//   - routes.go: RouteTable declaration, path parameters, matched templates
//   - middleware.go: Timing, Recover, RequestID, AccessLog, RateLimit, state injection
//   - aux.go: /metrics and /health router
//   - server.go: one bound listener and its http.Server
//   - host.go: lifecycle Idle, Binding, Running, Draining, Stopped (or Errored)
//
// Runtime failure of either listener is fatal: the sibling is drained and
// Serve returns the failing listener's error.
package httpserver
