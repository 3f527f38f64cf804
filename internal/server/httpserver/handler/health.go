package handler

import "net/http"

// HealthPath is where Health is mounted on the auxiliary listener.
const HealthPath = "/health"

// Health handles GET /health. It always answers 200 with an empty body and
// does not probe the application listener.
func Health() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
