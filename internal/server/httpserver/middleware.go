package httpserver

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/servus-go/internal/telemetry/logger"
	"github.com/yndnr/servus-go/internal/telemetry/metric"
	"github.com/yndnr/servus-go/pkg/cmap"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain chains multiple middlewares together. The first middleware is the
// outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Timing records one request duration observation per request. It is meant
// to be installed as a route layer so that it only sees matched requests;
// the path label is the matched template.
//
// The observation is made on every exit path. A panic that escapes the
// wrapped handler is recorded as 500 and re-raised.
func Timing(reg *metric.Registry) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}

				p := recover()
				if p != nil {
					status = http.StatusInternalServerError
				}
				reg.Observe(r.Method, RoutePattern(r), status, time.Since(start).Seconds())
				if p != nil {
					panic(p)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// Recover recovers from panics and returns 500 error.
func Recover(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					log.Error("panic recovered",
						"request_id", GetRequestIDFromContext(r.Context()),
						"error", err,
						"method", r.Method,
						"path", RoutePattern(r),
					)

					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RequestID adds a unique request ID to each request.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Check for existing request ID in header
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" || len(requestID) > 128 {
				requestID = ulid.Make().String()
			}

			// Add to response header
			w.Header().Set(RequestIDHeader, requestID)

			// Add to request context
			ctx := logger.WithRequestID(r.Context(), requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLog logs one line per request after the response is written.
func AccessLog(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Wrap response writer to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			attrs := []any{
				"request_id", GetRequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"client_ip", getClientIP(r),
			}

			// Log based on status code
			if status >= 500 {
				log.Error("request completed with error", attrs...)
			} else if status >= 400 {
				log.Warn("request completed with client error", attrs...)
			} else {
				log.Info("request completed", attrs...)
			}
		})
	}
}

// limiterIdleTTL is how long a client's limiter survives without requests.
const limiterIdleTTL = 3 * time.Minute

// RateLimit applies rate limiting per peer IP using a token bucket.
// Forwarding headers are ignored, so clients cannot pick their own bucket.
// A burst below 1 defaults to the ceiling of limit. limit must be positive
// and finite.
func RateLimit(limit rate.Limit, burst int) Middleware {
	return RateLimitBy(limit, burst, peerIP)
}

// RateLimitBy is RateLimit with buckets keyed by key(r). Only pass a key
// derived from forwarding headers when a trusted proxy sets them.
func RateLimitBy(limit rate.Limit, burst int, key func(*http.Request) string) Middleware {
	type client struct {
		limiter  *rate.Limiter
		lastSeen atomic.Int64 // unix nanoseconds
	}

	if burst < 1 {
		burst = max(1, int(math.Ceil(float64(limit))))
	}

	// Seconds until the next token, at least one.
	retryAfter := "1"
	if limit > 0 && limit < 1 {
		retryAfter = strconv.Itoa(int(math.Ceil(1 / float64(limit))))
	}

	var (
		clients   = cmap.New[*client]()
		lastSweep atomic.Int64
	)
	lastSweep.Store(time.Now().UnixNano())

	allow := func(ip string) bool {
		now := time.Now()

		// One request per idle period evicts clients that went quiet.
		last := lastSweep.Load()
		if now.UnixNano()-last > int64(limiterIdleTTL) && lastSweep.CompareAndSwap(last, now.UnixNano()) {
			cutoff := now.Add(-limiterIdleTTL).UnixNano()
			clients.DeleteFunc(func(_ string, c *client) bool {
				return c.lastSeen.Load() < cutoff
			})
		}

		c := clients.GetOrCreate(ip, func() *client {
			return &client{limiter: rate.NewLimiter(limit, burst)}
		})
		c.lastSeen.Store(now.UnixNano())
		return c.limiter.AllowN(now, 1)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allow(key(r)) {
				w.Header().Set("Retry-After", retryAfter)
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type stateKey struct{}

// WithState makes state available to handlers through State.
func WithState(state any) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), stateKey{}, state)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// State returns the shared state injected by the host, asserted to S.
// The second result is false when no state was injected or it is not an S.
func State[S any](r *http.Request) (S, bool) {
	return StateFromContext[S](r.Context())
}

// StateFromContext is State for code that only holds the context.
func StateFromContext[S any](ctx context.Context) (S, bool) {
	s, ok := ctx.Value(stateKey{}).(S)
	return s, ok
}

// GetRequestIDFromContext retrieves the request ID from context.
func GetRequestIDFromContext(ctx context.Context) string {
	return logger.RequestIDFromContext(ctx)
}

// getClientIP extracts the client IP from the request, preferring the
// forwarding headers. Those are client controlled unless a proxy rewrites
// them.
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	return peerIP(r)
}

// peerIP returns the host part of the connection's remote address.
func peerIP(r *http.Request) string {
	// net.SplitHostPort handles IPv6 addresses like [::1]:8080
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
