package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Route is one declared (method, template, handler) entry.
type Route struct {
	Method  string
	Pattern string
	Handler http.Handler
}

// RouteTable collects application routes. Templates use chi syntax, for
// example "/message/{id}"; the template, never the raw path, labels the
// request duration histogram.
//
// A RouteTable is not safe for concurrent mutation. It is read once when a
// host starts.
type RouteTable struct {
	routes []Route
}

// NewRouteTable creates an empty route table.
func NewRouteTable() *RouteTable {
	return &RouteTable{}
}

// Handle declares a route.
func (t *RouteTable) Handle(method, pattern string, h http.Handler) *RouteTable {
	t.routes = append(t.routes, Route{Method: strings.ToUpper(method), Pattern: pattern, Handler: h})
	return t
}

// HandleFunc declares a route backed by a handler function.
func (t *RouteTable) HandleFunc(method, pattern string, h http.HandlerFunc) *RouteTable {
	if h == nil {
		return t.Handle(method, pattern, nil)
	}
	return t.Handle(method, pattern, h)
}

// Get declares a GET route.
func (t *RouteTable) Get(pattern string, h http.HandlerFunc) *RouteTable {
	return t.HandleFunc(http.MethodGet, pattern, h)
}

// Post declares a POST route.
func (t *RouteTable) Post(pattern string, h http.HandlerFunc) *RouteTable {
	return t.HandleFunc(http.MethodPost, pattern, h)
}

// Put declares a PUT route.
func (t *RouteTable) Put(pattern string, h http.HandlerFunc) *RouteTable {
	return t.HandleFunc(http.MethodPut, pattern, h)
}

// Patch declares a PATCH route.
func (t *RouteTable) Patch(pattern string, h http.HandlerFunc) *RouteTable {
	return t.HandleFunc(http.MethodPatch, pattern, h)
}

// Delete declares a DELETE route.
func (t *RouteTable) Delete(pattern string, h http.HandlerFunc) *RouteTable {
	return t.HandleFunc(http.MethodDelete, pattern, h)
}

// Routes returns a copy of the declared routes.
func (t *RouteTable) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

// Len returns the number of declared routes.
func (t *RouteTable) Len() int {
	return len(t.routes)
}

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodConnect: true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// Validate checks every route without building a router.
func (t *RouteTable) Validate() error {
	seen := make(map[string]bool, len(t.routes))
	for _, rt := range t.routes {
		if !knownMethods[rt.Method] {
			return fmt.Errorf("%w: unsupported method %q for %s", ErrInvalidRoute, rt.Method, rt.Pattern)
		}
		if !strings.HasPrefix(rt.Pattern, "/") {
			return fmt.Errorf("%w: template %q must start with /", ErrInvalidRoute, rt.Pattern)
		}
		if rt.Handler == nil {
			return fmt.Errorf("%w: nil handler for %s %s", ErrInvalidRoute, rt.Method, rt.Pattern)
		}
		key := rt.Method + " " + rt.Pattern
		if seen[key] {
			return fmt.Errorf("%w: duplicate route %s", ErrInvalidRoute, key)
		}
		seen[key] = true
	}
	return nil
}

// Router builds a chi router for the table. The layers wrap each declared
// route only, so they run after a route matched and never for the
// router's not-found or method-not-allowed responses.
func (t *RouteTable) Router(layers ...Middleware) (router http.Handler, err error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	// chi panics on malformed templates such as unbalanced braces.
	defer func() {
		if p := recover(); p != nil {
			router = nil
			err = fmt.Errorf("%w: %v", ErrInvalidRoute, p)
		}
	}()

	inline := make([]func(http.Handler) http.Handler, len(layers))
	for i, m := range layers {
		inline[i] = m
	}

	mux := chi.NewRouter()
	for _, rt := range t.routes {
		mux.With(inline...).Method(rt.Method, rt.Pattern, rt.Handler)
	}
	return mux, nil
}

// PathParam returns the value of the named template parameter.
func PathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// RoutePattern returns the template of the route that matched r, or ""
// when r was not dispatched by a route table router.
func RoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}
