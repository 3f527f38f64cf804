package httpserver

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned when Serve is called on a host that has
	// already left the Idle state.
	ErrAlreadyStarted = errors.New("httpserver: host already started")

	// ErrInvalidAddress is returned before any port is opened when a listen
	// address cannot be parsed.
	ErrInvalidAddress = errors.New("httpserver: invalid listen address")

	// ErrInvalidRoute is returned when the route table cannot be turned into
	// a router.
	ErrInvalidRoute = errors.New("httpserver: invalid route")

	// ErrGracePeriodExceeded is returned when in-flight requests did not
	// finish within the grace period and were abandoned.
	ErrGracePeriodExceeded = errors.New("httpserver: grace period exceeded")
)

// Listener names used in logs and ListenerError.
const (
	ListenerApplication = "application"
	ListenerMetrics     = "metrics"
)

// ListenerError reports a bind or serve failure of one listener.
type ListenerError struct {
	Listener string // ListenerApplication or ListenerMetrics
	Addr     string
	Op       string // "bind" or "serve"
	Err      error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("%s listener: %s %s: %v", e.Listener, e.Op, e.Addr, e.Err)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}
