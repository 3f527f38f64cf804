package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// readHeaderTimeout bounds slow clients that never finish their headers.
const readHeaderTimeout = 10 * time.Second

// Server is one named listener and the http.Server that serves it.
type Server struct {
	name       string
	addr       string
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// New creates a server for addr. Nothing is bound until Bind.
func New(name, addr string, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		name: name,
		addr: addr,
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
			ErrorLog:          slog.NewLogLogger(logger.With("listener", name).Handler(), slog.LevelError),
		},
	}
}

// Bind opens the listening socket.
func (s *Server) Bind() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return &ListenerError{Listener: s.name, Addr: s.addr, Op: "bind", Err: err}
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Serve accepts connections until Shutdown or Close. It returns nil when
// the server was stopped on purpose.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	if ln == nil {
		return &ListenerError{Listener: s.name, Addr: s.addr, Op: "serve", Err: errors.New("not bound")}
	}

	err := s.httpServer.Serve(ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return &ListenerError{Listener: s.name, Addr: s.Addr(), Op: "serve", Err: err}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Close closes the listener and every open connection immediately.
func (s *Server) Close() error {
	err := s.httpServer.Close()

	// A listener that was bound but never served is not tracked by http.Server.
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
			err = cerr
		}
	}
	return err
}

// Name returns the listener name.
func (s *Server) Name() string {
	return s.name
}

// Addr returns the bound address, or the configured one before Bind.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
