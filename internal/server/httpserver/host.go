package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/yndnr/servus-go/internal/infra/shutdown"
	"github.com/yndnr/servus-go/internal/server/config"
	"github.com/yndnr/servus-go/internal/telemetry/logger"
	"github.com/yndnr/servus-go/internal/telemetry/metric"
)

// DefaultGracePeriod bounds how long Serve waits for in-flight requests
// once shutdown starts.
const DefaultGracePeriod = 30 * time.Second

// HostState is a position in the host lifecycle.
type HostState int32

const (
	StateIdle HostState = iota
	StateBinding
	StateRunning
	StateDraining
	StateStopped
	StateErrored
)

func (s HostState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBinding:
		return "binding"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("HostState(%d)", int32(s))
	}
}

// Addresses are the listen addresses of a host. Metrics is optional: when
// empty, no metrics or health endpoint exists.
type Addresses struct {
	HTTP    string
	Metrics string
}

// Host runs an application listener and an optional auxiliary listener
// until shutdown.
type Host struct {
	addrs  Addresses
	routes *RouteTable
	state  any

	logger      *slog.Logger
	registry    *metric.Registry
	gracePeriod time.Duration
	rateLimit   rate.Limit
	rateBurst   int
	trustProxy  bool
	signals     []os.Signal

	lifecycle atomic.Int32
	ready     chan struct{}
	readyOnce sync.Once

	mu      sync.RWMutex
	servers []*Server
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithLogger sets the logger for lifecycle events, access logs and
// recovered panics.
func WithLogger(l *slog.Logger) HostOption {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithRegistry sets the metric registry fed by the timing middleware and
// served on /metrics. Defaults to metric.Global().
func WithRegistry(reg *metric.Registry) HostOption {
	return func(h *Host) {
		if reg != nil {
			h.registry = reg
		}
	}
}

// WithGracePeriod bounds the drain. Non-positive values keep the default.
func WithGracePeriod(d time.Duration) HostOption {
	return func(h *Host) {
		if d > 0 {
			h.gracePeriod = d
		}
	}
}

// WithRateLimit enables per-client rate limiting on the application
// listener. A non-positive limit disables it.
func WithRateLimit(perSecond float64, burst int) HostOption {
	return func(h *Host) {
		h.rateLimit = rate.Limit(perSecond)
		h.rateBurst = burst
	}
}

// WithTrustedProxy keys rate limiting on X-Forwarded-For and X-Real-IP
// instead of the peer address. Use it only behind a proxy that overwrites
// those headers.
func WithTrustedProxy() HostOption {
	return func(h *Host) {
		h.trustProxy = true
	}
}

// WithSignals sets the process signals that start shutdown.
// Defaults to shutdown.DefaultSignals.
func WithSignals(sigs ...os.Signal) HostOption {
	return func(h *Host) {
		h.signals = append([]os.Signal(nil), sigs...)
	}
}

// NewHost creates a host. routes may be nil for an application listener
// that answers 404 to everything. state is handed to every application
// request and never modified by the host.
func NewHost(addrs Addresses, routes *RouteTable, state any, opts ...HostOption) *Host {
	if routes == nil {
		routes = NewRouteTable()
	}

	h := &Host{
		addrs:       addrs,
		routes:      routes,
		state:       state,
		logger:      logger.Slog(logger.Default()),
		gracePeriod: DefaultGracePeriod,
		ready:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.registry == nil {
		h.registry = metric.Global()
	}
	return h
}

// Serve binds the listeners and serves until ctx is done, a shutdown
// signal arrives, or a listener fails. It can be called once.
//
// Bind failures return a *ListenerError before any traffic is served. A
// runtime failure of either listener drains the other and returns that
// listener's *ListenerError. If in-flight requests outlive the grace
// period they are cut off and ErrGracePeriodExceeded is returned.
func (h *Host) Serve(ctx context.Context) error {
	if !h.lifecycle.CompareAndSwap(int32(StateIdle), int32(StateBinding)) {
		return ErrAlreadyStarted
	}

	servers, err := h.build()
	if err != nil {
		return h.fail(err)
	}

	tok := shutdown.NewToken()
	if err := tok.Arm(ctx, h.signals...); err != nil {
		return h.fail(fmt.Errorf("arm shutdown: %w", err))
	}
	defer tok.Disarm()

	for i, s := range servers {
		if err := s.Bind(); err != nil {
			for _, bound := range servers[:i] {
				_ = bound.Close()
			}
			return h.fail(err)
		}
	}

	h.mu.Lock()
	h.servers = servers
	h.mu.Unlock()

	for _, s := range servers {
		h.logger.Info("listener started", "listener", s.Name(), "addr", s.Addr())
	}
	h.setState(StateRunning)
	h.markReady()

	drain := shutdown.NewHandler(h.gracePeriod)
	for _, s := range servers {
		drain.OnShutdown(s.Shutdown)
	}

	g, gctx := errgroup.WithContext(context.Background())
	for _, s := range servers {
		g.Go(s.Serve)
	}
	g.Go(func() error {
		select {
		case <-tok.Done():
			if sig := tok.Signal(); sig != nil {
				h.logger.Info("shutdown signal received", "signal", sig.String())
			} else {
				h.logger.Info("shutdown requested")
			}
		case <-gctx.Done():
			h.logger.Error("listener failed, draining remaining listeners")
		}

		h.setState(StateDraining)
		if err := drain.Run(); err != nil {
			for _, s := range servers {
				_ = s.Close()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				h.logger.Warn("grace period exceeded, connections closed", "grace_period", h.gracePeriod)
				return ErrGracePeriodExceeded
			}
			return fmt.Errorf("drain: %w", err)
		}
		return nil
	})

	err = g.Wait()
	h.setState(StateStopped)
	if err != nil {
		h.logger.Error("host stopped with error", "error", err)
		return err
	}
	h.logger.Info("host stopped")
	return nil
}

// build validates the addresses and routes and creates the servers. No
// socket is opened here.
func (h *Host) build() ([]*Server, error) {
	if err := validateAddress(ListenerApplication, h.addrs.HTTP); err != nil {
		return nil, err
	}
	if h.addrs.Metrics != "" {
		if err := validateAddress(ListenerMetrics, h.addrs.Metrics); err != nil {
			return nil, err
		}
	}

	router, err := h.routes.Router(Timing(h.registry), Recover(h.logger))
	if err != nil {
		return nil, err
	}

	chain := []Middleware{RequestID(), AccessLog(h.logger)}
	if h.rateLimit > 0 {
		key := peerIP
		if h.trustProxy {
			key = getClientIP
		}
		chain = append(chain, RateLimitBy(h.rateLimit, h.rateBurst, key))
	}
	if h.state != nil {
		chain = append(chain, WithState(h.state))
	}

	servers := []*Server{New(ListenerApplication, h.addrs.HTTP, Chain(router, chain...), h.logger)}
	if h.addrs.Metrics != "" {
		servers = append(servers, New(ListenerMetrics, h.addrs.Metrics, NewAuxRouter(h.registry), h.logger))
	}
	return servers, nil
}

func validateAddress(listener, addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: %s address is empty", ErrInvalidAddress, listener)
	}
	if err := config.VerifyAddress(addr); err != nil {
		return fmt.Errorf("%w: %s address %q: %v", ErrInvalidAddress, listener, addr, err)
	}
	return nil
}

func (h *Host) fail(err error) error {
	h.setState(StateErrored)
	h.markReady()
	h.logger.Error("host failed to start", "error", err)
	return err
}

func (h *Host) markReady() {
	h.readyOnce.Do(func() { close(h.ready) })
}

func (h *Host) setState(s HostState) {
	h.lifecycle.Store(int32(s))
}

// State returns the current lifecycle state.
func (h *Host) State() HostState {
	return HostState(h.lifecycle.Load())
}

// Ready returns a channel that is closed once startup is over: either
// every listener is bound and the host is Running, or startup failed and
// the host is Errored. Check State after it closes.
func (h *Host) Ready() <-chan struct{} {
	return h.ready
}

// AppAddr returns the bound application address, or "" before Running.
func (h *Host) AppAddr() string {
	return h.serverAddr(ListenerApplication)
}

// MetricsAddr returns the bound auxiliary address, or "" when there is
// no auxiliary listener or the host is not running yet.
func (h *Host) MetricsAddr() string {
	return h.serverAddr(ListenerMetrics)
}

func (h *Host) serverAddr(name string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.servers {
		if s.Name() == name {
			return s.Addr()
		}
	}
	return ""
}

// Serve runs a host until shutdown. See Host.Serve.
func Serve(ctx context.Context, addrs Addresses, routes *RouteTable, state any, opts ...HostOption) error {
	return NewHost(addrs, routes, state, opts...).Serve(ctx)
}
