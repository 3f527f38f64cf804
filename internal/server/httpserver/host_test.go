package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/yndnr/servus-go/internal/telemetry/metric"
)

var testClient = &http.Client{Timeout: 5 * time.Second}

func newTestHost(addrs Addresses, routes *RouteTable, state any, reg *metric.Registry, opts ...HostOption) *Host {
	base := []HostOption{
		WithLogger(discardLogger()),
		WithRegistry(reg),
		WithSignals(syscall.SIGUSR2),
	}
	return NewHost(addrs, routes, state, append(base, opts...)...)
}

func localAddrs() Addresses {
	return Addresses{HTTP: "127.0.0.1:0", Metrics: "127.0.0.1:0"}
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()

	resp, err := testClient.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

// freeAddr returns a loopback address that was free a moment ago.
func freeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestHostState_String(t *testing.T) {
	tests := []struct {
		state HostState
		want  string
	}{
		{StateIdle, "idle"},
		{StateBinding, "binding"},
		{StateRunning, "running"},
		{StateDraining, "draining"},
		{StateStopped, "stopped"},
		{StateErrored, "errored"},
		{HostState(42), "HostState(42)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestNewHost_Defaults(t *testing.T) {
	h := NewHost(localAddrs(), nil, nil)

	if h.State() != StateIdle {
		t.Errorf("State() = %v, want idle", h.State())
	}
	if h.gracePeriod != DefaultGracePeriod {
		t.Errorf("gracePeriod = %v, want %v", h.gracePeriod, DefaultGracePeriod)
	}
	if h.registry != metric.Global() {
		t.Error("registry should default to metric.Global()")
	}
	if h.AppAddr() != "" || h.MetricsAddr() != "" {
		t.Error("addresses should be empty before Serve")
	}
}

func TestHost_ServeRoutesAndMetrics(t *testing.T) {
	reg := metric.NewRegistry()
	routes := NewRouteTable().
		Get("/hello/{name}", func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Fprintf(w, "hello %s", PathParam(r, "name"))
		})
	h := newTestHost(localAddrs(), routes, nil, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := startHost(t, ctx, h)

	if h.State() != StateRunning {
		t.Errorf("State() = %v, want running", h.State())
	}

	code, body := get(t, "http://"+h.AppAddr()+"/hello/world")
	if code != http.StatusOK || body != "hello world" {
		t.Errorf("app response = %d %q", code, body)
	}

	code, _ = get(t, "http://"+h.AppAddr()+"/missing")
	if code != http.StatusNotFound {
		t.Errorf("unmatched status = %d, want 404", code)
	}

	code, body = get(t, "http://"+h.MetricsAddr()+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics status = %d", code)
	}
	want := metric.RequestDurationName + `_count{method="GET",path="/hello/{name}",status="200"} 1`
	if !strings.Contains(body, want) {
		t.Errorf("metrics missing %q:\n%s", want, body)
	}
	if strings.Contains(body, "/missing") || strings.Contains(body, "/hello/world") {
		t.Errorf("metrics contain a raw path:\n%s", body)
	}

	code, body = get(t, "http://"+h.MetricsAddr()+"/health")
	if code != http.StatusOK || body != "" {
		t.Errorf("health response = %d %q", code, body)
	}

	// The application listener does not serve the auxiliary endpoints.
	code, _ = get(t, "http://"+h.AppAddr()+"/metrics")
	if code != http.StatusNotFound {
		t.Errorf("app /metrics status = %d, want 404", code)
	}

	cancel()
	if err := waitServe(t, errCh); err != nil {
		t.Errorf("Serve() = %v, want nil", err)
	}
	if h.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", h.State())
	}
}

func TestHost_NoMetricsAddress(t *testing.T) {
	reg := metric.NewRegistry()
	routes := NewRouteTable().Get("/ping", noop)
	h := newTestHost(Addresses{HTTP: "127.0.0.1:0"}, routes, nil, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := startHost(t, ctx, h)

	if h.MetricsAddr() != "" {
		t.Errorf("MetricsAddr() = %q, want empty", h.MetricsAddr())
	}
	h.mu.RLock()
	n := len(h.servers)
	h.mu.RUnlock()
	if n != 1 {
		t.Errorf("listeners = %d, want 1", n)
	}

	unused := freeAddr(t)
	if conn, err := net.DialTimeout("tcp", unused, time.Second); err == nil {
		conn.Close()
		t.Errorf("dial %s succeeded, want connection refused", unused)
	} else if !errors.Is(err, syscall.ECONNREFUSED) {
		t.Errorf("dial %s error = %v, want ECONNREFUSED", unused, err)
	}

	if code, _ := get(t, "http://"+h.AppAddr()+"/ping"); code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
	if n := observations(t, reg, http.MethodGet, "/ping", "200"); n != 1 {
		t.Errorf("observations = %d, want 1", n)
	}

	cancel()
	if err := waitServe(t, errCh); err != nil {
		t.Errorf("Serve() = %v", err)
	}
}

func TestHost_ConcurrentRequests(t *testing.T) {
	reg := metric.NewRegistry()
	routes := NewRouteTable().Get("/{status}", func(w http.ResponseWriter, r *http.Request) {
		if PathParam(r, "status") == "404" {
			w.WriteHeader(http.StatusNotFound)
		}
	})
	h := newTestHost(Addresses{HTTP: "127.0.0.1:0"}, routes, nil, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := startHost(t, ctx, h)

	client := &http.Client{
		Timeout:   10 * time.Second,
		Transport: &http.Transport{MaxConnsPerHost: 64, MaxIdleConnsPerHost: 64},
	}
	defer client.CloseIdleConnections()

	const n = 1000
	var (
		wg     sync.WaitGroup
		failed atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := "200"
			if i%4 == 0 {
				status = "404"
			}
			resp, err := client.Get("http://" + h.AppAddr() + "/" + status)
			if err != nil {
				failed.Add(1)
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	if f := failed.Load(); f != 0 {
		t.Fatalf("%d requests failed", f)
	}
	if got := observations(t, reg, http.MethodGet, "/{status}", "200"); got != n*3/4 {
		t.Errorf("200 observations = %d, want %d", got, n*3/4)
	}
	if got := observations(t, reg, http.MethodGet, "/{status}", "404"); got != n/4 {
		t.Errorf("404 observations = %d, want %d", got, n/4)
	}

	cancel()
	if err := waitServe(t, errCh); err != nil {
		t.Errorf("Serve() = %v", err)
	}
}

func TestHost_DrainsInFlightRequests(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	routes := NewRouteTable().Get("/slow", func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		_, _ = w.Write([]byte("done"))
	})
	h := newTestHost(localAddrs(), routes, nil, metric.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := startHost(t, ctx, h)
	addr := h.AppAddr()

	type result struct {
		code int
		body string
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		resp, err := testClient.Get("http://" + addr + "/slow")
		if err != nil {
			resCh <- result{err: err}
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		resCh <- result{code: resp.StatusCode, body: string(body), err: err}
	}()

	<-entered
	cancel()

	// New connections are refused once draining starts.
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err != nil {
			break
		}
		conn.Close()
		if time.Now().After(deadline) {
			t.Fatal("listener still accepting after shutdown started")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if h.State() != StateDraining {
		t.Errorf("State() = %v, want draining", h.State())
	}

	close(release)

	res := <-resCh
	if res.err != nil {
		t.Fatalf("in-flight request failed: %v", res.err)
	}
	if res.code != http.StatusOK || res.body != "done" {
		t.Errorf("in-flight response = %d %q", res.code, res.body)
	}

	if err := waitServe(t, errCh); err != nil {
		t.Errorf("Serve() = %v, want nil", err)
	}
	if h.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", h.State())
	}
}

func TestHost_GracePeriodExceeded(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	routes := NewRouteTable().Get("/stuck", func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	h := newTestHost(Addresses{HTTP: "127.0.0.1:0"}, routes, nil, metric.NewRegistry(),
		WithGracePeriod(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := startHost(t, ctx, h)

	go func() {
		resp, err := testClient.Get("http://" + h.AppAddr() + "/stuck")
		if err == nil {
			resp.Body.Close()
		}
	}()

	<-entered
	start := time.Now()
	cancel()

	err := waitServe(t, errCh)
	if !errors.Is(err, ErrGracePeriodExceeded) {
		t.Errorf("Serve() = %v, want ErrGracePeriodExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Serve() returned after %v, expected near the grace period", elapsed)
	}
	if h.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", h.State())
	}
}

func TestHost_SignalStartsShutdown(t *testing.T) {
	h := NewHost(Addresses{HTTP: "127.0.0.1:0"}, nil, nil,
		WithLogger(discardLogger()),
		WithRegistry(metric.NewRegistry()),
		WithSignals(syscall.SIGUSR1))

	errCh := startHost(t, context.Background(), h)

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}

	if err := waitServe(t, errCh); err != nil {
		t.Errorf("Serve() = %v, want nil", err)
	}
}

func TestHost_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Serve(ctx, Addresses{HTTP: "127.0.0.1:0"}, nil, nil,
		WithLogger(discardLogger()),
		WithRegistry(metric.NewRegistry()),
		WithSignals(syscall.SIGUSR2))
	if err != nil {
		t.Errorf("Serve() = %v, want nil", err)
	}
}

func TestHost_AlreadyStarted(t *testing.T) {
	h := newTestHost(Addresses{HTTP: "127.0.0.1:0"}, nil, nil, metric.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := startHost(t, ctx, h)

	if err := h.Serve(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Serve() = %v, want ErrAlreadyStarted", err)
	}

	cancel()
	if err := waitServe(t, errCh); err != nil {
		t.Errorf("Serve() = %v", err)
	}

	if err := h.Serve(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Serve() after stop = %v, want ErrAlreadyStarted", err)
	}
}

func TestHost_InvalidAddress(t *testing.T) {
	tests := []struct {
		name  string
		addrs Addresses
	}{
		{"empty http", Addresses{}},
		{"no port", Addresses{HTTP: "localhost"}},
		{"port out of range", Addresses{HTTP: "127.0.0.1:70000"}},
		{"named port", Addresses{HTTP: "127.0.0.1:http"}},
		{"bad metrics", Addresses{HTTP: "127.0.0.1:0", Metrics: "not an address"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHost(tt.addrs, nil, nil, metric.NewRegistry())

			err := h.Serve(context.Background())
			if !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("Serve() = %v, want ErrInvalidAddress", err)
			}
			if h.State() != StateErrored {
				t.Errorf("State() = %v, want errored", h.State())
			}
		})
	}
}

func TestHost_InvalidRoute(t *testing.T) {
	routes := NewRouteTable().Get("/message/{id", noop)
	h := newTestHost(Addresses{HTTP: "127.0.0.1:0"}, routes, nil, metric.NewRegistry())

	if err := h.Serve(context.Background()); !errors.Is(err, ErrInvalidRoute) {
		t.Errorf("Serve() = %v, want ErrInvalidRoute", err)
	}
	if h.State() != StateErrored {
		t.Errorf("State() = %v, want errored", h.State())
	}
	assertReadyClosed(t, h)
}

func assertReadyClosed(t *testing.T, h *Host) {
	t.Helper()

	select {
	case <-h.Ready():
	case <-time.After(200 * time.Millisecond):
		t.Error("Ready() still open after a failed start")
	}
}

func TestHost_BindFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer occupied.Close()
	busy := occupied.Addr().String()

	t.Run("application", func(t *testing.T) {
		h := newTestHost(Addresses{HTTP: busy, Metrics: "127.0.0.1:0"}, nil, nil, metric.NewRegistry())

		err := h.Serve(context.Background())

		var lerr *ListenerError
		if !errors.As(err, &lerr) {
			t.Fatalf("Serve() = %v, want *ListenerError", err)
		}
		if lerr.Listener != ListenerApplication || lerr.Op != "bind" {
			t.Errorf("ListenerError = %+v", lerr)
		}
		if h.State() != StateErrored {
			t.Errorf("State() = %v, want errored", h.State())
		}
		assertReadyClosed(t, h)
	})

	t.Run("metrics releases application port", func(t *testing.T) {
		app := freeAddr(t)
		h := newTestHost(Addresses{HTTP: app, Metrics: busy}, nil, nil, metric.NewRegistry())

		err := h.Serve(context.Background())

		var lerr *ListenerError
		if !errors.As(err, &lerr) {
			t.Fatalf("Serve() = %v, want *ListenerError", err)
		}
		if lerr.Listener != ListenerMetrics || lerr.Op != "bind" {
			t.Errorf("ListenerError = %+v", lerr)
		}

		ln, err := net.Listen("tcp", app)
		if err != nil {
			t.Fatalf("application port still held: %v", err)
		}
		ln.Close()
	})
}

func TestHost_ListenerFailureDrainsOther(t *testing.T) {
	routes := NewRouteTable().Get("/ping", noop)
	h := newTestHost(localAddrs(), routes, nil, metric.NewRegistry())

	errCh := startHost(t, context.Background(), h)
	appAddr := h.AppAddr()

	// Break the metrics listener underneath its http.Server.
	h.mu.RLock()
	metricsServer := h.servers[1]
	h.mu.RUnlock()
	metricsServer.mu.Lock()
	_ = metricsServer.listener.Close()
	metricsServer.mu.Unlock()

	err := waitServe(t, errCh)

	var lerr *ListenerError
	if !errors.As(err, &lerr) {
		t.Fatalf("Serve() = %v, want *ListenerError", err)
	}
	if lerr.Listener != ListenerMetrics || lerr.Op != "serve" {
		t.Errorf("ListenerError = %+v", lerr)
	}

	if conn, err := net.DialTimeout("tcp", appAddr, 500*time.Millisecond); err == nil {
		conn.Close()
		t.Error("application listener still accepting after metrics failure")
	}
	if h.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", h.State())
	}
}

type counterState struct {
	hits atomic.Int64
}

func TestHost_SharedState(t *testing.T) {
	st := &counterState{}
	routes := NewRouteTable().Get("/hit", func(w http.ResponseWriter, r *http.Request) {
		s, ok := State[*counterState](r)
		if !ok {
			http.Error(w, "no state", http.StatusInternalServerError)
			return
		}
		_, _ = fmt.Fprint(w, s.hits.Add(1))
	})
	h := newTestHost(Addresses{HTTP: "127.0.0.1:0"}, routes, st, metric.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := startHost(t, ctx, h)

	for i := 1; i <= 3; i++ {
		code, body := get(t, "http://"+h.AppAddr()+"/hit")
		if code != http.StatusOK || body != fmt.Sprint(i) {
			t.Errorf("request %d = %d %q", i, code, body)
		}
	}
	if st.hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", st.hits.Load())
	}

	cancel()
	if err := waitServe(t, errCh); err != nil {
		t.Errorf("Serve() = %v", err)
	}
}

func TestHost_RateLimit(t *testing.T) {
	reg := metric.NewRegistry()
	routes := NewRouteTable().Get("/limited", noop)
	h := newTestHost(Addresses{HTTP: "127.0.0.1:0"}, routes, nil, reg, WithRateLimit(0.5, 1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := startHost(t, ctx, h)

	if code, _ := get(t, "http://"+h.AppAddr()+"/limited"); code != http.StatusOK {
		t.Errorf("first status = %d, want 200", code)
	}
	if code, _ := get(t, "http://"+h.AppAddr()+"/limited"); code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", code)
	}

	// A rotated forwarding header does not open a new bucket.
	req, err := http.NewRequest(http.MethodGet, "http://"+h.AppAddr()+"/limited", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.77")
	resp, err := testClient.Do(req)
	if err != nil {
		t.Fatalf("GET /limited: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("forwarded status = %d, want 429", resp.StatusCode)
	}

	// Rejected requests never reach the route, so they are not timed.
	if n := totalObservations(t, reg); n != 1 {
		t.Errorf("total observations = %d, want 1", n)
	}

	cancel()
	if err := waitServe(t, errCh); err != nil {
		t.Errorf("Serve() = %v", err)
	}
}

func TestHost_RateLimitTrustedProxy(t *testing.T) {
	reg := metric.NewRegistry()
	routes := NewRouteTable().Get("/limited", noop)
	h := newTestHost(Addresses{HTTP: "127.0.0.1:0"}, routes, nil, reg, WithRateLimit(0.5, 1), WithTrustedProxy())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := startHost(t, ctx, h)

	request := func(forwarded string) int {
		req, err := http.NewRequest(http.MethodGet, "http://"+h.AppAddr()+"/limited", nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("X-Forwarded-For", forwarded)
		resp, err := testClient.Do(req)
		if err != nil {
			t.Fatalf("GET /limited: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := request("203.0.113.1"); code != http.StatusOK {
		t.Errorf("first status = %d, want 200", code)
	}
	if code := request("203.0.113.1"); code != http.StatusTooManyRequests {
		t.Errorf("repeat status = %d, want 429", code)
	}
	if code := request("203.0.113.2"); code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", code)
	}

	cancel()
	if err := waitServe(t, errCh); err != nil {
		t.Errorf("Serve() = %v", err)
	}
}
