// Package shutdown provides graceful shutdown handling.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ErrAlreadyArmed is returned when Arm is called more than once.
var ErrAlreadyArmed = errors.New("shutdown: token already armed")

// DefaultSignals are the signals a Token listens for when none are given.
var DefaultSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// Token is a single-fire shutdown broadcast.
//
// It moves from armed to fired exactly once. Any number of goroutines may
// wait on Done; all of them are released when the token fires.
type Token struct {
	mu       sync.Mutex
	armed    bool
	disarmed bool
	sigCh    chan os.Signal
	stop     chan struct{}
	once     sync.Once
	fired    chan struct{}
	signal   os.Signal
}

// NewToken creates an unarmed token.
func NewToken() *Token {
	return &Token{
		fired: make(chan struct{}),
		stop:  make(chan struct{}),
	}
}

// Arm registers the process signal handler. The token fires on the first
// of the given signals (DefaultSignals if none) or when ctx is done.
func (t *Token) Arm(ctx context.Context, sigs ...os.Signal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.armed {
		return ErrAlreadyArmed
	}
	if len(sigs) == 0 {
		sigs = DefaultSignals
	}

	t.sigCh = make(chan os.Signal, 1)
	signal.Notify(t.sigCh, sigs...)
	t.armed = true

	go t.watch(ctx, t.sigCh)
	return nil
}

func (t *Token) watch(ctx context.Context, sigCh <-chan os.Signal) {
	select {
	case sig := <-sigCh:
		t.mu.Lock()
		t.signal = sig
		t.mu.Unlock()
		t.Fire()
	case <-ctx.Done():
		t.Fire()
	case <-t.stop:
	}
}

// Fire triggers the token. Calls after the first are no-ops.
func (t *Token) Fire() {
	t.once.Do(func() {
		close(t.fired)
	})
}

// Done returns a channel that is closed once the token fires.
func (t *Token) Done() <-chan struct{} {
	return t.fired
}

// Fired reports whether the token has fired.
func (t *Token) Fired() bool {
	select {
	case <-t.fired:
		return true
	default:
		return false
	}
}

// Wait blocks until the token fires or ctx is done.
func (t *Token) Wait(ctx context.Context) error {
	select {
	case <-t.fired:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Signal returns the signal that fired the token, or nil if it was fired
// another way.
func (t *Token) Signal() os.Signal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.signal
}

// Disarm releases the signal registration. It does not fire the token.
func (t *Token) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.armed || t.disarmed {
		return
	}
	signal.Stop(t.sigCh)
	close(t.stop)
	t.disarmed = true
}
