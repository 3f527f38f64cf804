// Package shutdown provides graceful shutdown handling.
package shutdown

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Hook drains one resource. It must return once ctx is done.
type Hook func(context.Context) error

// Handler runs drain hooks when shutdown starts.
type Handler struct {
	timeout time.Duration
	hooks   []Hook
	mu      sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// NewHandler creates a new shutdown handler whose hooks share one deadline
// of the given length.
func NewHandler(timeout time.Duration) *Handler {
	return &Handler{
		timeout: timeout,
		hooks:   make([]Hook, 0),
		done:    make(chan struct{}),
	}
}

// OnShutdown registers a shutdown hook.
func (h *Handler) OnShutdown(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// Wait blocks until tok fires or ctx is done, then runs the hooks.
func (h *Handler) Wait(ctx context.Context, tok *Token) error {
	select {
	case <-tok.Done():
	case <-ctx.Done():
	}
	return h.Run()
}

// Run executes all hooks concurrently under the handler timeout and
// returns their joined errors. Only the first call runs the hooks.
func (h *Handler) Run() error {
	var err error
	ran := false
	h.once.Do(func() {
		ran = true
		err = h.run()
		close(h.done)
	})
	if !ran {
		<-h.done
	}
	return err
}

func (h *Handler) run() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := make([]Hook, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	errs := make([]error, len(hooks))
	var wg sync.WaitGroup
	for i, hook := range hooks {
		wg.Add(1)
		go func(i int, hook Hook) {
			defer wg.Done()
			errs[i] = hook(ctx)
		}(i, hook)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Timeout returns the drain deadline length.
func (h *Handler) Timeout() time.Duration {
	return h.timeout
}

// Done returns a channel that closes when shutdown is complete.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
