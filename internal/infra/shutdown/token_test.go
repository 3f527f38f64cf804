package shutdown

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestToken_FireBroadcast(t *testing.T) {
	tok := NewToken()

	const waiters = 16
	var wg sync.WaitGroup
	released := make(chan struct{}, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-tok.Done()
			released <- struct{}{}
		}()
	}

	if tok.Fired() {
		t.Fatal("token should not be fired initially")
	}

	tok.Fire()
	tok.Fire() // second fire is a no-op

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not every waiter was released")
	}

	if len(released) != waiters {
		t.Errorf("released %d waiters, want %d", len(released), waiters)
	}
	if !tok.Fired() {
		t.Error("Fired() = false after Fire()")
	}
}

func TestToken_ArmTwice(t *testing.T) {
	tok := NewToken()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tok.Arm(ctx, syscall.SIGUSR1); err != nil {
		t.Fatalf("Arm() error = %v", err)
	}
	defer tok.Disarm()

	if err := tok.Arm(ctx, syscall.SIGUSR1); !errors.Is(err, ErrAlreadyArmed) {
		t.Errorf("second Arm() = %v, want ErrAlreadyArmed", err)
	}
}

func TestToken_ContextCancelFires(t *testing.T) {
	tok := NewToken()
	ctx, cancel := context.WithCancel(context.Background())

	if err := tok.Arm(ctx, syscall.SIGUSR1); err != nil {
		t.Fatalf("Arm() error = %v", err)
	}
	defer tok.Disarm()

	cancel()

	if err := tok.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if tok.Signal() != nil {
		t.Errorf("Signal() = %v, want nil for context cancellation", tok.Signal())
	}
}

func TestToken_SignalFires(t *testing.T) {
	tok := NewToken()

	if err := tok.Arm(context.Background(), syscall.SIGUSR1); err != nil {
		t.Fatalf("Arm() error = %v", err)
	}
	defer tok.Disarm()

	// Send signal to ourselves
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}

	if err := tok.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if tok.Signal() != syscall.SIGUSR1 {
		t.Errorf("Signal() = %v, want SIGUSR1", tok.Signal())
	}
}

func TestToken_DisarmDoesNotFire(t *testing.T) {
	tok := NewToken()

	if err := tok.Arm(context.Background(), syscall.SIGUSR1); err != nil {
		t.Fatalf("Arm() error = %v", err)
	}
	tok.Disarm()
	tok.Disarm() // idempotent

	time.Sleep(20 * time.Millisecond)
	if tok.Fired() {
		t.Error("Disarm() must not fire the token")
	}
}

func TestToken_WaitContext(t *testing.T) {
	tok := NewToken()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := tok.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want DeadlineExceeded", err)
	}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}
