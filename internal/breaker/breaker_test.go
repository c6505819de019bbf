package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFail = errors.New("fail")

func fail(context.Context) error { return errFail }
func ok(context.Context) error   { return nil }

// newTestBreaker returns a breaker driven by a fake clock.
func newTestBreaker(maxFailures int, reset time.Duration) (*CircuitBreaker, *time.Time) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New("test", maxFailures, reset)
	cb.now = func() time.Time { return clock }
	return cb, &clock
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := New("binance", 3, 100*time.Millisecond)
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed, got %v", cb.CurrentState())
	}
	if cb.Name() != "binance" {
		t.Errorf("expected name binance, got %q", cb.Name())
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, fail); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Errorf("expected Open after 3 failures, got %v", cb.CurrentState())
	}

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn must not run while the breaker is open")
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clock := newTestBreaker(2, time.Second)
	ctx := context.Background()

	cb.Execute(ctx, fail)
	cb.Execute(ctx, fail)
	if cb.CurrentState() != StateOpen {
		t.Fatal("expected Open")
	}

	*clock = clock.Add(2 * time.Second)
	if err := cb.Execute(ctx, ok); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed after successful probe, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_HalfOpenFailure(t *testing.T) {
	cb, clock := newTestBreaker(2, time.Second)
	ctx := context.Background()

	cb.Execute(ctx, fail)
	cb.Execute(ctx, fail)

	*clock = clock.Add(2 * time.Second)
	cb.Execute(ctx, fail)

	if cb.CurrentState() != StateOpen {
		t.Errorf("expected Open after failed probe, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_SingleProbe(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Second)
	ctx := context.Background()
	cb.Execute(ctx, fail)
	*clock = clock.Add(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := cb.Execute(ctx, ok); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second call during probe: expected ErrCircuitOpen, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)
	ctx := context.Background()

	cb.Execute(ctx, fail)
	cb.Execute(ctx, fail)
	cb.Execute(ctx, ok) // resets counter

	cb.Execute(ctx, fail)
	cb.Execute(ctx, fail)

	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed (counter should have reset), got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_CallerCancellationNotCounted(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OnStateChangeCallback(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Second)
	ctx := context.Background()

	var transitions []State
	cb.OnStateChange = func(name string, from, to State) {
		if name != "test" {
			t.Errorf("unexpected breaker name %q", name)
		}
		transitions = append(transitions, to)
	}

	cb.Execute(ctx, fail)
	if len(transitions) != 1 || transitions[0] != StateOpen {
		t.Errorf("expected [Open], got %v", transitions)
	}

	*clock = clock.Add(2 * time.Second)
	cb.Execute(ctx, ok)

	if len(transitions) != 3 {
		t.Fatalf("expected 3 transitions, got %d: %v", len(transitions), transitions)
	}
	if transitions[1] != StateHalfOpen || transitions[2] != StateClosed {
		t.Errorf("expected [Open, HalfOpen, Closed], got %v", transitions)
	}
}

func TestCircuitBreaker_IsFailureFiltersErrors(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Second)
	ctx := context.Background()

	errBadRequest := errors.New("bad request")
	cb.IsFailure = func(err error) bool { return !errors.Is(err, errBadRequest) }
	rejected := func(context.Context) error { return errBadRequest }

	for i := 0; i < 5; i++ {
		if err := cb.Execute(ctx, rejected); err != errBadRequest {
			t.Fatalf("expected errBadRequest, got %v", err)
		}
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("uncounted errors must not open the breaker, got %v", cb.CurrentState())
	}

	cb.Execute(ctx, fail)
	cb.Execute(ctx, fail)
	if cb.CurrentState() != StateOpen {
		t.Errorf("expected Open after 2 counted failures, got %v", cb.CurrentState())
	}
}
