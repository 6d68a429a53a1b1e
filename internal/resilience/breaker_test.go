package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("service unavailable")

func TestClosedStateAllowsCalls(t *testing.T) {
	b := NewBreaker(3, time.Second)
	called := false
	err := b.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}

func TestOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Second)

	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), func(context.Context) error { return errTest })
	}

	err := b.Execute(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if got := b.State(); got != "open" {
		t.Errorf("expected state open, got %s", got)
	}
}

func TestTransitionsToHalfOpenAfterTimeout(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	// Trip the breaker
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(context.Context) error { return errTest })
	}

	// Still open
	err := b.Execute(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	// Advance past timeout
	now = now.Add(2 * time.Second)

	if got := b.State(); got != "half-open" {
		t.Errorf("expected state half-open, got %s", got)
	}

	// Should be half-open, allowing one probe
	called := false
	err = b.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error in half-open, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called in half-open")
	}

	// Success should close the circuit
	if got := b.State(); got != "closed" {
		t.Fatalf("expected state closed after half-open success, got %s", got)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	// Trip the breaker
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(context.Context) error { return errTest })
	}

	// Advance past timeout to reach half-open
	now = now.Add(2 * time.Second)

	// Fail in half-open → should reopen
	_ = b.Execute(context.Background(), func(context.Context) error { return errTest })

	if got := b.State(); got != "open" {
		t.Fatalf("expected state open after half-open failure, got %s", got)
	}

	// Calls should be rejected
	err := b.Execute(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after reopen, got %v", err)
	}
}

func TestHalfOpenAdmitsSingleProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Second)
	b.now = func() time.Time { return now }

	// Trip the breaker, then advance past timeout.
	_ = b.Execute(context.Background(), func(context.Context) error { return errTest })
	now = now.Add(2 * time.Second)

	// First probe blocks concurrent callers until it settles.
	probeStarted := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(context.Background(), func(context.Context) error {
			close(probeStarted)
			<-release
			return nil
		})
	}()

	<-probeStarted
	err := b.Execute(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected concurrent probe to be rejected, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("expected probe to succeed, got %v", err)
	}
	if got := b.State(); got != "closed" {
		t.Errorf("expected state closed after probe success, got %s", got)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Second)

	// Two failures
	_ = b.Execute(context.Background(), func(context.Context) error { return errTest })
	_ = b.Execute(context.Background(), func(context.Context) error { return errTest })

	// One success resets
	_ = b.Execute(context.Background(), func(context.Context) error { return nil })

	// Two more failures should not trip (only 2, need 3)
	_ = b.Execute(context.Background(), func(context.Context) error { return errTest })
	_ = b.Execute(context.Background(), func(context.Context) error { return errTest })

	// Still closed
	called := false
	err := b.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}
