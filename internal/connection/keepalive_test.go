package connection

import (
	"context"
	"testing"
	"time"
)

func TestKeepAlive_Expires(t *testing.T) {
	k := newKeepAlive(30 * time.Millisecond)

	start := time.Now()
	err := k.run(context.Background())
	if err != ErrStaleConnection {
		t.Fatalf("run() = %v, want ErrStaleConnection", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("expired after %v, before the timeout", elapsed)
	}
}

func TestKeepAlive_TouchExtendsDeadline(t *testing.T) {
	k := newKeepAlive(50 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- k.run(context.Background()) }()

	// Keep touching for well past one timeout.
	stop := time.After(150 * time.Millisecond)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-stop:
			break loop
		case <-ticker.C:
			k.touch()
		case err := <-done:
			t.Fatalf("keepalive expired while active: %v", err)
		}
	}

	select {
	case err := <-done:
		if err != ErrStaleConnection {
			t.Errorf("run() = %v, want ErrStaleConnection", err)
		}
	case <-time.After(time.Second):
		t.Fatal("keepalive did not expire after activity stopped")
	}
}

func TestKeepAlive_ContextCancel(t *testing.T) {
	k := newKeepAlive(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- k.run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() = %v, want nil after cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not return after cancel")
	}
}
