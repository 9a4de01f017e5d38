package security

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func newQuietRateLimiter(t *testing.T, requestsPerSecond float64, burst int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(requestsPerSecond, burst, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(rl.Stop)
	return rl
}

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := newQuietRateLimiter(t, 0.0001, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("request beyond burst allowed")
	}
}

func TestRateLimiterIsolatesIdentifiers(t *testing.T) {
	rl := newQuietRateLimiter(t, 0.0001, 1)

	if !rl.Allow("10.0.0.1") {
		t.Fatal("first identifier denied")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("first identifier not limited after burst")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("second identifier affected by first identifier's budget")
	}
}

func TestRateLimiterCleanupRemovesStaleEntries(t *testing.T) {
	rl := newQuietRateLimiter(t, 1, 1)
	rl.Allow("10.0.0.1")

	rl.mu.Lock()
	rl.limiters["10.0.0.1"].lastAccess = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.cleanup()

	rl.mu.Lock()
	_, ok := rl.limiters["10.0.0.1"]
	rl.mu.Unlock()
	if ok {
		t.Error("stale entry survived cleanup")
	}
}

func TestRateLimiterStopIsIdempotent(t *testing.T) {
	rl := newQuietRateLimiter(t, 1, 1)
	rl.Stop()
	rl.Stop()
}

func TestRateLimiterStartsSweepLazily(t *testing.T) {
	rl := newQuietRateLimiter(t, 1, 1)

	rl.mu.Lock()
	running := rl.sweepRunning
	rl.mu.Unlock()
	if running {
		t.Error("sweep goroutine started before first Allow")
	}

	rl.Allow("10.0.0.1")

	rl.mu.Lock()
	running = rl.sweepRunning
	rl.mu.Unlock()
	if !running {
		t.Error("sweep goroutine not started by first Allow")
	}
}

func TestRateLimiterStopBeforeUse(t *testing.T) {
	rl := NewRateLimiter(1, 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rl.Stop()

	// Allow after Stop still answers; the sweep it spawns exits at once.
	if !rl.Allow("10.0.0.1") {
		t.Error("first request denied")
	}
}
