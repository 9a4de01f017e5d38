package security

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiterEntry tracks one identifier's limiter and last access time.
type rateLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter provides per-identifier token-bucket rate limiting. Stale
// entries are swept periodically so the map does not grow without bound.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiterEntry

	rate   rate.Limit
	burst  int
	logger *slog.Logger

	cleanupInterval time.Duration
	staleAfter      time.Duration
	sweepRunning    bool
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewRateLimiter creates a rate limiter allowing requestsPerSecond with
// the given burst per identifier. The background cleanup goroutine is not
// started until the first Allow call, so an unused limiter costs nothing.
func NewRateLimiter(requestsPerSecond float64, burst int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	return &RateLimiter{
		limiters:        make(map[string]*rateLimiterEntry),
		rate:            rate.Limit(requestsPerSecond),
		burst:           burst,
		logger:          logger,
		cleanupInterval: 5 * time.Minute,
		staleAfter:      15 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}
}

// Allow reports whether a request from the given identifier is within its
// rate budget.
func (rl *RateLimiter) Allow(identifier string) bool {
	rl.mu.Lock()
	if !rl.sweepRunning {
		rl.sweepRunning = true
		go rl.cleanupLoop()
	}
	entry, ok := rl.limiters[identifier]
	if !ok {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[identifier] = entry
	}
	entry.lastAccess = time.Now()
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

// Stop terminates the background cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup removes identifiers not seen within staleAfter.
func (rl *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-rl.staleAfter)

	rl.mu.Lock()
	removed := 0
	for id, entry := range rl.limiters {
		if entry.lastAccess.Before(cutoff) {
			delete(rl.limiters, id)
			removed++
		}
	}
	remaining := len(rl.limiters)
	rl.mu.Unlock()

	if removed > 0 {
		rl.logger.Debug("Rate limiter cleanup",
			"removed", removed,
			"remaining", remaining)
	}
}
