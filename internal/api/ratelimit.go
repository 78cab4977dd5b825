package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// projectLimiter applies a per-project token bucket so one noisy client
// cannot starve the queue for everyone else.
type projectLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newProjectLimiter(rps float64, burst int) *projectLimiter {
	return &projectLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (pl *projectLimiter) Allow(projectID string) bool {
	pl.mu.Lock()
	limiter, ok := pl.limiters[projectID]
	if !ok {
		limiter = rate.NewLimiter(pl.rps, pl.burst)
		pl.limiters[projectID] = limiter
	}
	pl.mu.Unlock()
	return limiter.Allow()
}
