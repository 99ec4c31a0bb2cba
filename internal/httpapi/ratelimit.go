package httpapi

import (
	"sync"

	"golang.org/x/time/rate"
)

// userLimiter rate-limits generation requests per user. Generation holds a
// renderer subprocess for seconds at a time, so the ceiling is low.
type userLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

func newUserLimiter(perMinute int) *userLimiter {
	if perMinute <= 0 {
		perMinute = 6
	}
	return &userLimiter{
		limiters: make(map[string]*rate.Limiter),
		perMin:   perMinute,
	}
}

func (l *userLimiter) allow(userID string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(l.perMin)/60.0), l.perMin)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
