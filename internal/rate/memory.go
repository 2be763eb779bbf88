package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is the in-process fixed window used in dev and tests. Per
// replica only; use RedisLimiter when running more than one instance.
type MemoryLimiter struct {
	mu     sync.Mutex
	max    int64
	window time.Duration
	wins   map[string]*window
	now    func() time.Time
}

type window struct {
	start time.Time
	hits  int64
}

func NewMemoryLimiter(max int, windowDur time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:    int64(max),
		window: windowDur,
		wins:   make(map[string]*window),
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	start := now.Truncate(l.window)

	w, ok := l.wins[key]
	if !ok || w.start.Before(start) {
		w = &window{start: start}
		l.wins[key] = w
	}
	w.hits++

	// Opportunistic cleanup of stale windows.
	if len(l.wins) > 4096 {
		for k, win := range l.wins {
			if win.start.Before(start) {
				delete(l.wins, k)
			}
		}
	}

	remaining := l.max - w.hits
	if remaining < 0 {
		remaining = 0
	}
	ttl := start.Add(l.window).Sub(now)

	res := Result{
		Allowed:     w.hits <= l.max,
		Remaining:   remaining,
		CurrentHits: w.hits,
		WindowTTL:   ttl,
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res, nil
}
