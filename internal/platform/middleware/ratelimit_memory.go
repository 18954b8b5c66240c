package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type memoryLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryStore keeps a token bucket per key in process memory. Buckets idle
// for longer than idleTTL are dropped by Sweep.
type MemoryStore struct {
	mu       sync.Mutex
	limiters map[string]*memoryLimiter
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

func NewMemoryStore(cfg RateLimitConfig, idleTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		limiters: make(map[string]*memoryLimiter),
		rate:     rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.BurstSize,
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

func (s *MemoryStore) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	l, ok := s.limiters[key]
	if !ok {
		l = &memoryLimiter{limiter: rate.NewLimiter(s.rate, s.burst)}
		s.limiters[key] = l
	}
	l.lastSeen = now
	s.mu.Unlock()

	r := l.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

// Sweep removes buckets that have not been used within idleTTL and returns
// how many were removed.
func (s *MemoryStore) Sweep() int {
	cutoff := s.now().Add(-s.idleTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, l := range s.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(s.limiters, k)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}
