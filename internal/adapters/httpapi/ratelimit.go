package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per caller and drops buckets that have
// been idle for longer than idleTTL.
type RateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*limiterEntry
	idleTTL time.Duration
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per caller with the given burst.
// A cleanup goroutine runs every cleanupInterval until Stop is called.
func NewRateLimiter(perMinute int, burst int, cleanupInterval time.Duration) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst < 1 {
		burst = 1
	}
	l := &RateLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
		clients: map[string]*limiterEntry{},
		idleTTL: 10 * time.Minute,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go l.cleanupLoop(cleanupInterval)
	}
	return l
}

func (l *RateLimiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stopCh:
			return
		}
	}
}

func (l *RateLimiter) sweep() {
	cutoff := l.now().Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.clients {
		if e.lastSeen.Before(cutoff) {
			delete(l.clients, k)
		}
	}
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (l *RateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *RateLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if e, ok := l.clients[key]; ok {
		e.lastSeen = now
		return e.limiter
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.clients[key] = &limiterEntry{limiter: lim, lastSeen: now}
	return lim
}

// Allow reports whether one more event for key is permitted now.
func (l *RateLimiter) Allow(key string) bool {
	return l.limiterFor(key).AllowN(l.now(), 1)
}

// Middleware limits mutating requests (everything but GET/HEAD/OPTIONS).
// Callers are keyed by user id when authenticated, otherwise by remote address.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		key := "addr:" + r.RemoteAddr
		if id, ok := IdentityFromContext(r.Context()); ok {
			key = "user:" + string(id.UserID)
		}
		if !l.Allow(key) {
			retry := time.Duration(float64(time.Second) / float64(l.limit))
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			writeError(w, r, http.StatusTooManyRequests, codeRateLimited, "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
