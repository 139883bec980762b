package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/clearcart/api/internal/platform/auth"
	"github.com/clearcart/api/internal/platform/httpx"
)

type rateLimiter interface {
	Allow(key string) bool
}

// RateLimitMiddleware throttles requests per caller over a one minute window.
// Authenticated callers are keyed by UID with their own quota; everyone else
// is keyed by client IP.
func RateLimitMiddleware(defaultPerMinute, authenticatedPerMinute int) func(http.Handler) http.Handler {
	anonymous := newSimpleRateLimiter(defaultPerMinute, time.Minute, nil)
	authenticated := newSimpleRateLimiter(authenticatedPerMinute, time.Minute, nil)
	if anonymous == nil && authenticated == nil {
		return nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := anonymous
			key := clientAddr(r)
			if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil && identity.UID != "" {
				if authenticated != nil {
					limiter = authenticated
				}
				key = identity.UID
			}
			if limiter != nil && !limiter.Allow(key) {
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return forwarded
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

type simpleRateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	store  map[string]rateEntry
}

type rateEntry struct {
	count int
	reset time.Time
}

func newSimpleRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &simpleRateLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]rateEntry),
	}
}

func (l *simpleRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok || now.After(entry.reset) {
		l.store[key] = rateEntry{count: 1, reset: now.Add(l.window)}
		l.pruneExpiredLocked(now)
		return true
	}

	if entry.count >= l.limit {
		return false
	}
	entry.count++
	l.store[key] = entry
	return true
}

func (l *simpleRateLimiter) pruneExpiredLocked(now time.Time) {
	if len(l.store) == 0 {
		return
	}
	for key, entry := range l.store {
		if now.After(entry.reset) {
			delete(l.store, key)
		}
	}
}
