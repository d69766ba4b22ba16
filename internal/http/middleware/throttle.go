package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// Throttle caps how fast a single caller can hit the gateway. Buckets are
// keyed by the authenticated user when the request carries one, falling back
// to the client address for anonymous traffic, so one client cannot consume
// another's budget from behind a shared NAT.
//
// Websocket upgrades are exempt: the surface feed holds a single request
// open for the life of the connection and is bounded by the reconciler
// manager, not by request rate.
func Throttle(perSecond float64, burst int) func(http.Handler) http.Handler {
	th := newThrottle(perSecond, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isWebsocketUpgrade(r) {
				next.ServeHTTP(w, r)
				return
			}
			if !th.allow(callerKey(r)) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// callerKey attributes the request the same way the rest of the gateway
// does: verified token subject first, transport address as the fallback.
func callerKey(r *http.Request) string {
	if userID, ok := UserIDFromContext(r.Context()); ok {
		return "user:" + userID
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return "addr:" + xri
	}
	return "addr:" + r.RemoteAddr
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// throttle is a token-bucket table. Each caller refills at perSecond up to
// burst; a request costs one token.
type throttle struct {
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	perSecond float64
	burst     float64
}

type tokenBucket struct {
	remaining float64
	refreshed time.Time
}

func newThrottle(perSecond float64, burst int) *throttle {
	if burst < 1 {
		burst = 1
	}
	th := &throttle{
		buckets:   make(map[string]*tokenBucket),
		perSecond: perSecond,
		burst:     float64(burst),
	}
	go th.sweep()
	return th
}

func (th *throttle) allow(key string) bool {
	th.mu.Lock()
	defer th.mu.Unlock()

	now := time.Now()
	b, ok := th.buckets[key]
	if !ok {
		th.buckets[key] = &tokenBucket{remaining: th.burst - 1, refreshed: now}
		return true
	}

	b.remaining += now.Sub(b.refreshed).Seconds() * th.perSecond
	if b.remaining > th.burst {
		b.remaining = th.burst
	}
	b.refreshed = now

	if b.remaining < 1 {
		return false
	}
	b.remaining--
	return true
}

// sweep drops buckets idle long enough to have refilled completely, keeping
// the table bounded by the set of recently active callers.
func (th *throttle) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		th.mu.Lock()
		stale := time.Now().Add(-10 * time.Minute)
		for key, b := range th.buckets {
			if b.refreshed.Before(stale) {
				delete(th.buckets, key)
			}
		}
		th.mu.Unlock()
	}
}
